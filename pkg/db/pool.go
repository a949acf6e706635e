package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// PoolConfig configures database connection pool (similar to HikariConfig)
type PoolConfig struct {
	// DSN is the database connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle
	ConnMaxIdleTime time.Duration

	// DriverName is the database/sql driver name ("sqlite3", "postgres" or "pgx")
	DriverName string

	// PingTimeout bounds the connectivity check done by NewPool. Zero means 5s.
	PingTimeout time.Duration
}

// DefaultPoolConfig returns HikariCP-like default configuration
func DefaultPoolConfig(dsn string, driverName string) PoolConfig {
	return PoolConfig{
		DSN:             dsn,
		DriverName:      driverName,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// QueryObserver is notified after every statement executed through a Pool.
// operation is the lower-cased leading SQL keyword (select, insert, ...).
type QueryObserver interface {
	ObserveQuery(operation string, duration time.Duration, err error)
}

// QueryObserverFunc adapts a function to QueryObserver
type QueryObserverFunc func(operation string, duration time.Duration, err error)

func (f QueryObserverFunc) ObserveQuery(operation string, duration time.Duration, err error) {
	f(operation, duration, err)
}

// Pool represents a database connection pool
type Pool struct {
	db        *sql.DB
	config    PoolConfig
	dialect   Dialect
	observers []QueryObserver
}

// NewPool creates a new database connection pool (similar to HikariDataSource)
// Fail-fast: Validates configuration and connectivity before returning
func NewPool(config PoolConfig) (*Pool, error) {
	if err := validatePoolConfig(config); err != nil {
		return nil, err
	}

	dialect, err := DialectFor(config.DriverName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	timeout := config.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Pool{
		db:      db,
		config:  config,
		dialect: dialect,
	}, nil
}

func validatePoolConfig(config PoolConfig) error {
	switch {
	case config.DSN == "":
		return &Error{Code: "INVALID_CONFIG", Message: "DSN cannot be empty"}
	case config.DriverName == "":
		return &Error{Code: "INVALID_CONFIG", Message: "DriverName cannot be empty"}
	case config.MaxOpenConns <= 0:
		return &Error{Code: "INVALID_CONFIG", Message: "MaxOpenConns must be positive"}
	case config.MaxIdleConns < 0:
		return &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot be negative"}
	case config.MaxIdleConns > config.MaxOpenConns:
		return &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot exceed MaxOpenConns"}
	case config.ConnMaxLifetime < 0:
		return &Error{Code: "INVALID_CONFIG", Message: "ConnMaxLifetime cannot be negative"}
	case config.ConnMaxIdleTime < 0:
		return &Error{Code: "INVALID_CONFIG", Message: "ConnMaxIdleTime cannot be negative"}
	}
	return nil
}

// Observe registers observers notified after each Query, QueryRow and Exec.
// Must be called before the pool is shared between goroutines.
func (p *Pool) Observe(observers ...QueryObserver) {
	for _, o := range observers {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// Dialect returns the SQL dialect of the configured driver
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// DB returns the underlying *sql.DB
// Fail-fast: Panics if pool is nil (invalid state)
func (p *Pool) DB() *sql.DB {
	if p == nil {
		panic("pool cannot be nil")
	}
	if p.db == nil {
		panic("pool.db cannot be nil - pool not initialized")
	}
	return p.db
}

// Close closes the connection pool
func (p *Pool) Close() error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool already closed"}
	}
	return p.db.Close()
}

// Ping tests the connection
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return p.db.PingContext(ctx)
}

// Stats returns pool statistics (similar to HikariPoolMXBean)
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

// Query executes a query that returns rows.
// Placeholders are written as ? and rebound for the pool's dialect.
func (p *Pool) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := p.checkQuery(ctx, query); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(query), args...)
	p.observe(query, start, err)
	return rows, err
}

// QueryRow executes a query that returns a single row
// Fail-fast: Panics on invalid state, like database/sql does for a nil *DB
func (p *Pool) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if err := p.checkQuery(ctx, query); err != nil {
		panic(err.Error())
	}
	start := time.Now()
	row := p.db.QueryRowContext(ctx, p.dialect.Rebind(query), args...)
	p.observe(query, start, row.Err())
	return row
}

// Exec executes a command
func (p *Pool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := p.checkQuery(ctx, query); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := p.db.ExecContext(ctx, p.dialect.Rebind(query), args...)
	p.observe(query, start, err)
	return res, err
}

// BeginTx starts a transaction with options.
// Statements run on the returned *sql.Tx are not rebound; use Dialect().Rebind.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	return p.db.BeginTx(ctx, opts)
}

func (p *Pool) check(ctx context.Context) error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	return nil
}

func (p *Pool) checkQuery(ctx context.Context, query string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		return &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	return nil
}

func (p *Pool) observe(query string, start time.Time, err error) {
	if len(p.observers) == 0 {
		return
	}
	op := Operation(query)
	d := time.Since(start)
	for _, o := range p.observers {
		o.ObserveQuery(op, d, err)
	}
}

// Operation returns the lower-cased leading keyword of a SQL statement
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
