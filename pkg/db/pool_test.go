package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var dbSeq atomic.Int64

// openTestPool opens a private in-memory sqlite database
func openTestPool(t *testing.T) *Pool {
	t.Helper()
	dsn := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared", dbSeq.Add(1))
	cfg := DefaultPoolConfig(dsn, "sqlite3")
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig("file:todos.db", "sqlite3")

	if config.DSN != "file:todos.db" {
		t.Errorf("DSN = %v, want file:todos.db", config.DSN)
	}
	if config.DriverName != "sqlite3" {
		t.Errorf("DriverName = %v, want sqlite3", config.DriverName)
	}
	if config.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %v, want 25", config.MaxOpenConns)
	}
	if config.MaxIdleConns != 5 {
		t.Errorf("MaxIdleConns = %v, want 5", config.MaxIdleConns)
	}
	if config.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 5m", config.ConnMaxLifetime)
	}
}

func TestNewPool_FailFast(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PoolConfig)
		message string
	}{
		{"empty dsn", func(c *PoolConfig) { c.DSN = "" }, "DSN cannot be empty"},
		{"empty driver", func(c *PoolConfig) { c.DriverName = "" }, "DriverName cannot be empty"},
		{"zero max open", func(c *PoolConfig) { c.MaxOpenConns = 0 }, "MaxOpenConns must be positive"},
		{"negative idle", func(c *PoolConfig) { c.MaxIdleConns = -1 }, "MaxIdleConns cannot be negative"},
		{"idle above open", func(c *PoolConfig) { c.MaxIdleConns = 100 }, "MaxIdleConns cannot exceed MaxOpenConns"},
		{"negative lifetime", func(c *PoolConfig) { c.ConnMaxLifetime = -time.Second }, "ConnMaxLifetime cannot be negative"},
		{"negative idle time", func(c *PoolConfig) { c.ConnMaxIdleTime = -time.Second }, "ConnMaxIdleTime cannot be negative"},
		{"unknown driver", func(c *PoolConfig) { c.DriverName = "mysql" }, "unsupported driver: mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPoolConfig("file:x?mode=memory", "sqlite3")
			tt.mutate(&cfg)

			_, err := NewPool(cfg)
			if err == nil {
				t.Fatal("NewPool() should fail-fast")
			}
			var dbErr *Error
			if !errors.As(err, &dbErr) || dbErr.Code != "INVALID_CONFIG" {
				t.Errorf("error = %#v, want INVALID_CONFIG", err)
			}
			if err.Error() != tt.message {
				t.Errorf("message = %q, want %q", err.Error(), tt.message)
			}
		})
	}
}

func TestPool_NilAndInvalidInput(t *testing.T) {
	var nilPool *Pool
	if err := nilPool.Close(); err == nil {
		t.Error("Close() on nil pool should fail")
	}
	if err := nilPool.Ping(context.Background()); err == nil {
		t.Error("Ping() on nil pool should fail")
	}
	if stats := nilPool.Stats(); stats.OpenConnections != 0 {
		t.Errorf("Stats() on nil pool = %+v", stats)
	}

	pool := openTestPool(t)
	//nolint:staticcheck // nil context is the case under test
	if _, err := pool.Query(nil, "SELECT 1"); err == nil {
		t.Error("Query() with nil context should fail")
	}
	if _, err := pool.Exec(context.Background(), "   "); err == nil {
		t.Error("Exec() with empty query should fail")
	}

	defer func() {
		if recover() == nil {
			t.Error("QueryRow() with empty query should panic")
		}
	}()
	pool.QueryRow(context.Background(), "")
}

func TestPool_ObserverAndStats(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	var ops []string
	var failures int
	pool.Observe(QueryObserverFunc(func(op string, d time.Duration, err error) {
		ops = append(ops, op)
		if err != nil {
			failures++
		}
	}), nil)

	if _, err := pool.Exec(ctx, "CREATE TABLE t (v TEXT)"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if _, err := pool.Exec(ctx, "INSERT INTO t (v) VALUES (?)", "a"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	var v string
	if err := pool.QueryRow(ctx, "select v FROM t WHERE v = ?", "a").Scan(&v); err != nil || v != "a" {
		t.Fatalf("QueryRow() = %q, %v", v, err)
	}
	if _, err := pool.Query(ctx, "SELECT nope FROM missing"); err == nil {
		t.Error("Query() on missing table should fail")
	}

	want := []string{"create", "insert", "select", "select"}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Errorf("observed ops = %v, want %v", ops, want)
	}
	if failures != 1 {
		t.Errorf("observed failures = %d, want 1", failures)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if stats := pool.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("Stats().MaxOpenConnections = %d, want 1", stats.MaxOpenConnections)
	}
	if pool.Dialect() != DialectSQLite {
		t.Errorf("Dialect() = %v, want sqlite", pool.Dialect())
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{DialectPostgres, "SELECT * FROM todos WHERE id = ? AND title = ?", "SELECT * FROM todos WHERE id = $1 AND title = $2"},
		{DialectPostgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{DialectPostgres, "SELECT 1", "SELECT 1"},
		{DialectSQLite, "SELECT * FROM todos WHERE id = ?", "SELECT * FROM todos WHERE id = ?"},
	}

	for _, tt := range tests {
		if got := tt.dialect.Rebind(tt.in); got != tt.want {
			t.Errorf("%s.Rebind(%q) = %q, want %q", tt.dialect, tt.in, got, tt.want)
		}
	}
}

func TestDialectFor(t *testing.T) {
	for _, driver := range Drivers {
		if _, err := DialectFor(driver); err != nil {
			t.Errorf("DialectFor(%q) error = %v", driver, err)
		}
	}
	if d, _ := DialectFor("pgx"); d != DialectPostgres {
		t.Errorf("DialectFor(pgx) = %v, want postgres", d)
	}
}

func TestOperation(t *testing.T) {
	if got := Operation("  SELECT 1"); got != "select" {
		t.Errorf("Operation() = %q, want select", got)
	}
	if got := Operation(""); got != "unknown" {
		t.Errorf("Operation(\"\") = %q, want unknown", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, "CREATE TABLE u (title TEXT NOT NULL UNIQUE)"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if _, err := pool.Exec(ctx, "INSERT INTO u (title) VALUES (?)", "same"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	_, sqliteErr := pool.Exec(ctx, "INSERT INTO u (title) VALUES (?)", "same")
	_, notNullErr := pool.Exec(ctx, "INSERT INTO u (title) VALUES (NULL)")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"sqlite unique", sqliteErr, true},
		{"sqlite wrapped", fmt.Errorf("insert: %w", sqliteErr), true},
		{"sqlite not null", notNullErr, false},
		{"pq unique", &pq.Error{Code: "23505"}, true},
		{"pq fk", &pq.Error{Code: "23503"}, false},
		{"pgx unique", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgx check", &pgconn.PgError{Code: "23514"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
