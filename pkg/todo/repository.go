package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/todos/pkg/core/failfast"
	"github.com/fluxorio/todos/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Repository stores todos. Each method touches at most one row.
type Repository interface {
	TitleChecker

	FindAll(ctx context.Context, f Filter) ([]Todo, error)
	// FindByID returns ErrNotFound when id is absent
	FindByID(ctx context.Context, id int64) (Todo, error)
	// Insert returns ErrTitleConflict when the unique title index rejects the row
	Insert(ctx context.Context, d Draft) (Todo, error)
	// Update replaces every field of row id with d in a single statement.
	// It returns ErrNotFound or ErrTitleConflict.
	Update(ctx context.Context, id int64, d Draft) (Todo, error)
	// Delete returns ErrNotFound when id is absent
	Delete(ctx context.Context, id int64) error
}

const todoColumns = "id, title, description, completed, created_at, updated_at"

// SQLRepository implements Repository on a db.Pool
type SQLRepository struct {
	pool   *db.Pool
	tracer trace.Tracer
	now    func() time.Time
}

// RepositoryOption configures a SQLRepository
type RepositoryOption func(*SQLRepository)

// WithTracer records a client span per repository call
func WithTracer(tracer trace.Tracer) RepositoryOption {
	return func(r *SQLRepository) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithClock replaces time.Now for timestamps
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *SQLRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewSQLRepository creates a repository on pool. The schema must exist; see Migrations.
func NewSQLRepository(pool *db.Pool, opts ...RepositoryOption) *SQLRepository {
	failfast.NotNil(pool, "pool")
	r := &SQLRepository{
		pool:   pool,
		tracer: noop.NewTracerProvider().Tracer("todos"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// timestamp returns the current time at the precision every backend keeps
func (r *SQLRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *SQLRepository) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	system := "sqlite"
	if r.pool.Dialect() == db.DialectPostgres {
		system = "postgresql"
	}
	return r.tracer.Start(ctx, "todos."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", op),
			attribute.String("db.sql.table", "todos"),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// escapeLike escapes LIKE metacharacters so user input matches literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *SQLRepository) FindAll(ctx context.Context, f Filter) (todos []Todo, err error) {
	ctx, span := r.startSpan(ctx, "FindAll")
	defer func() { endSpan(span, err) }()

	query := "SELECT " + todoColumns + " FROM todos"
	var where []string
	var args []interface{}
	if f.Title != "" {
		where = append(where, `LOWER(title) LIKE LOWER(?) ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Title)+"%")
	}
	if f.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *f.Completed)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos = make([]Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(todos)))
	return todos, nil
}

func (r *SQLRepository) FindByID(ctx context.Context, id int64) (t Todo, err error) {
	ctx, span := r.startSpan(ctx, "FindByID")
	defer func() { endSpan(span, err) }()

	row := r.pool.QueryRow(ctx, "SELECT "+todoColumns+" FROM todos WHERE id = ?", id)
	t, err = scanTodo(row)
	if db.IsNoRows(err) {
		return Todo{}, ErrNotFound
	}
	if err != nil {
		return Todo{}, fmt.Errorf("find todo %d: %w", id, err)
	}
	return t, nil
}

func (r *SQLRepository) TitleTaken(ctx context.Context, title string, excludeID int64) (taken bool, err error) {
	ctx, span := r.startSpan(ctx, "TitleTaken")
	defer func() { endSpan(span, err) }()

	var one int
	err = r.pool.QueryRow(ctx, "SELECT 1 FROM todos WHERE title = ? AND id <> ? LIMIT 1", title, excludeID).Scan(&one)
	if db.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return true, nil
}

func (r *SQLRepository) Insert(ctx context.Context, d Draft) (t Todo, err error) {
	ctx, span := r.startSpan(ctx, "Insert")
	defer func() { endSpan(span, err) }()

	completed, err := requireCompleted(d)
	if err != nil {
		return Todo{}, err
	}

	now := r.timestamp()
	var id int64
	err = r.pool.QueryRow(ctx,
		"INSERT INTO todos (title, description, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id",
		d.Title, nullString(d.Description), completed, now, now,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return Todo{}, ErrTitleConflict
	}
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo: %w", err)
	}

	span.SetAttributes(attribute.Int64("todo.id", id))
	return Todo{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Completed:   completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *SQLRepository) Update(ctx context.Context, id int64, d Draft) (t Todo, err error) {
	ctx, span := r.startSpan(ctx, "Update")
	defer func() { endSpan(span, err) }()

	completed, err := requireCompleted(d)
	if err != nil {
		return Todo{}, err
	}

	res, err := r.pool.Exec(ctx,
		"UPDATE todos SET title = ?, description = ?, completed = ?, updated_at = ? WHERE id = ?",
		d.Title, nullString(d.Description), completed, r.timestamp(), id,
	)
	if db.IsUniqueViolation(err) {
		return Todo{}, ErrTitleConflict
	}
	if err != nil {
		return Todo{}, fmt.Errorf("update todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Todo{}, fmt.Errorf("update todo %d: %w", id, err)
	}
	if n == 0 {
		return Todo{}, ErrNotFound
	}

	return r.FindByID(ctx, id)
}

func (r *SQLRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := r.startSpan(ctx, "Delete")
	defer func() { endSpan(span, err) }()

	res, err := r.pool.Exec(ctx, "DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored todos
func (r *SQLRepository) Count(ctx context.Context) (n int64, err error) {
	ctx, span := r.startSpan(ctx, "Count")
	defer func() { endSpan(span, err) }()

	err = r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM todos").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(s scanner) (Todo, error) {
	var t Todo
	var desc sql.NullString
	if err := s.Scan(&t.ID, &t.Title, &desc, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Todo{}, err
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func requireCompleted(d Draft) (bool, error) {
	if d.Completed == nil {
		return false, fmt.Errorf("draft has no completed value")
	}
	return *d.Completed, nil
}

// Migrations returns the schema of the todos table, versioned for db.Migrate.
// The unique index is the authoritative guard for title uniqueness.
func Migrations() []db.Migration {
	return []db.Migration{
		{
			Version: 1,
			Name:    "create_todos",
			Up: func(d db.Dialect) []string {
				if d == db.DialectPostgres {
					return []string{`CREATE TABLE todos (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`}
				}
				return []string{`CREATE TABLE todos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`}
			},
		},
		{
			Version: 2,
			Name:    "add_index_todos_on_title",
			Up: func(db.Dialect) []string {
				return []string{"CREATE UNIQUE INDEX index_todos_on_title ON todos (title)"}
			},
		},
	}
}
