package db

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Migration is one versioned schema change.
// Up returns the statements to run for the given dialect, in order.
type Migration struct {
	Version int64
	Name    string
	Up      func(d Dialect) []string
}

const ledgerTable = "schema_migrations"

// Migrate applies every migration whose version is not yet recorded in the
// schema_migrations ledger. Each migration runs in its own transaction together
// with its ledger row. It returns the versions applied by this call.
func Migrate(ctx context.Context, pool *Pool, migrations []Migration) ([]int64, error) {
	if err := pool.check(ctx); err != nil {
		return nil, err
	}

	pending := make([]Migration, len(migrations))
	copy(pending, migrations)
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	for i := 1; i < len(pending); i++ {
		if pending[i].Version == pending[i-1].Version {
			return nil, &Error{Code: "INVALID_MIGRATION", Message: fmt.Sprintf("duplicate migration version %d", pending[i].Version)}
		}
	}

	if _, err := pool.Exec(ctx, ledgerDDL(pool.Dialect())); err != nil {
		return nil, fmt.Errorf("create %s: %w", ledgerTable, err)
	}

	done, err := appliedVersions(ctx, pool)
	if err != nil {
		return nil, err
	}

	var applied []int64
	for _, m := range pending {
		if done[m.Version] {
			continue
		}
		if err := apply(ctx, pool, m); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

// AppliedVersions returns the versions recorded in the ledger, ascending
func AppliedVersions(ctx context.Context, pool *Pool) ([]int64, error) {
	done, err := appliedVersions(ctx, pool)
	if err != nil {
		return nil, err
	}
	versions := make([]int64, 0, len(done))
	for v := range done {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

func ledgerDDL(d Dialect) string {
	ts := "TIMESTAMP"
	if d == DialectPostgres {
		ts = "TIMESTAMPTZ"
	}
	return "CREATE TABLE IF NOT EXISTS " + ledgerTable + " (version BIGINT PRIMARY KEY, name TEXT NOT NULL, applied_at " + ts + " NOT NULL)"
}

func appliedVersions(ctx context.Context, pool *Pool) (map[int64]bool, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM "+ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	defer rows.Close()

	done := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

func apply(ctx context.Context, pool *Pool, m Migration) error {
	if m.Up == nil {
		return &Error{Code: "INVALID_MIGRATION", Message: "migration has no Up function"}
	}

	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d := pool.Dialect()
	for _, stmt := range m.Up(d) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	record := d.Rebind("INSERT INTO " + ledgerTable + " (version, name, applied_at) VALUES (?, ?, ?)")
	if _, err := tx.ExecContext(ctx, record, m.Version, m.Name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
