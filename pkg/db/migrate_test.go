package db

import (
	"context"
	"strings"
	"testing"
)

func testMigrations() []Migration {
	return []Migration{
		{
			Version: 2,
			Name:    "add_index",
			Up: func(d Dialect) []string {
				return []string{"CREATE UNIQUE INDEX idx_items_name ON items (name)"}
			},
		},
		{
			Version: 1,
			Name:    "create_items",
			Up: func(d Dialect) []string {
				return []string{"CREATE TABLE items (name TEXT NOT NULL)"}
			},
		},
	}
}

func TestMigrate(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	applied, err := Migrate(ctx, pool, testMigrations())
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Errorf("applied = %v, want [1 2]", applied)
	}

	applied, err = Migrate(ctx, pool, testMigrations())
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second run applied = %v, want none", applied)
	}

	versions, err := AppliedVersions(ctx, pool)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
		t.Errorf("versions = %v, want [1 2]", versions)
	}

	if _, err := pool.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "x"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	_, err = pool.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "x")
	if !IsUniqueViolation(err) {
		t.Errorf("index from migration 2 not enforced: %v", err)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	migrations := []Migration{
		{Version: 1, Name: "ok", Up: func(Dialect) []string { return []string{"CREATE TABLE a (x TEXT)"} }},
		{Version: 2, Name: "broken", Up: func(Dialect) []string {
			return []string{"CREATE TABLE b (x TEXT)", "THIS IS NOT SQL"}
		}},
	}

	applied, err := Migrate(ctx, pool, migrations)
	if err == nil || !strings.Contains(err.Error(), "migration 2 (broken)") {
		t.Fatalf("Migrate() error = %v, want migration 2 failure", err)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Errorf("applied = %v, want [1]", applied)
	}

	versions, _ := AppliedVersions(ctx, pool)
	if len(versions) != 1 {
		t.Errorf("ledger = %v, want only version 1", versions)
	}
	if _, err := pool.Exec(ctx, "INSERT INTO b (x) VALUES ('y')"); err == nil {
		t.Error("table b should have been rolled back")
	}
}

func TestMigrate_DuplicateVersion(t *testing.T) {
	pool := openTestPool(t)
	up := func(Dialect) []string { return nil }
	_, err := Migrate(context.Background(), pool, []Migration{{Version: 1, Up: up}, {Version: 1, Up: up}})
	if err == nil {
		t.Error("Migrate() should reject duplicate versions")
	}
}
