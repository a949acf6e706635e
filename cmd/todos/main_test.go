package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("TODOS_CONFIG", "")
	if got := defaultConfigPath(); got != "" {
		t.Errorf("defaultConfigPath() = %q, want empty", got)
	}

	if err := os.WriteFile(filepath.Join(dir, defaultConfigFile), []byte("server:\n  addr: \":0\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := defaultConfigPath(); got != defaultConfigFile {
		t.Errorf("defaultConfigPath() = %q, want %q", got, defaultConfigFile)
	}

	t.Setenv("TODOS_CONFIG", "/etc/todos/prod.toml")
	if got := defaultConfigPath(); got != "/etc/todos/prod.toml" {
		t.Errorf("defaultConfigPath() = %q", got)
	}
}

func TestRun_MigrateOnly(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "todos.db")
	t.Setenv("TODOS_DATABASE_DSN", "file:"+dbPath)

	if err := run("", true); err != nil {
		t.Fatalf("run(-migrate) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestRun_BadConfig(t *testing.T) {
	if err := run(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Error("run() with a missing config file should fail")
	}
}
