package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxorio/todos/pkg/app"
	"github.com/fluxorio/todos/pkg/core"
)

const defaultConfigFile = "todos.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to a YAML, JSON or TOML config file")
	migrateOnly := flag.Bool("migrate", false, "apply pending database migrations and exit")
	flag.Parse()

	if err := run(*configPath, *migrateOnly); err != nil {
		fmt.Fprintln(os.Stderr, "todos:", err)
		os.Exit(1)
	}
}

// defaultConfigPath prefers $TODOS_CONFIG, then ./todos.yaml when it exists
func defaultConfigPath() string {
	if p := os.Getenv("TODOS_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

func run(configPath string, migrateOnly bool) error {
	cfg, err := app.Load(configPath)
	if err != nil {
		return err
	}
	logger := core.NewLogger(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if migrateOnly {
		applied, err := app.Migrate(ctx, cfg.Database)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "versions", applied, "driver", cfg.Database.Driver)
		return nil
	}

	a, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Start() }()
	logger.Info("todos started", "addr", cfg.Server.Addr, "config", configPath)

	select {
	case err := <-errCh:
		if err != nil {
			_ = a.Stop(context.Background())
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("todos stopped")
	return nil
}
