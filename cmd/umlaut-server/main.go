// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// umlaut-server receives per-epoch metrics and anomaly reports from
// training runs and serves them back to dashboards.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/config"
	"github.com/bureau-foundation/umlaut/lib/process"
	"github.com/bureau-foundation/umlaut/lib/runstore"
	"github.com/bureau-foundation/umlaut/lib/service"
	"github.com/bureau-foundation/umlaut/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	flags := pflag.NewFlagSet("umlaut-server", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to umlaut.yaml (default: $UMLAUT_CONFIG, else built-in defaults)")
	envFile := flags.String("env-file", "", "dotenv file loaded into the environment before configuration")
	listen := flags.String("listen", "", "TCP listen address (overrides server.listen)")
	store := flags.String("store", "", "store backend: sqlite or redis (overrides server.store)")
	sqlitePath := flags.String("sqlite-path", "", "SQLite database file (overrides server.sqlite_path)")
	redisURL := flags.String("redis-url", "", "Redis URL (overrides server.redis_url)")
	logLevel := flags.String("log-level", "", "debug, info, warn or error (overrides log_level)")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("umlaut-server %s\n", version.Info())
		return nil
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = *listen
	}
	if flags.Changed("store") {
		cfg.Server.Store = *store
	}
	if flags.Changed("sqlite-path") {
		cfg.Server.SQLitePath = *sqlitePath
	}
	if flags.Changed("redis-url") {
		cfg.Server.RedisURL = *redisURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := process.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := process.NewLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runs, err := openStore(ctx, cfg.Server, clock.Real(), logger)
	if err != nil {
		return err
	}
	defer runs.Close()

	api := NewAPI(runs, logger)
	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.Server.Listen,
		Handler:         api.Handler(cfg.Server.MaxBodyBytes),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})

	logger.Info("umlaut server starting",
		"version", version.Info(),
		"listen", cfg.Server.Listen,
		"store", cfg.Server.Store,
	)
	return server.Serve(ctx)
}

// openStore builds the configured backend.
func openStore(ctx context.Context, cfg config.ServerConfig, clk clock.Clock, logger *slog.Logger) (runstore.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return runstore.OpenRedis(ctx, runstore.RedisConfig{
			URL:    cfg.RedisURL,
			Prefix: cfg.RedisPrefix,
			Clock:  clk,
			Logger: logger,
		})
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return runstore.OpenSQLite(runstore.SQLiteConfig{
			Path:   cfg.SQLitePath,
			Clock:  clk,
			Logger: logger,
		})
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
