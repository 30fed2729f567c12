// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// umlaut-example trains a small classifier on synthetic data with the
// umlaut callback attached. Planting bugs with --bug shows what each
// check reports, on the terminal and in the dashboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/umlaut/lib/callback"
	"github.com/bureau-foundation/umlaut/lib/config"
	"github.com/bureau-foundation/umlaut/lib/process"
	"github.com/bureau-foundation/umlaut/lib/version"
)

// flushTimeout bounds the final telemetry flush after training.
const flushTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	flags := pflag.NewFlagSet("umlaut-example", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to umlaut.yaml (default: $UMLAUT_CONFIG, else built-in defaults)")
	envFile := flags.String("env-file", "", "dotenv file loaded into the environment before configuration")
	session := flags.String("session", "", "session name (default: unnamed_<timestamp>)")
	host := flags.String("host", "", "server host (overrides client.host)")
	offline := flags.Bool("offline", false, "do not contact a server (overrides client.offline)")
	spool := flags.String("spool", "", "journal telemetry to this file for a later replay (overrides client.spool_path)")
	epochs := flags.Int("epochs", 10, "number of training epochs")
	seed := flags.Uint64("seed", 1, "random seed for data and weights")
	bugs := flags.StringSlice("bug", nil, "plant a bug: unnormalized, linear, logits, high-lr, or nan (repeatable)")
	logLevel := flags.String("log-level", "", "debug, info, warn or error (overrides log_level)")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("umlaut-example %s\n", version.Info())
		return nil
	}
	planted, err := parseBugs(*bugs)
	if err != nil {
		return err
	}
	if *epochs <= 0 {
		return fmt.Errorf("--epochs must be positive")
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
	if flags.Changed("host") {
		cfg.Client.Host = *host
	}
	if flags.Changed("offline") {
		cfg.Client.Offline = *offline
	}
	if flags.Changed("spool") {
		cfg.Client.SpoolPath = *spool
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

	callbackConfig, err := callback.ConfigFrom(cfg.Client)
	if err != nil {
		return err
	}
	callbackConfig.SessionName = *session
	callbackConfig.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trainer := newTrainer(runConfig{Epochs: *epochs, Seed: *seed, Bugs: planted, Progress: os.Stdout})
	cb, err := callback.New(ctx, trainer.net, callbackConfig)
	if err != nil {
		return err
	}
	if id := cb.SessionID(); id != "" {
		logger.Info("training with umlaut", "session_id", id, "bugs", planted)
	}

	found, trainErr := trainer.run(ctx, cb)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := cb.Close(flushCtx); err != nil {
		logger.Warn("flushing telemetry", "error", err)
	}
	if trainErr != nil {
		return trainErr
	}
	fmt.Printf("\ntraining finished with %d anomaly reports\n", len(found))
	return nil
}
