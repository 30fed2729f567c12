// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// umlaut-dashboard is the interactive terminal view of umlaut training
// sessions: pick a session, browse its anomalies with their suggested
// fixes, select anomalies to highlight the epochs they were captured
// at, and export the session's charts as PNG files.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/config"
	"github.com/bureau-foundation/umlaut/lib/process"
	"github.com/bureau-foundation/umlaut/lib/telemetryclient"
	"github.com/bureau-foundation/umlaut/lib/tui"
	"github.com/bureau-foundation/umlaut/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	flags := pflag.NewFlagSet("umlaut-dashboard", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to umlaut.yaml (default: $UMLAUT_CONFIG, else built-in defaults)")
	envFile := flags.String("env-file", "", "dotenv file loaded into the environment before configuration")
	server := flags.String("server", "", "server URL (overrides dashboard.server)")
	session := flags.String("session", "", "session id or name to open directly")
	interval := flags.Duration("interval", 0, "poll interval (overrides dashboard.poll_interval)")
	exportDir := flags.String("export-dir", "", "directory for exported PNG charts (overrides dashboard.export_dir)")
	logFile := flags.String("log-file", "", "write JSON log records to this file; the terminal is owned by the UI")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("umlaut-dashboard %s\n", version.Info())
		return nil
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
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
	if flags.Changed("server") {
		cfg.Dashboard.Server = *server
	}
	if flags.Changed("interval") {
		cfg.Dashboard.PollInterval = *interval
	}
	if flags.Changed("export-dir") {
		cfg.Dashboard.ExportDir = *exportDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.DiscardHandler)
	if *logFile != "" {
		file, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer file.Close()
		level, err := process.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
	}

	reader, err := telemetryclient.NewReader(cfg.Dashboard.Server, &http.Client{})
	if err != nil {
		return err
	}

	model := newModel(modelConfig{
		Source:    reader,
		Interval:  cfg.Dashboard.PollInterval,
		ExportDir: cfg.Dashboard.ExportDir,
		Session:   *session,
		Clock:     clock.Real(),
		Logger:    logger,
		Theme:     tui.DefaultTheme,
	})
	logger.Info("dashboard starting", "version", version.Info(), "server", cfg.Dashboard.Server)

	program := tea.NewProgram(model, tea.WithAltScreen())
	final, err := program.Run()
	if finalModel, ok := final.(Model); ok {
		finalModel.stop()
	}
	return err
}
