// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/chart"
	"github.com/bureau-foundation/umlaut/lib/config"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
	"github.com/bureau-foundation/umlaut/lib/telemetryclient"
	"github.com/bureau-foundation/umlaut/lib/tui"
	"github.com/bureau-foundation/umlaut/lib/version"
	"github.com/bureau-foundation/umlaut/lib/view"
)

// connection is the server and configuration flags shared by every
// subcommand that talks to a server.
type connection struct {
	server     string
	configPath string
	envFile    string
}

func (c *connection) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.server, "server", "", "server URL or host:port")
	flags.StringVar(&c.configPath, "config", "", "path to umlaut.yaml (default: $UMLAUT_CONFIG, else built-in defaults)")
	flags.StringVar(&c.envFile, "env-file", "", "dotenv file loaded into the environment before configuration")
}

func (c *connection) config() (*config.Config, error) {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}
	return config.Resolve(c.configPath)
}

func (c *connection) reader() (*telemetryclient.Reader, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	server := cfg.Dashboard.Server
	if c.server != "" {
		server = c.server
	}
	return telemetryclient.NewReader(server, &http.Client{Timeout: cfg.Client.Timeout})
}

// resolveSession finds a session by id, else by name. Sessions are
// listed most recently modified first, so a name shared by several
// runs picks the latest.
func (a *app) resolveSession(reader *telemetryclient.Reader, ref string) (telemetry.Session, error) {
	sessions, err := reader.Sessions(a.ctx)
	if err != nil {
		return telemetry.Session{}, fmt.Errorf("listing sessions: %w", err)
	}
	if i := slices.IndexFunc(sessions, func(s telemetry.Session) bool { return s.ID == ref }); i >= 0 {
		return sessions[i], nil
	}
	if i := slices.IndexFunc(sessions, func(s telemetry.Session) bool { return s.Name == ref }); i >= 0 {
		return sessions[i], nil
	}
	return telemetry.Session{}, fmt.Errorf("session %q not found", ref)
}

func (a *app) writeJSON(value any) error {
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (a *app) sessionsCommand() *Command {
	var conn connection
	var asJSON bool
	return &Command{
		Name:    "sessions",
		Summary: "List sessions, most recently modified first",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("sessions", pflag.ContinueOnError)
			conn.addFlags(flags)
			flags.BoolVar(&asJSON, "json", false, "output as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			reader, err := conn.reader()
			if err != nil {
				return err
			}
			sessions, err := reader.Sessions(a.ctx)
			if err != nil {
				return err
			}
			if asJSON {
				if sessions == nil {
					sessions = []telemetry.Session{}
				}
				return a.writeJSON(sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(a.stdout, "No sessions.")
				return nil
			}
			if a.styled {
				fmt.Fprintln(a.stdout, a.sessionTable(sessions))
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED\tMODIFIED")
			for _, session := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", session.ID, session.Name,
					session.CreatedAt.UTC().Format(time.RFC3339),
					session.ModifiedAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func (a *app) sessionTable(sessions []telemetry.Session) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(a.theme.HeaderForeground).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(a.theme.NormalText).Padding(0, 1)
	faint := cell.Foreground(a.theme.FaintText)

	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, []string{
			session.Name,
			session.ID,
			session.ModifiedAt.Local().Format(time.DateTime),
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(a.theme.BorderColor)).
		Headers("NAME", "ID", "MODIFIED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == 0:
				return cell
			}
			return faint
		}).
		String()
}

func (a *app) anomaliesCommand() *Command {
	var conn connection
	var asJSON bool
	return &Command{
		Name:    "anomalies",
		Summary: "Print a session's anomalies and how to fix them",
		Usage:   "umlaut anomalies <session-id-or-name> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("anomalies", pflag.ContinueOnError)
			conn.addFlags(flags)
			flags.BoolVar(&asJSON, "json", false, "output as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: umlaut anomalies <session-id-or-name>")
			}
			reader, err := conn.reader()
			if err != nil {
				return err
			}
			session, err := a.resolveSession(reader, args[0])
			if err != nil {
				return err
			}
			anomalies, err := reader.Anomalies(a.ctx, session.ID)
			if err != nil {
				return err
			}
			if asJSON {
				if anomalies == nil {
					anomalies = []anomaly.Anomaly{}
				}
				return a.writeJSON(anomalies)
			}
			if len(anomalies) == 0 {
				fmt.Fprintf(a.stdout, "No anomalies reported for %s.\n", session.Name)
				return nil
			}
			for i, item := range anomalies {
				if i > 0 {
					fmt.Fprintln(a.stdout)
				}
				if a.styled {
					fmt.Fprintln(a.stdout, tui.RenderAnomaly(item, a.theme, a.width))
					continue
				}
				fmt.Fprint(a.stdout, anomaly.Format(item))
			}
			return nil
		},
	}
}

func (a *app) exportCommand() *Command {
	var conn connection
	var out string
	var highlight []string
	return &Command{
		Name:    "export",
		Summary: "Write a session's charts as PNG files",
		Usage:   "umlaut export <session-id-or-name> [flags]",
		Examples: []Example{
			{
				Description: "Shade the epochs where the learning rate was flagged",
				Command:     "umlaut export mnist_run --highlight lr_high",
			},
			{
				Description: "Shade every per-epoch anomaly",
				Command:     "umlaut export mnist_run --highlight all --out ./charts",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("export", pflag.ContinueOnError)
			conn.addFlags(flags)
			flags.StringVar(&out, "out", "", "output directory (default: dashboard.export_dir)")
			flags.StringSliceVar(&highlight, "highlight", nil, "anomaly kinds whose epochs to shade, or \"all\"")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: umlaut export <session-id-or-name>")
			}
			all := slices.Contains(highlight, "all")
			kinds := make(map[anomaly.Kind]bool)
			if !all {
				for _, name := range highlight {
					kind, err := anomaly.ParseKind(name)
					if err != nil {
						return err
					}
					kinds[kind] = true
				}
			}

			cfg, err := conn.config()
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Dashboard.ExportDir
			}
			reader, err := conn.reader()
			if err != nil {
				return err
			}
			session, err := a.resolveSession(reader, args[0])
			if err != nil {
				return err
			}
			anomalies, err := reader.Anomalies(a.ctx, session.ID)
			if err != nil {
				return err
			}
			plots, err := reader.Plots(a.ctx, session.ID)
			if err != nil {
				return err
			}

			state := view.NewState()
			state.ApplyPoll(view.Payload{Anomalies: anomalies, Plots: plots})
			for i, item := range anomalies {
				if all || kinds[item.Kind] {
					state.Toggle(i)
				}
			}

			paths, err := chart.WriteFiles(out, session.Name, chart.SpecsFor(plots, state.ChartRegions()))
			for _, path := range paths {
				fmt.Fprintln(a.stdout, path)
			}
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Fprintf(a.stderr, "No metrics recorded for %s.\n", session.Name)
			}
			return nil
		},
	}
}

func (a *app) replayCommand() *Command {
	var conn connection
	var unique bool
	return &Command{
		Name:    "replay",
		Summary: "Post a spool recorded offline to a live server",
		Description: "Replay posts every batch journaled by an offline training run to a live\n" +
			"server. Session names in the spool are resolved afresh; with --unique each\n" +
			"gets a new session even if one of the same name exists.",
		Usage: "umlaut replay <spool-file> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			conn.addFlags(flags)
			flags.BoolVar(&unique, "unique", false, "always create new sessions instead of appending to existing ones")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: umlaut replay <spool-file>")
			}
			cfg, err := conn.config()
			if err != nil {
				return err
			}
			host := cfg.Client.Host
			if conn.server != "" {
				host = conn.server
			}
			logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

			result, err := telemetryclient.ReplaySpool(a.ctx, args[0], telemetryclient.ReplayConfig{
				Host:    host,
				Unique:  unique,
				Timeout: cfg.Client.Timeout,
				Logger:  logger,
			})
			names := make([]string, 0, len(result.Sessions))
			for name := range result.Sessions {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(a.stdout, "%s -> %s\n", name, result.Sessions[name])
			}
			fmt.Fprintf(a.stdout, "replayed %d batches (%d failed)\n", result.Posted, result.Failed)
			if err != nil {
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d batches failed to post", result.Failed, result.Posted+result.Failed)
			}
			return nil
		},
	}
}

func (a *app) versionCommand() *Command {
	return &Command{
		Name:    "version",
		Summary: "Print the version",
		Run: func(args []string) error {
			fmt.Fprintf(a.stdout, "umlaut %s\n", version.Info())
			return nil
		},
	}
}
