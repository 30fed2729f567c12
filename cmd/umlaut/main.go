// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// umlaut is the command-line client for an umlaut server: list
// sessions, print a session's anomalies with their suggested fixes,
// export its charts as PNG files, and replay a spool recorded by an
// offline training run.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/bureau-foundation/umlaut/lib/process"
	"github.com/bureau-foundation/umlaut/lib/tui"
)

// defaultWidth is the wrap width when stdout is not a terminal or its
// size is unknown.
const defaultWidth = 80

func main() {
	a := &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		width:  defaultWidth,
		theme:  tui.DefaultTheme,
	}
	// Styled output only for a human at a terminal; pipes and files get
	// plain text.
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		a.styled = true
		if width, _, err := term.GetSize(fd); err == nil && width > 0 {
			a.width = width
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := a.run(ctx, os.Args[1:])
	stop()
	if err != nil {
		process.Fatal(err)
	}
}

// app holds what every subcommand writes to and how.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	styled bool
	width  int
	theme  tui.Theme
}

func (a *app) run(ctx context.Context, args []string) error {
	a.ctx = ctx
	return a.root().Execute(args, a.stderr)
}

func (a *app) root() *Command {
	return &Command{
		Name: "umlaut",
		Description: "umlaut reads training sessions recorded by the umlaut callback.\n\n" +
			"Commands that talk to a server take --server, or read dashboard.server\n" +
			"(client.host for replay) from the configuration.",
		Subcommands: []*Command{
			a.sessionsCommand(),
			a.anomaliesCommand(),
			a.exportCommand(),
			a.replayCommand(),
			a.versionCommand(),
		},
	}
}
