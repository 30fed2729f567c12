// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/chart"
	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
	"github.com/bureau-foundation/umlaut/lib/tui"
	"github.com/bureau-foundation/umlaut/lib/view"
)

// source is the read side of the telemetry server.
// *telemetryclient.Reader implements it.
type source interface {
	Sessions(ctx context.Context) ([]telemetry.Session, error)
	Plots(ctx context.Context, sessionID string) (telemetry.Plots, error)
	Anomalies(ctx context.Context, sessionID string) ([]anomaly.Anomaly, error)
}

type screen int

const (
	sessionListScreen screen = iota
	sessionScreen
)

// requestTimeout bounds a session-list request. Poll fetches are
// bounded by the poll interval instead.
const requestTimeout = 10 * time.Second

// Layout fallbacks until the first WindowSizeMsg arrives.
const (
	defaultWidth  = 100
	defaultHeight = 30
)

// maxStripEpochs caps the epoch strip drawn under each series.
const maxStripEpochs = 60

type modelConfig struct {
	Source    source
	Interval  time.Duration
	ExportDir string

	// Session is an id or name to open as soon as the session list
	// loads.
	Session string

	Clock  clock.Clock
	Logger *slog.Logger
	Theme  tui.Theme
}

type sessionsMsg struct {
	sessions []telemetry.Session
	err      error
}

// stateChangedMsg and pollFailedMsg come from the poller goroutine.
// generation identifies which opened session they belong to, so a
// late message from a stopped poller is dropped.
type stateChangedMsg struct {
	generation int
	version    uint64
}

type pollFailedMsg struct {
	generation int
	err        error
}

type exportedMsg struct {
	paths []string
	err   error
}

// Model is the dashboard's bubbletea model. The session list is the
// first screen; opening a session starts a poller that keeps a
// view.State current while the anomaly list, detail pane, and series
// summaries render from it.
type Model struct {
	config modelConfig
	keys   keyMap
	help   help.Model
	detail viewport.Model
	events chan tea.Msg

	width  int
	height int
	screen screen

	sessions       []telemetry.Session
	sessionCursor  int
	pendingSession string

	session       telemetry.Session
	generation    int
	state         *view.State
	poller        *view.Poller
	pollContext   context.Context
	stopPolling   context.CancelFunc
	anomalyCursor int

	status string
	err    error
}

func newModel(config modelConfig) Model {
	if config.Interval <= 0 {
		config.Interval = view.DefaultPollInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	model := Model{
		config:         config,
		keys:           defaultKeyMap,
		help:           help.New(),
		detail:         viewport.New(0, 0),
		events:         make(chan tea.Msg, 16),
		width:          defaultWidth,
		height:         defaultHeight,
		pendingSession: config.Session,
	}
	model.help.Styles.ShortKey = lipgloss.NewStyle().Foreground(config.Theme.HelpText)
	model.help.Styles.ShortDesc = lipgloss.NewStyle().Foreground(config.Theme.FaintText)
	model.resizeDetail()
	return model
}

func (model Model) Init() tea.Cmd {
	return tea.Batch(model.loadSessions(), model.listen())
}

func (model Model) loadSessions() tea.Cmd {
	src := model.config.Source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sessions, err := src.Sessions(ctx)
		return sessionsMsg{sessions: sessions, err: err}
	}
}

// listen delivers the next poller notification. It is re-issued after
// each one is handled.
func (model Model) listen() tea.Cmd {
	events := model.events
	return func() tea.Msg { return <-events }
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.help.Width = message.Width
		model.resizeDetail()
		model.refreshDetail()
		return model, nil

	case sessionsMsg:
		if message.err != nil {
			model.err = fmt.Errorf("listing sessions: %w", message.err)
			return model, nil
		}
		model.err = nil
		model.sessions = message.sessions
		model.sessionCursor = clampCursor(model.sessionCursor, len(model.sessions))
		if model.pendingSession != "" {
			wanted := model.pendingSession
			model.pendingSession = ""
			for i, session := range model.sessions {
				if session.ID == wanted || session.Name == wanted {
					model.sessionCursor = i
					model.open(session)
					return model, nil
				}
			}
			model.err = fmt.Errorf("session %q not found", wanted)
		}
		return model, nil

	case stateChangedMsg:
		if message.generation == model.generation && model.state != nil {
			model.err = nil
			model.anomalyCursor = clampCursor(model.anomalyCursor, len(model.state.Payload().Anomalies))
			model.refreshDetail()
		}
		return model, model.listen()

	case pollFailedMsg:
		if message.generation == model.generation {
			model.err = message.err
		}
		return model, model.listen()

	case exportedMsg:
		if message.err != nil {
			model.err = fmt.Errorf("export: %w", message.err)
		} else {
			model.err = nil
			model.status = fmt.Sprintf("exported %d charts to %s", len(message.paths), model.config.ExportDir)
		}
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(message, model.keys.Quit) {
		model.stop()
		return model, tea.Quit
	}

	if model.screen == sessionListScreen {
		switch {
		case key.Matches(message, model.keys.Up):
			model.sessionCursor = clampCursor(model.sessionCursor-1, len(model.sessions))
		case key.Matches(message, model.keys.Down):
			model.sessionCursor = clampCursor(model.sessionCursor+1, len(model.sessions))
		case key.Matches(message, model.keys.Open):
			if len(model.sessions) > 0 {
				model.open(model.sessions[model.sessionCursor])
			}
		case key.Matches(message, model.keys.Refresh):
			return model, model.loadSessions()
		}
		return model, nil
	}

	count := len(model.state.Payload().Anomalies)
	switch {
	case key.Matches(message, model.keys.Up):
		model.anomalyCursor = clampCursor(model.anomalyCursor-1, count)
		model.refreshDetail()
	case key.Matches(message, model.keys.Down):
		model.anomalyCursor = clampCursor(model.anomalyCursor+1, count)
		model.refreshDetail()
	case key.Matches(message, model.keys.PageUp):
		model.detail.LineUp(max(model.detail.Height/2, 1))
	case key.Matches(message, model.keys.PageDown):
		model.detail.LineDown(max(model.detail.Height/2, 1))
	case key.Matches(message, model.keys.Toggle):
		model.state.Toggle(model.anomalyCursor)
		model.status = ""
	case key.Matches(message, model.keys.Clear):
		model.state.Clear()
		model.status = ""
	case key.Matches(message, model.keys.Export):
		return model, model.export()
	case key.Matches(message, model.keys.Refresh):
		model.poller.Poll(model.pollContext)
	case key.Matches(message, model.keys.Back):
		model.stop()
		model.screen = sessionListScreen
		return model, model.loadSessions()
	}
	return model, nil
}

// open switches to the session screen and starts polling session.
func (model *Model) open(session telemetry.Session) {
	model.stop()
	model.generation++
	generation := model.generation
	events := model.events
	notify := func(message tea.Msg) {
		select {
		case events <- message:
		default:
			// The UI re-reads the whole state on the next
			// notification, so a dropped one loses nothing.
		}
	}

	state := view.NewState()
	poller, err := view.NewPoller(view.PollerConfig{
		Fetch:    fetcher(model.config.Source, session.ID, model.config.Interval),
		State:    state,
		Interval: model.config.Interval,
		OnChange: func(version uint64) {
			notify(stateChangedMsg{generation: generation, version: version})
		},
		OnError: func(err error) {
			notify(pollFailedMsg{generation: generation, err: err})
		},
		Clock:  model.config.Clock,
		Logger: model.config.Logger.With("session", session.ID),
	})
	if err != nil {
		model.err = err
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	model.session = session
	model.state = state
	model.poller = poller
	model.pollContext = ctx
	model.stopPolling = cancel
	model.anomalyCursor = 0
	model.status = ""
	model.err = nil
	model.screen = sessionScreen
	model.refreshDetail()
	go poller.Run(ctx)
}

// stop cancels the current session's poller, if any.
func (model *Model) stop() {
	if model.stopPolling != nil {
		model.stopPolling()
		model.stopPolling = nil
	}
}

// fetcher reads both halves of a session's payload.
func fetcher(src source, sessionID string, timeout time.Duration) view.Fetcher {
	return func(ctx context.Context) (view.Payload, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		anomalies, err := src.Anomalies(ctx, sessionID)
		if err != nil {
			return view.Payload{}, fmt.Errorf("fetching anomalies: %w", err)
		}
		plots, err := src.Plots(ctx, sessionID)
		if err != nil {
			return view.Payload{}, fmt.Errorf("fetching plots: %w", err)
		}
		return view.Payload{Anomalies: anomalies, Plots: plots}, nil
	}
}

func (model Model) export() tea.Cmd {
	dir := model.config.ExportDir
	prefix := model.session.Name
	specs := chart.SpecsFor(model.state.Payload().Plots, model.state.ChartRegions())
	return func() tea.Msg {
		paths, err := chart.WriteFiles(dir, prefix, specs)
		return exportedMsg{paths: paths, err: err}
	}
}

func clampCursor(cursor, count int) int {
	if count == 0 {
		return 0
	}
	return min(max(cursor, 0), count-1)
}

// Layout: a header line, the body, a status line, and the help line.
// The body on the session screen splits into the anomaly list beside
// the detail viewport, above the series summaries.

func (model Model) listWidth() int {
	return max(model.width*2/5, 24)
}

func (model Model) summaryHeight() int {
	return max(model.height/4, 3)
}

func (model *Model) resizeDetail() {
	model.detail.Width = max(model.width-model.listWidth()-3, 10)
	model.detail.Height = max(model.height-model.summaryHeight()-4, 3)
}

// refreshDetail re-renders the anomaly under the cursor into the
// detail viewport.
func (model *Model) refreshDetail() {
	if model.state == nil {
		model.detail.SetContent("")
		return
	}
	anomalies := model.state.Payload().Anomalies
	if len(anomalies) == 0 {
		model.detail.SetContent(lipgloss.NewStyle().Foreground(model.config.Theme.FaintText).
			Render("No anomalies reported for this session."))
		return
	}
	model.detail.SetContent(tui.RenderAnomaly(anomalies[model.anomalyCursor], model.config.Theme, model.detail.Width))
	model.detail.GotoTop()
}

func (model Model) View() string {
	theme := model.config.Theme
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground)

	var body string
	var keys help.KeyMap
	switch model.screen {
	case sessionScreen:
		title := "umlaut  " + model.session.Name + "  " + model.session.ID
		if fingerprint, ok := model.state.Fingerprint(); ok {
			title += "  @" + fingerprint.String()
		}
		body = header.Render(title) + "\n" + model.sessionView()
		keys = sessionKeys{model.keys}
	default:
		body = header.Render("umlaut sessions") + "\n" + model.sessionListView()
		keys = sessionListKeys{model.keys}
	}

	var status string
	switch {
	case model.err != nil:
		status = lipgloss.NewStyle().Foreground(theme.ErrorText).Render("error: " + model.err.Error())
	case model.status != "":
		status = lipgloss.NewStyle().Foreground(theme.FaintText).Render(model.status)
	}
	return body + "\n" + status + "\n" + model.help.View(keys)
}

func (model Model) sessionListView() string {
	theme := model.config.Theme
	if len(model.sessions) == 0 {
		return lipgloss.NewStyle().Foreground(theme.FaintText).Render("No sessions yet. Start a training run with the umlaut callback.")
	}
	selected := lipgloss.NewStyle().
		Background(theme.SelectedBackground).
		Foreground(theme.SelectedForeground).
		Width(model.width)
	normal := lipgloss.NewStyle().Foreground(theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)

	rows := make([]string, 0, len(model.sessions))
	for i, session := range model.sessions {
		row := fmt.Sprintf("%-32s %s", session.Name, faint.Render(session.ModifiedAt.Local().Format(time.DateTime)))
		if i == model.sessionCursor {
			rows = append(rows, selected.Render("> "+row))
			continue
		}
		rows = append(rows, normal.Render("  "+row))
	}
	return strings.Join(rows, "\n")
}

func (model Model) sessionView() string {
	theme := model.config.Theme
	payload := model.state.Payload()

	listStyle := lipgloss.NewStyle().
		Width(model.listWidth()).
		Height(model.detail.Height).
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(theme.BorderColor)

	rows := make([]string, 0, len(payload.Anomalies))
	for i, item := range payload.Anomalies {
		mark := "[ ]"
		if model.state.IsSelected(i) {
			mark = "[x]"
		}
		label := lipgloss.NewStyle().Foreground(theme.AnomalyColor(item)).Render(anomaly.Describe(item.Kind).Title)
		row := mark + " " + label
		if i == model.anomalyCursor {
			row = lipgloss.NewStyle().Background(theme.SelectedBackground).Render(row)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		if _, polled := model.state.Fingerprint(); polled {
			rows = append(rows, "No anomalies.")
		} else {
			rows = append(rows, "Loading...")
		}
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		listStyle.Render(strings.Join(rows, "\n")),
		" ",
		model.detail.View(),
	)
	return top + "\n" + model.summaryView(payload.Plots)
}

// summaryView lists every series with its latest value and a strip of
// epochs, highlighting the epochs of selected anomalies.
func (model Model) summaryView(plots telemetry.Plots) string {
	theme := model.config.Theme
	highlighted := make(map[int]bool)
	for _, annotation := range model.state.Annotations() {
		for _, epoch := range annotation.Epochs {
			highlighted[epoch] = true
		}
	}
	accent := lipgloss.NewStyle().Foreground(theme.HighlightAccent)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)

	var lines []string
	for _, spec := range chart.SpecsFor(plots, nil) {
		for _, series := range spec.Series {
			if len(series.Points) == 0 {
				continue
			}
			last := series.Points[len(series.Points)-1]
			maxEpoch := 0
			for _, point := range series.Points {
				maxEpoch = max(maxEpoch, point.Epoch)
			}
			first := max(0, maxEpoch-maxStripEpochs+1)

			var strip strings.Builder
			for epoch := first; epoch <= maxEpoch; epoch++ {
				if highlighted[epoch] {
					strip.WriteString(accent.Render("█"))
				} else {
					strip.WriteString(faint.Render("·"))
				}
			}
			lines = append(lines, fmt.Sprintf("%-20s %-8s %10.4f @%-4d %s",
				spec.Title, series.Name, last.Value, last.Epoch, strip.String()))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, faint.Render("No metrics yet."))
	}
	if len(lines) > model.summaryHeight() {
		lines = lines[:model.summaryHeight()]
	}
	return strings.Join(lines, "\n")
}
