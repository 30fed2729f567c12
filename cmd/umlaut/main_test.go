// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
	"github.com/bureau-foundation/umlaut/lib/telemetryclient"
	"github.com/bureau-foundation/umlaut/lib/tui"
)

// fakeServer serves the read endpoints from fixed data and records
// posts to the write endpoints.
type fakeServer struct {
	*httptest.Server

	mu    sync.Mutex
	posts []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	modified := time.Date(2026, 3, 1, 9, 5, 7, 0, time.UTC)
	sessions := []telemetry.Session{
		{ID: "id-b", Name: "mnist", CreatedAt: modified, ModifiedAt: modified.Add(time.Hour)},
		{ID: "id-a", Name: "mnist", CreatedAt: modified, ModifiedAt: modified},
		{ID: "id-c", Name: "empty", CreatedAt: modified, ModifiedAt: modified},
	}
	plots := telemetry.Plots{}
	for epoch, loss := range []float64{2.3, 1.1, 0.7, 0.9} {
		plots.Add("loss", "train", telemetry.Point{Epoch: epoch, Value: loss})
	}
	anomalies := []anomaly.Anomaly{
		{Kind: anomaly.LearningRateHigh, Epochs: anomaly.Epochs(1, 2), Remarks: "lr=5"},
		anomaly.Static(anomaly.NoSoftmax, ""),
	}

	server := &fakeServer{}
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, value any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(value)
	}
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sessions)
	})
	mux.HandleFunc("GET /api/sessionErrors/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "id-b" {
			writeJSON(w, []anomaly.Anomaly{})
			return
		}
		writeJSON(w, anomalies)
	})
	mux.HandleFunc("GET /api/sessionPlots/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "id-b" {
			writeJSON(w, telemetry.Plots{})
			return
		}
		writeJSON(w, plots)
	})
	mux.HandleFunc("GET /api/getSessionIdFromName/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("id-" + r.PathValue("name")))
	})
	mux.HandleFunc("GET /api/getSessionIdFromUniqueName/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("uid-" + r.PathValue("name")))
	})
	mux.HandleFunc("POST /api/", func(w http.ResponseWriter, r *http.Request) {
		server.mu.Lock()
		server.posts = append(server.posts, r.URL.Path)
		server.mu.Unlock()
		w.Write([]byte("Updated 1"))
	})
	server.Server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.posts...)
}

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, styled bool, args ...string) result {
	t.Helper()
	t.Setenv("UMLAUT_CONFIG", "")
	var stdout, stderr bytes.Buffer
	a := &app{
		stdout: &stdout,
		stderr: &stderr,
		styled: styled,
		width:  80,
		theme:  tui.DefaultTheme,
	}
	err := a.run(t.Context(), args)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestSessions(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, false, "sessions", "--server", server.URL)
	if got.err != nil {
		t.Fatalf("sessions: %v", got.err)
	}
	lines := strings.Split(strings.TrimSpace(got.stdout), "\n")
	if len(lines) != 4 {
		t.Fatalf("output has %d lines, want header and 3 sessions:\n%s", len(lines), got.stdout)
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "ID NAME CREATED MODIFIED" {
		t.Fatalf("header = %q", lines[0])
	}
	if fields := strings.Fields(lines[1]); fields[0] != "id-b" || fields[3] != "2026-03-01T10:05:07Z" {
		t.Fatalf("first row = %q, want id-b modified 10:05:07", lines[1])
	}
	if strings.Contains(got.stdout, "\x1b[") {
		t.Fatal("plain output contains escape sequences")
	}
}

func TestSessionsJSON(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, false, "sessions", "--json", "--server", server.URL)
	if got.err != nil {
		t.Fatalf("sessions --json: %v", got.err)
	}
	var sessions []telemetry.Session
	if err := json.Unmarshal([]byte(got.stdout), &sessions); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, got.stdout)
	}
	if len(sessions) != 3 || sessions[0].ID != "id-b" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestSessionsStyled(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, true, "sessions", "--server", server.URL)
	if got.err != nil {
		t.Fatalf("sessions: %v", got.err)
	}
	for _, want := range []string{"NAME", "mnist", "id-b", "╭"} {
		if !strings.Contains(got.stdout, want) {
			t.Fatalf("styled output missing %q:\n%s", want, got.stdout)
		}
	}
}

func TestAnomaliesByName(t *testing.T) {
	server := newFakeServer(t)
	// "mnist" names two sessions; the most recently modified wins.
	got := execute(t, false, "anomalies", "mnist", "--server", server.URL)
	if got.err != nil {
		t.Fatalf("anomalies: %v", got.err)
	}
	for _, want := range []string{
		anomaly.Describe(anomaly.LearningRateHigh).Title,
		"(lr=5)",
		"Captured at epochs [1 2].",
		anomaly.Describe(anomaly.NoSoftmax).Title,
		"Captured before start of training.",
	} {
		if !strings.Contains(got.stdout, want) {
			t.Fatalf("output missing %q:\n%s", want, got.stdout)
		}
	}
	if strings.Contains(got.stdout, "\x1b[") {
		t.Fatal("plain output contains escape sequences")
	}
}

func TestAnomaliesStyled(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, true, "anomalies", "id-b", "--server", server.URL)
	if got.err != nil {
		t.Fatalf("anomalies: %v", got.err)
	}
	if !strings.Contains(got.stdout, "\x1b[") {
		t.Fatalf("styled output has no escape sequences:\n%s", got.stdout)
	}
	if !strings.Contains(got.stdout, "Solution") {
		t.Fatalf("styled output missing remediation heading:\n%s", got.stdout)
	}
}

func TestAnomaliesEmptyAndUnknown(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, false, "anomalies", "empty", "--server", server.URL)
	if got.err != nil || !strings.Contains(got.stdout, "No anomalies reported for empty.") {
		t.Fatalf("empty session: err=%v stdout=%q", got.err, got.stdout)
	}

	got = execute(t, false, "anomalies", "nope", "--server", server.URL)
	if got.err == nil || !strings.Contains(got.err.Error(), `session "nope" not found`) {
		t.Fatalf("unknown session err = %v", got.err)
	}
}

func TestExport(t *testing.T) {
	server := newFakeServer(t)
	out := filepath.Join(t.TempDir(), "charts")
	got := execute(t, false, "export", "id-b", "--out", out, "--highlight", "lr_high", "--server", server.URL)
	if got.err != nil {
		t.Fatalf("export: %v", got.err)
	}
	want := filepath.Join(out, "mnist-loss.png")
	if strings.TrimSpace(got.stdout) != want {
		t.Fatalf("stdout = %q, want %s", got.stdout, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("exported chart: %v", err)
	}
}

func TestExportRejectsUnknownKind(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, false, "export", "id-b", "--highlight", "exploding", "--server", server.URL)
	if got.err == nil {
		t.Fatal("export accepted an unknown anomaly kind")
	}
}

func TestExportWithoutMetrics(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, false, "export", "empty", "--out", t.TempDir(), "--server", server.URL)
	if got.err != nil {
		t.Fatalf("export: %v", got.err)
	}
	if !strings.Contains(got.stderr, "No metrics recorded for empty.") {
		t.Fatalf("stderr = %q, want no-metrics notice", got.stderr)
	}
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laptop.spool")
	spool, err := telemetryclient.CreateSpool(path, telemetryclient.CompressionZstd)
	if err != nil {
		t.Fatalf("CreateSpool: %v", err)
	}
	spool.Ship(t.Context(), telemetryclient.Batch{
		Kind:    telemetryclient.KindPlots,
		Session: "laptop",
		Body:    []byte(`{"loss":{"train":[0,1.5]}}`),
	})
	spool.Ship(t.Context(), telemetryclient.Batch{
		Kind:    telemetryclient.KindErrors,
		Session: "laptop",
		Body:    []byte(`{"lr_low":{"epochs":[0]}}`),
	})
	if err := spool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	server := newFakeServer(t)
	got := execute(t, false, "replay", path, "--unique", "--server", server.URL)
	if got.err != nil {
		t.Fatalf("replay: %v\n%s", got.err, got.stderr)
	}
	for _, want := range []string{"laptop -> uid-laptop", "replayed 2 batches (0 failed)"} {
		if !strings.Contains(got.stdout, want) {
			t.Fatalf("output missing %q:\n%s", want, got.stdout)
		}
	}
	posts := server.received()
	if len(posts) != 2 || posts[0] != "/api/updateSessionPlots/uid-laptop" || posts[1] != "/api/updateSessionErrors/uid-laptop" {
		t.Fatalf("posts = %v", posts)
	}
}

func TestReplayMissingFile(t *testing.T) {
	server := newFakeServer(t)
	got := execute(t, false, "replay", filepath.Join(t.TempDir(), "missing.spool"), "--server", server.URL)
	if got.err == nil {
		t.Fatal("replay of a missing spool succeeded")
	}
}

func TestUnknownCommandSuggests(t *testing.T) {
	got := execute(t, false, "sesions")
	if got.err == nil || !strings.Contains(got.err.Error(), `did you mean "sessions"?`) {
		t.Fatalf("err = %v, want suggestion", got.err)
	}
}

func TestHelp(t *testing.T) {
	got := execute(t, false, "--help")
	if got.err != nil {
		t.Fatalf("--help: %v", got.err)
	}
	for _, want := range []string{"Commands:", "sessions", "anomalies", "export", "replay"} {
		if !strings.Contains(got.stderr, want) {
			t.Fatalf("help missing %q:\n%s", want, got.stderr)
		}
	}

	got = execute(t, false, "export", "--help")
	if got.err != nil || !strings.Contains(got.stderr, "--highlight") {
		t.Fatalf("export --help: err=%v\n%s", got.err, got.stderr)
	}

	got = execute(t, false)
	if got.err == nil {
		t.Fatal("no subcommand should be an error")
	}
}

func TestLevenshtein(t *testing.T) {
	for _, test := range []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"replay", "replay", 0},
		{"sesions", "sessions", 1},
		{"exprot", "export", 2},
		{"", "abc", 3},
	} {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
