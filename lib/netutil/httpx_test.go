// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(strings.NewReader(`Updated 2`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `Updated 2` {
			t.Fatalf("got %q, want %q", data, `Updated 2`)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(&failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		var result []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := DecodeResponse(strings.NewReader(`[{"id":"a","name":"mnist"}]`), &result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result) != 1 || result[0].Name != "mnist" {
			t.Fatalf("result = %+v", result)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if err := DecodeResponse(strings.NewReader(`not json`), &struct{}{}); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if err := DecodeResponse(&failReader{}, &struct{}{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json envelope", `{"error":"session not found"}`, "session not found"},
		{"plain text", "  bad gateway\n", "bad gateway"},
		{"empty", "", ""},
		{"json without error", `{"status":"x"}`, `{"status":"x"}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ErrorMessage(strings.NewReader(test.body)); got != test.want {
				t.Fatalf("ErrorMessage(%q) = %q, want %q", test.body, got, test.want)
			}
		})
	}

	t.Run("truncates", func(t *testing.T) {
		got := ErrorMessage(bytes.NewReader(bytes.Repeat([]byte("x"), 2000)))
		if len(got) != maxErrorMessage+3 || !strings.HasSuffix(got, "...") {
			t.Fatalf("len = %d, want truncated to %d plus ellipsis", len(got), maxErrorMessage)
		}
	})

	t.Run("read error returns empty", func(t *testing.T) {
		if got := ErrorMessage(&failReader{}); got != "" {
			t.Fatalf("expected empty from failing reader, got %q", got)
		}
	})
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		host    string
		want    string
		wantErr bool
	}{
		{host: "localhost:8888", want: "http://localhost:8888"},
		{host: "http://10.0.0.5:8888/", want: "http://10.0.0.5:8888"},
		{host: "https://umlaut.example", want: "https://umlaut.example"},
		{host: "", wantErr: true},
		{host: "ftp://x", wantErr: true},
		{host: "http://", wantErr: true},
	}
	for _, test := range tests {
		got, err := BaseURL(test.host)
		if test.wantErr {
			if err == nil {
				t.Errorf("BaseURL(%q) = %q, want error", test.host, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("BaseURL(%q): %v", test.host, err)
			continue
		}
		if got != test.want {
			t.Errorf("BaseURL(%q) = %q, want %q", test.host, got, test.want)
		}
	}
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
