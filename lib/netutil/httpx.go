// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// MaxResponseSize bounds response body reads: 64 MiB. A long run's
// full plot history is the largest legitimate response.
const MaxResponseSize int64 = 64 << 20

// maxErrorMessage truncates non-JSON error bodies in messages.
const maxErrorMessage = 512

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON response body (up to MaxResponseSize
// bytes) and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorMessage reads an error response body for a diagnostic message.
// A JSON body of the form {"error": "..."} yields its message; any
// other body is returned trimmed and truncated. Read errors are
// ignored: a partial body is still useful.
func ErrorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	message := strings.TrimSpace(string(data))
	if len(message) > maxErrorMessage {
		message = message[:maxErrorMessage] + "..."
	}
	return message
}

// BaseURL turns a host such as "localhost:8888" into a base URL
// without a trailing slash. An explicit http:// or https:// scheme is
// kept; no scheme means http.
func BaseURL(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("empty host")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parsing host %q: %w", host, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("host %q: unsupported scheme %q", host, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("host %q has no address", host)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}
