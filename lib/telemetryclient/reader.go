// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/netutil"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
	"github.com/bureau-foundation/umlaut/lib/version"
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Reader queries the server's read endpoints.
type Reader struct {
	baseURL string
	client  *http.Client
}

// NewReader returns a Reader for host. A nil client means
// http.DefaultClient.
func NewReader(host string, client *http.Client) (*Reader, error) {
	baseURL, err := netutil.BaseURL(host)
	if err != nil {
		return nil, fmt.Errorf("telemetryclient: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Reader{baseURL: baseURL, client: client}, nil
}

// Sessions lists sessions, most recently modified first.
func (r *Reader) Sessions(ctx context.Context) ([]telemetry.Session, error) {
	var sessions []telemetry.Session
	if err := r.get(ctx, "/api/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Plots returns every series of a session.
func (r *Reader) Plots(ctx context.Context, sessionID string) (telemetry.Plots, error) {
	plots := telemetry.Plots{}
	if err := r.get(ctx, "/api/sessionPlots/"+url.PathEscape(sessionID), &plots); err != nil {
		return nil, err
	}
	return plots, nil
}

// Anomalies returns a session's anomaly records sorted by kind.
func (r *Reader) Anomalies(ctx context.Context, sessionID string) ([]anomaly.Anomaly, error) {
	var anomalies []anomaly.Anomaly
	if err := r.get(ctx, "/api/sessionErrors/"+url.PathEscape(sessionID), &anomalies); err != nil {
		return nil, err
	}
	return anomalies, nil
}

func (r *Reader) get(ctx context.Context, path string, into any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())

	response, err := r.client.Do(request)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return &StatusError{Code: response.StatusCode, Message: netutil.ErrorMessage(response.Body)}
	}
	if err := netutil.DecodeResponse(response.Body, into); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}
