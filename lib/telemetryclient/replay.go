// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/umlaut/lib/netutil"
)

// ReplayConfig configures ReplaySpool.
type ReplayConfig struct {
	// Host is the live server. Default: localhost:8888.
	Host string

	// Unique resolves every spooled session name through the
	// disambiguating endpoint, so a replay never appends to an
	// existing run of the same name.
	Unique bool

	// Timeout bounds each request. Default: 5s.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	// Sessions maps each spooled session name to its live id.
	Sessions map[string]string
	Posted   int
	Failed   int
}

// ReplaySpool posts every batch journaled at path to a live server,
// under sessions resolved afresh by name. Posting stops at the first
// resolution failure; individual post failures are counted and
// skipped. A truncated journal is replayed up to the damage and the
// truncation is returned alongside the result.
func ReplaySpool(ctx context.Context, path string, config ReplayConfig) (ReplayResult, error) {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	host := config.Host
	if host == "" {
		host = DefaultHost
	}
	baseURL, err := netutil.BaseURL(host)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("telemetryclient: %w", err)
	}

	batches, readErr := ReadSpool(path)
	if readErr != nil && !errors.Is(readErr, ErrTruncatedSpool) {
		return ReplayResult{}, readErr
	}

	result := ReplayResult{Sessions: make(map[string]string)}
	shipper := &httpShipper{baseURL: baseURL, client: config.HTTPClient}
	for _, batch := range batches {
		id, ok := result.Sessions[batch.Session]
		if !ok {
			id, err = resolveRemote(ctx, config.HTTPClient, baseURL, batch.Session, config.Unique, config.Timeout)
			if err != nil {
				return result, err
			}
			result.Sessions[batch.Session] = id
			config.Logger.Info("replaying spooled session", "name", batch.Session, "session_id", id)
		}

		path, err := endpointPath(batch.Kind, id)
		if err != nil {
			result.Failed++
			config.Logger.Warn("skipping spool record", "error", err)
			continue
		}
		batch.Path = path
		shipCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		err = shipper.Ship(shipCtx, batch)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed++
			config.Logger.Warn("replay post failed", "kind", batch.Kind, "error", err)
			continue
		}
		result.Posted++
	}
	return result, readErr
}
