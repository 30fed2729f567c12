// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/umlaut/lib/netutil"
	"github.com/bureau-foundation/umlaut/lib/version"
)

// Shipper delivers one batch. Implementations: the HTTP shipper for
// a live server and [Spool] for offline journaling.
type Shipper interface {
	Ship(ctx context.Context, batch Batch) error
}

// httpShipper posts batches to umlaut-server.
type httpShipper struct {
	baseURL string
	client  *http.Client
}

func (s *httpShipper) Ship(ctx context.Context, batch Batch) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+batch.Path, bytes.NewReader(batch.Body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode/100 != 2 {
		return fmt.Errorf("POST %s: %s: %s", batch.Path, response.Status, netutil.ErrorMessage(response.Body))
	}
	// Drain so the connection is reused.
	io.Copy(io.Discard, io.LimitReader(response.Body, netutil.MaxResponseSize))
	return nil
}

// shipStats counts shipper outcomes. Read concurrently by Stats.
type shipStats struct {
	shipped atomic.Uint64
	failed  atomic.Uint64
}

// runShipper posts batches from buffer until ctx is cancelled. Each
// batch is popped before it is sent and never retried; a failure is
// logged at Warn and counted. Cancellation stops the loop but not a
// post already in flight, which stays bounded by timeout.
func runShipper(ctx context.Context, buffer *Buffer, shipper Shipper, timeout time.Duration, stats *shipStats, logger *slog.Logger) {
	for {
		select {
		case <-buffer.Notify():
		case <-ctx.Done():
			return
		}
		for ctx.Err() == nil {
			batch, ok := buffer.Pop()
			if !ok {
				break
			}
			shipOne(context.WithoutCancel(ctx), shipper, batch, timeout, stats, logger)
		}
	}
}

// drainBuffer makes one pass over whatever is still queued, bounded
// by ctx. Batches left when ctx expires are abandoned.
func drainBuffer(ctx context.Context, buffer *Buffer, shipper Shipper, timeout time.Duration, stats *shipStats, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			if remaining := buffer.Len(); remaining > 0 {
				logger.Warn("drain deadline reached, abandoning remaining batches", "remaining", remaining)
			}
			return
		}
		batch, ok := buffer.Pop()
		if !ok {
			return
		}
		shipOne(ctx, shipper, batch, timeout, stats, logger)
	}
}

func shipOne(ctx context.Context, shipper Shipper, batch Batch, timeout time.Duration, stats *shipStats, logger *slog.Logger) {
	shipCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := shipper.Ship(shipCtx, batch); err != nil {
		stats.failed.Add(1)
		logger.Warn("telemetry batch dropped",
			"kind", batch.Kind,
			"path", batch.Path,
			"error", err,
		)
		return
	}
	stats.shipped.Add(1)
}
