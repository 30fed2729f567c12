// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/netutil"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
	"github.com/bureau-foundation/umlaut/lib/version"
)

// Defaults for Config fields left zero.
const (
	DefaultHost           = "localhost:8888"
	DefaultTimeout        = 5 * time.Second
	DefaultBufferMaxBytes = 8 << 20
)

// LocalSessionPrefix prefixes offline session ids.
const LocalSessionPrefix = "local:"

// Config configures a Client.
type Config struct {
	// Host is the server address. Default: localhost:8888.
	Host string

	// SessionName names the run. Default: unnamed_YYMMDD_HHMMSS.
	SessionName string

	// Offline disables all network I/O.
	Offline bool

	// Timeout bounds each request. Default: 5s.
	Timeout time.Duration

	// BufferMaxBytes bounds queued batches. Default: 8 MiB.
	BufferMaxBytes int

	// SpoolPath journals batches while offline. Ignored online.
	SpoolPath string

	// SpoolCompression applies to SpoolPath. Default: zstd.
	SpoolCompression Compression

	// Claims defaults to DefaultClaims.
	Claims *Claims

	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Stats counts a client's batches.
type Stats struct {
	// Enqueued batches were accepted into the buffer.
	Enqueued uint64
	// Shipped batches were delivered (posted or spooled).
	Shipped uint64
	// Failed batches were attempted and discarded.
	Failed uint64
	// Dropped batches were evicted from a full buffer.
	Dropped uint64
}

// Client ships one session's telemetry.
type Client struct {
	sessionID   string
	sessionName string
	offline     bool

	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	claims     *Claims

	// buffer and shipper are nil when offline without a spool.
	buffer  *Buffer
	shipper Shipper
	spool   *Spool

	logger   *slog.Logger
	stats    shipStats
	enqueued atomic.Uint64

	stopShipper context.CancelFunc
	shipperDone chan struct{}
	closed      atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// New resolves the session and starts the shipper. Online, ctx bounds
// the resolution request; a server that cannot be reached is an error.
func New(ctx context.Context, config Config) (*Client, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.BufferMaxBytes <= 0 {
		config.BufferMaxBytes = DefaultBufferMaxBytes
	}
	if config.Claims == nil {
		config.Claims = DefaultClaims
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.SessionName == "" {
		config.SessionName = "unnamed_" + config.Clock.Now().Format("060102_150405")
	}

	c := &Client{
		sessionName: config.SessionName,
		offline:     config.Offline,
		httpClient:  config.HTTPClient,
		timeout:     config.Timeout,
		claims:      config.Claims,
		logger:      config.Logger,
	}

	if config.Offline {
		if config.SpoolPath != "" {
			spool, err := CreateSpool(config.SpoolPath, config.SpoolCompression)
			if err != nil {
				return nil, err
			}
			c.spool = spool
			c.shipper = spool
		}
	} else {
		host := config.Host
		if host == "" {
			host = DefaultHost
		}
		baseURL, err := netutil.BaseURL(host)
		if err != nil {
			return nil, fmt.Errorf("telemetryclient: %w", err)
		}
		c.baseURL = baseURL
		c.shipper = &httpShipper{baseURL: baseURL, client: config.HTTPClient}
	}

	id, err := c.ResolveSession(ctx, config.SessionName)
	if err != nil {
		if c.spool != nil {
			c.spool.Close()
		}
		return nil, err
	}
	c.sessionID = id

	if c.shipper != nil {
		c.buffer = NewBuffer(config.BufferMaxBytes)
		shipperCtx, cancel := context.WithCancel(context.Background())
		c.stopShipper = cancel
		c.shipperDone = make(chan struct{})
		go func() {
			defer close(c.shipperDone)
			runShipper(shipperCtx, c.buffer, c.shipper, c.timeout, &c.stats, c.logger)
		}()
	}

	c.logger.Info("telemetry client ready",
		"session_id", c.sessionID,
		"session_name", c.sessionName,
		"offline", c.offline,
		"spool", config.SpoolPath,
	)
	return c, nil
}

// SessionID returns the resolved session id.
func (c *Client) SessionID() string { return c.sessionID }

// SessionName returns the requested session name.
func (c *Client) SessionName() string { return c.sessionName }

// Offline reports whether the client performs network I/O.
func (c *Client) Offline() bool { return c.offline }

// ResolveSession maps name to a session id. Offline it returns
// "local:<name>" without I/O. Online, the first claim of name in this
// process fetches or creates the session of that exact name; later
// claims ask the server for a disambiguated one. A failed resolution
// does not count as a claim.
func (c *Client) ResolveSession(ctx context.Context, name string) (string, error) {
	if c.offline {
		return LocalSessionPrefix + name, nil
	}
	unique := c.claims.Claim(name)
	id, err := resolveRemote(ctx, c.httpClient, c.baseURL, name, unique, c.timeout)
	if err != nil {
		c.claims.Release(name)
		return "", err
	}
	return id, nil
}

func resolveRemote(ctx context.Context, client *http.Client, baseURL, name string, unique bool, timeout time.Duration) (string, error) {
	endpoint := "/api/getSessionIdFromName/"
	if unique {
		endpoint = "/api/getSessionIdFromUniqueName/"
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+endpoint+url.PathEscape(name), nil)
	if err != nil {
		return "", fmt.Errorf("telemetryclient: %w", err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	response, err := client.Do(request)
	if err != nil {
		return "", fmt.Errorf("telemetryclient: resolving session %q: %w", name, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telemetryclient: resolving session %q: %s: %s",
			name, response.Status, netutil.ErrorMessage(response.Body))
	}
	data, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return "", fmt.Errorf("telemetryclient: resolving session %q: %w", name, err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("telemetryclient: resolving session %q: empty id", name)
	}
	return id, nil
}

// SendMetrics queues one epoch's loss and accuracy points. It never
// blocks on the network and never fails the caller.
func (c *Client) SendMetrics(epoch int, logs map[string]float64) {
	update, skipped, missingLoss := BuildPlotUpdate(epoch, logs)
	if missingLoss {
		c.logger.Warn("training logs have no loss", "epoch", epoch)
	}
	if len(skipped) > 0 {
		c.logger.Debug("non-finite metrics not sent", "epoch", epoch, "keys", skipped)
	}
	if len(update) == 0 {
		return
	}
	c.enqueue(KindPlots, update)
}

// SendAnomalies queues anomalies as one batch. Entries without a kind
// are ignored; an empty result sends nothing.
func (c *Client) SendAnomalies(anomalies []anomaly.Anomaly) {
	kept := make([]anomaly.Anomaly, 0, len(anomalies))
	for _, item := range anomalies {
		if item.Kind != "" {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return
	}
	c.enqueue(KindErrors, telemetry.NewAnomalyUpdates(kept))
}

func (c *Client) enqueue(kind BatchKind, payload any) {
	if c.closed.Load() {
		c.logger.Debug("telemetry client closed, batch discarded", "kind", kind)
		return
	}
	if c.buffer == nil {
		c.logger.Debug("offline, batch discarded", "kind", kind)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("encoding telemetry batch", "kind", kind, "error", err)
		return
	}
	path, err := endpointPath(kind, c.sessionID)
	if err != nil {
		c.logger.Warn("telemetry batch has no endpoint", "error", err)
		return
	}
	session := c.sessionID
	if c.offline {
		session = c.sessionName
	}
	if err := c.buffer.Push(Batch{Kind: kind, Session: session, Path: path, Body: body}); err != nil {
		c.logger.Warn("telemetry batch rejected", "kind", kind, "error", err)
		return
	}
	c.enqueued.Add(1)
}

// Stats returns the client's counters.
func (c *Client) Stats() Stats {
	stats := Stats{
		Enqueued: c.enqueued.Load(),
		Shipped:  c.stats.shipped.Load(),
		Failed:   c.stats.failed.Load(),
	}
	if c.buffer != nil {
		stats.Dropped = c.buffer.Dropped()
	}
	return stats
}

// Close stops intake, lets an in-flight post finish, and makes one
// pass over the remaining batches, all bounded by ctx. Later calls
// return the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.buffer == nil {
			return
		}
		c.stopShipper()
		select {
		case <-c.shipperDone:
		case <-ctx.Done():
			c.closeErr = fmt.Errorf("telemetryclient: waiting for shipper: %w", ctx.Err())
			return
		}
		drainBuffer(ctx, c.buffer, c.shipper, c.timeout, &c.stats, c.logger)
		if c.spool != nil {
			c.closeErr = c.spool.Close()
		}
		stats := c.Stats()
		c.logger.Info("telemetry client closed",
			"enqueued", stats.Enqueued,
			"shipped", stats.Shipped,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	})
	return c.closeErr
}

// IsLocalSession reports whether id came from an offline client.
func IsLocalSession(id string) bool {
	return strings.HasPrefix(id, LocalSessionPrefix)
}
