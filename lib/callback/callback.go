// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/config"
	"github.com/bureau-foundation/umlaut/lib/heuristics"
	"github.com/bureau-foundation/umlaut/lib/shim"
	"github.com/bureau-foundation/umlaut/lib/sourceref"
	"github.com/bureau-foundation/umlaut/lib/telemetryclient"
	"github.com/bureau-foundation/umlaut/lib/tensor"
)

// Config configures a Callback.
type Config struct {
	// SessionName names the run. Default: unnamed_YYMMDD_HHMMSS.
	SessionName string

	// Host is the umlaut-server address.
	Host string

	// Offline skips the server. With SpoolPath set, telemetry is
	// journaled for a later replay instead of discarded.
	Offline          bool
	SpoolPath        string
	SpoolCompression telemetryclient.Compression

	Timeout        time.Duration
	BufferMaxBytes int

	ChannelOrder heuristics.ChannelOrder

	// Locator attaches source references to anomalies. When nil, New
	// loads the source file of its caller. Set NoSourceReferences to
	// skip that.
	Locator            sourceref.Locator
	NoSourceReferences bool

	// Report receives the human-readable check results. Default:
	// os.Stdout.
	Report io.Writer

	// Claims, HTTPClient and Clock are passed to the telemetry client.
	Claims     *telemetryclient.Claims
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// ConfigFrom maps the client section of an umlaut configuration file
// onto a Config.
func ConfigFrom(client config.ClientConfig) (Config, error) {
	compression, err := telemetryclient.ParseCompression(client.SpoolCompression)
	if err != nil {
		return Config{}, fmt.Errorf("callback: %w", err)
	}
	order, err := heuristics.ParseChannelOrder(client.ChannelOrder)
	if err != nil {
		return Config{}, fmt.Errorf("callback: %w", err)
	}
	return Config{
		Host:             client.Host,
		Offline:          client.Offline,
		SpoolPath:        client.SpoolPath,
		SpoolCompression: compression,
		Timeout:          client.Timeout,
		BufferMaxBytes:   client.BufferMaxBytes,
		ChannelOrder:     order,
	}, nil
}

// Callback connects a training loop to umlaut.
type Callback struct {
	model  *shim.Instrumented
	engine *heuristics.Engine
	// client is nil when offline without a spool.
	client *telemetryclient.Client
	report io.Writer
	logger *slog.Logger
}

// New instruments host and, unless offline without a spool, resolves
// the session on the server. A host that is not a model is a
// *shim.CapabilityError; an unreachable server is also an error.
func New(ctx context.Context, host any, config Config) (*Callback, error) {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Report == nil {
		config.Report = os.Stdout
	}

	instrumented, err := shim.Instrument(host)
	if err != nil {
		return nil, err
	}

	locator := config.Locator
	if locator == nil && !config.NoSourceReferences {
		file, err := sourceref.Caller(1)
		if err != nil {
			config.Logger.Debug("source references disabled", "error", err)
		} else {
			locator = file
		}
	}

	callback := &Callback{
		model: instrumented,
		engine: heuristics.New(heuristics.Config{
			ChannelOrder: config.ChannelOrder,
			Locator:      locator,
			Logger:       config.Logger,
		}),
		report: config.Report,
		logger: config.Logger,
	}

	if !config.Offline || config.SpoolPath != "" {
		callback.client, err = telemetryclient.New(ctx, telemetryclient.Config{
			Host:             config.Host,
			SessionName:      config.SessionName,
			Offline:          config.Offline,
			Timeout:          config.Timeout,
			BufferMaxBytes:   config.BufferMaxBytes,
			SpoolPath:        config.SpoolPath,
			SpoolCompression: config.SpoolCompression,
			Claims:           config.Claims,
			HTTPClient:       config.HTTPClient,
			Clock:            config.Clock,
			Logger:           config.Logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return callback, nil
}

// Forward runs the instrumented model.
func (c *Callback) Forward(ctx context.Context, x tensor.Tensor) (tensor.Tensor, error) {
	return c.model.Forward(ctx, x)
}

// Model returns the instrumented model.
func (c *Callback) Model() *shim.Instrumented { return c.model }

// SessionID returns the telemetry session id, or "" when the callback
// has no client.
func (c *Callback) SessionID() string {
	if c.client == nil {
		return ""
	}
	return c.client.SessionID()
}

// OnTrainBegin runs the pretrain checks.
func (c *Callback) OnTrainBegin(ctx context.Context) []anomaly.Anomaly {
	input := heuristics.PretrainInput{}
	if architecture, ok := c.model.Architecture(); ok {
		input.Architecture = &architecture
	}
	found := c.engine.RunPretrain(ctx, input)
	c.writeReport("No pretrain issues", found)
	if c.client != nil {
		c.client.SendAnomalies(found)
	}
	return found
}

// OnEpochEnd ships the epoch's metrics, then runs the epoch checks
// against the most recent forward input.
func (c *Callback) OnEpochEnd(ctx context.Context, epoch int, logs heuristics.Logs) []anomaly.Anomaly {
	if c.client != nil {
		c.client.SendMetrics(epoch, logs)
	}

	input := heuristics.EpochInput{Epoch: epoch, Logs: logs}
	if snapshot, ok := c.model.LastInput(); ok {
		input.Input = &snapshot.Tensor
	}
	if rate, ok := c.model.LearningRate(); ok {
		input.LearningRate = &rate
	}

	fmt.Fprintf(c.report, "\nRunning umlaut checks for epoch %d...\n", epoch)
	found := c.engine.RunEpoch(ctx, input)
	c.writeReport("No issues", found)
	if c.client != nil {
		c.client.SendAnomalies(found)
	}
	return found
}

// Close flushes queued telemetry, bounded by ctx.
func (c *Callback) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close(ctx)
}

func (c *Callback) writeReport(clean string, found []anomaly.Anomaly) {
	if len(found) == 0 {
		fmt.Fprintln(c.report, clean)
		return
	}
	for i, item := range found {
		if i > 0 {
			fmt.Fprintln(c.report)
		}
		fmt.Fprint(c.report, anomaly.Format(item))
	}
}
