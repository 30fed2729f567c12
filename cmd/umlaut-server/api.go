// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/umlaut/lib/runstore"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
	"github.com/bureau-foundation/umlaut/lib/service"
)

// API serves the write endpoints training runs post to and the read
// endpoints dashboards poll.
type API struct {
	store   runstore.Store
	logger  *slog.Logger
	metrics *metrics
}

// NewAPI returns an API backed by store. Metrics are registered on a
// private registry exposed at /metrics.
func NewAPI(store runstore.Store, logger *slog.Logger) *API {
	return &API{
		store:   store,
		logger:  logger,
		metrics: newMetrics(prometheus.NewRegistry()),
	}
}

// Handler returns the routed handler with body limits, metrics and
// panic recovery applied.
func (a *API) Handler(maxBodyBytes int64) http.Handler {
	mux := http.NewServeMux()
	a.route(mux, "GET /api/getSessionIdFromName/{name}", a.handleResolve)
	a.route(mux, "GET /api/getSessionIdFromUniqueName/{name}", a.handleResolveUnique)
	a.route(mux, "POST /api/updateSessionPlots/{session_id}", a.handleUpdatePlots)
	a.route(mux, "POST /api/updateSessionErrors/{session_id}", a.handleUpdateErrors)
	a.route(mux, "GET /api/sessions", a.handleSessions)
	a.route(mux, "GET /api/sessionPlots/{session_id}", a.handlePlots)
	a.route(mux, "GET /api/sessionErrors/{session_id}", a.handleErrors)
	mux.HandleFunc("GET /healthz", func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(writer, "ok")
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.metrics.registry, promhttp.HandlerOpts{}))

	return service.Recover(a.logger, service.LimitBody(maxBodyBytes, mux))
}

func (a *API) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, a.metrics.instrument(pattern, handler))
}

func (a *API) handleResolve(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")
	id, err := a.store.ResolveSession(request.Context(), name)
	if err != nil {
		a.sendStoreError(writer, request, err)
		return
	}
	a.metrics.resolutions.WithLabelValues("exact").Inc()
	a.logger.DebugContext(request.Context(), "session resolved", "name", name, "session_id", id)
	writeText(writer, id)
}

func (a *API) handleResolveUnique(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")
	id, err := a.store.ResolveUniqueSession(request.Context(), name)
	if err != nil {
		a.sendStoreError(writer, request, err)
		return
	}
	a.metrics.resolutions.WithLabelValues("unique").Inc()
	a.logger.InfoContext(request.Context(), "unique session created", "name", name, "session_id", id)
	writeText(writer, id)
}

func (a *API) handleUpdatePlots(writer http.ResponseWriter, request *http.Request) {
	id, ok := a.sessionID(writer, request)
	if !ok {
		return
	}
	var update telemetry.PlotUpdate
	if !a.decodeBody(writer, request, &update) {
		return
	}
	if err := update.Validate(); err != nil {
		a.sendError(writer, http.StatusBadRequest, "%v", err)
		return
	}
	if err := a.store.AppendPoints(request.Context(), id, update); err != nil {
		a.sendStoreError(writer, request, err)
		return
	}
	a.metrics.points.Add(float64(len(update.Points())))
	writeText(writer, fmt.Sprintf("Updated %d", len(update)))
}

func (a *API) handleUpdateErrors(writer http.ResponseWriter, request *http.Request) {
	id, ok := a.sessionID(writer, request)
	if !ok {
		return
	}
	var updates telemetry.AnomalyUpdates
	if !a.decodeBody(writer, request, &updates) {
		return
	}
	anomalies, err := updates.Anomalies()
	if err != nil {
		a.sendError(writer, http.StatusBadRequest, "%v", err)
		return
	}
	if err := a.store.MergeAnomalies(request.Context(), id, anomalies); err != nil {
		a.sendStoreError(writer, request, err)
		return
	}
	for _, item := range anomalies {
		a.metrics.anomalies.WithLabelValues(string(item.Kind)).Inc()
	}
	writeText(writer, fmt.Sprintf("Updated %d", len(updates)))
}

func (a *API) handleSessions(writer http.ResponseWriter, request *http.Request) {
	sessions, err := a.store.Sessions(request.Context())
	if err != nil {
		a.sendStoreError(writer, request, err)
		return
	}
	a.writeJSON(writer, sessions)
}

func (a *API) handlePlots(writer http.ResponseWriter, request *http.Request) {
	id, ok := a.sessionID(writer, request)
	if !ok {
		return
	}
	plots, err := a.store.Plots(request.Context(), id)
	if err != nil {
		a.sendStoreError(writer, request, err)
		return
	}
	a.writeJSON(writer, plots)
}

func (a *API) handleErrors(writer http.ResponseWriter, request *http.Request) {
	id, ok := a.sessionID(writer, request)
	if !ok {
		return
	}
	anomalies, err := a.store.Anomalies(request.Context(), id)
	if err != nil {
		a.sendStoreError(writer, request, err)
		return
	}
	a.writeJSON(writer, anomalies)
}

// sessionID validates the session_id path segment, answering 400 when
// it is malformed.
func (a *API) sessionID(writer http.ResponseWriter, request *http.Request) (string, bool) {
	id, err := runstore.ParseID(request.PathValue("session_id"))
	if err != nil {
		a.sendError(writer, http.StatusBadRequest, "%v", err)
		return "", false
	}
	return id, true
}

func (a *API) decodeBody(writer http.ResponseWriter, request *http.Request, into any) bool {
	decoder := json.NewDecoder(request.Body)
	if err := decoder.Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.sendError(writer, http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
			return false
		}
		a.sendError(writer, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	if decoder.More() {
		a.sendError(writer, http.StatusBadRequest, "invalid request body: trailing data")
		return false
	}
	return true
}

// sendStoreError maps store errors to statuses. Unknown errors are
// logged and reported as 500 without detail.
func (a *API) sendStoreError(writer http.ResponseWriter, request *http.Request, err error) {
	switch {
	case errors.Is(err, runstore.ErrMalformedID), errors.Is(err, runstore.ErrInvalidName):
		a.sendError(writer, http.StatusBadRequest, "%v", err)
	case errors.Is(err, runstore.ErrSessionNotFound):
		a.sendError(writer, http.StatusNotFound, "%v", err)
	default:
		a.logger.ErrorContext(request.Context(), "store operation failed",
			"method", request.Method,
			"path", request.URL.Path,
			"error", err,
		)
		a.sendError(writer, http.StatusInternalServerError, "internal server error")
	}
}

func (a *API) sendError(writer http.ResponseWriter, status int, format string, args ...any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(telemetry.ErrorResponse{
		Error: fmt.Sprintf(format, args...),
	}); err != nil {
		a.logger.Warn("writing JSON error response", "error", err, "status", status)
	}
}

// writeJSON encodes value as JSON into writer. An encoding failure
// means the client went away; it is logged only.
func (a *API) writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		a.logger.Warn("writing JSON response", "error", err)
	}
}

func writeText(writer http.ResponseWriter, body string) {
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(writer, body)
}
