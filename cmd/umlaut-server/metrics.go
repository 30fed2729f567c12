// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
	points      prometheus.Counter
	anomalies   *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "umlaut_http_requests_total",
			Help: "API requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "umlaut_http_request_duration_seconds",
			Help:    "API request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "umlaut_session_resolutions_total",
			Help: "Session name resolutions by mode (exact or unique).",
		}, []string{"mode"}),
		points: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "umlaut_points_ingested_total",
			Help: "Metric points appended across all sessions.",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "umlaut_anomalies_merged_total",
			Help: "Anomaly records merged, by kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(
		m.requests, m.duration, m.resolutions, m.points, m.anomalies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// instrument records count and latency for one route pattern.
func (m *metrics) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		timer := prometheus.NewTimer(m.duration.WithLabelValues(route))
		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
		next.ServeHTTP(recorder, request)
		timer.ObserveDuration()
		m.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
