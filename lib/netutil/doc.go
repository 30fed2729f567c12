// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers shared by the umlaut
// telemetry client and read client.
//
// Response helpers (ReadResponse, DecodeResponse, ErrorMessage) bound
// every body read at MaxResponseSize. BaseURL normalizes the
// user-supplied server address.
package netutil
