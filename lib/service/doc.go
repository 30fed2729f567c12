// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP serving scaffolding umlaut-server
// composes in its main function.
//
// [HTTPServer] owns the listener lifecycle: Serve(ctx) binds, signals
// [HTTPServer.Ready], serves until the context is cancelled, then
// drains in-flight requests within a shutdown timeout. [Recover] and
// [LimitBody] are middleware for the handler chain: panics become 500
// responses and request bodies are capped.
//
// The package provides building blocks, not a runtime.
package service
