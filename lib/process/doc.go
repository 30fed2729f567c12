// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by umlaut
// binaries: building the structured logger every binary logs through,
// and reporting the error that ends main() when there may be no logger
// to report it.
package process
