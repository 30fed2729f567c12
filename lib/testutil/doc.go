// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for umlaut packages:
// bounded channel waits that fail the test instead of hanging it, and
// unique names for tests that share a store.
package testutil
