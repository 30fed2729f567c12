// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pool behind umlaut's
// default run store.
//
// It is a thin layer over zombiezen.com/go/sqlite's sqlitex.Pool that
// applies one set of pragmas to every connection and, optionally, runs
// a schema script the first time each connection is used. Callers
// [Pool.Take] a connection, use it from a single goroutine, and
// [Pool.Put] it back. SQL is written by hand and executed with
// sqlitex.Execute; write transactions use
// sqlitex.ImmediateTransaction so the write lock is taken up front.
//
// Pragmas applied to every connection:
//
//   - journal_mode=WAL: readers (dashboard polls) never block the
//     writer (ingestion) and vice versa.
//   - synchronous=NORMAL: committed rows survive a process crash.
//   - busy_timeout=5000: concurrent writers queue for up to five
//     seconds instead of failing with SQLITE_BUSY.
//   - foreign_keys=ON: points and anomalies cannot outlive their
//     session row.
//   - temp_store=MEMORY.
package sqlitepool
