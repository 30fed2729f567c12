// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runstore persists training sessions, their metric series,
// and their anomalies.
//
// Two backends implement [Store]: [SQLiteStore], the default, a single
// database file behind lib/sqlitepool; and [RedisStore], for servers
// that share state through a Redis instance. Both provide the same
// guarantees, exercised by one conformance suite:
//
//   - Sessions are created on first resolution and never deleted.
//     [Store.ResolveSession] is create-or-fetch on the exact name.
//     [Store.ResolveUniqueSession] always creates a new session,
//     choosing base, base_1, base_2, ... such that the new suffix is
//     one more than the largest suffix already in use for base.
//   - Metric points are appended. Duplicate and out-of-order epochs
//     are kept as sent, in arrival order.
//   - There is at most one anomaly record per (session, kind). Epochs
//     merge by set union; a non-empty remark or
//     reference replaces the stored one;
//     a record that has ever been written with nil epochs stays static.
//   - Every write request is applied atomically: a reader sees all of
//     a request's points and anomalies or none of them.
//
// Session ids are UUIDs. An id that does not parse is
// [ErrMalformedID]; a well-formed id with no session is
// [ErrSessionNotFound].
package runstore
