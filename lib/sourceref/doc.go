// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sourceref finds the line in a training job's source that an
// anomaly most likely refers to, so reports can say "see train.go:42"
// next to the remediation.
//
// Lookup is best-effort enrichment. Detection never depends on it: a
// missing file, an unreadable file, or a pattern with no match all
// simply produce no reference.
package sourceref
