// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	uniqueCounter atomic.Uint64
	runID         = uuid.NewString()[:8]
)

// UniqueName returns "prefix-RUN-N", where RUN identifies this test
// binary invocation and N increases with each call. Tests against a
// shared Redis use it for session names so concurrent and repeated
// runs never see each other's data.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%s-%d", prefix, runID, uniqueCounter.Add(1))
}
