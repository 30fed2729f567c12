// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"fmt"
	"net/url"
)

// BatchKind names the write endpoint a batch is destined for.
type BatchKind string

const (
	KindPlots  BatchKind = "plots"
	KindErrors BatchKind = "errors"
)

// Batch is one write request: a JSON body and where it goes.
type Batch struct {
	Kind BatchKind `cbor:"kind"`

	// Session is the session id online, or the session name in a
	// spool record.
	Session string `cbor:"session"`

	// Path is the request path the body was (or would have been)
	// posted to.
	Path string `cbor:"path"`

	Body []byte `cbor:"body"`
}

// size is the number of bytes the batch holds against the buffer
// bound.
func (b Batch) size() int {
	return len(b.Body) + len(b.Path) + len(b.Session)
}

// endpointPath returns the write endpoint for kind and session id.
func endpointPath(kind BatchKind, sessionID string) (string, error) {
	escaped := url.PathEscape(sessionID)
	switch kind {
	case KindPlots:
		return "/api/updateSessionPlots/" + escaped, nil
	case KindErrors:
		return "/api/updateSessionErrors/" + escaped, nil
	}
	return "", fmt.Errorf("unknown batch kind %q", kind)
}
