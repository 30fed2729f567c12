// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import "sync"

// Claims records the session names resolved by clients in this
// process. The zero value is ready to use.
type Claims struct {
	mu    sync.Mutex
	names map[string]int
}

// DefaultClaims is the process-wide registry clients use unless
// configured otherwise.
var DefaultClaims = &Claims{}

// Claim records a resolution of name and reports whether an earlier
// client already claimed it.
func (c *Claims) Claim(name string) (alreadyClaimed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names == nil {
		c.names = make(map[string]int)
	}
	c.names[name]++
	return c.names[name] > 1
}

// Release undoes one Claim of name, for a resolution that failed.
func (c *Claims) Release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names[name] <= 1 {
		delete(c.names, name)
		return
	}
	c.names[name]--
}

// Count returns how many times name has been claimed.
func (c *Claims) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[name]
}
