// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"fmt"
	"sync"
)

// Buffer is a size-bounded FIFO queue of batches. When a Push would
// exceed the byte limit, the oldest entries are dropped until the new
// entry fits: a stalled server costs old data, never training-loop
// memory.
//
// The notify channel (capacity 1) wakes the shipper goroutine when
// new data is available.
//
// Safe for concurrent use.
type Buffer struct {
	mu        sync.Mutex
	entries   []Batch
	totalSize int
	maxSize   int
	dropped   uint64
	notify    chan struct{}
}

// NewBuffer creates a Buffer with the given maximum byte capacity.
// The maxSize must be positive.
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		panic(fmt.Sprintf("telemetryclient: buffer maxSize must be positive, got %d", maxSize))
	}
	return &Buffer{
		maxSize: maxSize,
		notify:  make(chan struct{}, 1),
	}
}

// Push appends a batch. A batch larger than the whole buffer is
// rejected. Otherwise the oldest entries are evicted until it fits,
// each counting toward Dropped.
func (b *Buffer) Push(batch Batch) error {
	size := batch.size()
	if size > b.maxSize {
		return fmt.Errorf("telemetryclient: batch of %d bytes exceeds buffer size %d", size, b.maxSize)
	}
	if len(batch.Body) == 0 {
		return fmt.Errorf("telemetryclient: refusing to buffer an empty batch")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.totalSize+size > b.maxSize && len(b.entries) > 0 {
		b.evictLocked()
		b.dropped++
	}

	b.entries = append(b.entries, batch)
	b.totalSize += size

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the oldest batch.
func (b *Buffer) Pop() (Batch, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return Batch{}, false
	}
	batch := b.entries[0]
	b.evictLocked()
	return batch, true
}

func (b *Buffer) evictLocked() {
	b.totalSize -= b.entries[0].size()
	b.entries[0] = Batch{} // release for GC
	b.entries = b.entries[1:]
}

// Len returns the number of queued batches.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// SizeBytes returns the bytes held by queued batches.
func (b *Buffer) SizeBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSize
}

// Dropped returns the number of batches evicted by overflow.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Notify returns a channel that receives a signal (at most one
// pending) when a batch is pushed.
func (b *Buffer) Notify() <-chan struct{} {
	return b.notify
}
