// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package hunkcache provides the bounded cache of decoded hunk
// buffers that sits between the random-access reader and the codec
// dispatch path.
//
// The cache is strict LRU with a capacity fixed at construction, and
// it guarantees at most one decode in flight per hunk index: when
// several goroutines miss on the same index concurrently, one runs
// the decode and the rest wait for its result instead of duplicating
// the work.
package hunkcache

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cache is a bounded LRU of decoded hunk buffers keyed by hunk index.
// Safe for concurrent use.
//
// Buffers returned by [Cache.GetOrDecode] are owned by the cache:
// callers copy out what they need and must not modify or retain them.
type Cache struct {
	// entries is nil in pass-through mode (capacity < 1): nothing is
	// stored and every access decodes, but single-flight semantics
	// still hold.
	entries *lru.Cache[uint32, []byte]
	flights singleflight.Group
}

// New creates a cache holding up to capacity decoded hunks. A
// capacity below 1 disables storage entirely — every access decodes —
// while keeping the same interface and the decode-once guarantee for
// concurrent requests.
func New(capacity int) *Cache {
	c := &Cache{}
	if capacity >= 1 {
		// lru.New only fails for non-positive sizes.
		c.entries, _ = lru.New[uint32, []byte](capacity)
	}
	return c
}

// GetOrDecode returns the cached buffer for index, or runs decode,
// stores its result and returns it. On a miss, concurrent callers for
// the same index share a single decode invocation; on a hit, recency
// is updated and callers do not block each other beyond the LRU's own
// locking. Decode errors are returned to every waiter and nothing is
// stored.
func (c *Cache) GetOrDecode(index uint32, decode func() ([]byte, error)) ([]byte, error) {
	if c.entries != nil {
		if buffer, ok := c.entries.Get(index); ok {
			return buffer, nil
		}
	}

	value, err, _ := c.flights.Do(strconv.FormatUint(uint64(index), 10), func() (any, error) {
		// A previous flight may have populated the entry while this
		// caller was waiting to start.
		if c.entries != nil {
			if buffer, ok := c.entries.Get(index); ok {
				return buffer, nil
			}
		}
		buffer, err := decode()
		if err != nil {
			return nil, err
		}
		if c.entries != nil {
			c.entries.Add(index, buffer)
		}
		return buffer, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// Contains reports whether index is resident, without updating
// recency.
func (c *Cache) Contains(index uint32) bool {
	return c.entries != nil && c.entries.Contains(index)
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops all resident entries. In-flight decodes are unaffected.
func (c *Cache) Purge() {
	if c.entries != nil {
		c.entries.Purge()
	}
}
