// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package hunkcache

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrDecodeCachesResult(t *testing.T) {
	c := New(4)
	decodes := 0
	decode := func() ([]byte, error) {
		decodes++
		return []byte{1, 2, 3}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrDecode(7, decode)
		if err != nil {
			t.Fatalf("GetOrDecode: %v", err)
		}
		if !bytes.Equal(got, []byte{1, 2, 3}) {
			t.Fatalf("GetOrDecode returned %v", got)
		}
	}
	if decodes != 1 {
		t.Errorf("decode ran %d times, want 1", decodes)
	}
	if !c.Contains(7) {
		t.Error("entry not resident after decode")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2)
	for index := uint32(0); index < 3; index++ {
		c.GetOrDecode(index, func() ([]byte, error) {
			return []byte{byte(index)}, nil
		})
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if c.Contains(0) {
		t.Error("oldest entry survived eviction")
	}
	if !c.Contains(1) || !c.Contains(2) {
		t.Error("recent entries evicted")
	}
}

func TestPassThroughMode(t *testing.T) {
	c := New(0)
	decodes := 0
	decode := func() ([]byte, error) {
		decodes++
		return []byte{9}, nil
	}
	c.GetOrDecode(1, decode)
	c.GetOrDecode(1, decode)
	if decodes != 2 {
		t.Errorf("decode ran %d times in pass-through mode, want 2", decodes)
	}
	if c.Len() != 0 || c.Contains(1) {
		t.Error("pass-through mode stored an entry")
	}
}

func TestConcurrentMissesDecodeOnce(t *testing.T) {
	c := New(8)
	var decodes atomic.Int32
	decode := func() ([]byte, error) {
		decodes.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []byte{42}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrDecode(5, decode)
			if err != nil {
				t.Errorf("GetOrDecode: %v", err)
				return
			}
			if !bytes.Equal(got, []byte{42}) {
				t.Errorf("GetOrDecode returned %v", got)
			}
		}()
	}
	wg.Wait()
	if n := decodes.Load(); n != 1 {
		t.Errorf("decode ran %d times under concurrent misses, want 1", n)
	}
}

func TestDecodeErrorNotCached(t *testing.T) {
	c := New(4)
	boom := errors.New("bad hunk")
	_, err := c.GetOrDecode(3, func() ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the decode error", err)
	}
	if c.Contains(3) {
		t.Error("failed decode left a cache entry")
	}

	got, err := c.GetOrDecode(3, func() ([]byte, error) { return []byte{1}, nil })
	if err != nil || !bytes.Equal(got, []byte{1}) {
		t.Fatalf("retry after error: got %v, %v", got, err)
	}
}

func TestPurge(t *testing.T) {
	c := New(4)
	c.GetOrDecode(1, func() ([]byte, error) { return []byte{1}, nil })
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len after purge = %d", c.Len())
	}
}
