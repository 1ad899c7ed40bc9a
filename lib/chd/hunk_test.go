// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/discforge/chd/lib/chdtest"
	"github.com/discforge/chd/lib/codec"
)

// xorDelta turns a plain decoder into a delta codec: every decoded
// hunk is XORed with the previous hunk's decoded bytes.
type xorDelta struct {
	base codec.Decoder
}

func (d *xorDelta) Decode(dst, src []byte) error {
	return d.base.Decode(dst, src)
}

func (d *xorDelta) DecodeContext(dst, src, prev []byte) error {
	if err := d.base.Decode(dst, src); err != nil {
		return err
	}
	for i := range dst {
		dst[i] ^= prev[i]
	}
	return nil
}

// xorRegistry maps the zlib slot to the XOR delta codec, so images
// built with plain zlib payloads decode through the context path.
func xorRegistry() *codec.Registry {
	r := codec.NewRegistry()
	r.Register(codec.TagZlib, func(hunkBytes, unitBytes uint32) (codec.Decoder, error) {
		base, err := codec.Default().New(codec.TagZlib, hunkBytes, unitBytes)
		if err != nil {
			return nil, err
		}
		return &xorDelta{base: base}, nil
	})
	return r
}

func TestContextDecoderZeroSeedAndChain(t *testing.T) {
	plains := [][]byte{testLogical(512), testLogical(512), testLogical(512)}
	for i := range plains[1] {
		plains[1][i] ^= 0x3c
	}
	for i := range plains[2] {
		plains[2][i] = byte(i * 7)
	}
	built := chdtest.Build(t, chdtest.Image{
		Version:     5,
		HunkBytes:   512,
		Compressors: []string{"zlib"},
		Hunks: []chdtest.Hunk{
			{Kind: chdtest.Stored, Data: plains[0], Codec: 0},
			{Kind: chdtest.Stored, Data: plains[1], Codec: 0},
			{Kind: chdtest.Stored, Data: plains[2], Codec: 0},
		},
	})
	f := openBuilt(t, built, &Options{Codecs: xorRegistry()})

	// The delta unwinds hunk by hunk: hunk 0 against the zero seed,
	// each later hunk against its predecessor's decoded bytes.
	want := make([]byte, 0, 3*512)
	prev := make([]byte, 512)
	for _, plain := range plains {
		decoded := make([]byte, 512)
		for i := range decoded {
			decoded[i] = plain[i] ^ prev[i]
		}
		want = append(want, decoded...)
		prev = decoded
	}

	hunk0, err := f.ReadHunk(0)
	if err != nil {
		t.Fatalf("ReadHunk(0): %v", err)
	}
	if !bytes.Equal(hunk0, plains[0]) {
		t.Error("hunk 0 not decoded against a zero seed")
	}
	if got := readAll(t, f); !bytes.Equal(got, want) {
		t.Error("delta chain content mismatch")
	}
	// A cold read of the last hunk resolves the whole chain on its own.
	f2 := openBuilt(t, built, &Options{Codecs: xorRegistry()})
	hunk2, err := f2.ReadHunk(2)
	if err != nil {
		t.Fatalf("ReadHunk(2): %v", err)
	}
	if !bytes.Equal(hunk2, want[1024:]) {
		t.Error("cold chain read mismatch")
	}
}

func TestContextFetchThroughForwardReference(t *testing.T) {
	// Hunk 0 is a self reference forward to hunk 1. Decoding hunk 1
	// with a delta codec fetches hunk 0 as context, which leads
	// straight back to hunk 1: an unresolvable map that must fail,
	// not block on its own in-flight decode.
	built := chdtest.Build(t, chdtest.Image{
		Version:     5,
		HunkBytes:   512,
		Compressors: []string{"zlib"},
		Hunks: []chdtest.Hunk{
			{Kind: chdtest.SelfRef, Target: 1},
			{Kind: chdtest.Stored, Data: testLogical(512), Codec: 0},
		},
	})
	f := openBuilt(t, built, &Options{Codecs: xorRegistry()})

	if _, err := f.ReadHunk(1); !errors.Is(err, ErrHunkCycle) {
		t.Fatalf("ReadHunk(1): got %v, want ErrHunkCycle", err)
	}
	if err := f.VerifyHunk(1); !errors.Is(err, ErrHunkCycle) {
		t.Fatalf("VerifyHunk(1): got %v, want ErrHunkCycle", err)
	}
}

func TestConcurrentReadAt(t *testing.T) {
	logical := testLogical(32 * 512)
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, logical, "zlib"))
	f := openBuilt(t, built, &Options{CacheHunks: 4})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				off := (seed*131 + i*977) % (len(logical) - 600)
				n := 1 + (seed+i*53)%600
				got := make([]byte, n)
				if _, err := f.ReadAt(got, int64(off)); err != nil {
					t.Errorf("ReadAt(%d, %d): %v", off, n, err)
					return
				}
				if !bytes.Equal(got, logical[off:off+n]) {
					t.Errorf("ReadAt(%d, %d): content mismatch", off, n)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}
