// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/discforge/chd/lib/chdtest"
)

// testLogical produces compressible, position-dependent content.
func testLogical(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i>>6) ^ byte(i)
	}
	return data
}

func openBuilt(t *testing.T, built *chdtest.Built, opts *Options) *File {
	t.Helper()
	f, err := OpenReader(bytes.NewReader(built.Bytes), int64(len(built.Bytes)), opts)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestHeaderFields(t *testing.T) {
	logical := testLogical(3*1024 + 512)
	built := chdtest.Build(t, chdtest.FromLogical(5, 1024, logical, "zlib"))
	f := openBuilt(t, built, nil)

	if f.Version() != 5 {
		t.Errorf("Version = %d", f.Version())
	}
	if f.HunkBytes() != 1024 || f.UnitBytes() != 1024 {
		t.Errorf("hunk/unit = %d/%d", f.HunkBytes(), f.UnitBytes())
	}
	if f.LogicalBytes() != uint64(len(logical)) {
		t.Errorf("LogicalBytes = %d, want %d", f.LogicalBytes(), len(logical))
	}
	if f.HunkCount() != 4 {
		t.Errorf("HunkCount = %d, want 4", f.HunkCount())
	}

	header := f.Header()
	if len(header.Compressors) != 1 || header.Compressors[0].String() != "zlib" {
		t.Errorf("Compressors = %v", header.Compressors)
	}
	if header.SHA1 != SHA1(built.SHA1) {
		t.Errorf("SHA1 = %s", header.SHA1)
	}
	if header.HasParent() {
		t.Error("HasParent on standalone image")
	}
	if f.Parent() != nil {
		t.Error("Parent on standalone image")
	}
}

func TestBadMagicRejected(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(1024), "zlib"))
	built.Bytes[0] ^= 0xff
	_, err := OpenReader(bytes.NewReader(built.Bytes), int64(len(built.Bytes)), nil)
	if !errors.Is(err, ErrBadHeader) {
		t.Fatalf("got %v, want ErrBadHeader", err)
	}
}

func TestUnsupportedVersionRejected(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(1024), "zlib"))
	binary.BigEndian.PutUint32(built.Bytes[12:16], 6)
	_, err := OpenReader(bytes.NewReader(built.Bytes), int64(len(built.Bytes)), nil)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
}

func TestWrongHeaderLengthRejected(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(1024), "zlib"))
	binary.BigEndian.PutUint32(built.Bytes[8:12], 100)
	_, err := OpenReader(bytes.NewReader(built.Bytes), int64(len(built.Bytes)), nil)
	if !errors.Is(err, ErrBadHeader) {
		t.Fatalf("got %v, want ErrBadHeader", err)
	}
}

func TestTruncatedHeaderRejected(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(1024), "zlib"))
	_, err := OpenReader(bytes.NewReader(built.Bytes[:40]), 40, nil)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
}

func TestTruncatedDataRejected(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(2048), "zlib"))
	// Keep the header and map but cut into the hunk data region.
	cut := built.HunkOffsets[1] + 2
	_, err := OpenReader(bytes.NewReader(built.Bytes[:cut]), cut, nil)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
}

func TestCorruptMapRejected(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(2048), "zlib"))
	// First byte of the compressed map's huffman tree.
	built.Bytes[124+16] ^= 0x01
	_, err := OpenReader(bytes.NewReader(built.Bytes), int64(len(built.Bytes)), nil)
	if !errors.Is(err, ErrBadMap) {
		t.Fatalf("got %v, want ErrBadMap", err)
	}
}

func TestDuplicateCompressorRejected(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(1024), "zlib"))
	copy(built.Bytes[20:24], built.Bytes[16:20])
	_, err := OpenReader(bytes.NewReader(built.Bytes), int64(len(built.Bytes)), nil)
	if !errors.Is(err, ErrBadHeader) {
		t.Fatalf("got %v, want ErrBadHeader", err)
	}
}
