// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/discforge/chd/lib/codec"
)

// Magic is the 8-byte signature at the start of every container.
const Magic = "MComprHD"

// Version-specific fixed header lengths. The header's own length
// field must match the length implied by its version.
const (
	headerSizeV3 = 120
	headerSizeV4 = 108
	headerSizeV5 = 124

	// maxCompressors is the fixed size of the v5 compressor list.
	maxCompressors = 4
)

// Header flag bits (v3/v4 only; v5 signals a parent through a
// non-zero parent SHA-1 instead).
const (
	flagHasParent uint32 = 1 << 0
	flagWritable  uint32 = 1 << 1
)

// Legacy compression identifiers (v3/v4 store a single numeric codec
// for the whole container instead of a tag list).
const (
	legacyCompressionNone     = 0
	legacyCompressionZlib     = 1
	legacyCompressionZlibPlus = 2
	legacyCompressionAVHuff   = 3
)

// SHA1 is a raw SHA-1 digest as stored in container headers. The
// header SHA-1 doubles as the container's identity for parent-chain
// linking and cycle detection.
type SHA1 [20]byte

// IsZero reports whether the digest is all zeroes (absent).
func (s SHA1) IsZero() bool {
	return s == SHA1{}
}

// String returns the digest in lowercase hex.
func (s SHA1) String() string {
	return hex.EncodeToString(s[:])
}

// Header is the parsed, validated fixed-layout container header.
type Header struct {
	// Version is the container format version (3, 4 or 5).
	Version uint32

	// HunkBytes is the size of each hunk. Not necessarily a power of
	// two: CD images use multiples of the 2448-byte raw frame.
	HunkBytes uint32

	// HunkCount is the number of hunks; always
	// ceil(LogicalBytes/HunkBytes).
	HunkCount uint32

	// UnitBytes is the transfer unit size (v5). Parent references in
	// v5 maps are expressed in units. For v3/v4 it equals HunkBytes.
	UnitBytes uint32

	// LogicalBytes is the total decompressed size of the image.
	LogicalBytes uint64

	// MapOffset is the absolute file offset of the hunk map. v3/v4
	// place the map directly after the header.
	MapOffset uint64

	// MetaOffset is the absolute file offset of the first metadata
	// entry, or zero if there is none.
	MetaOffset uint64

	// Compressors is the declared codec list, in descriptor-index
	// order. Empty for uncompressed containers. v3/v4 containers
	// translate their single numeric compression field into a
	// one-element list.
	Compressors []codec.Tag

	// SHA1 is the digest over raw data plus metadata (v4/v5) or raw
	// data (v3); it identifies the container in parent chains.
	SHA1 SHA1

	// RawSHA1 is the digest over the raw data alone (v4/v5 only).
	RawSHA1 SHA1

	// ParentSHA1 is the identity of the declared parent container, or
	// zero.
	ParentSHA1 SHA1

	// MD5 and ParentMD5 are the v3 raw-data digests; zero for v4/v5.
	MD5       [16]byte
	ParentMD5 [16]byte

	flags uint32
}

// HasParent reports whether the container declares a parent image
// that must be present to resolve all hunks.
func (h *Header) HasParent() bool {
	if h.Version >= 5 {
		return !h.ParentSHA1.IsZero()
	}
	return h.flags&flagHasParent != 0
}

// readHeader parses and validates the header from the start of src.
// size is the total source length, or negative when unknown.
func readHeader(src io.ReaderAt, size int64) (Header, error) {
	var raw [headerSizeV5]byte
	if _, err := src.ReadAt(raw[:16], 0); err != nil {
		return Header{}, readErr("header", err)
	}
	if !bytes.Equal(raw[:8], []byte(Magic)) {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrBadHeader, raw[:8])
	}

	length := binary.BigEndian.Uint32(raw[8:12])
	version := binary.BigEndian.Uint32(raw[12:16])

	var want uint32
	switch version {
	case 3:
		want = headerSizeV3
	case 4:
		want = headerSizeV4
	case 5:
		want = headerSizeV5
	default:
		return Header{}, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}
	if length != want {
		return Header{}, fmt.Errorf("%w: version %d header length %d, want %d",
			ErrBadHeader, version, length, want)
	}
	if _, err := src.ReadAt(raw[:length], 0); err != nil {
		return Header{}, readErr("header", err)
	}

	var h Header
	var err error
	switch version {
	case 3:
		err = h.parseV3(raw[:headerSizeV3])
	case 4:
		err = h.parseV4(raw[:headerSizeV4])
	case 5:
		err = h.parseV5(raw[:headerSizeV5])
	}
	if err != nil {
		return Header{}, err
	}

	if err := h.validate(size); err != nil {
		return Header{}, err
	}
	return h, nil
}

func (h *Header) parseV3(raw []byte) error {
	h.Version = 3
	h.flags = binary.BigEndian.Uint32(raw[16:20])
	compression := binary.BigEndian.Uint32(raw[20:24])
	h.HunkCount = binary.BigEndian.Uint32(raw[24:28])
	h.LogicalBytes = binary.BigEndian.Uint64(raw[28:36])
	h.MetaOffset = binary.BigEndian.Uint64(raw[36:44])
	copy(h.MD5[:], raw[44:60])
	copy(h.ParentMD5[:], raw[60:76])
	h.HunkBytes = binary.BigEndian.Uint32(raw[76:80])
	copy(h.SHA1[:], raw[80:100])
	copy(h.ParentSHA1[:], raw[100:120])
	h.UnitBytes = h.HunkBytes
	h.MapOffset = headerSizeV3
	return h.setLegacyCompression(compression)
}

func (h *Header) parseV4(raw []byte) error {
	h.Version = 4
	h.flags = binary.BigEndian.Uint32(raw[16:20])
	compression := binary.BigEndian.Uint32(raw[20:24])
	h.HunkCount = binary.BigEndian.Uint32(raw[24:28])
	h.LogicalBytes = binary.BigEndian.Uint64(raw[28:36])
	h.MetaOffset = binary.BigEndian.Uint64(raw[36:44])
	h.HunkBytes = binary.BigEndian.Uint32(raw[44:48])
	copy(h.SHA1[:], raw[48:68])
	copy(h.ParentSHA1[:], raw[68:88])
	copy(h.RawSHA1[:], raw[88:108])
	h.UnitBytes = h.HunkBytes
	h.MapOffset = headerSizeV4
	return h.setLegacyCompression(compression)
}

func (h *Header) parseV5(raw []byte) error {
	h.Version = 5
	for i := 0; i < maxCompressors; i++ {
		tag := codec.Tag(binary.BigEndian.Uint32(raw[16+4*i : 20+4*i]))
		if tag == 0 {
			continue
		}
		// The list is packed: a non-zero tag after a zero slot is
		// malformed.
		if len(h.Compressors) != i {
			return fmt.Errorf("%w: compressor list has gaps", ErrBadHeader)
		}
		for _, seen := range h.Compressors {
			if seen == tag {
				return fmt.Errorf("%w: duplicate compressor %s", ErrBadHeader, tag)
			}
		}
		h.Compressors = append(h.Compressors, tag)
	}
	h.LogicalBytes = binary.BigEndian.Uint64(raw[32:40])
	h.MapOffset = binary.BigEndian.Uint64(raw[40:48])
	h.MetaOffset = binary.BigEndian.Uint64(raw[48:56])
	h.HunkBytes = binary.BigEndian.Uint32(raw[56:60])
	h.UnitBytes = binary.BigEndian.Uint32(raw[60:64])
	copy(h.RawSHA1[:], raw[64:84])
	copy(h.SHA1[:], raw[84:104])
	copy(h.ParentSHA1[:], raw[104:124])

	if h.HunkBytes == 0 {
		return fmt.Errorf("%w: zero hunk size", ErrBadHeader)
	}
	h.HunkCount = uint32((h.LogicalBytes + uint64(h.HunkBytes) - 1) / uint64(h.HunkBytes))
	return nil
}

func (h *Header) setLegacyCompression(compression uint32) error {
	switch compression {
	case legacyCompressionNone:
	case legacyCompressionZlib, legacyCompressionZlibPlus:
		h.Compressors = []codec.Tag{codec.TagZlib}
	case legacyCompressionAVHuff:
		h.Compressors = []codec.Tag{codec.TagAVHuff}
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrBadHeader, compression)
	}
	return nil
}

func (h *Header) validate(size int64) error {
	if h.HunkBytes == 0 {
		return fmt.Errorf("%w: zero hunk size", ErrBadHeader)
	}
	if h.Version >= 5 {
		if h.UnitBytes == 0 || h.HunkBytes%h.UnitBytes != 0 {
			return fmt.Errorf("%w: hunk size %d not a multiple of unit size %d",
				ErrBadHeader, h.HunkBytes, h.UnitBytes)
		}
	}

	wantHunks := (h.LogicalBytes + uint64(h.HunkBytes) - 1) / uint64(h.HunkBytes)
	if uint64(h.HunkCount) != wantHunks {
		return fmt.Errorf("%w: %d hunks of %d bytes inconsistent with logical size %d",
			ErrBadHeader, h.HunkCount, h.HunkBytes, h.LogicalBytes)
	}

	if h.MapOffset < uint64(headerLength(h.Version)) {
		return fmt.Errorf("%w: map offset %d overlaps header", ErrBadHeader, h.MapOffset)
	}
	if size >= 0 {
		if h.MapOffset >= uint64(size) && h.HunkCount > 0 {
			return fmt.Errorf("%w: map offset %d beyond file size %d", ErrTruncated, h.MapOffset, size)
		}
		if h.MetaOffset != 0 && h.MetaOffset >= uint64(size) {
			return fmt.Errorf("%w: metadata offset %d beyond file size %d", ErrTruncated, h.MetaOffset, size)
		}
	}
	return nil
}

func headerLength(version uint32) int {
	switch version {
	case 3:
		return headerSizeV3
	case 4:
		return headerSizeV4
	default:
		return headerSizeV5
	}
}
