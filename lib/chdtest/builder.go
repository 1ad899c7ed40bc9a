// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chdtest

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"
	"testing"
)

// HunkKind selects how one hunk of an [Image] is represented.
type HunkKind int

const (
	// Stored hunks carry their own data, compressed with a declared
	// compressor or stored raw.
	Stored HunkKind = iota

	// SelfRef hunks duplicate another hunk of the same image.
	SelfRef

	// ParentRef hunks read from the parent image.
	ParentRef

	// Pattern hunks repeat an 8-byte fill value. v3/v4 only, plus the
	// zero fill of uncompressed v5 maps.
	Pattern
)

// Hunk describes one hunk of an image under construction.
type Hunk struct {
	Kind HunkKind

	// Data is the decoded content of a Stored hunk, zero-padded to the
	// hunk size.
	Data []byte

	// Codec is the compressor slot for a Stored hunk, or negative to
	// store the hunk raw.
	Codec int

	// Target is the referenced hunk for SelfRef, and for ParentRef the
	// parent offset in units (v5) or hunks (v3/v4).
	Target uint64

	// Fill is the Pattern value.
	Fill uint64
}

// Meta is one metadata chain entry.
type Meta struct {
	Tag   string
	Flags byte
	Data  []byte
}

// Image describes a container to build.
type Image struct {
	Version      int
	HunkBytes    uint32
	UnitBytes    uint32 // zero means HunkBytes
	LogicalBytes uint64 // zero means HunkBytes × len(Hunks)
	Compressors  []string
	Uncompressed bool // v5 only: write the plain offset-table map
	Hunks        []Hunk
	Metadata     []Meta

	ParentSHA1 [20]byte
	ParentMD5  [16]byte

	// ParentLogical supplies the parent's decompressed content so that
	// digests over images with ParentRef hunks come out right.
	ParentLogical []byte
}

// Built is a finished container image.
type Built struct {
	// Bytes is the complete container file.
	Bytes []byte

	// Logical is the expected decompressed content.
	Logical []byte

	// SHA1 and MD5 are the identity digests written to the header, for
	// linking children to this image.
	SHA1 [20]byte
	MD5  [16]byte

	// HunkOffsets and HunkLengths locate each hunk's stored payload in
	// Bytes (zero for hunks stored by reference or pattern), for tests
	// that corrupt specific hunks.
	HunkOffsets []int64
	HunkLengths []uint32
}

// Build assembles the container described by img.
func Build(t *testing.T, img Image) *Built {
	t.Helper()
	if img.HunkBytes == 0 || len(img.Hunks) == 0 {
		t.Fatalf("chdtest: image needs a hunk size and at least one hunk")
	}
	if img.UnitBytes == 0 {
		img.UnitBytes = img.HunkBytes
	}
	if img.LogicalBytes == 0 {
		img.LogicalBytes = uint64(img.HunkBytes) * uint64(len(img.Hunks))
	}

	decoded := resolveDecoded(t, &img)
	logical := make([]byte, 0, img.LogicalBytes)
	for _, content := range decoded {
		logical = append(logical, content...)
	}
	logical = logical[:img.LogicalBytes]

	built := &Built{
		Logical:     logical,
		SHA1:        sha1.Sum(logical),
		MD5:         md5.Sum(logical),
		HunkOffsets: make([]int64, len(img.Hunks)),
		HunkLengths: make([]uint32, len(img.Hunks)),
	}

	switch {
	case img.Version == 5 && img.Uncompressed:
		buildV5Raw(t, &img, decoded, built)
	case img.Version == 5:
		buildV5(t, &img, decoded, built)
	case img.Version == 3 || img.Version == 4:
		buildV34(t, &img, decoded, built)
	default:
		t.Fatalf("chdtest: unsupported version %d", img.Version)
	}
	return built
}

// FromLogical builds an Image description that stores logical as a
// sequence of hunks, all compressed with compressor (or raw when
// compressor is empty).
func FromLogical(version int, hunkBytes uint32, logical []byte, compressor string) Image {
	img := Image{
		Version:      version,
		HunkBytes:    hunkBytes,
		LogicalBytes: uint64(len(logical)),
	}
	codec := -1
	if compressor != "" {
		img.Compressors = []string{compressor}
		codec = 0
	}
	for start := 0; start < len(logical); start += int(hunkBytes) {
		end := min(start+int(hunkBytes), len(logical))
		img.Hunks = append(img.Hunks, Hunk{Kind: Stored, Data: logical[start:end], Codec: codec})
	}
	return img
}

// resolveDecoded computes each hunk's decoded content.
func resolveDecoded(t *testing.T, img *Image) [][]byte {
	t.Helper()
	hunkBytes := int(img.HunkBytes)
	decoded := make([][]byte, len(img.Hunks))

	for i, h := range img.Hunks {
		switch h.Kind {
		case Stored:
			if len(h.Data) > hunkBytes {
				t.Fatalf("chdtest: hunk %d data longer than hunk size", i)
			}
			buf := make([]byte, hunkBytes)
			copy(buf, h.Data)
			decoded[i] = buf
		case Pattern:
			buf := make([]byte, hunkBytes)
			var pattern [8]byte
			binary.BigEndian.PutUint64(pattern[:], h.Fill)
			for j := range buf {
				buf[j] = pattern[j%8]
			}
			decoded[i] = buf
		case ParentRef:
			buf := make([]byte, hunkBytes)
			offset := parentByteOffset(img, i, h)
			if img.ParentLogical != nil && offset < uint64(len(img.ParentLogical)) {
				copy(buf, img.ParentLogical[offset:])
			}
			decoded[i] = buf
		}
	}

	// Self references may chain; settle them iteratively.
	for pass := 0; pass < len(img.Hunks); pass++ {
		progress := false
		for i, h := range img.Hunks {
			if h.Kind != SelfRef || decoded[i] != nil {
				continue
			}
			if int(h.Target) >= len(img.Hunks) {
				t.Fatalf("chdtest: hunk %d self reference out of range", i)
			}
			if target := decoded[h.Target]; target != nil {
				decoded[i] = target
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	// Reference cycles never resolve; give them zero content so the
	// image can still be assembled for tests that expect the reader to
	// reject the cycle.
	for i := range decoded {
		if decoded[i] == nil {
			decoded[i] = make([]byte, hunkBytes)
		}
	}
	return decoded
}

func parentByteOffset(img *Image, index int, h Hunk) uint64 {
	switch {
	case img.Version == 5 && img.Uncompressed:
		return uint64(index) * uint64(img.HunkBytes)
	case img.Version == 5:
		return h.Target * uint64(img.UnitBytes)
	}
	return h.Target * uint64(img.HunkBytes)
}

// buildMetadata serializes the metadata chain starting at base,
// returning the chain offset for the header (zero when empty).
func buildMetadata(entries []Meta, base int) (uint64, []byte) {
	if len(entries) == 0 {
		return 0, nil
	}
	var blob []byte
	for i, m := range entries {
		var header [16]byte
		binary.BigEndian.PutUint32(header[0:4], fourcc(m.Tag))
		header[4] = m.Flags
		header[5] = byte(len(m.Data) >> 16)
		header[6] = byte(len(m.Data) >> 8)
		header[7] = byte(len(m.Data))
		if i < len(entries)-1 {
			next := uint64(base + len(blob) + 16 + len(m.Data))
			binary.BigEndian.PutUint64(header[8:16], next)
		}
		blob = append(blob, header[:]...)
		blob = append(blob, m.Data...)
	}
	return uint64(base), blob
}

func fourcc(tag string) uint32 {
	var b [4]byte
	copy(b[:], tag)
	return binary.BigEndian.Uint32(b[:])
}

func crc32Sum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// checkSum16 is the CRC-16/CCITT-FALSE used by v5 containers.
func checkSum16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
