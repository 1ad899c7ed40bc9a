// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chdtest

import (
	"encoding/binary"
	"testing"
)

const (
	v3HeaderSize = 120
	v4HeaderSize = 108
)

// buildV34 writes a v3 or v4 container: fixed 16-byte map entries
// directly after the header, zlib as the only compressor.
func buildV34(t *testing.T, img *Image, decoded [][]byte, built *Built) {
	t.Helper()
	headerSize := v3HeaderSize
	if img.Version == 4 {
		headerSize = v4HeaderSize
	}

	compression := uint32(0)
	if len(img.Compressors) > 0 {
		if len(img.Compressors) > 1 || img.Compressors[0] != "zlib" {
			t.Fatalf("chdtest: v%d images support only zlib, got %v", img.Version, img.Compressors)
		}
		compression = 1
	}

	count := len(img.Hunks)
	payloads := make([][]byte, count)
	for i, h := range img.Hunks {
		if h.Kind != Stored {
			continue
		}
		if h.Codec < 0 {
			payloads[i] = decoded[i]
			continue
		}
		if compression == 0 {
			t.Fatalf("chdtest: hunk %d compressed but no compressor declared", i)
		}
		payload, err := compress("zlib", decoded[i], img.HunkBytes)
		if err != nil {
			t.Fatalf("chdtest: compressing hunk %d: %v", i, err)
		}
		payloads[i] = payload
	}

	mapBytes := 16 * count
	metaOffset, metaBlob := buildMetadata(img.Metadata, headerSize+mapBytes)
	dataStart := headerSize + mapBytes + len(metaBlob)

	entries := make([]byte, mapBytes)
	offset := uint64(dataStart)
	for i, h := range img.Hunks {
		entry := entries[16*i:]
		var entryOffset uint64
		var length uint32
		var sum uint32
		var flags byte

		switch h.Kind {
		case Stored:
			if h.Codec < 0 {
				flags = 2
			} else {
				flags = 1
			}
			entryOffset = offset
			length = uint32(len(payloads[i]))
			sum = crc32Sum(decoded[i])
			built.HunkOffsets[i] = int64(offset)
			built.HunkLengths[i] = length
			offset += uint64(length)
		case Pattern:
			flags = 3
			entryOffset = h.Fill
			sum = crc32Sum(decoded[i])
		case SelfRef:
			flags = 4 | 0x10
			entryOffset = h.Target
		case ParentRef:
			flags = 5 | 0x10
			entryOffset = h.Target
		}

		binary.BigEndian.PutUint64(entry[0:8], entryOffset)
		binary.BigEndian.PutUint32(entry[8:12], sum)
		binary.BigEndian.PutUint16(entry[12:14], uint16(length))
		entry[14] = byte(length >> 16)
		entry[15] = flags
	}

	hasParent := img.ParentSHA1 != [20]byte{} || img.ParentMD5 != [16]byte{}
	var flags uint32
	if hasParent {
		flags = 1
	}

	h := make([]byte, headerSize)
	copy(h[0:8], "MComprHD")
	binary.BigEndian.PutUint32(h[8:12], uint32(headerSize))
	binary.BigEndian.PutUint32(h[12:16], uint32(img.Version))
	binary.BigEndian.PutUint32(h[16:20], flags)
	binary.BigEndian.PutUint32(h[20:24], compression)
	binary.BigEndian.PutUint32(h[24:28], uint32(count))
	binary.BigEndian.PutUint64(h[28:36], img.LogicalBytes)
	binary.BigEndian.PutUint64(h[36:44], metaOffset)
	if img.Version == 3 {
		copy(h[44:60], built.MD5[:])
		copy(h[60:76], img.ParentMD5[:])
		binary.BigEndian.PutUint32(h[76:80], img.HunkBytes)
		copy(h[80:100], built.SHA1[:])
		copy(h[100:120], img.ParentSHA1[:])
	} else {
		binary.BigEndian.PutUint32(h[44:48], img.HunkBytes)
		copy(h[48:68], built.SHA1[:])
		copy(h[68:88], img.ParentSHA1[:])
		copy(h[88:108], built.SHA1[:])
	}

	out := h
	out = append(out, entries...)
	out = append(out, metaBlob...)
	for i := range payloads {
		out = append(out, payloads[i]...)
	}
	built.Bytes = out
}
