// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chdtest

import (
	"encoding/binary"
	"testing"
)

const v5HeaderSize = 124

func v5Header(img *Image, metaOffset uint64, built *Built) []byte {
	h := make([]byte, v5HeaderSize)
	copy(h[0:8], "MComprHD")
	binary.BigEndian.PutUint32(h[8:12], v5HeaderSize)
	binary.BigEndian.PutUint32(h[12:16], 5)
	for i, tag := range img.Compressors {
		binary.BigEndian.PutUint32(h[16+4*i:], fourcc(tag))
	}
	binary.BigEndian.PutUint64(h[32:40], img.LogicalBytes)
	binary.BigEndian.PutUint64(h[40:48], v5HeaderSize)
	binary.BigEndian.PutUint64(h[48:56], metaOffset)
	binary.BigEndian.PutUint32(h[56:60], img.HunkBytes)
	binary.BigEndian.PutUint32(h[60:64], img.UnitBytes)
	copy(h[64:84], built.SHA1[:])
	copy(h[84:104], built.SHA1[:])
	copy(h[104:124], img.ParentSHA1[:])
	return h
}

// buildV5 writes a v5 container with a compressed hunk map. Entry
// types are huffman-coded with a flat tree (sixteen four-bit codes),
// so each type is its own literal code; run-length shorthand is never
// emitted.
func buildV5(t *testing.T, img *Image, decoded [][]byte, built *Built) {
	t.Helper()
	count := len(img.Hunks)
	payloads := make([][]byte, count)
	types := make([]byte, count)
	sums := make([]uint16, count)

	for i, h := range img.Hunks {
		switch h.Kind {
		case Stored:
			if h.Codec < 0 {
				types[i] = 4
				payloads[i] = decoded[i]
			} else {
				if h.Codec >= len(img.Compressors) {
					t.Fatalf("chdtest: hunk %d uses codec slot %d of %d", i, h.Codec, len(img.Compressors))
				}
				payload, err := compress(img.Compressors[h.Codec], decoded[i], img.HunkBytes)
				if err != nil {
					t.Fatalf("chdtest: compressing hunk %d: %v", i, err)
				}
				types[i] = byte(h.Codec)
				payloads[i] = payload
			}
			sums[i] = checkSum16(decoded[i])
		case SelfRef:
			types[i] = 5
		case ParentRef:
			types[i] = 6
		case Pattern:
			t.Fatalf("chdtest: pattern hunks need a v3/v4 or uncompressed v5 image")
		}
	}

	var maxLength, maxSelf, maxParent uint64
	for i, h := range img.Hunks {
		switch types[i] {
		case 5:
			maxSelf = max(maxSelf, h.Target)
		case 6:
			maxParent = max(maxParent, h.Target)
		default:
			maxLength = max(maxLength, uint64(len(payloads[i])))
		}
	}
	lengthBits := bitsFor(maxLength)
	selfBits := bitsFor(maxSelf)
	parentBits := bitsFor(maxParent)

	w := &bitWriter{}
	for symbol := 0; symbol < 16; symbol++ {
		w.write(4, 4) // flat tree: every symbol four bits long
	}
	for i := range types {
		w.write(uint32(types[i]), 4)
	}
	for i, h := range img.Hunks {
		switch types[i] {
		case 4:
			// Raw entries carry only the check value; their length is
			// implied by the hunk size.
			w.write(uint32(sums[i]), 16)
		case 5:
			w.writeWide(h.Target, selfBits)
		case 6:
			w.writeWide(h.Target, parentBits)
		default:
			w.writeWide(uint64(len(payloads[i])), lengthBits)
			w.write(uint32(sums[i]), 16)
		}
	}
	stream := w.flush()

	mapBytes := 16 + len(stream)
	metaOffset, metaBlob := buildMetadata(img.Metadata, v5HeaderSize+mapBytes)
	dataStart := v5HeaderSize + mapBytes + len(metaBlob)

	// The normalized map the reader reconstructs, for its checksum.
	raw := make([]byte, 12*count)
	offset := uint64(dataStart)
	for i := range img.Hunks {
		entry := raw[12*i:]
		entry[0] = types[i]
		switch types[i] {
		case 5, 6:
			putUint48(entry[4:10], img.Hunks[i].Target)
		default:
			length := uint64(len(payloads[i]))
			entry[1] = byte(length >> 16)
			entry[2] = byte(length >> 8)
			entry[3] = byte(length)
			putUint48(entry[4:10], offset)
			binary.BigEndian.PutUint16(entry[10:12], sums[i])
			built.HunkOffsets[i] = int64(offset)
			built.HunkLengths[i] = uint32(length)
			offset += length
		}
	}
	mapSum := checkSum16(raw)

	out := v5Header(img, metaOffset, built)
	var mapHeader [16]byte
	binary.BigEndian.PutUint32(mapHeader[0:4], uint32(len(stream)))
	putUint48(mapHeader[4:10], uint64(dataStart))
	binary.BigEndian.PutUint16(mapHeader[10:12], mapSum)
	mapHeader[12] = byte(lengthBits)
	mapHeader[13] = byte(selfBits)
	mapHeader[14] = byte(parentBits)
	out = append(out, mapHeader[:]...)
	out = append(out, stream...)
	out = append(out, metaBlob...)
	for i := range payloads {
		out = append(out, payloads[i]...)
	}
	built.Bytes = out
}

// buildV5Raw writes a v5 container with the plain offset-table map
// used by uncompressed images: stored hunks sit at hunk-aligned file
// offsets, zero entries read from the parent or as zero fill.
func buildV5Raw(t *testing.T, img *Image, decoded [][]byte, built *Built) {
	t.Helper()
	count := len(img.Hunks)
	hunkBytes := int(img.HunkBytes)

	mapBytes := 4 * count
	metaOffset, metaBlob := buildMetadata(img.Metadata, v5HeaderSize+mapBytes)
	dataStart := v5HeaderSize + mapBytes + len(metaBlob)
	if rem := dataStart % hunkBytes; rem != 0 {
		dataStart += hunkBytes - rem
	}

	entries := make([]byte, mapBytes)
	var stored [][]byte
	block := uint32(dataStart / hunkBytes)
	for i, h := range img.Hunks {
		switch h.Kind {
		case Stored:
			if h.Codec >= 0 {
				t.Fatalf("chdtest: hunk %d compressed in uncompressed image", i)
			}
			binary.BigEndian.PutUint32(entries[4*i:], block)
			built.HunkOffsets[i] = int64(block) * int64(hunkBytes)
			built.HunkLengths[i] = img.HunkBytes
			stored = append(stored, decoded[i])
			block++
		case ParentRef:
			// Zero entry; resolves against the parent.
		case Pattern:
			if h.Fill != 0 {
				t.Fatalf("chdtest: hunk %d uncompressed images only zero-fill", i)
			}
		case SelfRef:
			t.Fatalf("chdtest: hunk %d self references need a compressed map", i)
		}
	}

	out := v5Header(img, metaOffset, built)
	out = append(out, entries...)
	out = append(out, metaBlob...)
	out = append(out, make([]byte, dataStart-v5HeaderSize-mapBytes-len(metaBlob))...)
	for _, content := range stored {
		out = append(out, content...)
	}
	built.Bytes = out
}

func putUint48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}
