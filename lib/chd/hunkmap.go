// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/discforge/chd/lib/huffman"
)

// Resolution kinds after normalization. The on-disk encodings differ
// per version; parsing reduces every entry to one of these.
const (
	hunkCompressed uint8 = iota + 1
	hunkUncompressed
	hunkMini
	hunkSelf
	hunkParent
)

// v5 compressed-map entry types as decoded from the huffman stream.
// Types 7-13 are shorthand (run-length repeats and implied self or
// parent targets) that phase 2 rewrites to the base types 0-6.
const (
	v5TypeCodec0     = 0
	v5TypeCodec3     = 3
	v5TypeNone       = 4
	v5TypeSelf       = 5
	v5TypeParent     = 6
	v5TypeRLESmall   = 7
	v5TypeRLELarge   = 8
	v5TypeSelf0      = 9
	v5TypeSelf1      = 10
	v5TypeParentSelf = 11
	v5TypeParent0    = 12
	v5TypeParent1    = 13
)

// v3/v4 map entry types (low nibble of the flags byte).
const (
	v34TypeCompressed   = 1
	v34TypeUncompressed = 2
	v34TypeMini         = 3
	v34TypeSelf         = 4
	v34TypeParent       = 5

	v34FlagNoCRC = 0x10

	v34EntrySize = 16
)

const (
	v5MapHeaderSize = 16
	v5RawEntrySize  = 4

	// rawEntrySize is the size of a normalized v5 map entry: type,
	// 24-bit length, 48-bit offset, 16-bit CRC. The map checksum is
	// computed over entries in this form.
	rawEntrySize = 12

	// maxMapBytes bounds the compressed map allocation against
	// malicious headers.
	maxMapBytes = 1 << 27
)

// mapEntry is one normalized hunk descriptor.
//
// The meaning of offset depends on kind: an absolute file offset for
// compressed/uncompressed hunks, the 8-byte literal for mini hunks,
// the target hunk index for self references, and the byte offset into
// the parent's logical stream for parent references.
type mapEntry struct {
	kind   uint8
	codec  uint8
	noCRC  bool
	offset uint64
	length uint32
	sum16  uint16
	sum32  uint32
}

// readMap loads and normalizes the hunk map for h. size is the total
// source length, or negative when unknown.
func readMap(src io.ReaderAt, h *Header, size int64) ([]mapEntry, error) {
	if h.HunkCount == 0 {
		return nil, nil
	}
	var entries []mapEntry
	var err error
	switch {
	case h.Version < 5:
		entries, err = readMapV34(src, h, size)
	case len(h.Compressors) > 0:
		entries, err = readMapV5(src, h, size)
	default:
		entries, err = readMapV5Raw(src, h, size)
	}
	if err != nil {
		return nil, err
	}
	if !h.HasParent() {
		for hunk := range entries {
			if entries[hunk].kind == hunkParent {
				return nil, fmt.Errorf("%w: hunk %d references a parent but none is declared",
					ErrBadMap, hunk)
			}
		}
	}
	return entries, nil
}

// readMapBits reads a field that may be wider than the bit reader's
// 24-bit single-read limit.
func readMapBits(bits *huffman.BitReader, count int) uint64 {
	if count <= 24 {
		return uint64(bits.Read(count))
	}
	high := uint64(bits.Read(count - 24))
	return high<<24 | uint64(bits.Read(24))
}

// readMapV5 decompresses a v5 hunk map: a huffman-coded stream of
// entry types (with run-length shorthand) followed by per-entry
// length, target and check-value fields, reassembled into normalized
// 12-byte entries and verified against the map checksum.
func readMapV5(src io.ReaderAt, h *Header, size int64) ([]mapEntry, error) {
	var mapHeader [v5MapHeaderSize]byte
	if _, err := src.ReadAt(mapHeader[:], int64(h.MapOffset)); err != nil {
		return nil, readErr("map header", err)
	}

	compressedLength := binary.BigEndian.Uint32(mapHeader[0:4])
	firstOffset := uint48(mapHeader[4:10])
	mapSum := binary.BigEndian.Uint16(mapHeader[10:12])
	lengthBits := int(mapHeader[12])
	selfBits := int(mapHeader[13])
	parentBits := int(mapHeader[14])

	if compressedLength > maxMapBytes {
		return nil, fmt.Errorf("%w: compressed map of %d bytes", ErrBadMap, compressedLength)
	}
	if lengthBits < 1 || lengthBits > 48 || selfBits < 1 || selfBits > 48 ||
		parentBits < 1 || parentBits > 48 {
		return nil, fmt.Errorf("%w: map field widths %d/%d/%d", ErrBadMap,
			lengthBits, selfBits, parentBits)
	}

	compressed := make([]byte, compressedLength)
	if _, err := src.ReadAt(compressed, int64(h.MapOffset)+v5MapHeaderSize); err != nil {
		return nil, readErr("compressed map", err)
	}

	bits := huffman.NewBitReader(compressed)
	decoder := huffman.New(16, 8)
	if err := decoder.ImportTreeRLE(bits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMap, err)
	}

	// Phase 1: entry types, expanding the run-length shorthand.
	rawMap := make([]byte, rawEntrySize*int(h.HunkCount))
	lastType := uint8(0)
	repeat := 0
	for hunk := uint32(0); hunk < h.HunkCount; hunk++ {
		raw := rawMap[hunk*rawEntrySize:]
		if repeat > 0 {
			raw[0] = lastType
			repeat--
			continue
		}
		switch value := uint8(decoder.Decode(bits)); value {
		case v5TypeRLESmall:
			raw[0] = lastType
			repeat = 2 + int(decoder.Decode(bits))
		case v5TypeRLELarge:
			raw[0] = lastType
			repeat = 2 + 16 + int(decoder.Decode(bits))<<4
			repeat += int(decoder.Decode(bits))
		default:
			raw[0] = value
			lastType = value
		}
	}

	// Phase 2: per-entry fields. Offsets of stored hunks accumulate
	// from the first data offset; self and parent targets repeat or
	// step from the previous one.
	currentOffset := firstOffset
	var lastSelf, lastParent uint64
	hunkUnits := uint64(h.HunkBytes) / uint64(h.UnitBytes)
	for hunk := uint32(0); hunk < h.HunkCount; hunk++ {
		raw := rawMap[hunk*rawEntrySize:]
		var length, offset uint64
		var sum uint16

		switch raw[0] {
		case 0, 1, 2, 3:
			length = readMapBits(bits, lengthBits)
			offset = currentOffset
			currentOffset += length
			sum = uint16(bits.Read(16))
		case v5TypeNone:
			length = uint64(h.HunkBytes)
			offset = currentOffset
			currentOffset += length
			sum = uint16(bits.Read(16))
		case v5TypeSelf:
			offset = readMapBits(bits, selfBits)
			lastSelf = offset
		case v5TypeParent:
			offset = readMapBits(bits, parentBits)
			lastParent = offset
		case v5TypeSelf1:
			lastSelf++
			fallthrough
		case v5TypeSelf0:
			raw[0] = v5TypeSelf
			offset = lastSelf
		case v5TypeParentSelf:
			raw[0] = v5TypeParent
			offset = uint64(hunk) * hunkUnits
			lastParent = offset
		case v5TypeParent1:
			lastParent += hunkUnits
			fallthrough
		case v5TypeParent0:
			raw[0] = v5TypeParent
			offset = lastParent
		default:
			return nil, fmt.Errorf("%w: hunk %d has unknown type %d", ErrBadMap, hunk, raw[0])
		}

		putUint24(raw[1:4], uint32(length))
		putUint48(raw[4:10], offset)
		binary.BigEndian.PutUint16(raw[10:12], sum)
	}

	if bits.Overflow() {
		return nil, fmt.Errorf("%w: map data ends early", ErrBadMap)
	}
	if actual := crc16(rawMap); actual != mapSum {
		return nil, fmt.Errorf("%w: map checksum %04x, want %04x", ErrBadMap, actual, mapSum)
	}

	// Normalize the raw entries.
	entries := make([]mapEntry, h.HunkCount)
	for hunk := uint32(0); hunk < h.HunkCount; hunk++ {
		raw := rawMap[hunk*rawEntrySize:]
		length := uint24(raw[1:4])
		offset := uint48(raw[4:10])
		sum := binary.BigEndian.Uint16(raw[10:12])
		entry := &entries[hunk]

		switch entryType := raw[0]; {
		case entryType <= v5TypeCodec3:
			if int(entryType) >= len(h.Compressors) {
				return nil, fmt.Errorf("%w: hunk %d uses codec %d of %d declared",
					ErrBadMap, hunk, entryType, len(h.Compressors))
			}
			*entry = mapEntry{kind: hunkCompressed, codec: entryType,
				offset: offset, length: length, sum16: sum}
		case entryType == v5TypeNone:
			*entry = mapEntry{kind: hunkUncompressed, offset: offset,
				length: h.HunkBytes, sum16: sum}
		case entryType == v5TypeSelf:
			if offset >= uint64(h.HunkCount) {
				return nil, fmt.Errorf("%w: hunk %d self reference to %d of %d",
					ErrBadMap, hunk, offset, h.HunkCount)
			}
			*entry = mapEntry{kind: hunkSelf, offset: offset, noCRC: true}
		default: // v5TypeParent
			*entry = mapEntry{kind: hunkParent,
				offset: offset * uint64(h.UnitBytes), noCRC: true}
		}

		if err := checkDataBounds(entry, hunk, size); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// readMapV5Raw parses the uncompressed v5 map used by containers with
// no declared compressors: one 4-byte entry per hunk holding the data
// offset in hunk-size units. A zero entry means the hunk was never
// written: it reads from the parent at the same logical position, or
// as zero fill when there is no parent.
func readMapV5Raw(src io.ReaderAt, h *Header, size int64) ([]mapEntry, error) {
	raw := make([]byte, v5RawEntrySize*int(h.HunkCount))
	if _, err := src.ReadAt(raw, int64(h.MapOffset)); err != nil {
		return nil, readErr("map", err)
	}

	hasParent := h.HasParent()
	entries := make([]mapEntry, h.HunkCount)
	for hunk := uint32(0); hunk < h.HunkCount; hunk++ {
		block := binary.BigEndian.Uint32(raw[hunk*v5RawEntrySize:])
		switch {
		case block != 0:
			entries[hunk] = mapEntry{kind: hunkUncompressed, noCRC: true,
				offset: uint64(block) * uint64(h.HunkBytes), length: h.HunkBytes}
			if err := checkDataBounds(&entries[hunk], hunk, size); err != nil {
				return nil, err
			}
		case hasParent:
			entries[hunk] = mapEntry{kind: hunkParent, noCRC: true,
				offset: uint64(hunk) * uint64(h.HunkBytes)}
		default:
			entries[hunk] = mapEntry{kind: hunkMini, noCRC: true}
		}
	}
	return entries, nil
}

// readMapV34 parses the uncompressed 16-byte-entry map of v3 and v4
// containers.
func readMapV34(src io.ReaderAt, h *Header, size int64) ([]mapEntry, error) {
	raw := make([]byte, v34EntrySize*int(h.HunkCount))
	if _, err := src.ReadAt(raw, int64(h.MapOffset)); err != nil {
		return nil, readErr("map", err)
	}

	entries := make([]mapEntry, h.HunkCount)
	for hunk := uint32(0); hunk < h.HunkCount; hunk++ {
		field := raw[hunk*v34EntrySize:]
		offset := binary.BigEndian.Uint64(field[0:8])
		sum := binary.BigEndian.Uint32(field[8:12])
		length := uint32(binary.BigEndian.Uint16(field[12:14])) | uint32(field[14])<<16
		flags := field[15]
		entry := &entries[hunk]
		entry.noCRC = flags&v34FlagNoCRC != 0
		entry.sum32 = sum

		switch flags & 0x0f {
		case v34TypeCompressed:
			if len(h.Compressors) == 0 {
				return nil, fmt.Errorf("%w: hunk %d compressed in uncompressed container",
					ErrBadMap, hunk)
			}
			entry.kind = hunkCompressed
			entry.offset = offset
			entry.length = length
		case v34TypeUncompressed:
			if length != h.HunkBytes {
				return nil, fmt.Errorf("%w: hunk %d uncompressed length %d, want %d",
					ErrBadMap, hunk, length, h.HunkBytes)
			}
			entry.kind = hunkUncompressed
			entry.offset = offset
			entry.length = length
		case v34TypeMini:
			entry.kind = hunkMini
			entry.offset = offset
		case v34TypeSelf:
			if offset >= uint64(h.HunkCount) {
				return nil, fmt.Errorf("%w: hunk %d self reference to %d of %d",
					ErrBadMap, hunk, offset, h.HunkCount)
			}
			entry.kind = hunkSelf
			entry.offset = offset
		case v34TypeParent:
			entry.kind = hunkParent
			entry.offset = offset * uint64(h.HunkBytes)
		default:
			return nil, fmt.Errorf("%w: hunk %d has unknown type %d", ErrBadMap, hunk, flags&0x0f)
		}

		if err := checkDataBounds(entry, hunk, size); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// checkDataBounds rejects stored-data entries whose byte range lies
// beyond the end of the source, when the source size is known.
func checkDataBounds(entry *mapEntry, hunk uint32, size int64) error {
	if size < 0 || (entry.kind != hunkCompressed && entry.kind != hunkUncompressed) {
		return nil
	}
	if entry.offset+uint64(entry.length) > uint64(size) {
		return fmt.Errorf("%w: hunk %d data at %d+%d beyond file size %d",
			ErrTruncated, hunk, entry.offset, entry.length, size)
	}
	return nil
}

// validateParentRefs rejects parent references that reach beyond the
// parent's logical size. Called once the parent is resolved.
func validateParentRefs(entries []mapEntry, h *Header, parent *Header) error {
	for hunk := range entries {
		entry := &entries[hunk]
		if entry.kind != hunkParent {
			continue
		}
		if entry.offset+uint64(h.HunkBytes) > parent.LogicalBytes {
			return fmt.Errorf("%w: hunk %d parent reference at %d+%d beyond parent logical size %d",
				ErrBadMap, hunk, entry.offset, h.HunkBytes, parent.LogicalBytes)
		}
	}
	return nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func putUint48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}
