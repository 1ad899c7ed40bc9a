// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/discforge/chd/lib/codec"
)

// ReadHunk decodes hunk index into a freshly allocated buffer of
// HunkBytes length. Decoding the same hunk repeatedly yields identical
// bytes; results may be served from the cache.
func (f *File) ReadHunk(index uint32) ([]byte, error) {
	if index >= f.header.HunkCount {
		return nil, fmt.Errorf("%w: hunk %d of %d", ErrOutOfRange, index, f.header.HunkCount)
	}
	buffer := make([]byte, f.header.HunkBytes)
	if err := f.readHunk(buffer, index, nil); err != nil {
		return nil, err
	}
	return buffer, nil
}

// readHunk fills dst (HunkBytes long) with the decoded hunk. Self and
// parent references resolve here, outside the cache, so that only leaf
// decodes occupy cache flights: a chain of references can never
// deadlock two in-flight decodes against each other.
//
// visiting tracks every hunk in progress for one top-level request:
// self-reference chains, and hunks whose decode is mid-flight when a
// delta codec fetches its context. Reaching a visited hunk again means
// the map can never resolve, and must fail rather than re-enter (and
// wait on) its own in-flight decode.
func (f *File) readHunk(dst []byte, index uint32, visiting map[uint32]bool) error {
	if visiting[index] {
		return fmt.Errorf("%w: hunk %d", ErrHunkCycle, index)
	}
	if visiting == nil {
		visiting = make(map[uint32]bool)
	}
	visiting[index] = true

	entry := &f.entries[index]
	switch entry.kind {
	case hunkSelf:
		return f.readHunk(dst, uint32(entry.offset), visiting)

	case hunkParent:
		// Map parsing guarantees a resolved parent and in-bounds
		// offsets when parent entries exist.
		_, err := f.parent.ReadAt(dst, int64(entry.offset))
		if err != nil {
			return fmt.Errorf("hunk %d from parent: %w", index, err)
		}
		return nil
	}

	buffer, err := f.cache.GetOrDecode(index, func() ([]byte, error) {
		buffer := make([]byte, f.header.HunkBytes)
		if err := f.decodeHunk(buffer, index, entry, visiting); err != nil {
			return nil, err
		}
		return buffer, nil
	})
	if err != nil {
		return err
	}
	copy(dst, buffer)
	return nil
}

// decodeHunk materializes a stored hunk (compressed, uncompressed or
// pattern) into dst and, when enabled, verifies it against the map
// check value.
func (f *File) decodeHunk(dst []byte, index uint32, entry *mapEntry, visiting map[uint32]bool) error {
	switch entry.kind {
	case hunkMini:
		// An 8-byte big-endian pattern repeated across the hunk.
		var pattern [8]byte
		binary.BigEndian.PutUint64(pattern[:], entry.offset)
		for i := range dst {
			dst[i] = pattern[i%8]
		}

	case hunkUncompressed:
		if _, err := f.src.ReadAt(dst, int64(entry.offset)); err != nil {
			return readErr(fmt.Sprintf("hunk %d data", index), err)
		}

	case hunkCompressed:
		compressed := make([]byte, entry.length)
		if _, err := f.src.ReadAt(compressed, int64(entry.offset)); err != nil {
			return readErr(fmt.Sprintf("hunk %d data", index), err)
		}
		slot := int(entry.codec)
		decoder := f.codecs[slot]
		if decoder == nil {
			return fmt.Errorf("hunk %d: %w", index, f.codecErrs[slot])
		}
		if err := f.runDecoder(decoder, dst, compressed, index, visiting); err != nil {
			wrap := ErrDecode
			if errors.Is(err, codec.ErrOutputSize) {
				wrap = ErrSizeMismatch
			}
			return fmt.Errorf("%w: hunk %d (%s): %w", wrap, index,
				f.header.Compressors[slot], err)
		}

	default:
		return fmt.Errorf("%w: hunk %d has no resolution", ErrBadMap, index)
	}

	if f.opts.VerifyHunks {
		if err := f.verifyDecoded(dst, index, entry); err != nil {
			return err
		}
	}
	return nil
}

// runDecoder invokes the codec, supplying the previous hunk's decoded
// bytes to delta codecs. Hunk 0 decodes against a zero buffer. The
// visiting set carries across the fetch: a previous hunk that
// self-references forward into this decode fails as a cycle.
func (f *File) runDecoder(decoder codec.Decoder, dst, src []byte, index uint32, visiting map[uint32]bool) error {
	contextDecoder, ok := decoder.(codec.ContextDecoder)
	if !ok {
		return decoder.Decode(dst, src)
	}
	previous := make([]byte, f.header.HunkBytes)
	if index > 0 {
		if err := f.readHunk(previous, index-1, visiting); err != nil {
			return err
		}
	}
	return contextDecoder.DecodeContext(dst, src, previous)
}

// verifyDecoded checks the decoded hunk against the map's check value:
// CRC-16 for v5 containers, CRC-32 for v3/v4. Entries flagged as
// having no check value pass.
func (f *File) verifyDecoded(data []byte, index uint32, entry *mapEntry) error {
	if entry.noCRC {
		return nil
	}
	if f.header.Version >= 5 {
		if actual := crc16(data); actual != entry.sum16 {
			return fmt.Errorf("%w: hunk %d checksum %04x, want %04x",
				ErrIntegrity, index, actual, entry.sum16)
		}
		return nil
	}
	if actual := crc32.ChecksumIEEE(data); actual != entry.sum32 {
		return fmt.Errorf("%w: hunk %d checksum %08x, want %08x",
			ErrIntegrity, index, actual, entry.sum32)
	}
	return nil
}
