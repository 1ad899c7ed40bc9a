// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"errors"
	"fmt"
	"hash"
)

// VerifyHunk decodes hunk index fresh — never from the cache — and
// checks it against the map's check value. Hunks without a check value
// (references, uncompressed v5 maps) only confirm they decode.
func (f *File) VerifyHunk(index uint32) error {
	if index >= f.header.HunkCount {
		return fmt.Errorf("%w: hunk %d of %d", ErrOutOfRange, index, f.header.HunkCount)
	}
	buffer := make([]byte, f.header.HunkBytes)
	if err := f.readHunkUncached(buffer, index, nil); err != nil {
		return err
	}
	return f.verifyDecoded(buffer, index, &f.entries[index])
}

// Verify decodes the whole image without touching the cache, checks
// every hunk's check value, and folds the logical bytes into the
// header's recorded raw digest (SHA-1 for v4/v5, MD5 for v3). All
// check-value mismatches and the digest result are reported together.
func (f *File) Verify() error {
	var digest hash.Hash
	var want []byte
	if f.header.Version == 3 {
		digest = md5.New()
		want = f.header.MD5[:]
	} else {
		digest = sha1.New()
		want = f.header.RawSHA1[:]
	}
	if bytes.Equal(want, make([]byte, len(want))) {
		return fmt.Errorf("%w: container records no raw digest", ErrBadHeader)
	}

	var errs []error
	hunkBytes := uint64(f.header.HunkBytes)
	buffer := make([]byte, hunkBytes)
	remaining := f.header.LogicalBytes
	for index := uint32(0); index < f.header.HunkCount; index++ {
		if err := f.readHunkUncached(buffer, index, nil); err != nil {
			// Without the hunk's bytes the digest is unrecoverable.
			errs = append(errs, err)
			return errors.Join(errs...)
		}
		if err := f.verifyDecoded(buffer, index, &f.entries[index]); err != nil {
			errs = append(errs, err)
		}
		logical := min(remaining, hunkBytes)
		digest.Write(buffer[:logical])
		remaining -= logical
	}

	if actual := digest.Sum(nil); !bytes.Equal(actual, want) {
		errs = append(errs, fmt.Errorf("%w: image digest %x, want %x",
			ErrIntegrity, actual, want))
	}
	return errors.Join(errs...)
}

// readHunkUncached mirrors readHunk but decodes stored hunks directly
// instead of going through the cache, so verification always sees
// freshly decoded bytes.
func (f *File) readHunkUncached(dst []byte, index uint32, visiting map[uint32]bool) error {
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
		return f.readHunkUncached(dst, uint32(entry.offset), visiting)
	case hunkParent:
		_, err := f.parent.ReadAt(dst, int64(entry.offset))
		if err != nil {
			return fmt.Errorf("hunk %d from parent: %w", index, err)
		}
		return nil
	}
	return f.decodeHunk(dst, index, entry, visiting)
}
