// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import "fmt"

// ReadAt reads len(p) bytes of the decompressed image starting at
// logical offset off. It decodes exactly the hunks the range touches.
//
// Reads are all-or-nothing: a range extending past the logical size
// fails with ErrOutOfRange before any hunk is decoded, rather than
// returning a short read. p is untouched on error.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if uint64(off)+uint64(len(p)) > f.header.LogicalBytes {
		return 0, fmt.Errorf("%w: read %d+%d beyond logical size %d",
			ErrOutOfRange, off, len(p), f.header.LogicalBytes)
	}

	hunkBytes := int64(f.header.HunkBytes)
	index := uint32(off / hunkBytes)
	within := int(off % hunkBytes)

	var scratch []byte
	read := 0
	for read < len(p) {
		want := min(len(p)-read, int(hunkBytes)-within)
		if within == 0 && want == int(hunkBytes) {
			// Full hunk straight into the caller's buffer.
			if err := f.readHunk(p[read:read+want], index, nil); err != nil {
				return 0, err
			}
		} else {
			if scratch == nil {
				scratch = make([]byte, hunkBytes)
			}
			if err := f.readHunk(scratch, index, nil); err != nil {
				return 0, err
			}
			copy(p[read:read+want], scratch[within:within+want])
		}
		read += want
		index++
		within = 0
	}
	return read, nil
}
