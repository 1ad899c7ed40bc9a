// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors. Errors returned by this package wrap one of these;
// match with errors.Is.
var (
	// ErrBadHeader indicates a malformed container header: wrong
	// magic, inconsistent sizes, or an invalid compressor list.
	ErrBadHeader = errors.New("chd: invalid header")

	// ErrUnsupportedVersion indicates a format version outside 3-5.
	ErrUnsupportedVersion = errors.New("chd: unsupported format version")

	// ErrTruncated indicates the byte source ended before declared
	// structures (header, map, metadata, hunk data).
	ErrTruncated = errors.New("chd: truncated file")

	// ErrBadMap indicates a hunk map entry that is unparseable or out
	// of bounds: unknown resolution kind, codec index beyond the
	// compressor list, self reference beyond the hunk count, parent
	// reference beyond the parent's logical size, or a map checksum
	// mismatch.
	ErrBadMap = errors.New("chd: corrupt hunk map")

	// ErrHunkCycle indicates self-referencing hunks that form a cycle
	// and can never resolve to data.
	ErrHunkCycle = errors.New("chd: hunk reference cycle")

	// ErrParentCycle indicates a container that transitively declares
	// itself as its own parent.
	ErrParentCycle = errors.New("chd: parent chain cycle")

	// ErrParentChainTooDeep indicates the parent chain exceeds
	// Options.MaxParentDepth.
	ErrParentChainTooDeep = errors.New("chd: parent chain too deep")

	// ErrParentRequired indicates a container that declares a parent
	// image which could not be resolved at open time.
	ErrParentRequired = errors.New("chd: parent image required")

	// ErrSizeMismatch indicates a hunk that did not resolve to
	// exactly the container's hunk size.
	ErrSizeMismatch = errors.New("chd: hunk size mismatch")

	// ErrIntegrity indicates a check-value or digest mismatch.
	ErrIntegrity = errors.New("chd: integrity check failed")

	// ErrOutOfRange indicates a read beyond the logical size or a
	// hunk index beyond the hunk count.
	ErrOutOfRange = errors.New("chd: out of range")

	// ErrUnsupportedCodec indicates a hunk compressed with a declared
	// compressor that has no registered codec.
	ErrUnsupportedCodec = errors.New("chd: unsupported codec")

	// ErrDecode indicates a codec failed on a hunk's compressed data.
	ErrDecode = errors.New("chd: hunk decode failed")

	// ErrBadMetadata indicates a malformed metadata chain or entry.
	ErrBadMetadata = errors.New("chd: invalid metadata")
)

// readErr classifies an error from a positioned read against a
// declared structure: premature EOF means the file is shorter than
// its header claims, anything else is a source I/O failure.
func readErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, what)
	}
	return fmt.Errorf("reading %s: %w", what, err)
}
