// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package chd reads CHD ("compressed hunks of data") disc and hard
// disk images: read-only, random-access decompression of format
// versions 3 through 5.
//
// An image's payload is divided into fixed-size hunks, each stored
// compressed with one of up to four codecs, stored raw, filled from an
// 8-byte pattern, or resolved by reference to another hunk in the same
// image or to the same logical range of a parent image. [Open] parses
// the header and hunk map, resolves the parent chain, and returns a
// [File] whose [File.ReadAt] serves arbitrary byte ranges of the
// decompressed image, decoding only the hunks each request touches and
// keeping recently decoded hunks in a bounded cache.
//
// Delta images reference a parent by SHA-1; [SearchPaths] builds a
// resolver that locates parents on disk, and [Options.ParentLookup]
// accepts custom resolvers. Integrity checking is available per hunk
// on decode ([Options.VerifyHunks]), per hunk on demand
// ([File.VerifyHunk]), and for the whole image against the header's
// recorded digest ([File.Verify]).
package chd
