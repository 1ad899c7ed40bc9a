// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the hunk decompression units for CHD
// containers and the registry that maps a container's declared
// compressor tags to them.
//
// Each codec decodes one compressed hunk into an exact-size output
// buffer. Built-in codecs cover the general-purpose compressors:
// "zlib" (raw deflate), "lzma", "huff", "lz4 " and "zstd". Media
// codecs (CD frame and audio variants such as "cdzl", "cdlz", "flac"
// or "avhu") are not built in; embedders register them on a
// [Registry] and the dispatch machinery picks them up without
// modification.
//
// Delta codecs that predict against the previously decoded hunk
// implement [ContextDecoder]; the caller supplies the preceding
// hunk's buffer (all zeroes for hunk 0).
package codec
