// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package huffman implements the canonical huffman decoder used by the
// CHD container format for its compressed hunk map and for the "huff"
// hunk codec.
//
// The format serializes huffman trees as a list of per-symbol code
// lengths, from which canonical codes are assigned deterministically
// (shorter codes first, ties by symbol value). Two tree serializations
// exist and both are supported:
//
//   - RLE ([Decoder.ImportTreeRLE]): fixed-width code lengths with a
//     run-length escape, used for small trees such as the 16-symbol
//     hunk-map tree.
//   - Huffman ([Decoder.ImportTreeHuffman]): the code lengths are
//     themselves huffman-coded by a small 24-symbol prelude tree, used
//     for the 256-symbol byte tree of the "huff" codec.
//
// All bit streams are most-significant-bit first.
package huffman
