// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package chdtest builds small disc image containers in memory for
// tests: v3, v4 and v5 layouts with real compressed hunks, reference
// hunks, metadata chains and correct digests.
//
// The builder is deliberately independent of the reader packages so
// reader tests exercise parsing against bytes produced from the format
// description alone. Compressed v5 maps and huffman-coded hunks are
// written with flat code-length distributions, which keeps the encoder
// trivial while producing streams any conforming decoder accepts.
package chdtest
