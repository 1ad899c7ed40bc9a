// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chdtest

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
)

// compress produces the stored form of data for one compressor tag.
// hunkBytes sizes the LZMA dictionary the same way the decode side
// does.
func compress(tag string, data []byte, hunkBytes uint32) ([]byte, error) {
	switch tag {
	case "zlib":
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case "lzma":
		cfg := lzma.WriterConfig{
			DictCap:    lzmaDictCap(hunkBytes),
			Properties: &lzma.Properties{LC: 3, LP: 0, PB: 2},
			Size:       int64(len(data)),
		}
		var buf bytes.Buffer
		w, err := cfg.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		// Strip the 13-byte classic header: hunks store the bare
		// stream, the properties being fixed by the format.
		return buf.Bytes()[13:], nil

	case "lz4 ":
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("lz4: data incompressible")
		}
		return dst[:n], nil

	case "zstd":
		zstdOnce.Do(func() {
			zstdEncoder, _ = zstd.NewWriter(nil)
		})
		return zstdEncoder.EncodeAll(data, nil), nil

	case "huff":
		return huffFlat(data), nil
	}
	return nil, fmt.Errorf("no encoder for compressor %q", tag)
}

// lzmaDictCap mirrors the decode side's dictionary sizing: the
// smallest power of two holding a hunk, at least 4 KiB.
func lzmaDictCap(hunkBytes uint32) int {
	capacity := 1 << 12
	for capacity < int(hunkBytes) {
		capacity <<= 1
	}
	return capacity
}

// huffFlat encodes data as a huffman hunk whose tree assigns every
// byte value a code length of 8, making each code the byte itself. The
// tree prelude declares a one-symbol length tree (symbol 8, one bit)
// and then emits 256 single-bit codes for the byte lengths.
func huffFlat(data []byte) []byte {
	w := &bitWriter{}
	w.write(0, 3) // escape symbol unused
	w.write(7, 3) // lengths start at symbol 8
	w.write(1, 3) // symbol 8: one-bit code
	w.write(7, 3) // remaining symbols absent
	for i := 0; i < 256; i++ {
		w.write(0, 1) // each decode of the one-symbol tree yields 8
	}
	for _, b := range data {
		w.write(uint32(b), 8)
	}
	return w.flush()
}
