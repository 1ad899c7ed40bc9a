// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdReader is shared across all containers and calls; DecodeAll on
// a zstd.Decoder is safe for concurrent use.
var zstdReader *zstd.Decoder

func init() {
	var err error
	zstdReader, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// zstdDecoder decodes the "zstd" codec: one zstandard frame.
type zstdDecoder struct{}

func newZstdDecoder(hunkBytes, unitBytes uint32) (Decoder, error) {
	return zstdDecoder{}, nil
}

func (zstdDecoder) Decode(dst, src []byte) error {
	out, err := zstdReader.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrOutputSize, len(out), len(dst))
	}
	// DecodeAll appends to dst[:0] and only reallocates if the frame
	// is larger than expected, but don't rely on it.
	if &out[0] != &dst[0] {
		copy(dst, out)
	}
	return nil
}
