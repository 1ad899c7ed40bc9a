// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// lz4Decoder decodes the "lz4 " codec: a single block-mode LZ4
// compressed block.
type lz4Decoder struct{}

func newLZ4Decoder(hunkBytes, unitBytes uint32) (Decoder, error) {
	return lz4Decoder{}, nil
}

func (lz4Decoder) Decode(dst, src []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != len(dst) {
		return fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrOutputSize, n, len(dst))
	}
	return nil
}
