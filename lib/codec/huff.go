// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/discforge/chd/lib/huffman"
)

// huffDecoder decodes the "huff" codec: the container format's own
// canonical huffman coding. Each compressed hunk carries a
// huffman-encoded 256-symbol tree followed by one code per output
// byte.
type huffDecoder struct{}

func newHuffmanDecoder(hunkBytes, unitBytes uint32) (Decoder, error) {
	return huffDecoder{}, nil
}

func (huffDecoder) Decode(dst, src []byte) error {
	bits := huffman.NewBitReader(src)
	decoder := huffman.New(256, 16)
	if err := decoder.ImportTreeHuffman(bits); err != nil {
		return fmt.Errorf("huff tree: %w", err)
	}
	for i := range dst {
		dst[i] = byte(decoder.Decode(bits))
	}
	if bits.Overflow() {
		return fmt.Errorf("%w: huff stream ended early", ErrOutputSize)
	}
	return nil
}
