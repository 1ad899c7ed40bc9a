// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// zlibDecoder decodes the "zlib" codec: a raw deflate stream.
type zlibDecoder struct{}

func newZlibDecoder(hunkBytes, unitBytes uint32) (Decoder, error) {
	return zlibDecoder{}, nil
}

func (zlibDecoder) Decode(dst, src []byte) error {
	reader := flate.NewReader(bytes.NewReader(src))
	defer reader.Close()

	if _, err := io.ReadFull(reader, dst); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: deflate stream ended early", ErrOutputSize)
		}
		return fmt.Errorf("inflating hunk: %w", err)
	}
	return nil
}
