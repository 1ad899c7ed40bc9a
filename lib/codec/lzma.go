// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// lzmaDecoder decodes the "lzma" codec: a raw LZMA1 stream with no
// header. The format fixes the properties at lc=3, lp=0, pb=2 and
// never stores the uncompressed size, so a 13-byte classic header is
// synthesized in front of each stream (unknown-size marker; the read
// stops after exactly one hunk, so the absence of an end-of-stream
// marker in container data is harmless).
type lzmaDecoder struct {
	header [13]byte
}

// lzmaProperties is (pb*5+lp)*9+lc for lc=3, lp=0, pb=2.
const lzmaProperties = 0x5d

func newLZMADecoder(hunkBytes, unitBytes uint32) (Decoder, error) {
	// The dictionary only needs to span one hunk; the reader
	// requires at least 4 KiB.
	dictCap := uint32(1 << 12)
	for dictCap < hunkBytes {
		dictCap <<= 1
	}

	d := &lzmaDecoder{}
	d.header[0] = lzmaProperties
	binary.LittleEndian.PutUint32(d.header[1:5], dictCap)
	for i := 5; i < 13; i++ {
		d.header[i] = 0xff
	}
	return d, nil
}

func (d *lzmaDecoder) Decode(dst, src []byte) error {
	reader, err := lzma.NewReader(io.MultiReader(
		bytes.NewReader(d.header[:]),
		bytes.NewReader(src),
	))
	if err != nil {
		return fmt.Errorf("initializing lzma stream: %w", err)
	}

	if _, err := io.ReadFull(reader, dst); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: lzma stream ended early", ErrOutputSize)
		}
		return fmt.Errorf("decoding lzma hunk: %w", err)
	}
	return nil
}
