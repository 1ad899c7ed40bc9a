// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chdtest

// bitWriter packs values most-significant-bit first, mirroring the
// reader side's bit order.
type bitWriter struct {
	out    []byte
	buffer uint64
	bits   int
}

// write appends the low count bits of value.
func (w *bitWriter) write(value uint32, count int) {
	w.buffer = w.buffer<<count | uint64(value)&(1<<count-1)
	w.bits += count
	for w.bits >= 8 {
		w.bits -= 8
		w.out = append(w.out, byte(w.buffer>>w.bits))
	}
}

// writeWide appends up to 48 bits, split to respect the reader's
// 24-bit single-read limit.
func (w *bitWriter) writeWide(value uint64, count int) {
	if count <= 24 {
		w.write(uint32(value), count)
		return
	}
	w.write(uint32(value>>24), count-24)
	w.write(uint32(value&0xffffff), 24)
}

// flush pads the final partial byte with zeros and returns the stream.
func (w *bitWriter) flush() []byte {
	if w.bits > 0 {
		w.out = append(w.out, byte(w.buffer<<(8-w.bits)))
		w.buffer = 0
		w.bits = 0
	}
	return w.out
}

// bitsFor returns the field width needed to represent value, at
// least 1.
func bitsFor(value uint64) int {
	width := 1
	for value >= 1<<width {
		width++
	}
	return width
}
