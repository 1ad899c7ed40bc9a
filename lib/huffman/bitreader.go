// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package huffman

// BitReader reads most-significant-bit-first values from a byte
// slice. Reads past the end of the data yield zero bits and set the
// overflow flag; callers check [BitReader.Overflow] once after a
// decode pass instead of checking every read.
type BitReader struct {
	data   []byte
	buffer uint32
	bits   int
	offset int
}

// NewBitReader creates a reader positioned at the first bit of data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// Peek returns the next count bits without consuming them. count must
// be between 1 and 24.
func (r *BitReader) Peek(count int) uint32 {
	// Keep at least 24 valid bits buffered so any permitted peek is
	// satisfied from the buffer.
	for r.bits <= 24 {
		if r.offset < len(r.data) {
			r.buffer |= uint32(r.data[r.offset]) << (24 - r.bits)
		}
		r.offset++
		r.bits += 8
	}
	return r.buffer >> (32 - count)
}

// Remove consumes count bits previously returned by [BitReader.Peek].
func (r *BitReader) Remove(count int) {
	r.buffer <<= count
	r.bits -= count
}

// Read consumes and returns the next count bits. count must be
// between 1 and 24.
func (r *BitReader) Read(count int) uint32 {
	value := r.Peek(count)
	r.Remove(count)
	return value
}

// Overflow reports whether any consumed bit lay beyond the end of the
// underlying data.
func (r *BitReader) Overflow() bool {
	return r.offset-r.bits/8 > len(r.data)
}
