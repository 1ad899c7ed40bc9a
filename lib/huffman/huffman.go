// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package huffman

import (
	"errors"
	"fmt"
)

// ErrInvalidData indicates a malformed serialized tree: a code length
// above the decoder's maximum, a run extending past the symbol count,
// a non-canonical length distribution, or a bit stream that ended
// early.
var ErrInvalidData = errors.New("huffman: invalid tree data")

// Decoder is a table-driven canonical huffman decoder over a fixed
// symbol alphabet. A Decoder is single-use per imported tree and not
// safe for concurrent use; create one per decode pass.
type Decoder struct {
	numCodes int
	maxBits  int

	// lengths[s] is the code length of symbol s, zero when unused.
	lengths []uint8
	codes   []uint32

	// lookup maps a maxBits-wide window of the bit stream to
	// symbol<<5 | length.
	lookup []uint16
}

// New creates a decoder for numCodes symbols with codes of at most
// maxBits bits. maxBits must be at most 24 so decode windows fit a
// single Peek; symbol values must fit 11 bits to pack into the lookup
// table alongside the 5-bit length.
func New(numCodes, maxBits int) *Decoder {
	if numCodes <= 0 || numCodes > 1<<11 || maxBits <= 0 || maxBits > 24 {
		panic(fmt.Sprintf("huffman: invalid decoder shape %d/%d", numCodes, maxBits))
	}
	return &Decoder{
		numCodes: numCodes,
		maxBits:  maxBits,
		lengths:  make([]uint8, numCodes),
		codes:    make([]uint32, numCodes),
		lookup:   make([]uint16, 1<<maxBits),
	}
}

// Decode consumes one code from r and returns its symbol. Decoding
// from a stream that has run out yields unspecified symbols; callers
// detect this afterwards via r.Overflow.
func (d *Decoder) Decode(r *BitReader) uint32 {
	entry := d.lookup[r.Peek(d.maxBits)]
	r.Remove(int(entry & 0x1f))
	return uint32(entry >> 5)
}

// ImportTreeRLE reads a run-length-encoded list of code lengths and
// builds the decode table. The width of each length field depends on
// maxBits (3, 4 or 5 bits); a length value of 1 is an escape: a
// second 1 encodes a literal length of 1, anything else is a length
// to repeat count+3 times.
func (d *Decoder) ImportTreeRLE(r *BitReader) error {
	fieldWidth := 3
	switch {
	case d.maxBits >= 16:
		fieldWidth = 5
	case d.maxBits >= 8:
		fieldWidth = 4
	}

	for current := 0; current < d.numCodes; {
		length := r.Read(fieldWidth)
		if length != 1 {
			d.lengths[current] = uint8(length)
			current++
			continue
		}

		length = r.Read(fieldWidth)
		if length == 1 {
			d.lengths[current] = 1
			current++
			continue
		}

		repeat := int(r.Read(fieldWidth)) + 3
		if current+repeat > d.numCodes {
			return fmt.Errorf("%w: run of %d lengths exceeds %d symbols", ErrInvalidData, repeat, d.numCodes)
		}
		for ; repeat > 0; repeat-- {
			d.lengths[current] = uint8(length)
			current++
		}
	}

	if r.Overflow() {
		return fmt.Errorf("%w: tree data ends early", ErrInvalidData)
	}
	return d.buildTable()
}

// ImportTreeHuffman reads a huffman-encoded list of code lengths and
// builds the decode table. A 24-symbol prelude tree (3-bit lengths,
// symbol 0 reserved as the run escape) codes the lengths themselves;
// zero-length runs use a 3-bit count with an escape to a wider count
// whose width depends on the symbol alphabet size.
func (d *Decoder) ImportTreeHuffman(r *BitReader) error {
	prelude := New(24, 6)
	prelude.lengths[0] = uint8(r.Read(3))
	start := int(r.Read(3)) + 1
	count := uint32(0)
	for index := 1; index < 24; index++ {
		if index < start || count == 7 {
			prelude.lengths[index] = 0
			continue
		}
		count = r.Read(3)
		if count == 7 {
			prelude.lengths[index] = 0
		} else {
			prelude.lengths[index] = uint8(count)
		}
	}
	if err := prelude.buildTable(); err != nil {
		return err
	}

	fullBits := 0
	for temp := d.numCodes - 9; temp != 0; temp >>= 1 {
		fullBits++
	}

	for current := 0; current < d.numCodes; {
		length := prelude.Decode(r)
		if length != 0 {
			d.lengths[current] = uint8(length)
			current++
			continue
		}

		repeat := int(r.Read(3)) + 3
		if repeat == 10 {
			repeat = int(r.Read(fullBits)) + 10
		}
		if current+repeat > d.numCodes {
			return fmt.Errorf("%w: zero run of %d exceeds %d symbols", ErrInvalidData, repeat, d.numCodes)
		}
		current += repeat
	}

	if r.Overflow() {
		return fmt.Errorf("%w: tree data ends early", ErrInvalidData)
	}
	return d.buildTable()
}

// buildTable assigns canonical codes from the imported lengths and
// fills the lookup table.
func (d *Decoder) buildTable() error {
	var histogram [33]uint32
	for _, length := range d.lengths {
		if int(length) > d.maxBits {
			return fmt.Errorf("%w: code length %d exceeds maximum %d", ErrInvalidData, length, d.maxBits)
		}
		if length > 0 {
			histogram[length]++
		}
	}

	// Work out the first canonical code for each length, longest
	// first. A canonical tree must consume code space exactly, so an
	// odd boundary anywhere above length 1 means the lengths do not
	// describe a valid tree.
	currentStart := uint32(0)
	for length := 32; length > 0; length-- {
		nextStart := (currentStart + histogram[length]) >> 1
		if length != 1 && nextStart*2 != currentStart+histogram[length] {
			return fmt.Errorf("%w: non-canonical length distribution", ErrInvalidData)
		}
		histogram[length] = currentStart
		currentStart = nextStart
	}

	for symbol, length := range d.lengths {
		if length == 0 {
			continue
		}
		d.codes[symbol] = histogram[length]
		histogram[length]++
	}

	for index := range d.lookup {
		d.lookup[index] = 0
	}
	for symbol, length := range d.lengths {
		if length == 0 {
			continue
		}
		entry := uint16(symbol)<<5 | uint16(length)
		shift := d.maxBits - int(length)
		base := d.codes[symbol] << shift
		for offset := uint32(0); offset < 1<<shift; offset++ {
			d.lookup[base+offset] = entry
		}
	}
	return nil
}
