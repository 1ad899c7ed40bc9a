// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
	"sync"
)

// Tag is a compressor identifier: a four-character code stored
// big-endian in the container header's compressor list. These values
// are format constants — they govern on-disk compatibility.
type Tag uint32

// Compressor tags with built-in codecs.
const (
	// TagZlib ("zlib") is a raw deflate stream (no zlib wrapper,
	// despite the name — the container format predates the
	// distinction mattering).
	TagZlib Tag = 0x7a6c6962

	// TagLZMA ("lzma") is a raw LZMA1 stream with no header; the
	// properties are fixed by the format (lc=3, lp=0, pb=2).
	TagLZMA Tag = 0x6c7a6d61

	// TagHuffman ("huff") is the container's own canonical huffman
	// coding of the hunk bytes, with a huffman-encoded tree prelude.
	TagHuffman Tag = 0x68756666

	// TagLZ4 ("lz4 ") is a single LZ4 block.
	TagLZ4 Tag = 0x6c7a3420

	// TagZstd ("zstd") is a zstandard frame.
	TagZstd Tag = 0x7a737464
)

// Media compressor tags recognized but not built in. Embedders that
// need them register implementations via [Registry.Register].
const (
	TagFLAC   Tag = 0x666c6163 // "flac"
	TagCDZlib Tag = 0x63647a6c // "cdzl"
	TagCDLZMA Tag = 0x63646c7a // "cdlz"
	TagCDFLAC Tag = 0x6364666c // "cdfl"
	TagCDZstd Tag = 0x63647a73 // "cdzs"
	TagAVHuff Tag = 0x61766875 // "avhu"
)

// String renders the tag as its four-character code when printable,
// otherwise as hex.
func (t Tag) String() string {
	chars := [4]byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	for _, c := range chars {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(t))
		}
	}
	return string(chars[:])
}

// Decoder decompresses one hunk. Decode fills dst exactly: len(dst)
// is the required decompressed size, and producing any other amount
// is an error. Implementations must be safe for concurrent use or
// serialize internally; the built-in codecs keep no per-call state.
type Decoder interface {
	Decode(dst, src []byte) error
}

// ContextDecoder is implemented by delta codecs that decode relative
// to the previously decoded hunk. prev has the same length as dst and
// holds the preceding hunk's decoded bytes (all zeroes when decoding
// hunk 0).
type ContextDecoder interface {
	Decoder
	DecodeContext(dst, src, prev []byte) error
}

// Factory builds a decoder instance for one container. hunkBytes and
// unitBytes are the container's hunk and unit sizes; codecs that size
// internal windows (lzma) or work per media unit (CD codecs) need
// them.
type Factory func(hunkBytes, unitBytes uint32) (Decoder, error)

// Sentinel errors returned by codecs and the registry.
var (
	// ErrUnknownTag indicates the registry has no factory for a
	// compressor tag.
	ErrUnknownTag = errors.New("codec: unknown compressor tag")

	// ErrOutputSize indicates a codec produced a decompressed size
	// different from the requested one.
	ErrOutputSize = errors.New("codec: decompressed size mismatch")
)

// Registry maps compressor tags to decoder factories. The zero value
// is not usable; call [NewRegistry] or [Default].
type Registry struct {
	mu        sync.RWMutex
	factories map[Tag]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Tag]Factory)}
}

// Default returns a new registry with the built-in codecs registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(TagZlib, newZlibDecoder)
	r.Register(TagLZMA, newLZMADecoder)
	r.Register(TagHuffman, newHuffmanDecoder)
	r.Register(TagLZ4, newLZ4Decoder)
	r.Register(TagZstd, newZstdDecoder)
	return r
}

// Register installs (or replaces) the factory for a tag.
func (r *Registry) Register(tag Tag, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[tag] = factory
}

// New builds a decoder for tag. Returns [ErrUnknownTag] if no factory
// is registered.
func (r *Registry) New(tag Tag, hunkBytes, unitBytes uint32) (Decoder, error) {
	r.mu.RLock()
	factory, ok := r.factories[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return factory(hunkBytes, unitBytes)
}
