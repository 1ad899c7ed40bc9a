// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/discforge/chd/lib/codec"
	"github.com/discforge/chd/lib/hunkcache"
)

// Default values applied when the corresponding Options field is zero.
const (
	// DefaultCacheHunks is the decoded-hunk cache capacity.
	DefaultCacheHunks = 16

	// DefaultMaxParentDepth bounds the parent chain length.
	DefaultMaxParentDepth = 8
)

// ParentLookup resolves a declared parent image by its header SHA-1.
// It returns the parent's byte source and total size (negative when
// unknown), or (nil, 0, nil) when no matching image is available. A
// returned source that implements io.Closer is closed together with
// the file that opened it.
type ParentLookup func(sha SHA1) (src io.ReaderAt, size int64, err error)

// Options configures opening a container. The zero value is a working
// default: a 16-hunk cache, no per-hunk verification, built-in codecs,
// and no way to resolve parents.
type Options struct {
	// CacheHunks is the decoded-hunk cache capacity. Zero selects
	// DefaultCacheHunks; a negative value disables caching.
	CacheHunks int

	// VerifyHunks enables checking each decoded hunk against its map
	// check value on first decode.
	VerifyHunks bool

	// MaxParentDepth bounds the parent chain. Zero selects
	// DefaultMaxParentDepth.
	MaxParentDepth int

	// ParentLookup resolves declared parents at open time. When nil,
	// opening a container that requires a parent fails with
	// ErrParentRequired. See SearchPaths for a file-based resolver.
	ParentLookup ParentLookup

	// Codecs supplies decoder factories. Nil selects the built-in set.
	Codecs *codec.Registry
}

func (o *Options) cacheHunks() int {
	switch {
	case o.CacheHunks == 0:
		return DefaultCacheHunks
	case o.CacheHunks < 0:
		return 0
	}
	return o.CacheHunks
}

func (o *Options) maxParentDepth() int {
	if o.MaxParentDepth == 0 {
		return DefaultMaxParentDepth
	}
	return o.MaxParentDepth
}

func (o *Options) registry() *codec.Registry {
	if o.Codecs != nil {
		return o.Codecs
	}
	return codec.Default()
}

// File is an open container providing random access to the
// decompressed image. Safe for concurrent use.
type File struct {
	src    io.ReaderAt
	size   int64
	header Header

	entries []mapEntry

	// codecs holds one decoder per header compressor slot; a nil slot
	// with its error in codecErrs means the compressor is declared but
	// unavailable, which only matters if a hunk actually uses it.
	codecs    []codec.Decoder
	codecErrs []error

	cache *hunkcache.Cache

	parent       *File
	parentCloser io.Closer

	closer io.Closer
	opts   Options
}

// Open opens the container at path. opts may be nil for defaults.
func Open(path string, opts *Options) (*File, error) {
	source, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	info, err := source.Stat()
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("opening container: %w", err)
	}
	f, err := OpenReader(source, info.Size(), opts)
	if err != nil {
		source.Close()
		return nil, err
	}
	f.closer = source
	return f, nil
}

// OpenReader opens a container from an arbitrary byte source. size is
// the source's total length, or negative when unknown (disabling
// bounds checks against the physical file size). The source must stay
// valid until Close; it is not closed by the returned File.
func OpenReader(src io.ReaderAt, size int64, opts *Options) (*File, error) {
	var options Options
	if opts != nil {
		options = *opts
	}
	return open(src, size, options, 0, make(map[SHA1]bool))
}

func open(src io.ReaderAt, size int64, opts Options, depth int, seen map[SHA1]bool) (*File, error) {
	header, err := readHeader(src, size)
	if err != nil {
		return nil, err
	}
	entries, err := readMap(src, &header, size)
	if err != nil {
		return nil, err
	}

	f := &File{
		src:     src,
		size:    size,
		header:  header,
		entries: entries,
		cache:   hunkcache.New(opts.cacheHunks()),
		opts:    opts,
	}

	registry := opts.registry()
	f.codecs = make([]codec.Decoder, len(header.Compressors))
	f.codecErrs = make([]error, len(header.Compressors))
	for i, tag := range header.Compressors {
		decoder, err := registry.New(tag, header.HunkBytes, header.UnitBytes)
		if err != nil {
			// Declared but unavailable. Fail lazily: the container may
			// never use this slot.
			f.codecErrs[i] = fmt.Errorf("%w: %s: %v", ErrUnsupportedCodec, tag, err)
			continue
		}
		f.codecs[i] = decoder
	}

	if header.HasParent() {
		if err := f.resolveParent(depth, seen); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *File) resolveParent(depth int, seen map[SHA1]bool) error {
	if depth >= f.opts.maxParentDepth() {
		return fmt.Errorf("%w: depth %d", ErrParentChainTooDeep, depth)
	}

	want := f.header.ParentSHA1
	if !want.IsZero() {
		if seen[want] {
			return fmt.Errorf("%w: parent %s already in chain", ErrParentCycle, want)
		}
		if !f.header.SHA1.IsZero() {
			seen[f.header.SHA1] = true
		}
	}

	if f.opts.ParentLookup == nil {
		return fmt.Errorf("%w: parent %s, no lookup configured", ErrParentRequired, want)
	}
	src, size, err := f.opts.ParentLookup(want)
	if err != nil {
		return fmt.Errorf("%w: parent %s: %v", ErrParentRequired, want, err)
	}
	if src == nil {
		return fmt.Errorf("%w: parent %s not found", ErrParentRequired, want)
	}

	closeSrc := func() {
		if closer, ok := src.(io.Closer); ok {
			closer.Close()
		}
	}

	parent, err := open(src, size, f.opts, depth+1, seen)
	if err != nil {
		closeSrc()
		return fmt.Errorf("opening parent %s: %w", want, err)
	}

	// Identity check: the resolved image must be the declared parent.
	mismatch := false
	switch {
	case !want.IsZero():
		mismatch = parent.header.SHA1 != want
	case f.header.ParentMD5 != [16]byte{}:
		mismatch = parent.header.MD5 != f.header.ParentMD5
	}
	if mismatch {
		parent.Close()
		closeSrc()
		return fmt.Errorf("%w: resolved image is not the declared parent", ErrParentRequired)
	}

	if err := validateParentRefs(f.entries, &f.header, &parent.header); err != nil {
		parent.Close()
		closeSrc()
		return err
	}

	f.parent = parent
	if closer, ok := src.(io.Closer); ok {
		f.parentCloser = closer
	}
	return nil
}

// Close releases the file and any parents it opened itself. Sources
// passed to OpenReader are left open.
func (f *File) Close() error {
	var errs []error
	if f.parent != nil {
		errs = append(errs, f.parent.Close())
		f.parent = nil
	}
	if f.parentCloser != nil {
		errs = append(errs, f.parentCloser.Close())
		f.parentCloser = nil
	}
	if f.closer != nil {
		errs = append(errs, f.closer.Close())
		f.closer = nil
	}
	f.cache.Purge()
	return errors.Join(errs...)
}

// Header returns a copy of the parsed container header.
func (f *File) Header() Header {
	return f.header
}

// Version returns the container format version (3, 4 or 5).
func (f *File) Version() uint32 {
	return f.header.Version
}

// LogicalBytes returns the total decompressed image size.
func (f *File) LogicalBytes() uint64 {
	return f.header.LogicalBytes
}

// HunkBytes returns the size of each decompressed hunk.
func (f *File) HunkBytes() uint32 {
	return f.header.HunkBytes
}

// HunkCount returns the number of hunks in the image.
func (f *File) HunkCount() uint32 {
	return f.header.HunkCount
}

// UnitBytes returns the transfer unit size.
func (f *File) UnitBytes() uint32 {
	return f.header.UnitBytes
}

// Parent returns the resolved parent container, or nil.
func (f *File) Parent() *File {
	return f.parent
}
