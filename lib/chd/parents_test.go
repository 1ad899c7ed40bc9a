// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/discforge/chd/lib/chdtest"
)

// memoryLookup resolves parents from built images by header SHA-1.
func memoryLookup(images ...*chdtest.Built) ParentLookup {
	return func(sha SHA1) (io.ReaderAt, int64, error) {
		for _, img := range images {
			if img.SHA1 == [20]byte(sha) {
				return bytes.NewReader(img.Bytes), int64(len(img.Bytes)), nil
			}
		}
		return nil, 0, nil
	}
}

// deltaOver builds a v5 delta image referencing hunk 1 of parent.
func deltaOver(t *testing.T, parent *chdtest.Built) *chdtest.Built {
	t.Helper()
	own := testLogical(1024)
	return chdtest.Build(t, chdtest.Image{
		Version:       5,
		HunkBytes:     1024,
		Compressors:   []string{"zlib"},
		ParentSHA1:    parent.SHA1,
		ParentLogical: parent.Logical,
		Hunks: []chdtest.Hunk{
			{Kind: chdtest.Stored, Data: own, Codec: 0},
			{Kind: chdtest.ParentRef, Target: 1},
			{Kind: chdtest.ParentRef, Target: 2},
		},
	})
}

func TestParentResolution(t *testing.T) {
	parent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(4*1024), "zlib"))
	child := deltaOver(t, parent)

	f := openBuilt(t, child, &Options{ParentLookup: memoryLookup(parent)})
	if f.Parent() == nil {
		t.Fatal("no resolved parent")
	}
	got := readAll(t, f)
	if !bytes.Equal(got, child.Logical) {
		t.Error("delta image content mismatch")
	}
	if !bytes.Equal(got[1024:2048], parent.Logical[1024:2048]) {
		t.Error("parent-referenced hunk differs from parent content")
	}
}

func TestParentResolutionUncompressedMap(t *testing.T) {
	parent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(3*1024), "zlib"))
	child := chdtest.Build(t, chdtest.Image{
		Version:       5,
		HunkBytes:     1024,
		Uncompressed:  true,
		ParentSHA1:    parent.SHA1,
		ParentLogical: parent.Logical,
		Hunks: []chdtest.Hunk{
			{Kind: chdtest.Stored, Data: testLogical(1024), Codec: -1},
			{Kind: chdtest.ParentRef},
			{Kind: chdtest.ParentRef},
		},
	})
	f := openBuilt(t, child, &Options{ParentLookup: memoryLookup(parent)})
	got := readAll(t, f)
	if !bytes.Equal(got[1024:], parent.Logical[1024:]) {
		t.Error("unwritten hunks do not read through to the parent")
	}
}

func TestParentRequired(t *testing.T) {
	parent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(4*1024), "zlib"))
	child := deltaOver(t, parent)

	_, err := OpenReader(bytes.NewReader(child.Bytes), int64(len(child.Bytes)), nil)
	if !errors.Is(err, ErrParentRequired) {
		t.Fatalf("no lookup: got %v, want ErrParentRequired", err)
	}

	_, err = OpenReader(bytes.NewReader(child.Bytes), int64(len(child.Bytes)),
		&Options{ParentLookup: memoryLookup()})
	if !errors.Is(err, ErrParentRequired) {
		t.Fatalf("empty lookup: got %v, want ErrParentRequired", err)
	}
}

func TestWrongParentRejected(t *testing.T) {
	parent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(4*1024), "zlib"))
	child := deltaOver(t, parent)
	imposter := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(8*1024), "zlib"))

	// A lookup that ignores the requested identity.
	lookup := func(sha SHA1) (io.ReaderAt, int64, error) {
		return bytes.NewReader(imposter.Bytes), int64(len(imposter.Bytes)), nil
	}
	_, err := OpenReader(bytes.NewReader(child.Bytes), int64(len(child.Bytes)),
		&Options{ParentLookup: lookup})
	if !errors.Is(err, ErrParentRequired) {
		t.Fatalf("got %v, want ErrParentRequired", err)
	}
}

func TestParentReferenceBeyondParentRejected(t *testing.T) {
	parent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(2*1024), "zlib"))
	child := chdtest.Build(t, chdtest.Image{
		Version:     5,
		HunkBytes:   1024,
		Compressors: []string{"zlib"},
		ParentSHA1:  parent.SHA1,
		Hunks: []chdtest.Hunk{
			{Kind: chdtest.Stored, Data: testLogical(1024), Codec: 0},
			{Kind: chdtest.ParentRef, Target: 9},
		},
	})
	_, err := OpenReader(bytes.NewReader(child.Bytes), int64(len(child.Bytes)),
		&Options{ParentLookup: memoryLookup(parent)})
	if !errors.Is(err, ErrBadMap) {
		t.Fatalf("got %v, want ErrBadMap", err)
	}
}

func TestParentChainThroughGrandparent(t *testing.T) {
	grandparent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(4*1024), "zlib"))
	parent := deltaOver(t, grandparent)
	child := deltaOver(t, parent)

	f := openBuilt(t, child, &Options{ParentLookup: memoryLookup(parent, grandparent)})
	if f.Parent() == nil || f.Parent().Parent() == nil {
		t.Fatal("chain not fully resolved")
	}
	got := readAll(t, f)
	if !bytes.Equal(got, child.Logical) {
		t.Error("chained delta content mismatch")
	}
}

func TestParentChainDepthLimit(t *testing.T) {
	grandparent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(4*1024), "zlib"))
	parent := deltaOver(t, grandparent)
	child := deltaOver(t, parent)

	_, err := OpenReader(bytes.NewReader(child.Bytes), int64(len(child.Bytes)), &Options{
		ParentLookup:   memoryLookup(parent, grandparent),
		MaxParentDepth: 1,
	})
	if !errors.Is(err, ErrParentChainTooDeep) {
		t.Fatalf("got %v, want ErrParentChainTooDeep", err)
	}
}

func TestParentCycleRejected(t *testing.T) {
	// An image that declares itself as its own parent: its header
	// SHA-1 equals its declared parent SHA-1.
	logical := testLogical(2 * 1024)
	probe := chdtest.Build(t, chdtest.FromLogical(5, 1024, logical, "zlib"))

	img := chdtest.Image{
		Version:       5,
		HunkBytes:     1024,
		Compressors:   []string{"zlib"},
		ParentSHA1:    probe.SHA1,
		ParentLogical: logical,
		Hunks: []chdtest.Hunk{
			{Kind: chdtest.Stored, Data: logical[:1024], Codec: 0},
			{Kind: chdtest.ParentRef, Target: 1},
		},
	}
	// The built image's own SHA-1 is the digest of its logical
	// content, which is the same as probe's.
	ouroboros := chdtest.Build(t, img)
	if ouroboros.SHA1 != probe.SHA1 {
		t.Fatal("self-parent construction no longer lines up")
	}

	_, err := OpenReader(bytes.NewReader(ouroboros.Bytes), int64(len(ouroboros.Bytes)),
		&Options{ParentLookup: memoryLookup(ouroboros)})
	if !errors.Is(err, ErrParentCycle) {
		t.Fatalf("got %v, want ErrParentCycle", err)
	}
}

func TestSearchPaths(t *testing.T) {
	dir := t.TempDir()
	parent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(4*1024), "zlib"))
	decoy := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(2*1024), "zlib"))
	child := deltaOver(t, parent)

	for name, img := range map[string]*chdtest.Built{
		"decoy.chd":  decoy,
		"parent.chd": parent,
		"child.chd":  child,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), img.Bytes, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-image noise must be skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "notes.chd"), []byte("not a container"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(filepath.Join(dir, "child.chd"), &Options{
		ParentLookup: SearchPaths(dir),
	})
	if err != nil {
		t.Fatalf("Open with SearchPaths: %v", err)
	}
	defer f.Close()

	got := readAll(t, f)
	if !bytes.Equal(got, child.Logical) {
		t.Error("content mismatch through on-disk parent")
	}
}

func TestSearchPathsDirectFile(t *testing.T) {
	dir := t.TempDir()
	parent := chdtest.Build(t, chdtest.FromLogical(5, 1024, testLogical(4*1024), "zlib"))
	child := deltaOver(t, parent)

	parentPath := filepath.Join(dir, "base-image")
	childPath := filepath.Join(dir, "delta.chd")
	if err := os.WriteFile(parentPath, parent.Bytes, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(childPath, child.Bytes, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(childPath, &Options{ParentLookup: SearchPaths(parentPath)})
	if err != nil {
		t.Fatalf("Open with direct parent path: %v", err)
	}
	defer f.Close()
	if got := readAll(t, f); !bytes.Equal(got, child.Logical) {
		t.Error("content mismatch")
	}
}
