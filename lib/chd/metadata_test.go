// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/discforge/chd/lib/chdtest"
)

func TestMetadataChain(t *testing.T) {
	img := chdtest.FromLogical(5, 512, testLogical(1024), "zlib")
	img.Metadata = []chdtest.Meta{
		{Tag: "GDDD", Flags: MetaFlagChecksum, Data: []byte("CYLS:16,HEADS:4,SECS:32,BPS:512\x00")},
		{Tag: "IDNT", Data: bytes.Repeat([]byte{0xaa}, 64)},
	}
	built := chdtest.Build(t, img)
	f := openBuilt(t, built, nil)

	entries, err := f.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Tag != MetaHardDisk || entries[0].Flags != MetaFlagChecksum {
		t.Errorf("entry 0: tag %s flags %#x", entries[0].Tag, entries[0].Flags)
	}
	if !bytes.HasPrefix(entries[0].Data, []byte("CYLS:16")) {
		t.Errorf("entry 0 data: %q", entries[0].Data)
	}
	if entries[1].Tag != MetaHardDiskIdent || len(entries[1].Data) != 64 {
		t.Errorf("entry 1: tag %s, %d bytes", entries[1].Tag, len(entries[1].Data))
	}
}

func TestMetadataEmpty(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(1024), "zlib"))
	f := openBuilt(t, built, nil)
	entries, err := f.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries from image without metadata", len(entries))
	}
}

func TestCDTracksExtended(t *testing.T) {
	img := chdtest.FromLogical(5, 2448, testLogical(2*2448), "zlib")
	img.Metadata = []chdtest.Meta{
		// Out of order, and with an old-style entry that must lose to
		// the extended ones.
		{Tag: "CHT2", Data: []byte("TRACK:2 TYPE:AUDIO SUBTYPE:NONE FRAMES:1500 PREGAP:150 PGTYPE:VAUDIO PGSUB:NONE POSTGAP:0\x00")},
		{Tag: "CHTR", Data: []byte("TRACK:9 TYPE:MODE2 SUBTYPE:NONE FRAMES:42\x00")},
		{Tag: "CHT2", Data: []byte("TRACK:1 TYPE:MODE1_RAW SUBTYPE:RW FRAMES:1000 PREGAP:0 PGTYPE:MODE1 PGSUB:NONE POSTGAP:2\x00")},
	}
	built := chdtest.Build(t, img)
	f := openBuilt(t, built, nil)

	tracks, err := f.CDTracks()
	if err != nil {
		t.Fatalf("CDTracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	first := tracks[0]
	if first.Number != 1 || first.Type != "MODE1_RAW" || first.SubType != "RW" || first.Frames != 1000 {
		t.Errorf("track 1: %+v", first)
	}
	if first.Postgap != 2 || first.PregapType != "MODE1" {
		t.Errorf("track 1 gaps: %+v", first)
	}
	second := tracks[1]
	if second.Number != 2 || second.Pregap != 150 || second.PregapType != "VAUDIO" {
		t.Errorf("track 2: %+v", second)
	}
}

func TestCDTracksOldStyle(t *testing.T) {
	img := chdtest.FromLogical(5, 2448, testLogical(2448), "zlib")
	img.Metadata = []chdtest.Meta{
		{Tag: "CHTR", Data: []byte("TRACK:1 TYPE:MODE1 SUBTYPE:NONE FRAMES:500\x00")},
	}
	built := chdtest.Build(t, img)
	f := openBuilt(t, built, nil)

	tracks, err := f.CDTracks()
	if err != nil {
		t.Fatalf("CDTracks: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	if tracks[0].Frames != 500 || tracks[0].Pregap != 0 {
		t.Errorf("track: %+v", tracks[0])
	}
}

func TestCDTracksMalformed(t *testing.T) {
	img := chdtest.FromLogical(5, 2448, testLogical(2448), "zlib")
	img.Metadata = []chdtest.Meta{
		{Tag: "CHTR", Data: []byte("TRACK:nope\x00")},
	}
	built := chdtest.Build(t, img)
	f := openBuilt(t, built, nil)

	if _, err := f.CDTracks(); !errors.Is(err, ErrBadMetadata) {
		t.Fatalf("got %v, want ErrBadMetadata", err)
	}
}

func TestCDTracksNone(t *testing.T) {
	built := chdtest.Build(t, chdtest.FromLogical(5, 512, testLogical(1024), "zlib"))
	f := openBuilt(t, built, nil)
	tracks, err := f.CDTracks()
	if err != nil || len(tracks) != 0 {
		t.Fatalf("got %v, %v; want empty, nil", tracks, err)
	}
}

func TestMetadataTagString(t *testing.T) {
	if got := MetaCDTrack2.String(); got != "CHT2" {
		t.Errorf("MetaCDTrack2: %q", got)
	}
	if got := MetadataTag(3).String(); got != "0x00000003" {
		t.Errorf("unprintable tag: %q", got)
	}
}
