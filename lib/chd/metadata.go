// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// MetadataTag identifies a metadata entry kind: a four-character code,
// like compressor tags.
type MetadataTag uint32

// Well-known metadata tags.
const (
	// MetaHardDisk ("GDDD") holds hard disk geometry.
	MetaHardDisk MetadataTag = 0x47444444

	// MetaHardDiskIdent ("IDNT") holds the ATA identify block.
	MetaHardDiskIdent MetadataTag = 0x49444e54

	// MetaCDTrack ("CHTR") holds one CD track description per entry.
	MetaCDTrack MetadataTag = 0x43485452

	// MetaCDTrack2 ("CHT2") is the extended CD track description with
	// pregap and postgap fields.
	MetaCDTrack2 MetadataTag = 0x43485432

	// MetaGDTrack ("CHGD") holds one GD-ROM track description.
	MetaGDTrack MetadataTag = 0x43484744

	// MetaAV ("AVAV") holds audio/video stream parameters.
	MetaAV MetadataTag = 0x41564156

	// MetaAVLaserdisc ("AVLD") holds laserdisc frame metadata.
	MetaAVLaserdisc MetadataTag = 0x41564c44
)

// String renders the tag as its four-character code when printable,
// otherwise as hex.
func (t MetadataTag) String() string {
	chars := [4]byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	for _, c := range chars {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(t))
		}
	}
	return string(chars[:])
}

// MetaFlagChecksum marks an entry whose data contributes to the
// container's overall SHA-1.
const MetaFlagChecksum = 0x01

const (
	metadataHeaderSize = 16

	// Caps against malformed chains.
	maxMetadataEntries   = 1000
	maxMetadataEntrySize = 16 << 20
)

// MetadataEntry is one entry of the container's metadata chain.
type MetadataEntry struct {
	Tag   MetadataTag
	Flags uint8
	Data  []byte
}

// Metadata reads the container's full metadata chain in file order.
// Containers without metadata return an empty slice.
func (f *File) Metadata() ([]MetadataEntry, error) {
	var entries []MetadataEntry
	visited := make(map[uint64]bool)

	offset := f.header.MetaOffset
	for offset != 0 {
		if visited[offset] {
			return nil, fmt.Errorf("%w: chain loops at offset %d", ErrBadMetadata, offset)
		}
		visited[offset] = true
		if len(entries) >= maxMetadataEntries {
			return nil, fmt.Errorf("%w: chain exceeds %d entries", ErrBadMetadata, maxMetadataEntries)
		}

		var raw [metadataHeaderSize]byte
		if _, err := f.src.ReadAt(raw[:], int64(offset)); err != nil {
			return nil, readErr("metadata header", err)
		}
		tag := MetadataTag(binary.BigEndian.Uint32(raw[0:4]))
		flags := raw[4]
		length := uint24(raw[5:8])
		next := binary.BigEndian.Uint64(raw[8:16])

		if length > maxMetadataEntrySize {
			return nil, fmt.Errorf("%w: entry of %d bytes at offset %d",
				ErrBadMetadata, length, offset)
		}
		data := make([]byte, length)
		if _, err := f.src.ReadAt(data, int64(offset)+metadataHeaderSize); err != nil {
			return nil, readErr("metadata entry", err)
		}

		entries = append(entries, MetadataEntry{Tag: tag, Flags: flags, Data: data})
		offset = next
	}
	return entries, nil
}

// CDTrack describes one track of a CD image as recorded in the
// metadata chain. Gap fields are zero for entries written in the older
// single-line form.
type CDTrack struct {
	Number     int
	Type       string
	SubType    string
	Frames     int
	Pregap     int
	PregapType string
	PregapSub  string
	Postgap    int
}

// CDTracks parses the CD track list from the metadata chain, sorted by
// track number. Extended entries are preferred when present; a
// container without track metadata returns an empty slice.
func (f *File) CDTracks() ([]CDTrack, error) {
	entries, err := f.Metadata()
	if err != nil {
		return nil, err
	}

	var tracks []CDTrack
	extended := false
	for _, entry := range entries {
		switch entry.Tag {
		case MetaCDTrack2:
			if !extended {
				tracks = tracks[:0]
				extended = true
			}
		case MetaCDTrack:
			if extended {
				continue
			}
		default:
			continue
		}

		track, err := parseCDTrack(entry)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Number < tracks[j].Number })
	return tracks, nil
}

func parseCDTrack(entry MetadataEntry) (CDTrack, error) {
	// Entries are NUL-terminated printf-style text.
	text := string(bytes.TrimRight(entry.Data, "\x00"))
	var track CDTrack
	var err error
	if entry.Tag == MetaCDTrack2 {
		_, err = fmt.Sscanf(text,
			"TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d PREGAP:%d PGTYPE:%s PGSUB:%s POSTGAP:%d",
			&track.Number, &track.Type, &track.SubType, &track.Frames,
			&track.Pregap, &track.PregapType, &track.PregapSub, &track.Postgap)
	} else {
		_, err = fmt.Sscanf(text, "TRACK:%d TYPE:%s SUBTYPE:%s FRAMES:%d",
			&track.Number, &track.Type, &track.SubType, &track.Frames)
	}
	if err != nil {
		return CDTrack{}, fmt.Errorf("%w: track entry %q: %v", ErrBadMetadata, text, err)
	}
	return track, nil
}
