// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package chd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SearchPaths returns a ParentLookup that scans the given files and
// directories for a container whose header SHA-1 matches the requested
// identity. Directories are scanned one level deep for .chd files.
// Candidates that cannot be opened or parsed are logged and skipped;
// only the matching candidate is left open.
func SearchPaths(paths ...string) ParentLookup {
	return func(sha SHA1) (io.ReaderAt, int64, error) {
		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				slog.Warn("skipping parent search path", "path", path, "error", err)
				continue
			}

			candidates := []string{path}
			if info.IsDir() {
				listing, err := os.ReadDir(path)
				if err != nil {
					slog.Warn("skipping parent search path", "path", path, "error", err)
					continue
				}
				candidates = candidates[:0]
				for _, dirent := range listing {
					if dirent.IsDir() || !strings.EqualFold(filepath.Ext(dirent.Name()), ".chd") {
						continue
					}
					candidates = append(candidates, filepath.Join(path, dirent.Name()))
				}
			}

			for _, candidate := range candidates {
				src, size, err := matchCandidate(candidate, sha)
				if err != nil {
					slog.Warn("skipping parent candidate", "path", candidate, "error", err)
					continue
				}
				if src != nil {
					return src, size, nil
				}
			}
		}
		return nil, 0, nil
	}
}

// matchCandidate opens path and keeps it open only when its header
// SHA-1 matches.
func matchCandidate(path string, sha SHA1) (io.ReaderAt, int64, error) {
	source, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := source.Stat()
	if err != nil {
		source.Close()
		return nil, 0, err
	}
	header, err := readHeader(source, info.Size())
	if err != nil {
		source.Close()
		return nil, 0, fmt.Errorf("parsing header: %w", err)
	}
	if header.SHA1 != sha {
		source.Close()
		return nil, 0, nil
	}
	return source, info.Size(), nil
}
