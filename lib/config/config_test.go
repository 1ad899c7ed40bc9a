// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.CacheHunks != 0 {
		t.Errorf("expected cache_hunks=0, got %d", cfg.CacheHunks)
	}
	if cfg.VerifyHunks {
		t.Error("expected verify_hunks=false")
	}
	if len(cfg.ParentPaths) != 0 {
		t.Errorf("expected no parent paths, got %v", cfg.ParentPaths)
	}
}

func TestLoad_RequiresChdConfig(t *testing.T) {
	t.Setenv("CHD_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CHD_CONFIG not set, got nil")
	}
	if !strings.Contains(err.Error(), "CHD_CONFIG") {
		t.Errorf("error does not mention CHD_CONFIG: %v", err)
	}
}

func TestLoad_WithChdConfig(t *testing.T) {
	configPath := writeConfig(t, `
cache_hunks: 64
max_parent_depth: 3
verify_hunks: true
parent_paths:
  - /images/parents
`)
	t.Setenv("CHD_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheHunks != 64 {
		t.Errorf("cache_hunks: got %d, want 64", cfg.CacheHunks)
	}
	if cfg.MaxParentDepth != 3 {
		t.Errorf("max_parent_depth: got %d, want 3", cfg.MaxParentDepth)
	}
	if !cfg.VerifyHunks {
		t.Error("verify_hunks: got false, want true")
	}
	if len(cfg.ParentPaths) != 1 || cfg.ParentPaths[0] != "/images/parents" {
		t.Errorf("parent_paths: got %v", cfg.ParentPaths)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("IMAGE_ROOT", "/srv/images")
	configPath := writeConfig(t, `
parent_paths:
  - ${IMAGE_ROOT}/parents
  - ${UNSET_IMAGE_DIR:-/fallback}/parents
`)
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ParentPaths[0] != "/srv/images/parents" {
		t.Errorf("expansion: got %q", cfg.ParentPaths[0])
	}
	if cfg.ParentPaths[1] != "/fallback/parents" {
		t.Errorf("default expansion: got %q", cfg.ParentPaths[1])
	}
}

func TestLoadFile_RejectsInvalidValues(t *testing.T) {
	configPath := writeConfig(t, "cache_hunks: -5\n")
	if _, err := LoadFile(configPath); err == nil {
		t.Fatal("expected error for cache_hunks below -1")
	}

	configPath = writeConfig(t, "max_parent_depth: -1\n")
	if _, err := LoadFile(configPath); err == nil {
		t.Fatal("expected error for negative max_parent_depth")
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
