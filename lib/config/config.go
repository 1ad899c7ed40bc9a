// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the configuration for tools that open disc images.
type Config struct {
	// CacheHunks is the decoded-hunk cache capacity per open image.
	// Zero means the built-in default; -1 disables caching.
	CacheHunks int `yaml:"cache_hunks"`

	// MaxParentDepth bounds the parent chain when opening delta
	// images. Zero means the built-in default.
	MaxParentDepth int `yaml:"max_parent_depth"`

	// VerifyHunks enables check-value verification of every hunk on
	// first decode.
	VerifyHunks bool `yaml:"verify_hunks"`

	// ParentPaths lists files and directories searched for parent
	// images, in order.
	ParentPaths []string `yaml:"parent_paths"`
}

// Default returns the default configuration. These defaults make every
// field usable without a config file; the file only overrides them.
func Default() *Config {
	return &Config{}
}

// Load loads configuration from the file named by the CHD_CONFIG
// environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks and no automatic discovery - if CHD_CONFIG is
// not set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("CHD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CHD_CONFIG environment variable not set; " +
			"set it to the path of your config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	for i, path := range c.ParentPaths {
		c.ParentPaths[i] = expandString(path)
	}
}

func expandString(s string) string {
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[3]
	})
}

// Validate checks the configuration for values that can never work.
func (c *Config) Validate() error {
	var errs []error

	if c.CacheHunks < -1 {
		errs = append(errs, fmt.Errorf("cache_hunks must be >= -1, got %d", c.CacheHunks))
	}
	if c.MaxParentDepth < 0 {
		errs = append(errs, fmt.Errorf("max_parent_depth must be >= 0, got %d", c.MaxParentDepth))
	}
	for _, path := range c.ParentPaths {
		if path == "" {
			errs = append(errs, errors.New("parent_paths entries must not be empty"))
		}
	}

	return errors.Join(errs...)
}
