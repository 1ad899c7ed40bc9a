// Copyright 2026 The Discforge Authors
// SPDX-License-Identifier: Apache-2.0

// chd-info inspects disc image containers: header fields, metadata,
// CD track layout, and optional integrity verification.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/discforge/chd/lib/chd"
	"github.com/discforge/chd/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var parents []string
	var verify bool
	var showMetadata bool
	var showTracks bool

	flagSet := pflag.NewFlagSet("chd-info", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $CHD_CONFIG if set)")
	flagSet.StringArrayVar(&parents, "parent", nil, "file or directory searched for parent images (repeatable)")
	flagSet.BoolVar(&verify, "verify", false, "decode the whole image and verify every check value and the recorded digest")
	flagSet.BoolVar(&showMetadata, "metadata", false, "list metadata entries")
	flagSet.BoolVar(&showTracks, "tracks", false, "print the CD track layout")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		printHelp(flagSet)
		return fmt.Errorf("exactly one image path required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	searchPaths := append(append([]string(nil), cfg.ParentPaths...), parents...)
	options := &chd.Options{
		CacheHunks:     cfg.CacheHunks,
		MaxParentDepth: cfg.MaxParentDepth,
		VerifyHunks:    cfg.VerifyHunks,
	}
	if len(searchPaths) > 0 {
		options.ParentLookup = chd.SearchPaths(searchPaths...)
	}

	file, err := chd.Open(args[0], options)
	if err != nil {
		return err
	}
	defer file.Close()

	printHeader(file)

	if showMetadata {
		if err := printMetadata(file); err != nil {
			return err
		}
	}
	if showTracks {
		if err := printTracks(file); err != nil {
			return err
		}
	}
	if verify {
		fmt.Println()
		if err := file.Verify(); err != nil {
			return fmt.Errorf("verification failed:\n%w", err)
		}
		fmt.Println("verification passed")
	}
	return nil
}

// loadConfig loads the file named by --config, falling back to
// CHD_CONFIG, falling back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("CHD_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

func printHeader(file *chd.File) {
	header := file.Header()
	fmt.Printf("version:      %d\n", header.Version)
	fmt.Printf("logical size: %d bytes\n", header.LogicalBytes)
	fmt.Printf("hunks:        %d x %d bytes (unit %d)\n",
		header.HunkCount, header.HunkBytes, header.UnitBytes)
	if len(header.Compressors) == 0 {
		fmt.Printf("compression:  none\n")
	} else {
		fmt.Printf("compression: ")
		for _, tag := range header.Compressors {
			fmt.Printf(" %s", tag)
		}
		fmt.Println()
	}
	if !header.SHA1.IsZero() {
		fmt.Printf("sha1:         %s\n", header.SHA1)
	}
	if !header.RawSHA1.IsZero() {
		fmt.Printf("data sha1:    %s\n", header.RawSHA1)
	}
	if header.HasParent() {
		fmt.Printf("parent:       %s\n", header.ParentSHA1)
	}
}

func printMetadata(file *chd.File) error {
	entries, err := file.Metadata()
	if err != nil {
		return err
	}
	fmt.Println()
	if len(entries) == 0 {
		fmt.Println("no metadata")
		return nil
	}
	for _, entry := range entries {
		fmt.Printf("meta %s flags=%#02x %d bytes\n", entry.Tag, entry.Flags, len(entry.Data))
	}
	return nil
}

func printTracks(file *chd.File) error {
	tracks, err := file.CDTracks()
	if err != nil {
		return err
	}
	fmt.Println()
	if len(tracks) == 0 {
		fmt.Println("no track metadata")
		return nil
	}
	for _, track := range tracks {
		fmt.Printf("track %2d  %-12s sub=%-6s frames=%d", track.Number, track.Type, track.SubType, track.Frames)
		if track.Pregap != 0 || track.Postgap != 0 {
			fmt.Printf("  pregap=%d postgap=%d", track.Pregap, track.Postgap)
		}
		fmt.Println()
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: chd-info [flags] <image.chd>

Prints header fields of a disc image container, optionally its
metadata chain and CD track layout, and optionally verifies the whole
image against its recorded digest.

Flags:
%s`, flagSet.FlagUsages())
}
