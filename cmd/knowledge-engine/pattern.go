// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/knowledge-engine/internal/pattern"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

const defaultPatternLibrary = "knowledge/patterns.yaml"

var patternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Manage the extraction pattern library",
	Long: `Pattern manages the YAML library of extraction patterns. Patterns carry
a prior confidence and accumulate success/failure counters as they are
used; add inserts or replaces a pattern, list shows the library with its
evolution statistics.`,
}

// --- list subcommand ---

var patternListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered patterns with their evolution statistics",
	RunE:  runPatternList,
}

func runPatternList(cmd *cobra.Command, args []string) error {
	registry, libraryPath, err := loadPatternLibrary(cmd)
	if err != nil {
		return err
	}

	patterns := registry.Patterns()
	if len(patterns) == 0 {
		fmt.Printf("No patterns in %s.\n", libraryPath)
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-24s  %-10s  %-10s  %7s  %7s  %7s\n",
		"ID", "Kind", "Confidence", "Fields", "Success", "Failure")
	for _, p := range patterns {
		fmt.Fprintf(os.Stdout, "%-24s  %-10s  %-10.2f  %7d  %7d  %7d\n",
			p.ID, p.Kind, p.Confidence, len(p.Fields),
			p.Evolution.SuccessCount, p.Evolution.FailureCount)
	}
	fmt.Fprintf(os.Stdout, "\n%d pattern(s)\n", len(patterns))
	return nil
}

// --- add subcommand ---

var patternAddCmd = &cobra.Command{
	Use:   "add [pattern.yaml]",
	Short: "Add or replace a pattern in the library",
	Long: `Add reads a single pattern definition from a YAML file (or stdin when
no file is given) and writes it into the pattern library. An existing
pattern with the same ID is replaced; its accumulated counters are kept.`,
	RunE: runPatternAdd,
}

func runPatternAdd(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading pattern definition: %w", err)
	}

	var p types.ExtractionPattern
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parsing pattern definition: %w", err)
	}

	registry, libraryPath, err := loadPatternLibrary(cmd)
	if err != nil {
		return err
	}
	if err := registry.Add(p); err != nil {
		return err
	}
	if err := registry.SaveLibrary(libraryPath); err != nil {
		return err
	}

	fmt.Printf("Added pattern %s to %s\n", p.ID, libraryPath)
	return nil
}

// --- shared helpers ---

func loadPatternLibrary(cmd *cobra.Command) (*pattern.Registry, string, error) {
	libraryPath := configString(cmd, "patterns", "pattern_library")
	if libraryPath == "" {
		libraryPath = defaultPatternLibrary
	}

	registry := pattern.NewRegistry()
	if err := registry.LoadLibrary(libraryPath); err != nil {
		return nil, "", err
	}
	return registry, libraryPath, nil
}

func init() {
	patternCmd.PersistentFlags().String("patterns", defaultPatternLibrary, "path of the YAML pattern library")

	patternCmd.AddCommand(patternListCmd)
	patternCmd.AddCommand(patternAddCmd)

	rootCmd.AddCommand(patternCmd)
}
