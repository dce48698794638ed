// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/spf13/cobra"

	"github.com/pdiddy/knowledge-engine/internal/browser"
	"github.com/pdiddy/knowledge-engine/internal/extract"
	"github.com/pdiddy/knowledge-engine/internal/pattern"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Apply extraction patterns to content",
	Long: `Extract applies the pattern library to content read from a file or
stdin and prints the extraction result. With --url the page is loaded in
a headless browser and structural patterns bind against the live DOM.

Pattern outcome counters are written back to the library after the run.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("patterns", defaultPatternLibrary, "path of the YAML pattern library")
	extractCmd.Flags().String("url", "", "load this URL in a headless browser instead of reading content")
	extractCmd.Flags().String("content-type", "text/html", "content type of the input")
	extractCmd.Flags().String("intent", "", "extraction intent, e.g. \"find a fix\"")
	extractCmd.Flags().Float64("min-confidence", 0, "pattern confidence floor (0 = use default)")
	extractCmd.Flags().Bool("learning", false, "include learning insights in the result")
	extractCmd.Flags().Bool("json", false, "output the result as JSON")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	libraryPath := configString(cmd, "patterns", "pattern_library")
	pageURL, _ := cmd.Flags().GetString("url")
	contentType, _ := cmd.Flags().GetString("content-type")
	intent, _ := cmd.Flags().GetString("intent")
	minConfidence := configFloat64(cmd, "min-confidence", "min_pattern_confidence")
	learning, _ := cmd.Flags().GetBool("learning")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	registry := pattern.NewRegistry()
	if err := registry.LoadLibrary(libraryPath); err != nil {
		return err
	}
	extractor := extract.New(registry, types.ExtractorConfig{
		MinPatternConfidence: minConfidence,
		PatternLibrary:       libraryPath,
	})

	ec := types.ExtractionContext{
		ContentType: contentType,
		Intent:      intent,
		Options: types.ExtractionOptions{
			ConfidenceThreshold: minConfidence,
			LearningEnabled:     learning,
		},
	}

	var (
		content string
		page    extract.PageQuerier
	)
	if pageURL != "" {
		var (
			err     error
			cleanup func()
		)
		content, page, cleanup, err = openLivePage(pageURL)
		if err != nil {
			return err
		}
		defer cleanup()
		ec.ContentType = "text/html"
	} else {
		var err error
		content, err = readContent(args)
		if err != nil {
			return err
		}
	}

	result := extractor.Extract(context.Background(), content, ec, page)

	if err := registry.SaveLibrary(libraryPath); err != nil {
		return err
	}
	return formatExtractionResult(result, jsonOutput)
}

// readContent reads from the file argument or stdin.
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading content: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

// openLivePage navigates a headless browser to the URL and returns the
// rendered HTML plus a live querier for structural patterns.
func openLivePage(pageURL string) (string, extract.PageQuerier, func(), error) {
	b := rod.New()
	if err := b.Connect(); err != nil {
		return "", nil, nil, fmt.Errorf("connecting to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		b.Close()
		return "", nil, nil, fmt.Errorf("opening %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		b.Close()
		return "", nil, nil, fmt.Errorf("loading %s: %w", pageURL, err)
	}

	content, err := page.HTML()
	if err != nil {
		b.Close()
		return "", nil, nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}

	cleanup := func() { b.Close() }
	return content, browser.NewPage(page), cleanup, nil
}

func formatExtractionResult(result types.ExtractionResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if !result.Success {
		fmt.Printf("No match (confidence %.2f): %s\n", result.Confidence, result.Error)
		return nil
	}

	fmt.Printf("Matched with confidence %.2f\n", result.Confidence)
	for _, m := range result.Matches {
		fmt.Printf("  pattern %s: %d required, %d optional field(s) bound\n",
			m.PatternID, m.RequiredBound, m.OptionalBound)
	}
	for k, v := range result.Data {
		fmt.Printf("  %s: %s\n", k, v)
	}
	for _, insight := range result.LearningInsights {
		fmt.Printf("  insight: %s\n", insight)
	}
	return nil
}
