// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/knowledge-engine/internal/extract"
	"github.com/pdiddy/knowledge-engine/internal/knowledge"
	"github.com/pdiddy/knowledge-engine/internal/pattern"
	"github.com/pdiddy/knowledge-engine/internal/research"
	"github.com/pdiddy/knowledge-engine/internal/secrets"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

const (
	defaultResearchTimeout = 30 * time.Second
	defaultUserAgent       = "knowledge-engine/0.1"
)

var researchCmd = &cobra.Command{
	Use:   "research <query...>",
	Short: "Search online sources and extract knowledge from them",
	Long: `Research fans the query out to the configured search engines, ranks
the returned sources, fetches each page, and applies the extraction
pattern library to the content. With --store, successful extractions are
persisted as knowledge items.

The SearXNG instance URL comes from --searxng-url or the searxng-url
secret file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().String("searxng-url", "", "base URL of the SearXNG instance")
	researchCmd.Flags().Int("max-sources", 0, "maximum sources to fetch (default 5)")
	researchCmd.Flags().Float64("min-source-confidence", 0, "drop search results below this confidence")
	researchCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 30s)")
	researchCmd.Flags().String("intent", "", "research intent, e.g. \"find a fix\"; picks the stored item type")
	researchCmd.Flags().String("patterns", defaultPatternLibrary, "path of the YAML pattern library")
	researchCmd.Flags().Bool("store", false, "persist successful extractions as knowledge items")
	researchCmd.Flags().String("data-dir", "knowledge", "base directory for the knowledge base")
	researchCmd.Flags().Bool("learning", false, "include learning insights in extraction results")

	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	searxngURL := configString(cmd, "searxng-url", "searxng_url")
	maxSources := configInt(cmd, "max-sources", "max_sources")
	minSourceConfidence := configFloat64(cmd, "min-source-confidence", "min_source_confidence")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	intent, _ := cmd.Flags().GetString("intent")
	libraryPath := configString(cmd, "patterns", "pattern_library")
	storeResults, _ := cmd.Flags().GetBool("store")
	dataDir := configString(cmd, "data-dir", "data_dir")
	learning, _ := cmd.Flags().GetBool("learning")

	if timeout <= 0 {
		timeout = defaultResearchTimeout
	}

	cfg := types.ResearchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		SearxngURL:          secrets.Get(loadedSecrets, "searxng-url", searxngURL),
		MaxSources:          maxSources,
		MinSourceConfidence: minSourceConfidence,
		StoreResults:        storeResults,
	}
	if cfg.SearxngURL == "" {
		return fmt.Errorf("no SearXNG URL configured: set --searxng-url or the searxng-url secret")
	}

	registry := pattern.NewRegistry()
	if err := registry.LoadLibrary(libraryPath); err != nil {
		return err
	}
	extractor := extract.New(registry, types.ExtractorConfig{PatternLibrary: libraryPath})

	var store *knowledge.Store
	if storeResults {
		var err error
		store, err = knowledge.New(types.StoreConfig{DataDir: dataDir})
		if err != nil {
			return err
		}
		defer store.Close()
	}

	agent := research.NewAgent(cfg,
		[]research.Client{research.NewSearxngClient(cfg)},
		extractor, store)

	ec := types.ExtractionContext{
		Intent: intent,
		Options: types.ExtractionOptions{
			LearningEnabled: learning,
		},
	}

	report, err := agent.Research(context.Background(), strings.Join(args, " "), ec, os.Stdout)
	if err != nil {
		return err
	}

	// Outcome counters accumulated during the run go back to the library.
	if err := registry.SaveLibrary(libraryPath); err != nil {
		return err
	}

	if report.Sources > 0 && report.Extracted == 0 {
		return fmt.Errorf("no knowledge extracted from %d source(s)", report.Sources)
	}
	return nil
}
