// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/knowledge-engine/internal/knowledge"
	"github.com/pdiddy/knowledge-engine/pkg/types"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the knowledge base (store, search, evolve, export)",
	Long: `Knowledge manages a local SQLite knowledge base of versioned,
confidence-scored items. Use subcommands to store drafts, retrieve and
search items, evolve them with field-level changes, record validations,
get recommendations, or export the base.`,
}

// --- store subcommand ---

var knowledgeStoreCmd = &cobra.Command{
	Use:   "store [draft.yaml]",
	Short: "Store a knowledge draft as a new item",
	Long: `Store reads a knowledge draft from a YAML file (or stdin when no file
is given), validates it, and persists it as a new version-1 item. The
initial confidence derives from the draft's quality score.`,
	RunE: runKnowledgeStore,
}

func runKnowledgeStore(cmd *cobra.Command, args []string) error {
	data, err := readInput(args)
	if err != nil {
		return err
	}

	var draft types.KnowledgeDraft
	if err := yaml.Unmarshal(data, &draft); err != nil {
		return fmt.Errorf("parsing draft: %w", err)
	}

	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.StoreKnowledge(context.Background(), draft)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// --- get subcommand ---

var knowledgeGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Retrieve one item with its history and validations",
	Args:  cobra.ExactArgs(1),
	RunE:  runKnowledgeGet,
}

func runKnowledgeGet(cmd *cobra.Command, args []string) error {
	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	item, err := store.GetKnowledge(context.Background(), args[0])
	if err != nil {
		return err
	}
	return printJSON(item)
}

// --- search subcommand ---

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base with full-text search and filters",
	Long: `Search combines FTS5 full-text search over title and content with
structured filters on type, technology, and minimum confidence. Results
are ordered by descending confidence.`,
	RunE: runKnowledgeSearch,
}

func runKnowledgeSearch(cmd *cobra.Command, args []string) error {
	query := knowledgeQueryFromFlags(cmd, args)
	if query.IsEmpty() {
		return fmt.Errorf("query or filter required: provide search text, --type, --technology, or --min-confidence")
	}

	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := store.SearchKnowledge(context.Background(), query)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		return printJSON(out)
	}
	return formatItemTable(out.Items, out.Total)
}

// --- evolve subcommand ---

var knowledgeEvolveCmd = &cobra.Command{
	Use:   "evolve <id> [evolution.yaml]",
	Short: "Apply an evolution to an item",
	Long: `Evolve reads an evolution (field changes, trigger, expected version)
from a YAML file or stdin, applies it to the item in one transaction,
bumps the version, and appends the change to the item's history. A stale
expected_version is rejected with a conflict error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKnowledgeEvolve,
}

func runKnowledgeEvolve(cmd *cobra.Command, args []string) error {
	data, err := readInput(args[1:])
	if err != nil {
		return err
	}

	var evolution types.Evolution
	if err := yaml.Unmarshal(data, &evolution); err != nil {
		return fmt.Errorf("parsing evolution: %w", err)
	}

	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.EvolveKnowledge(context.Background(), args[0], evolution)
	if err != nil {
		return err
	}
	fmt.Printf("Evolved %s: version %d -> %d (%d change(s))\n",
		record.ItemID, record.PreviousVersion, record.NewVersion, len(record.Changes))
	return nil
}

// --- validate subcommand ---

var knowledgeValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Record a validation event for an item",
	Long: `Validate scores the item from its current quality, impact, and
confidence and records the event. Validation observes the item; folding
the observation into confidence is a separate evolve step.`,
	Args: cobra.ExactArgs(1),
	RunE: runKnowledgeValidate,
}

func runKnowledgeValidate(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	validatorID, _ := cmd.Flags().GetString("validator")

	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	event, err := store.ValidateKnowledge(context.Background(), args[0], kind, validatorID)
	if err != nil {
		return err
	}
	fmt.Printf("Validated %s: score %.2f\n", event.ItemID, event.Score)
	return nil
}

// --- recommend subcommand ---

var knowledgeRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank items for a domain, technology, or problem type",
	Long: `Recommend selects items matching the given criteria and ranks them by
a blend of confidence and impact score.`,
	RunE: runKnowledgeRecommend,
}

func runKnowledgeRecommend(cmd *cobra.Command, args []string) error {
	domain, _ := cmd.Flags().GetString("domain")
	technology, _ := cmd.Flags().GetString("technology")
	problemType, _ := cmd.Flags().GetString("problem-type")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	items, err := store.Recommendations(context.Background(), types.RecommendationCriteria{
		Domain:      domain,
		Technology:  technology,
		ProblemType: types.ItemType(problemType),
		Limit:       limit,
	})
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		return printJSON(items)
	}
	return formatItemTable(items, len(items))
}

// --- metrics subcommand ---

var knowledgeMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate knowledge base statistics",
	RunE:  runKnowledgeMetrics,
}

func runKnowledgeMetrics(cmd *cobra.Command, args []string) error {
	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := store.Metrics(context.Background())
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		return printJSON(m)
	}

	fmt.Printf("Items: %d\n", m.TotalItems)
	for t, n := range m.ItemsByType {
		fmt.Printf("  %s: %d\n", t, n)
	}
	fmt.Printf("Average confidence: %.2f\n", m.AverageConfidence)
	fmt.Printf("Average quality:    %.2f\n", m.AverageQuality)
	fmt.Printf("Average impact:     %.2f\n", m.AverageImpact)
	fmt.Printf("Evolutions: %d, validations: %d\n", m.TotalEvolutions, m.TotalValidations)
	return nil
}

// --- export subcommand ---

var knowledgeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the knowledge base to YAML or JSON",
	Long: `Export writes the full knowledge base (or a filtered subset) to
<data-dir>/index/export.yaml or export.json. Supports the same filter
flags as search for partial exports.`,
	RunE: runKnowledgeExport,
}

func runKnowledgeExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	dataDir := configString(cmd, "data-dir", "data_dir")
	query := knowledgeQueryFromFlags(cmd, args)

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background(), query); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/index/export.yaml\n", dataDir)
	case "json":
		if err := store.ExportJSON(context.Background(), query); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/index/export.json\n", dataDir)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- shared helpers ---

func openKnowledgeStore(cmd *cobra.Command) (*knowledge.Store, error) {
	return knowledge.New(types.StoreConfig{
		DataDir:    configString(cmd, "data-dir", "data_dir"),
		MaxResults: configInt(cmd, "max-results", "max_results"),
	})
}

func knowledgeQueryFromFlags(cmd *cobra.Command, args []string) types.KnowledgeQuery {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	itemType, _ := cmd.Flags().GetString("type")
	technology, _ := cmd.Flags().GetString("technology")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	limit, _ := cmd.Flags().GetInt("limit")

	query := types.KnowledgeQuery{
		ContentSearch: queryText,
		MinConfidence: minConfidence,
		Limit:         limit,
	}
	if itemType != "" {
		query.Types = []types.ItemType{types.ItemType(itemType)}
	}
	if technology != "" {
		query.Technologies = []string{technology}
	}
	return query
}

func readInput(args []string) ([]byte, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", args[0], err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return data, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatItemTable(items []types.KnowledgeItem, total int) error {
	if len(items) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-8s  %-40s  %-10s  %7s\n",
		"ID", "Type", "Title", "Confidence", "Version")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))

	for _, item := range items {
		title := item.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-8s  %-40s  %-10.2f  %7d\n",
			item.ID, item.Type, title, item.Confidence, item.Version)
	}

	fmt.Fprintf(os.Stdout, "\n%d of %d result(s)\n", len(items), total)
	return nil
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	knowledgeCmd.PersistentFlags().String("data-dir", "knowledge", "base directory for the knowledge base (contains index/)")
	knowledgeCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	// Search flags.
	knowledgeSearchCmd.Flags().String("query", "", "full-text search query")
	knowledgeSearchCmd.Flags().String("type", "", "filter by item type: solution, pattern, error")
	knowledgeSearchCmd.Flags().String("technology", "", "filter by technology tag")
	knowledgeSearchCmd.Flags().Float64("min-confidence", 0, "inclusive confidence lower bound")
	knowledgeSearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	knowledgeSearchCmd.Flags().Bool("json", false, "output results as JSON")

	// Validate flags.
	knowledgeValidateCmd.Flags().String("kind", "automated", "validation kind, e.g. automated or manual")
	knowledgeValidateCmd.Flags().String("validator", "", "identifier of the validating agent")

	// Recommend flags.
	knowledgeRecommendCmd.Flags().String("domain", "", "filter by domain")
	knowledgeRecommendCmd.Flags().String("technology", "", "filter by technology tag")
	knowledgeRecommendCmd.Flags().String("problem-type", "", "filter by item type: solution, pattern, error")
	knowledgeRecommendCmd.Flags().Int("limit", 0, "maximum recommendations (0 = use default)")
	knowledgeRecommendCmd.Flags().Bool("json", false, "output results as JSON")

	// Export flags.
	knowledgeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	knowledgeExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	knowledgeExportCmd.Flags().String("type", "", "filter by item type for partial export")
	knowledgeExportCmd.Flags().String("technology", "", "filter by technology tag for partial export")
	knowledgeExportCmd.Flags().Float64("min-confidence", 0, "confidence lower bound for partial export")
	knowledgeExportCmd.Flags().Int("limit", 0, "maximum items to export (0 = all)")

	// Wire subcommands.
	knowledgeCmd.AddCommand(knowledgeStoreCmd)
	knowledgeCmd.AddCommand(knowledgeGetCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
	knowledgeCmd.AddCommand(knowledgeEvolveCmd)
	knowledgeCmd.AddCommand(knowledgeValidateCmd)
	knowledgeCmd.AddCommand(knowledgeRecommendCmd)
	knowledgeCmd.AddCommand(knowledgeMetricsCmd)
	knowledgeCmd.AddCommand(knowledgeExportCmd)

	rootCmd.AddCommand(knowledgeCmd)
}
