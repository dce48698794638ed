// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

const exportLimit = 100000

// ExportYAML writes the store contents to DataDir/index/export.yaml.
// It supports the same filters as SearchKnowledge.
func (s *Store) ExportYAML(ctx context.Context, query types.KnowledgeQuery) error {
	items, err := s.exportItems(ctx, query)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dataDir, indexDir, "export.yaml")
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the store contents to DataDir/index/export.json.
// It supports the same filters as SearchKnowledge.
func (s *Store) ExportJSON(ctx context.Context, query types.KnowledgeQuery) error {
	items, err := s.exportItems(ctx, query)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dataDir, indexDir, "export.json")
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportItems(ctx context.Context, query types.KnowledgeQuery) ([]types.KnowledgeItem, error) {
	query.Limit = exportLimit
	out, err := s.SearchKnowledge(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	return out.Items, nil
}
