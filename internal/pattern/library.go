// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pattern

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/knowledge-engine/pkg/types"
)

// library is the on-disk YAML shape of a pattern set.
type library struct {
	Patterns []types.ExtractionPattern `yaml:"patterns"`
}

// LoadLibrary reads a YAML pattern library and registers every pattern.
// A missing file is not an error; the registry is left unchanged.
func (r *Registry) LoadLibrary(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading pattern library %s: %w", path, err)
	}

	var lib library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return fmt.Errorf("parsing pattern library %s: %w", path, err)
	}

	for _, p := range lib.Patterns {
		if err := r.Add(p); err != nil {
			return fmt.Errorf("loading pattern library %s: %w", path, err)
		}
	}
	return nil
}

// SaveLibrary writes the registry contents, including accumulated
// evolution counters, back to a YAML pattern library.
func (r *Registry) SaveLibrary(path string) error {
	lib := library{Patterns: r.Patterns()}
	data, err := yaml.Marshal(&lib)
	if err != nil {
		return fmt.Errorf("marshaling pattern library: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing pattern library %s: %w", path, err)
	}
	return nil
}
