// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog is the static list of models each provider offers,
// loaded from an embedded YAML file.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litbrief/pkg/types"
)

//go:embed models.yaml
var modelsYAML []byte

var models map[types.ProviderName][]types.ModelInfo

func init() {
	m, err := parse(modelsYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	models = m
}

// parse decodes a catalog document and stamps each model with its provider.
func parse(data []byte) (map[types.ProviderName][]types.ModelInfo, error) {
	var raw map[types.ProviderName][]types.ModelInfo
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing models.yaml: %w", err)
	}
	for name, list := range raw {
		for i := range list {
			if list[i].ID == "" {
				return nil, fmt.Errorf("provider %s: model %d has no id", name, i)
			}
			list[i].Provider = name
		}
	}
	return raw, nil
}

// Providers returns the provider names in the catalog, sorted.
func Providers() []types.ProviderName {
	names := make([]types.ProviderName, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Models returns a copy of the provider's model list, or nil if unknown.
func Models(provider types.ProviderName) []types.ModelInfo {
	return slices.Clone(models[provider])
}

// Lookup finds a model by id.
func Lookup(provider types.ProviderName, id string) (types.ModelInfo, bool) {
	for _, m := range models[provider] {
		if m.ID == id {
			return m, true
		}
	}
	return types.ModelInfo{}, false
}

// Default returns the provider's first listed model.
func Default(provider types.ProviderName) (types.ModelInfo, bool) {
	list := models[provider]
	if len(list) == 0 {
		return types.ModelInfo{}, false
	}
	return list[0], true
}

// Intersect returns the catalog models whose ids appear in available,
// preserving catalog order.
func Intersect(provider types.ProviderName, available []string) []types.ModelInfo {
	set := make(map[string]bool, len(available))
	for _, id := range available {
		set[id] = true
	}
	var out []types.ModelInfo
	for _, m := range models[provider] {
		if set[m.ID] {
			out = append(out, m)
		}
	}
	return out
}
