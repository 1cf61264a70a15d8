// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ProviderName identifies an LLM vendor.
type ProviderName string

const (
	ProviderOpenAI     ProviderName = "openai"
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderGemini     ProviderName = "gemini"
	ProviderOpenRouter ProviderName = "openrouter"
)

// ModelInfo describes one model and its capabilities.
type ModelInfo struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Provider        ProviderName `json:"provider" yaml:"provider"`
	Description     string       `json:"description,omitempty" yaml:"description,omitempty"`
	ContextWindow   int          `json:"contextWindow" yaml:"context_window"`
	MaxOutputTokens int          `json:"maxOutputTokens" yaml:"max_output_tokens"`

	// SupportsStructuredOutput means the vendor accepts a JSON schema and
	// guarantees conforming output.
	SupportsStructuredOutput bool `json:"supportsStructuredOutput" yaml:"supports_structured_output"`

	// SupportsJSONMode means the vendor guarantees syntactically valid JSON.
	SupportsJSONMode bool `json:"supportsJsonMode" yaml:"supports_json_mode"`

	// Reasoning models reject temperature and take max_completion_tokens.
	Reasoning bool `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// GuaranteesJSON reports whether the model's output is always valid JSON
// when a response format is requested.
func (m ModelInfo) GuaranteesJSON() bool {
	return m.SupportsStructuredOutput || m.SupportsJSONMode
}

// ProviderSettings holds a user's credentials and model choices for one
// vendor. Created on first credential save and never implicitly deleted.
type ProviderSettings struct {
	Provider      ProviderName    `json:"provider" yaml:"provider"`
	APIKey        string          `json:"apiKey" yaml:"api_key"`
	SelectedModel string          `json:"selectedModel" yaml:"selected_model"`
	EnabledModels map[string]bool `json:"enabledModels" yaml:"enabled_models"`
	BaseURL       string          `json:"baseUrl,omitempty" yaml:"base_url,omitempty"`
	CreatedAt     time.Time       `json:"createdAt" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" yaml:"updated_at"`
}

// ModelEnabled reports whether id may be used. Models absent from the map
// are enabled.
func (s ProviderSettings) ModelEnabled(id string) bool {
	enabled, ok := s.EnabledModels[id]
	return !ok || enabled
}
