// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm defines the vendor-neutral completion contract shared by every
// provider: request and response shapes, the error taxonomy, bounded retry,
// and the tagged parse pipeline used to recover structured output.
package llm

import (
	"context"
	"encoding/json"

	"github.com/pdiddy/litbrief/pkg/types"
)

// CompletionProvider turns a prompt into a normalized completion for one vendor.
// Implementations are immutable once built; new credentials mean a new instance.
type CompletionProvider interface {
	Name() types.ProviderName

	// Chat issues one completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ValidateKey reports whether key is accepted by the vendor. It returns
	// an error only when validation itself could not be carried out.
	ValidateKey(ctx context.Context, key string) (bool, error)

	// Models returns the configured catalog for this vendor.
	Models() []types.ModelInfo

	// ListAvailableModels returns the models the account is entitled to,
	// or the full catalog when the vendor cannot enumerate them.
	ListAvailableModels(ctx context.Context) ([]types.ModelInfo, error)
}

// ChatRequest is the vendor-neutral completion request.
type ChatRequest struct {
	Prompt string
	System string
	Model  string

	// MaxTokens of zero uses the provider default.
	MaxTokens int

	// Temperature is omitted when nil and always omitted for reasoning models.
	Temperature *float64

	Stream bool

	// ResponseFormat is honored only when the model supports it.
	ResponseFormat *ResponseFormat
}

// ChatResponse is the normalized completion.
type ChatResponse struct {
	Content string
	Usage   Usage
	Model   string
}

// Usage counts tokens for one request.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ResponseFormatType selects structured output or bare JSON mode.
type ResponseFormatType string

const (
	FormatJSONSchema ResponseFormatType = "json_schema"
	FormatJSONObject ResponseFormatType = "json_object"
)

// ResponseFormat asks the vendor to constrain output.
type ResponseFormat struct {
	Type       ResponseFormatType `json:"type"`
	JSONSchema *JSONSchema        `json:"json_schema,omitempty"`
}

// JSONSchema is a named, optionally strict, schema for structured output.
type JSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// ResponseFormatFor returns the strongest format model supports, or nil.
// Schema is used only for structured-output models.
func ResponseFormatFor(model types.ModelInfo, name string, schema json.RawMessage) *ResponseFormat {
	switch {
	case model.SupportsStructuredOutput && len(schema) > 0:
		return &ResponseFormat{
			Type:       FormatJSONSchema,
			JSONSchema: &JSONSchema{Name: name, Strict: true, Schema: schema},
		}
	case model.SupportsJSONMode:
		return &ResponseFormat{Type: FormatJSONObject}
	default:
		return nil
	}
}

// Resolved is a provider paired with the model it should use.
type Resolved struct {
	Provider CompletionProvider
	Model    types.ModelInfo
}

// ModelResolver picks the provider and model for the next completion.
// A missing credential or model selection is a ConfigError.
type ModelResolver interface {
	Resolve(ctx context.Context) (Resolved, error)
}

// Float returns a pointer to f, for ChatRequest.Temperature.
func Float(f float64) *float64 { return &f }
