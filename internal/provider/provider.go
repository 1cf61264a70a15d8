// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider implements one llm.CompletionProvider per vendor and the
// Registry that owns their credentials.
package provider

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/catalog"
	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

const defaultMaxTokens = 4096

// Options are shared by every provider instance the registry builds.
type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger

	// MaxRetries bounds key-validation attempts (default 3).
	MaxRetries int

	// Referer and Title are attribution headers for OpenRouter.
	Referer string
	Title   string
}

func (o Options) logger(name types.ProviderName) *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.Named(string(name))
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient == nil {
		return http.DefaultClient
	}
	return o.HTTPClient
}

// Factory builds a provider from settings. Each call returns a new instance.
type Factory func(settings types.ProviderSettings, opts Options) llm.CompletionProvider

// DefaultFactories maps every supported vendor to its constructor.
func DefaultFactories() map[types.ProviderName]Factory {
	return map[types.ProviderName]Factory{
		types.ProviderOpenAI:     func(s types.ProviderSettings, o Options) llm.CompletionProvider { return NewOpenAI(s, o) },
		types.ProviderAnthropic:  func(s types.ProviderSettings, o Options) llm.CompletionProvider { return NewAnthropic(s, o) },
		types.ProviderGemini:     func(s types.ProviderSettings, o Options) llm.CompletionProvider { return NewGemini(s, o) },
		types.ProviderOpenRouter: func(s types.ProviderSettings, o Options) llm.CompletionProvider { return NewOpenRouter(s, o) },
	}
}

// keyPrefixes are the documented key formats per vendor.
var keyPrefixes = map[types.ProviderName][]string{
	types.ProviderOpenAI:     {"sk-"},
	types.ProviderAnthropic:  {"sk-ant-"},
	types.ProviderGemini:     {"AIza"},
	types.ProviderOpenRouter: {"sk-or-"},
}

// KeyFormatValid reports whether key looks like a key for the vendor.
// Unknown vendors accept any non-blank key.
func KeyFormatValid(name types.ProviderName, key string) bool {
	key = strings.TrimSpace(key)
	if len(key) < 8 {
		return false
	}
	prefixes, ok := keyPrefixes[name]
	if !ok {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// validateKey runs probe under bounded retry. Rejection by the vendor
// returns false. A transport failure with a well-formed key is accepted
// provisionally, since an unreachable vendor says nothing about the key.
func validateKey(ctx context.Context, name types.ProviderName, key string, opts Options, logger *zap.Logger, probe func(context.Context) error) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, nil
	}
	_, err := llm.Retry(ctx, logger, "validate", opts.MaxRetries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, probe(ctx)
	})
	switch {
	case err == nil:
		return true, nil
	case llm.IsKind(err, llm.KindAuth):
		logger.Info("key rejected", zap.String("op", "validate"))
		return false, nil
	case llm.IsTransportError(err) && KeyFormatValid(name, key):
		logger.Warn("key validation inconclusive, accepting well-formed key",
			zap.String("op", "validate"), zap.Error(err))
		return true, nil
	default:
		logger.Error("key validation failed", zap.String("op", "validate"), zap.Error(err))
		return false, err
	}
}

// modelFor returns catalog info for id, or a capability-less record for
// models the catalog does not know.
func modelFor(name types.ProviderName, id string) types.ModelInfo {
	if id == "" {
		if m, ok := catalog.Default(name); ok {
			return m
		}
	}
	if m, ok := catalog.Lookup(name, id); ok {
		return m
	}
	return types.ModelInfo{ID: id, Name: id, Provider: name}
}

func maxTokens(req llm.ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

func logUsage(logger *zap.Logger, model string, usage llm.Usage) {
	logger.Debug("completion",
		zap.String("op", "chat"),
		zap.String("model", model),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Int("total_tokens", usage.TotalTokens))
}
