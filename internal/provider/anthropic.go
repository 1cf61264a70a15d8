// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/catalog"
	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// Anthropic talks to the Messages API. It has no JSON mode, so callers
// rely on the wrapper-tag parse path.
type Anthropic struct {
	settings types.ProviderSettings
	opts     Options
	client   *anthropic.Client
	logger   *zap.Logger
}

var _ llm.CompletionProvider = (*Anthropic)(nil)

// NewAnthropic builds a provider bound to settings.APIKey.
func NewAnthropic(settings types.ProviderSettings, opts Options) *Anthropic {
	p := &Anthropic{
		settings: settings,
		opts:     opts,
		logger:   opts.logger(types.ProviderAnthropic),
	}
	p.client = p.clientFor(settings.APIKey)
	return p
}

func (p *Anthropic) clientFor(key string) *anthropic.Client {
	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(p.opts.httpClient())}
	if p.settings.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(p.settings.BaseURL))
	}
	return anthropic.NewClient(key, opts...)
}

func (p *Anthropic) Name() types.ProviderName { return types.ProviderAnthropic }

func (p *Anthropic) Models() []types.ModelInfo { return catalog.Models(types.ProviderAnthropic) }

// Chat sends one message. ResponseFormat and Stream are ignored.
func (p *Anthropic) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.settings.APIKey == "" {
		return nil, llm.ConfigError(types.ProviderAnthropic, "no API key configured")
	}
	model := modelFor(types.ProviderAnthropic, req.Model)

	resp, err := p.client.CreateMessages(ctx, messagesRequest(model.ID, req))
	if err != nil {
		cerr := classifyAnthropic("chat", err)
		p.logger.Error("chat failed", zap.String("op", "chat"), zap.String("model", model.ID), zap.Error(cerr))
		return nil, cerr
	}

	out := &llm.ChatResponse{
		Content: textOf(resp),
		Model:   string(resp.Model),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	logUsage(p.logger, out.Model, out.Usage)
	return out, nil
}

// ValidateKey sends a one-token message with key.
func (p *Anthropic) ValidateKey(ctx context.Context, key string) (bool, error) {
	client := p.clientFor(key)
	probeModel := modelFor(types.ProviderAnthropic, "")
	return validateKey(ctx, types.ProviderAnthropic, key, p.opts, p.logger, func(ctx context.Context) error {
		_, err := client.CreateMessages(ctx, messagesRequest(probeModel.ID, llm.ChatRequest{Prompt: "ping", MaxTokens: 1}))
		if err != nil {
			return classifyAnthropic("validate", err)
		}
		return nil
	})
}

// ListAvailableModels validates the configured key and returns the full
// catalog, since entitlements are not enumerable.
func (p *Anthropic) ListAvailableModels(ctx context.Context) ([]types.ModelInfo, error) {
	if p.settings.APIKey == "" {
		return nil, llm.ConfigError(types.ProviderAnthropic, "no API key configured")
	}
	ok, err := p.ValidateKey(ctx, p.settings.APIKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, llm.AuthError(types.ProviderAnthropic, "list_models", http.StatusUnauthorized, nil)
	}
	return p.Models(), nil
}

func messagesRequest(model string, req llm.ChatRequest) anthropic.MessagesRequest {
	prompt := req.Prompt
	mreq := anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens(req),
		System:    req.System,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		mreq.Temperature = &t
	}
	return mreq
}

func textOf(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

func classifyAnthropic(op string, err error) *llm.Error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch string(apiErr.Type) {
		case "authentication_error", "permission_error":
			return llm.AuthError(types.ProviderAnthropic, op, http.StatusUnauthorized, err)
		}
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return llm.Classify(types.ProviderAnthropic, op, reqErr.StatusCode, err)
	}
	return llm.Classify(types.ProviderAnthropic, op, 0, err)
}
