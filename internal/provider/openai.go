// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/catalog"
	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// OpenAI talks to the OpenAI chat completions API.
type OpenAI struct {
	settings types.ProviderSettings
	opts     Options
	client   *openai.Client
	logger   *zap.Logger
}

var _ llm.CompletionProvider = (*OpenAI)(nil)

// NewOpenAI builds a provider bound to settings.APIKey.
func NewOpenAI(settings types.ProviderSettings, opts Options) *OpenAI {
	p := &OpenAI{
		settings: settings,
		opts:     opts,
		logger:   opts.logger(types.ProviderOpenAI),
	}
	p.client = p.clientFor(settings.APIKey)
	return p
}

func (p *OpenAI) clientFor(key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if p.settings.BaseURL != "" {
		cfg.BaseURL = p.settings.BaseURL
	}
	cfg.HTTPClient = p.opts.httpClient()
	return openai.NewClientWithConfig(cfg)
}

func (p *OpenAI) Name() types.ProviderName { return types.ProviderOpenAI }

func (p *OpenAI) Models() []types.ModelInfo { return catalog.Models(types.ProviderOpenAI) }

// Chat sends one completion. Reasoning models get max_completion_tokens and
// no temperature.
func (p *OpenAI) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.settings.APIKey == "" {
		return nil, llm.ConfigError(types.ProviderOpenAI, "no API key configured")
	}
	model := modelFor(types.ProviderOpenAI, req.Model)

	creq := openai.ChatCompletionRequest{
		Model:    model.ID,
		Messages: openAIMessages(req),
	}
	if model.Reasoning {
		creq.MaxCompletionTokens = maxTokens(req)
	} else {
		creq.MaxTokens = maxTokens(req)
		if req.Temperature != nil {
			creq.Temperature = float32(*req.Temperature)
		}
	}
	if rf := req.ResponseFormat; rf != nil {
		creq.ResponseFormat = openAIResponseFormat(rf)
	}

	if req.Stream {
		return p.stream(ctx, creq)
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		cerr := classifyOpenAI(types.ProviderOpenAI, "chat", err)
		p.logger.Error("chat failed", zap.String("op", "chat"), zap.String("model", model.ID), zap.Error(cerr))
		return nil, cerr
	}
	if len(resp.Choices) == 0 {
		return nil, llm.RequestError(types.ProviderOpenAI, "chat", 0, errors.New("response has no choices"))
	}

	out := &llm.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	logUsage(p.logger, out.Model, out.Usage)
	return out, nil
}

func (p *OpenAI) stream(ctx context.Context, creq openai.ChatCompletionRequest) (*llm.ChatResponse, error) {
	creq.Stream = true
	creq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, classifyOpenAI(types.ProviderOpenAI, "chat", err)
	}
	defer stream.Close()

	out := &llm.ChatResponse{Model: creq.Model}
	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classifyOpenAI(types.ProviderOpenAI, "chat", err)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		for _, c := range chunk.Choices {
			b.WriteString(c.Delta.Content)
		}
		if chunk.Usage != nil {
			out.Usage = llm.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
	}
	out.Content = b.String()
	logUsage(p.logger, out.Model, out.Usage)
	return out, nil
}

// ValidateKey lists models with key, the cheapest authenticated call.
func (p *OpenAI) ValidateKey(ctx context.Context, key string) (bool, error) {
	client := p.clientFor(key)
	return validateKey(ctx, types.ProviderOpenAI, key, p.opts, p.logger, func(ctx context.Context) error {
		_, err := client.ListModels(ctx)
		if err != nil {
			return classifyOpenAI(types.ProviderOpenAI, "validate", err)
		}
		return nil
	})
}

// ListAvailableModels intersects the account's models with the catalog.
func (p *OpenAI) ListAvailableModels(ctx context.Context) ([]types.ModelInfo, error) {
	if p.settings.APIKey == "" {
		return nil, llm.ConfigError(types.ProviderOpenAI, "no API key configured")
	}
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, classifyOpenAI(types.ProviderOpenAI, "list_models", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return catalog.Intersect(types.ProviderOpenAI, ids), nil
}

func openAIMessages(req llm.ChatRequest) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
}

func openAIResponseFormat(rf *llm.ResponseFormat) *openai.ChatCompletionResponseFormat {
	switch rf.Type {
	case llm.FormatJSONSchema:
		if rf.JSONSchema == nil {
			return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
		}
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   rf.JSONSchema.Name,
				Strict: rf.JSONSchema.Strict,
				Schema: rf.JSONSchema.Schema,
			},
		}
	case llm.FormatJSONObject:
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	default:
		return nil
	}
}

// classifyOpenAI maps go-openai errors into the taxonomy. It is shared by
// every OpenAI-compatible endpoint.
func classifyOpenAI(name types.ProviderName, op string, err error) *llm.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.Classify(name, op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.Classify(name, op, reqErr.HTTPStatusCode, err)
	}
	return llm.Classify(name, op, 0, err)
}
