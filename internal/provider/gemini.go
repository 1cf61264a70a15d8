// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/pdiddy/litbrief/internal/catalog"
	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// Gemini talks to the Gemini API through the genai SDK. JSON mode is
// requested with a response MIME type; schemas are not sent.
type Gemini struct {
	settings types.ProviderSettings
	opts     Options
	logger   *zap.Logger
}

var _ llm.CompletionProvider = (*Gemini)(nil)

// NewGemini builds a provider bound to settings.APIKey.
func NewGemini(settings types.ProviderSettings, opts Options) *Gemini {
	return &Gemini{
		settings: settings,
		opts:     opts,
		logger:   opts.logger(types.ProviderGemini),
	}
}

func (p *Gemini) client(ctx context.Context, key string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.opts.httpClient(),
	}
	if p.settings.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.settings.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, llm.ConfigError(types.ProviderGemini, "creating client: "+err.Error())
	}
	return c, nil
}

func (p *Gemini) Name() types.ProviderName { return types.ProviderGemini }

func (p *Gemini) Models() []types.ModelInfo { return catalog.Models(types.ProviderGemini) }

// Chat generates content for one user turn.
func (p *Gemini) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.settings.APIKey == "" {
		return nil, llm.ConfigError(types.ProviderGemini, "no API key configured")
	}
	client, err := p.client(ctx, p.settings.APIKey)
	if err != nil {
		return nil, err
	}
	model := modelFor(types.ProviderGemini, req.Model)

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens(req))}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.ResponseFormat != nil {
		cfg.ResponseMIMEType = "application/json"
	}
	contents := genai.Text(req.Prompt)

	out := &llm.ChatResponse{Model: model.ID}
	if req.Stream {
		var b strings.Builder
		for chunk, err := range client.Models.GenerateContentStream(ctx, model.ID, contents, cfg) {
			if err != nil {
				return nil, p.fail("chat", model.ID, err)
			}
			b.WriteString(chunk.Text())
			p.absorb(out, chunk)
		}
		out.Content = b.String()
	} else {
		resp, err := client.Models.GenerateContent(ctx, model.ID, contents, cfg)
		if err != nil {
			return nil, p.fail("chat", model.ID, err)
		}
		out.Content = resp.Text()
		p.absorb(out, resp)
	}
	logUsage(p.logger, out.Model, out.Usage)
	return out, nil
}

func (p *Gemini) absorb(out *llm.ChatResponse, resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
}

func (p *Gemini) fail(op, model string, err error) error {
	cerr := classifyGemini(op, err)
	p.logger.Error("request failed", zap.String("op", op), zap.String("model", model), zap.Error(cerr))
	return cerr
}

// ValidateKey lists one page of models with key.
func (p *Gemini) ValidateKey(ctx context.Context, key string) (bool, error) {
	return validateKey(ctx, types.ProviderGemini, key, p.opts, p.logger, func(ctx context.Context) error {
		client, err := p.client(ctx, key)
		if err != nil {
			return err
		}
		if _, err := client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
			return classifyGemini("validate", err)
		}
		return nil
	})
}

// ListAvailableModels intersects the account's models with the catalog.
func (p *Gemini) ListAvailableModels(ctx context.Context) ([]types.ModelInfo, error) {
	if p.settings.APIKey == "" {
		return nil, llm.ConfigError(types.ProviderGemini, "no API key configured")
	}
	client, err := p.client(ctx, p.settings.APIKey)
	if err != nil {
		return nil, err
	}
	var ids []string
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, p.fail("list_models", "", err)
		}
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return catalog.Intersect(types.ProviderGemini, ids), nil
}

func classifyGemini(op string, err error) *llm.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyGeminiStatus(op, apiErr.Code, apiErr.Status, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyGeminiStatus(op, apiErrPtr.Code, apiErrPtr.Status, err)
	}
	return llm.Classify(types.ProviderGemini, op, 0, err)
}

// classifyGeminiStatus treats INVALID_ARGUMENT with a bad key as auth;
// Gemini reports rejected keys as HTTP 400.
func classifyGeminiStatus(op string, code int, status string, err error) *llm.Error {
	if code == 400 && strings.Contains(strings.ToLower(err.Error()), "api key") {
		return llm.AuthError(types.ProviderGemini, op, code, err)
	}
	if status == "UNAUTHENTICATED" || status == "PERMISSION_DENIED" {
		return llm.AuthError(types.ProviderGemini, op, code, err)
	}
	return llm.Classify(types.ProviderGemini, op, code, err)
}
