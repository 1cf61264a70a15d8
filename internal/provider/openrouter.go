// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/catalog"
	"github.com/pdiddy/litbrief/internal/httputil"
	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// openRouterAPIBase is the default endpoint. Declared as a var so tests
// can substitute an httptest server.
var openRouterAPIBase = "https://openrouter.ai/api/v1"

// OpenRouter speaks the OpenAI-compatible wire format over plain HTTP and
// reports model capabilities from its public model index.
type OpenRouter struct {
	settings types.ProviderSettings
	opts     Options
	logger   *zap.Logger
}

var _ llm.CompletionProvider = (*OpenRouter)(nil)

// NewOpenRouter builds a provider bound to settings.APIKey.
func NewOpenRouter(settings types.ProviderSettings, opts Options) *OpenRouter {
	return &OpenRouter{
		settings: settings,
		opts:     opts,
		logger:   opts.logger(types.ProviderOpenRouter),
	}
}

func (p *OpenRouter) Name() types.ProviderName { return types.ProviderOpenRouter }

func (p *OpenRouter) Models() []types.ModelInfo { return catalog.Models(types.ProviderOpenRouter) }

func (p *OpenRouter) baseURL() string {
	if p.settings.BaseURL != "" {
		return strings.TrimRight(p.settings.BaseURL, "/")
	}
	return openRouterAPIBase
}

type orMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type orRequest struct {
	Model          string              `json:"model"`
	Messages       []orMessage         `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    *float64            `json:"temperature,omitempty"`
	Stream         bool                `json:"stream,omitempty"`
	ResponseFormat *llm.ResponseFormat `json:"response_format,omitempty"`
}

type orUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type orResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message orMessage `json:"message"`
		Delta   orMessage `json:"delta"`
	} `json:"choices"`
	Usage *orUsage `json:"usage,omitempty"`
	Error *orError `json:"error,omitempty"`
}

type orError struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

// Chat posts to /chat/completions.
func (p *OpenRouter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.settings.APIKey == "" {
		return nil, llm.ConfigError(types.ProviderOpenRouter, "no API key configured")
	}
	model := modelFor(types.ProviderOpenRouter, req.Model)

	body := orRequest{
		Model:          model.ID,
		MaxTokens:      maxTokens(req),
		Stream:         req.Stream,
		ResponseFormat: req.ResponseFormat,
	}
	if !model.Reasoning {
		body.Temperature = req.Temperature
	}
	if req.System != "" {
		body.Messages = append(body.Messages, orMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, orMessage{Role: "user", Content: req.Prompt})

	resp, err := p.do(ctx, http.MethodPost, "/chat/completions", p.settings.APIKey, body, "chat")
	if err != nil {
		p.logger.Error("chat failed", zap.String("op", "chat"), zap.String("model", model.ID), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	var out *llm.ChatResponse
	if req.Stream {
		out, err = readOpenRouterStream(resp.Body)
	} else {
		out, err = readOpenRouterResponse(resp.Body)
	}
	if err != nil {
		return nil, llm.RequestError(types.ProviderOpenRouter, "chat", resp.StatusCode, err)
	}
	if out.Model == "" {
		out.Model = model.ID
	}
	logUsage(p.logger, out.Model, out.Usage)
	return out, nil
}

func readOpenRouterResponse(r io.Reader) (*llm.ChatResponse, error) {
	var parsed orResponse
	if err := json.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("upstream error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("response has no choices")
	}
	out := &llm.ChatResponse{Content: parsed.Choices[0].Message.Content, Model: parsed.Model}
	if parsed.Usage != nil {
		out.Usage = llm.Usage(*parsed.Usage)
	}
	return out, nil
}

// readOpenRouterStream assembles server-sent events into one response.
func readOpenRouterStream(r io.Reader) (*llm.ChatResponse, error) {
	out := &llm.ChatResponse{}
	var b strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk orResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("upstream error: %s", chunk.Error.Message)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		for _, c := range chunk.Choices {
			b.WriteString(c.Delta.Content)
		}
		if chunk.Usage != nil {
			out.Usage = llm.Usage(*chunk.Usage)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	out.Content = b.String()
	return out, nil
}

// ValidateKey queries /auth/key, which answers 401 for unknown keys.
func (p *OpenRouter) ValidateKey(ctx context.Context, key string) (bool, error) {
	return validateKey(ctx, types.ProviderOpenRouter, key, p.opts, p.logger, func(ctx context.Context) error {
		resp, err := p.do(ctx, http.MethodGet, "/auth/key", key, nil, "validate")
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil
	})
}

type orModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ContextLength int    `json:"context_length"`
	TopProvider   struct {
		MaxCompletionTokens int `json:"max_completion_tokens"`
	} `json:"top_provider"`
	SupportedParameters []string `json:"supported_parameters"`
}

// ListAvailableModels reads the public model index.
func (p *OpenRouter) ListAvailableModels(ctx context.Context) ([]types.ModelInfo, error) {
	resp, err := p.do(ctx, http.MethodGet, "/models", p.settings.APIKey, nil, "list_models")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Data []orModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, llm.RequestError(types.ProviderOpenRouter, "list_models", resp.StatusCode, fmt.Errorf("decoding models: %w", err))
	}

	models := make([]types.ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, types.ModelInfo{
			ID:                       m.ID,
			Name:                     m.Name,
			Provider:                 types.ProviderOpenRouter,
			Description:              m.Description,
			ContextWindow:            m.ContextLength,
			MaxOutputTokens:          m.TopProvider.MaxCompletionTokens,
			SupportsStructuredOutput: slices.Contains(m.SupportedParameters, "structured_outputs"),
			SupportsJSONMode:         slices.Contains(m.SupportedParameters, "response_format"),
		})
	}
	return models, nil
}

// do sends a request and classifies non-2xx answers. The caller closes the
// body of a successful response.
func (p *OpenRouter) do(ctx context.Context, method, path, key string, body any, op string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if p.opts.Referer != "" {
		req.Header.Set("HTTP-Referer", p.opts.Referer)
	}
	if p.opts.Title != "" {
		req.Header.Set("X-Title", p.opts.Title)
	}

	resp, err := httputil.DoWithRetry(ctx, p.opts.httpClient(), req, 0, p.logger)
	if err != nil {
		return nil, llm.Classify(types.ProviderOpenRouter, op, 0, err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var parsed orResponse
		if json.Unmarshal(msg, &parsed) == nil && parsed.Error != nil {
			msg = []byte(parsed.Error.Message)
		}
		return nil, llm.Classify(types.ProviderOpenRouter, op, resp.StatusCode, errors.New(strings.TrimSpace(string(msg))))
	}
	return resp, nil
}
