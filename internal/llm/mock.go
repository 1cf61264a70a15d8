// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"sync"

	"github.com/pdiddy/litbrief/pkg/types"
)

// MockProvider is a scripted CompletionProvider for tests. Responses are
// returned in order; once exhausted the last one repeats. ChatFunc, when set,
// takes precedence.
type MockProvider struct {
	ProviderName types.ProviderName
	Responses    []string
	Err          error
	ChatFunc     func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ValidKey     string
	Catalog      []types.ModelInfo

	mu       sync.Mutex
	requests []ChatRequest
}

var _ CompletionProvider = (*MockProvider)(nil)

func (m *MockProvider) Name() types.ProviderName {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	n := len(m.requests)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	content := ""
	if len(m.Responses) > 0 {
		i := n - 1
		if i >= len(m.Responses) {
			i = len(m.Responses) - 1
		}
		content = m.Responses[i]
	}
	return &ChatResponse{
		Content: content,
		Model:   req.Model,
		Usage:   Usage{PromptTokens: len(req.Prompt) / 4, CompletionTokens: len(content) / 4, TotalTokens: (len(req.Prompt) + len(content)) / 4},
	}, nil
}

func (m *MockProvider) ValidateKey(_ context.Context, key string) (bool, error) {
	return key != "" && key == m.ValidKey, nil
}

func (m *MockProvider) Models() []types.ModelInfo { return m.Catalog }

func (m *MockProvider) ListAvailableModels(context.Context) ([]types.ModelInfo, error) {
	return m.Catalog, nil
}

// Requests returns every request received so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// StaticResolver always resolves to the same provider and model.
type StaticResolver struct {
	Resolved Resolved
	Err      error
}

func (s StaticResolver) Resolve(context.Context) (Resolved, error) {
	return s.Resolved, s.Err
}
