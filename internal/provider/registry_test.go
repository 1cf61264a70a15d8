// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// keyedProvider records the key it was built with.
type keyedProvider struct {
	llm.MockProvider
	key string
}

func keyedFactory(built *[]string, mu *sync.Mutex) Factory {
	return func(s types.ProviderSettings, _ Options) llm.CompletionProvider {
		mu.Lock()
		*built = append(*built, s.APIKey)
		mu.Unlock()
		return &keyedProvider{MockProvider: llm.MockProvider{ProviderName: s.Provider}, key: s.APIKey}
	}
}

type memSettings struct {
	saved   []types.ProviderSettings
	failErr error
}

func (m *memSettings) ListProviderSettings(context.Context) ([]types.ProviderSettings, error) {
	return m.saved, nil
}

func (m *memSettings) SaveProviderSettings(_ context.Context, s types.ProviderSettings) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.saved = append(m.saved, s)
	return nil
}

func newTestRegistry(t *testing.T, store SettingsStore) (*Registry, *[]string) {
	t.Helper()
	var built []string
	var mu sync.Mutex
	r := NewRegistry(store, map[types.ProviderName]Factory{
		types.ProviderOpenAI: keyedFactory(&built, &mu),
	}, Options{})
	return r, &built
}

func TestRegistryProviderUnknown(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	_, err := r.Provider("nope")
	require.Error(t, err)
	assert.True(t, llm.IsKind(err, llm.KindConfig))
}

func TestRegistryUpdateSwapsInstance(t *testing.T) {
	store := &memSettings{}
	r, _ := newTestRegistry(t, store)

	before, err := r.Provider(types.ProviderOpenAI)
	require.NoError(t, err)

	require.NoError(t, r.UpdateProviderSettings(context.Background(), types.ProviderOpenAI, types.ProviderSettings{APIKey: "sk-new-key"}))

	after, err := r.Provider(types.ProviderOpenAI)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, "", before.(*keyedProvider).key, "old instance is never mutated")
	assert.Equal(t, "sk-new-key", after.(*keyedProvider).key)

	require.Len(t, store.saved, 1)
	assert.Equal(t, types.ProviderOpenAI, store.saved[0].Provider)
	assert.False(t, store.saved[0].CreatedAt.IsZero())
	assert.NotNil(t, store.saved[0].EnabledModels)
}

func TestRegistryUpdateKeepsCreatedAt(t *testing.T) {
	r, _ := newTestRegistry(t, &memSettings{})
	ctx := context.Background()
	require.NoError(t, r.UpdateProviderSettings(ctx, types.ProviderOpenAI, types.ProviderSettings{APIKey: "sk-one-key"}))
	first, _ := r.Settings(types.ProviderOpenAI)
	require.NoError(t, r.UpdateProviderSettings(ctx, types.ProviderOpenAI, types.ProviderSettings{APIKey: "sk-two-key"}))
	second, _ := r.Settings(types.ProviderOpenAI)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func TestRegistryUpdateStoreFailureLeavesInstance(t *testing.T) {
	store := &memSettings{failErr: errors.New("disk full")}
	r, _ := newTestRegistry(t, store)
	before, _ := r.Provider(types.ProviderOpenAI)

	err := r.UpdateProviderSettings(context.Background(), types.ProviderOpenAI, types.ProviderSettings{APIKey: "sk-new-key"})
	require.ErrorContains(t, err, "disk full")

	after, _ := r.Provider(types.ProviderOpenAI)
	assert.Same(t, before, after)
	_, ok := r.Settings(types.ProviderOpenAI)
	assert.False(t, ok)
}

func TestRegistryProviderWithKeyIsolated(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	ctx := context.Background()
	require.NoError(t, r.UpdateProviderSettings(ctx, types.ProviderOpenAI, types.ProviderSettings{APIKey: "sk-live-key"}))
	live, _ := r.Provider(types.ProviderOpenAI)

	temp, err := r.ProviderWithKey(types.ProviderOpenAI, "sk-candidate")
	require.NoError(t, err)
	assert.Equal(t, "sk-candidate", temp.(*keyedProvider).key)

	still, _ := r.Provider(types.ProviderOpenAI)
	assert.Same(t, live, still)
	s, _ := r.Settings(types.ProviderOpenAI)
	assert.Equal(t, "sk-live-key", s.APIKey)
}

func TestRegistryLoad(t *testing.T) {
	store := &memSettings{saved: []types.ProviderSettings{
		{Provider: types.ProviderOpenAI, APIKey: "sk-stored-key", SelectedModel: "gpt-4o"},
		{Provider: "retired-vendor", APIKey: "x"},
	}}
	r, _ := newTestRegistry(t, store)
	require.NoError(t, r.Load(context.Background()))

	p, err := r.Provider(types.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-stored-key", p.(*keyedProvider).key)
	_, err = r.Provider("retired-vendor")
	assert.Error(t, err)
}

func TestRegistryResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("no active provider", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil)
		_, err := r.Resolve(ctx)
		assert.True(t, llm.IsKind(err, llm.KindConfig))
	})

	t.Run("no key", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil)
		require.NoError(t, r.SetActive(types.ProviderOpenAI, ""))
		_, err := r.Resolve(ctx)
		require.Error(t, err)
		assert.True(t, llm.IsKind(err, llm.KindConfig))
		assert.Contains(t, err.Error(), "no API key")
	})

	t.Run("catalog default", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil)
		require.NoError(t, r.SetActive(types.ProviderOpenAI, ""))
		require.NoError(t, r.UpdateProviderSettings(ctx, types.ProviderOpenAI, types.ProviderSettings{APIKey: "sk-live-key"}))
		res, err := r.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", res.Model.ID)
		assert.True(t, res.Model.SupportsStructuredOutput)
	})

	t.Run("selected and override", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil)
		require.NoError(t, r.UpdateProviderSettings(ctx, types.ProviderOpenAI, types.ProviderSettings{APIKey: "sk-live-key", SelectedModel: "gpt-4o"}))
		require.NoError(t, r.SetActive(types.ProviderOpenAI, ""))
		res, err := r.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", res.Model.ID)

		require.NoError(t, r.SetActive(types.ProviderOpenAI, "o3-mini"))
		res, err = r.Resolve(ctx)
		require.NoError(t, err)
		assert.True(t, res.Model.Reasoning)
	})

	t.Run("disabled model", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil)
		require.NoError(t, r.UpdateProviderSettings(ctx, types.ProviderOpenAI, types.ProviderSettings{
			APIKey: "sk-live-key", SelectedModel: "gpt-4o", EnabledModels: map[string]bool{"gpt-4o": false},
		}))
		require.NoError(t, r.SetActive(types.ProviderOpenAI, ""))
		_, err := r.Resolve(ctx)
		assert.True(t, llm.IsKind(err, llm.KindConfig))
	})

	t.Run("unregistered active", func(t *testing.T) {
		r, _ := newTestRegistry(t, nil)
		assert.Error(t, r.SetActive("nope", ""))
	})
}

func TestDefaultFactoriesBuildEveryVendor(t *testing.T) {
	r := NewRegistry(nil, DefaultFactories(), Options{})
	assert.Equal(t, []types.ProviderName{
		types.ProviderAnthropic, types.ProviderGemini, types.ProviderOpenAI, types.ProviderOpenRouter,
	}, r.Names())
	for _, name := range r.Names() {
		p, err := r.Provider(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
		assert.NotEmpty(t, p.Models())

		_, err = p.Chat(context.Background(), llm.ChatRequest{Prompt: "hi"})
		assert.True(t, llm.IsKind(err, llm.KindConfig), "%s without key must be a config error", name)
	}
}

func TestKeyFormatValid(t *testing.T) {
	tests := []struct {
		name types.ProviderName
		key  string
		want bool
	}{
		{types.ProviderOpenAI, "sk-proj-abcdef", true},
		{types.ProviderOpenAI, "abcdefghijk", false},
		{types.ProviderAnthropic, "sk-ant-api03-xyz", true},
		{types.ProviderAnthropic, "sk-proj-abcdef", false},
		{types.ProviderGemini, "AIzaSyExample", true},
		{types.ProviderOpenRouter, "sk-or-v1-abcdef", true},
		{types.ProviderOpenRouter, "sk-", false},
		{"custom", "whatever-key", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KeyFormatValid(tt.name, tt.key), "%s %q", tt.name, tt.key)
	}
}
