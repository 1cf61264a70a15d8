// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/catalog"
	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// SettingsStore persists provider settings.
type SettingsStore interface {
	ListProviderSettings(ctx context.Context) ([]types.ProviderSettings, error)
	SaveProviderSettings(ctx context.Context, s types.ProviderSettings) error
}

// Registry is the directory of live provider instances and their settings.
// Build one per process and pass it to the components that need it.
// Settings changes are written through to the store before the live
// instance is swapped; an instance is never mutated in place.
type Registry struct {
	store  SettingsStore
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu            sync.RWMutex
	factories     map[types.ProviderName]Factory
	providers     map[types.ProviderName]llm.CompletionProvider
	settings      map[types.ProviderName]types.ProviderSettings
	active        types.ProviderName
	modelOverride string
}

var _ llm.ModelResolver = (*Registry)(nil)

// NewRegistry registers factories and builds a credential-less instance
// for each. store may be nil, in which case settings live only in memory.
func NewRegistry(store SettingsStore, factories map[types.ProviderName]Factory, opts Options) *Registry {
	r := &Registry{
		store:     store,
		opts:      opts,
		logger:    opts.logger("registry"),
		now:       time.Now,
		factories: make(map[types.ProviderName]Factory),
		providers: make(map[types.ProviderName]llm.CompletionProvider),
		settings:  make(map[types.ProviderName]types.ProviderSettings),
	}
	for name, f := range factories {
		r.factories[name] = f
		r.providers[name] = f(types.ProviderSettings{Provider: name}, opts)
	}
	return r
}

// Load hydrates settings from the store and rebuilds the affected instances.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	all, err := r.store.ListProviderSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading provider settings: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range all {
		f, ok := r.factories[s.Provider]
		if !ok {
			r.logger.Warn("ignoring settings for unregistered provider", zap.String("provider", string(s.Provider)))
			continue
		}
		r.settings[s.Provider] = s
		r.providers[s.Provider] = f(s, r.opts)
	}
	return nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []types.ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]types.ProviderName, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider returns the live instance for name.
func (r *Registry) Provider(name types.ProviderName) (llm.CompletionProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, llm.ConfigError(name, "provider is not registered")
	}
	return p, nil
}

// Settings returns the stored settings for name.
func (r *Registry) Settings(name types.ProviderName) (types.ProviderSettings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[name]
	return s, ok
}

// UpdateProviderSettings persists settings and then replaces the live
// instance with one built from them. If persisting fails the live instance
// is left untouched.
func (r *Registry) UpdateProviderSettings(ctx context.Context, name types.ProviderName, s types.ProviderSettings) error {
	r.mu.RLock()
	f, ok := r.factories[name]
	prev, had := r.settings[name]
	r.mu.RUnlock()
	if !ok {
		return llm.ConfigError(name, "provider is not registered")
	}

	now := r.now().UTC()
	s.Provider = name
	s.UpdatedAt = now
	if had && !prev.CreatedAt.IsZero() {
		s.CreatedAt = prev.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.EnabledModels == nil {
		s.EnabledModels = map[string]bool{}
	}

	if r.store != nil {
		if err := r.store.SaveProviderSettings(ctx, s); err != nil {
			return fmt.Errorf("saving %s settings: %w", name, err)
		}
	}

	next := f(s, r.opts)
	r.mu.Lock()
	r.settings[name] = s
	r.providers[name] = next
	r.mu.Unlock()

	r.logger.Info("provider settings updated",
		zap.String("provider", string(name)),
		zap.String("selected_model", s.SelectedModel))
	return nil
}

// ProviderWithKey builds a throwaway instance using key, for validation
// flows. The registered instance is not touched.
func (r *Registry) ProviderWithKey(name types.ProviderName, key string) (llm.CompletionProvider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	s := r.settings[name]
	r.mu.RUnlock()
	if !ok {
		return nil, llm.ConfigError(name, "provider is not registered")
	}
	s.Provider = name
	s.APIKey = key
	return f(s, r.opts), nil
}

// SetActive chooses the provider used by Resolve. A non-empty model
// overrides the provider's selected model.
func (r *Registry) SetActive(name types.ProviderName, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return llm.ConfigError(name, "provider is not registered")
	}
	r.active = name
	r.modelOverride = model
	return nil
}

// Active returns the provider Resolve will use.
func (r *Registry) Active() types.ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Resolve returns the active provider and model. Missing credentials, an
// unset provider, or a disabled model are config errors.
func (r *Registry) Resolve(context.Context) (llm.Resolved, error) {
	r.mu.RLock()
	name := r.active
	override := r.modelOverride
	p, registered := r.providers[name]
	s, hasSettings := r.settings[name]
	r.mu.RUnlock()

	if name == "" {
		return llm.Resolved{}, llm.ConfigError("", "no provider selected")
	}
	if !registered {
		return llm.Resolved{}, llm.ConfigError(name, "provider is not registered")
	}
	if !hasSettings || s.APIKey == "" {
		return llm.Resolved{}, llm.ConfigError(name, "no API key configured")
	}

	id := override
	if id == "" {
		id = s.SelectedModel
	}
	var model types.ModelInfo
	if id == "" {
		m, ok := catalog.Default(name)
		if !ok {
			return llm.Resolved{}, llm.ConfigError(name, "no model selected")
		}
		model = m
	} else {
		model = modelFor(name, id)
	}
	if !s.ModelEnabled(model.ID) {
		return llm.Resolved{}, llm.ConfigError(name, fmt.Sprintf("model %s is disabled", model.ID))
	}
	return llm.Resolved{Provider: p, Model: model}, nil
}
