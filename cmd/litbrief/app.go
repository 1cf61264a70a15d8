// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/provider"
	"github.com/pdiddy/litbrief/internal/querygen"
	"github.com/pdiddy/litbrief/internal/refine"
	"github.com/pdiddy/litbrief/internal/relevancy"
	"github.com/pdiddy/litbrief/internal/review"
	"github.com/pdiddy/litbrief/internal/search"
	"github.com/pdiddy/litbrief/internal/secrets"
	"github.com/pdiddy/litbrief/internal/store"
	"github.com/pdiddy/litbrief/internal/workflow"
	"github.com/pdiddy/litbrief/pkg/types"
)

// app holds the components one command invocation works with.
type app struct {
	cfg      types.Config
	store    *store.Store
	registry *provider.Registry
	limiter  *search.RateLimiter
	pipeline *workflow.Pipeline
}

// openApp wires the store, the provider registry, the rate-limited arXiv
// client, and the brief services.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(st, provider.DefaultFactories(), provider.Options{
		Logger:     logger.Named("provider"),
		MaxRetries: cfg.AI.MaxRetries,
		Referer:    cfg.AI.Referer,
		Title:      cfg.AI.Title,
	})
	if err := registry.Load(ctx); err != nil {
		st.Close()
		return nil, err
	}
	if err := seedKeys(ctx, registry, cfg.SecretsDir); err != nil {
		st.Close()
		return nil, err
	}
	if cfg.AI.Provider != "" {
		if err := registry.SetActive(cfg.AI.Provider, cfg.AI.Model); err != nil {
			st.Close()
			return nil, err
		}
	}

	limiter := search.NewRateLimiter(search.NewArxivClient(cfg.Search, logger.Named("arxiv")), cfg.Search.MinInterval, logger.Named("ratelimit"))

	pipeline := workflow.NewPipeline(workflow.Deps{
		Store: st,
		Queries: querygen.New(st, registry, querygen.Options{
			MaxTokens: cfg.AI.MaxTokens, Temperature: cfg.AI.Temperature, Logger: logger.Named("querygen"),
		}),
		Scorer: relevancy.New(st, registry, relevancy.Options{
			BatchFraction: cfg.Relevancy.BatchFraction,
			MaxTokens:     cfg.AI.MaxTokens, Temperature: cfg.AI.Temperature, Logger: logger.Named("relevancy"),
		}),
		Reviewer: review.New(st, registry, review.Options{
			MaxTokens: cfg.AI.MaxTokens, Temperature: cfg.AI.Temperature, Logger: logger.Named("review"),
		}),
		Refiner: refine.New(st, registry, refine.Options{
			MaxTokens: cfg.AI.MaxTokens, Temperature: cfg.AI.Temperature, Logger: logger.Named("refine"),
		}),
		Searcher:   limiter,
		MaxResults: cfg.Search.MaxResults,
		Logger:     logger.Named("workflow"),
	})

	return &app{cfg: cfg, store: st, registry: registry, limiter: limiter, pipeline: pipeline}, nil
}

func (a *app) close() {
	a.limiter.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("closing store", zap.Error(err))
	}
}

// seedKeys stores API keys found in the secrets directory for providers
// that have none saved yet. Saved keys take precedence.
func seedKeys(ctx context.Context, registry *provider.Registry, dir string) error {
	loaded, err := secrets.Load(dir, logger.Named("secrets"))
	if err != nil {
		return err
	}
	for name, key := range secrets.ProviderKeys(loaded, registry.Names()) {
		s, ok := registry.Settings(name)
		if ok && s.APIKey != "" {
			continue
		}
		s.APIKey = key
		if err := registry.UpdateProviderSettings(ctx, name, s); err != nil {
			return fmt.Errorf("seeding %s key: %w", name, err)
		}
		logger.Info("stored API key from secrets", zap.String("provider", string(name)))
	}
	return nil
}

// runWithApp opens the app for the duration of fn.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
