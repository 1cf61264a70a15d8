// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review synthesizes a literature review from a brief's selected
// papers and derives its reference list and BibTeX.
package review

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/internal/search"
	"github.com/pdiddy/litbrief/pkg/types"
)

// ErrNoSelection is returned when a brief has no selected papers.
var ErrNoSelection = errors.New("no papers selected")

// Store is the persistence the service needs.
type Store interface {
	GetBrief(ctx context.Context, id string) (*types.Brief, error)
	ListAssociations(ctx context.Context, briefID string) ([]types.PaperBriefAssociation, error)
	ListBriefPapers(ctx context.Context, briefID string) ([]types.Paper, error)
	UpdateBrief(ctx context.Context, id string, patch types.BriefPatch) (*types.Brief, error)
}

// Options tune the completion request.
type Options struct {
	MaxTokens   int
	Temperature float64
	MaxAttempts int
	Logger      *zap.Logger
}

// Service writes reviews.
type Service struct {
	store    Store
	resolver llm.ModelResolver
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// New returns a Service.
func New(store Store, resolver llm.ModelResolver, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, resolver: resolver, opts: opts, logger: logger, now: time.Now}
}

// Result is a stored review.
type Result struct {
	Brief *types.Brief

	// Unknown lists citation keys in the review that match no selected paper.
	Unknown []string

	Model string
	Usage llm.Usage
}

var promptTmpl = template.Must(template.New("review").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Write a concise literature review in Markdown that answers the research question below, drawing only on the listed papers.

Cite papers inline with their key in square brackets, for example [{{(index .Papers 0).Key}}], or [key1; key2] for several. Use only the keys listed. Do not add a reference list.

Research question:
{{.Query}}

Papers:
{{range .Papers}}
[{{.Key}}] {{.Paper.Title}}
authors: {{join .Paper.Authors ", "}}
{{if .Paper.Year}}year: {{.Paper.Year}}
{{end}}abstract: {{.Paper.Abstract}}
{{end}}`))

type keyedPaper struct {
	Key   string
	Paper types.Paper
}

// Generate writes a review of the brief's selected papers and stores the
// review text, references, and BibTeX. It marks the brief completed.
func (s *Service) Generate(ctx context.Context, briefID string) (*Result, error) {
	brief, err := s.store.GetBrief(ctx, briefID)
	if err != nil {
		return nil, err
	}
	selected, err := s.selectedPapers(ctx, briefID)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, ErrNoSelection
	}
	keys := AssignKeys(selected)

	resolved, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(
		zap.String("brief_id", briefID),
		zap.String("provider", string(resolved.Provider.Name())),
		zap.String("model", resolved.Model.ID))

	keyed := make([]keyedPaper, len(selected))
	for i, p := range selected {
		keyed[i] = keyedPaper{Key: keys[p.ID], Paper: p}
	}
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, struct {
		Query  string
		Papers []keyedPaper
	}{brief.Query, keyed}); err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	req := llm.ChatRequest{
		Prompt:      buf.String(),
		Model:       resolved.Model.ID,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: llm.Float(s.opts.Temperature),
	}
	resp, err := llm.Retry(ctx, logger, "review", s.opts.MaxAttempts, func(ctx context.Context) (*llm.ChatResponse, error) {
		return resolved.Provider.Chat(ctx, req)
	})
	if err != nil {
		logger.Warn("review request failed", zap.Error(err))
		return nil, err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, llm.ParseError("model returned an empty review", nil)
	}

	unknown := UnknownCitations(text, keys)
	if len(unknown) > 0 {
		logger.Warn("review cites unknown keys", zap.Strings("keys", unknown))
	}
	refs, bibtex := references(text, selected, keys)

	completed := s.now().UTC()
	updated, err := s.store.UpdateBrief(ctx, briefID, types.BriefPatch{
		Review:        &text,
		References:    refs,
		SetReferences: true,
		Bibtex:        &bibtex,
		CompletedAt:   &completed,
	})
	if err != nil {
		return nil, fmt.Errorf("storing review: %w", err)
	}
	logger.Info("generated review",
		zap.Int("references", len(refs)),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return &Result{Brief: updated, Unknown: unknown, Model: resp.Model, Usage: resp.Usage}, nil
}

func (s *Service) selectedPapers(ctx context.Context, briefID string) ([]types.Paper, error) {
	assocs, err := s.store.ListAssociations(ctx, briefID)
	if err != nil {
		return nil, err
	}
	selected := make(map[string]bool)
	for _, a := range assocs {
		if a.Selected {
			selected[a.PaperID] = true
		}
	}
	papers, err := s.store.ListBriefPapers(ctx, briefID)
	if err != nil {
		return nil, err
	}
	var out []types.Paper
	for _, p := range papers {
		if selected[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// references lists the cited papers in order of first citation, or every
// selected paper when the review cites none, along with their BibTeX.
func references(text string, papers []types.Paper, keys map[string]string) ([]types.Reference, string) {
	byKey := make(map[string]types.Paper, len(papers))
	for _, p := range papers {
		byKey[keys[p.ID]] = p
	}

	var cited []types.Paper
	for _, k := range extractCitationKeys(text, knownSet(keys)) {
		if p, ok := byKey[k]; ok {
			cited = append(cited, p)
		}
	}
	if len(cited) == 0 {
		cited = papers
	}

	refs := make([]types.Reference, len(cited))
	entries := make([]string, len(cited))
	for i, p := range cited {
		refs[i] = types.Reference{PaperID: p.ID, Citation: FormatReference(p), PDFLink: p.Links.PDF}
		entries[i] = search.BibTeXWithKey(p, keys[p.ID])
	}
	return refs, strings.Join(entries, "\n\n") + "\n"
}
