// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevancy scores candidate papers against a brief's research
// question in batches. Every paper it takes on ends with a stored score;
// unreadable model output degrades to a low-confidence default.
package relevancy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// DefaultBatchFraction is the share of the unscored backlog scored per call.
const DefaultBatchFraction = 0.25

// Store is the persistence the service needs.
type Store interface {
	GetBrief(ctx context.Context, id string) (*types.Brief, error)
	ListAssociations(ctx context.Context, briefID string) ([]types.PaperBriefAssociation, error)
	UpsertRelevancy(ctx context.Context, briefID, paperID string, data types.RelevancyData) (*types.PaperBriefAssociation, error)
}

// Options tune batching and the completion request.
type Options struct {
	// BatchFraction in (0, 1]; zero or out of range uses DefaultBatchFraction.
	BatchFraction float64
	MaxTokens     int
	Temperature   float64
	MaxAttempts   int
	Logger        *zap.Logger
}

// Progress receives the percentage of the current batch stored so far.
type Progress func(percent int)

// Service scores papers.
type Service struct {
	store    Store
	resolver llm.ModelResolver
	opts     Options
	logger   *zap.Logger
}

// New returns a Service.
func New(store Store, resolver llm.ModelResolver, opts Options) *Service {
	if opts.BatchFraction <= 0 || opts.BatchFraction > 1 {
		opts.BatchFraction = DefaultBatchFraction
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, resolver: resolver, opts: opts, logger: logger}
}

// Result summarizes one scoring call.
type Result struct {
	// Scores holds the stored record for every paper in the batch.
	Scores map[string]types.RelevancyData

	// Degraded counts papers that received the default score.
	Degraded int

	// Remaining counts unscored papers left for later calls.
	Remaining int
}

// BatchSize returns how many of n unscored papers one call takes:
// floor(n * fraction), at least one, at most n.
func BatchSize(n int, fraction float64) int {
	if n <= 0 {
		return 0
	}
	size := int(math.Floor(float64(n) * fraction))
	return min(max(size, 1), n)
}

// Score scores the leading batch of papers that have no score for the
// brief yet. A ConfigError from model resolution returns before anything
// is stored. A failed or unreadable completion does not fail the call; the
// affected papers get DefaultScore instead. Store failures are returned
// after every paper in the batch has been attempted.
func (s *Service) Score(ctx context.Context, briefID string, papers []types.Paper, progress Progress) (*Result, error) {
	brief, err := s.store.GetBrief(ctx, briefID)
	if err != nil {
		return nil, err
	}
	assocs, err := s.store.ListAssociations(ctx, briefID)
	if err != nil {
		return nil, err
	}

	unscored := unscoredPapers(papers, assocs)
	res := &Result{Scores: make(map[string]types.RelevancyData)}
	if len(unscored) == 0 {
		return res, nil
	}
	batch := unscored[:BatchSize(len(unscored), s.opts.BatchFraction)]
	res.Remaining = len(unscored) - len(batch)

	resolved, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(
		zap.String("brief_id", briefID),
		zap.String("provider", string(resolved.Provider.Name())),
		zap.String("model", resolved.Model.ID),
		zap.Int("batch", len(batch)))

	parsed, failure := s.request(ctx, logger, resolved, brief.Query, batch)

	var errs []error
	for i, p := range batch {
		data, ok := parsed[p.ID]
		if !ok {
			reason := failure
			if reason == "" {
				reason = "the model returned no score for this paper"
			}
			data = DefaultScore(reason)
			res.Degraded++
		}
		if _, err := s.store.UpsertRelevancy(ctx, briefID, p.ID, data); err != nil {
			logger.Error("storing relevancy", zap.String("paper_id", p.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("paper %s: %w", p.ID, err))
			continue
		}
		res.Scores[p.ID] = data
		if progress != nil {
			progress((i + 1) * 100 / len(batch))
		}
	}

	logger.Info("scored papers",
		zap.Int("scored", len(res.Scores)),
		zap.Int("degraded", res.Degraded),
		zap.Int("remaining", res.Remaining))
	if len(errs) > 0 {
		return res, fmt.Errorf("storing relevancy: %w", errors.Join(errs...))
	}
	return res, nil
}

// request runs the completion and parse. It returns the scores by paper id
// and, when the whole batch failed, a reason for the default scores.
func (s *Service) request(ctx context.Context, logger *zap.Logger, resolved llm.Resolved, query string, batch []types.Paper) (map[string]types.RelevancyData, string) {
	prompt, err := renderPrompt(query, batch, resolved.Model)
	if err != nil {
		logger.Error("rendering relevancy prompt", zap.Error(err))
		return nil, "the scoring prompt could not be built"
	}
	req := llm.ChatRequest{
		Prompt:         prompt,
		Model:          resolved.Model.ID,
		MaxTokens:      s.opts.MaxTokens,
		Temperature:    llm.Float(s.opts.Temperature),
		ResponseFormat: llm.ResponseFormatFor(resolved.Model, "relevancy_scores", responseSchema),
	}
	resp, err := llm.Retry(ctx, logger, "relevancy", s.opts.MaxAttempts, func(ctx context.Context) (*llm.ChatResponse, error) {
		return resolved.Provider.Chat(ctx, req)
	})
	if err != nil {
		logger.Warn("relevancy request failed, using default scores", zap.Error(err))
		return nil, "scoring request failed: " + err.Error()
	}

	parsed, err := llm.Parse(resp.Content, llm.AttemptsFor(resolved.Model), validateResponse)
	if err != nil {
		logger.Warn("relevancy response unreadable, using default scores", zap.Error(err))
		return nil, "the model response could not be parsed"
	}

	out := make(map[string]types.RelevancyData, len(parsed.Scores))
	for _, sc := range parsed.Scores {
		id := normalizeID(sc.PaperID)
		if _, dup := out[id]; dup {
			continue
		}
		out[id] = sc.data()
	}
	return out, ""
}

// DefaultScore is the low-confidence record stored when no usable score
// was returned for a paper.
func DefaultScore(reason string) types.RelevancyData {
	return types.RelevancyData{
		OverallScore:    1,
		Reasons:         []types.RelevancyReason{{Reason: reason, Impact: 0}},
		MatchedKeywords: []string{},
		Confidence:      1,
	}
}

// unscoredPapers keeps papers without a stored relevancy record, in input
// order and without duplicates.
func unscoredPapers(papers []types.Paper, assocs []types.PaperBriefAssociation) []types.Paper {
	scored := make(map[string]bool, len(assocs))
	for _, a := range assocs {
		if a.Scored() {
			scored[a.PaperID] = true
		}
	}
	var out []types.Paper
	for _, p := range papers {
		if p.ID == "" || scored[p.ID] {
			continue
		}
		scored[p.ID] = true
		out = append(out, p)
	}
	return out
}

// normalizeID undoes the decorations models add to ids: whitespace, an
// "arXiv:" prefix, and a version suffix.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 6 && strings.EqualFold(id[:6], "arxiv:") {
		id = id[6:]
	}
	if i := strings.LastIndex(id, "v"); i > 0 && i < len(id)-1 {
		digits := true
		for _, r := range id[i+1:] {
			if r < '0' || r > '9' {
				digits = false
				break
			}
		}
		if digits {
			id = id[:i]
		}
	}
	return id
}

// response is the shape the model is asked to return.
type response struct {
	Scores []paperScore `json:"scores"`
}

type paperScore struct {
	PaperID         string                  `json:"paperId"`
	OverallScore    float64                 `json:"overallScore"`
	Reasons         []types.RelevancyReason `json:"reasons"`
	MatchedKeywords []string                `json:"matchedKeywords"`
	Confidence      float64                 `json:"confidence"`
}

func (p paperScore) data() types.RelevancyData {
	reasons := p.Reasons
	if reasons == nil {
		reasons = []types.RelevancyReason{}
	}
	keywords := p.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	return types.RelevancyData{
		OverallScore:    clampPercent(p.OverallScore),
		Reasons:         reasons,
		MatchedKeywords: keywords,
		Confidence:      clampPercent(p.Confidence),
	}
}

func clampPercent(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func validateResponse(r *response) error {
	if r.Scores == nil {
		return errors.New(`response has no "scores" array`)
	}
	return nil
}

var responseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "scores": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "paperId": {"type": "string"},
          "overallScore": {"type": "integer"},
          "reasons": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {"reason": {"type": "string"}, "impact": {"type": "integer"}},
              "required": ["reason", "impact"],
              "additionalProperties": false
            }
          },
          "matchedKeywords": {"type": "array", "items": {"type": "string"}},
          "confidence": {"type": "integer"}
        },
        "required": ["paperId", "overallScore", "reasons", "matchedKeywords", "confidence"],
        "additionalProperties": false
      }
    }
  },
  "required": ["scores"],
  "additionalProperties": false
}`)

var promptTmpl = template.Must(template.New("relevancy").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`You judge how relevant academic papers are to a research question.

Research question:
{{.Query}}

For every paper below return:
- paperId: the id exactly as given
- overallScore: 0 to 100
- reasons: the factors behind the score, each with a signed impact (positive raises the score, negative lowers it)
- matchedKeywords: terms from the question the paper covers
- confidence: 0 to 100

Answer with this shape:
{"scores": [{"paperId": "2301.07041", "overallScore": 72, "reasons": [{"reason": "studies the same method", "impact": 30}], "matchedKeywords": ["attention"], "confidence": 80}]}

{{.Directive}}

Papers:
{{range .Papers}}
id: {{.ID}}
title: {{.Title}}
authors: {{join .Authors ", "}}
{{if .Year}}year: {{.Year}}
{{end}}abstract: {{.Abstract}}
{{end}}`))

func renderPrompt(query string, papers []types.Paper, model types.ModelInfo) (string, error) {
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, struct {
		Query     string
		Directive string
		Papers    []types.Paper
	}{
		Query:     query,
		Directive: llm.OutputDirective(model),
		Papers:    papers,
	})
	return buf.String(), err
}
