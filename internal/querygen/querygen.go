// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package querygen turns a brief's research question into index-specific
// search terms and an optional submission-date constraint.
package querygen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/pkg/types"
)

// MaxQueries caps how many generated terms are kept from one response.
const MaxQueries = 4

// BriefStore is the persistence the service needs.
type BriefStore interface {
	GetBrief(ctx context.Context, id string) (*types.Brief, error)
	// UpdateBriefFunc applies fn to the latest stored brief and writes it
	// back atomically.
	UpdateBriefFunc(ctx context.Context, id string, fn func(b *types.Brief) error) (*types.Brief, error)
}

// Options tune the completion request.
type Options struct {
	MaxTokens   int
	Temperature float64
	MaxAttempts int
	Logger      *zap.Logger
}

// Service generates search terms for briefs.
type Service struct {
	store    BriefStore
	resolver llm.ModelResolver
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New returns a Service.
func New(store BriefStore, resolver llm.ModelResolver, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Result reports what a generation run produced and stored.
type Result struct {
	Brief *types.Brief

	// Generated holds the cleaned terms the model proposed.
	Generated []string

	// DateConstraint is the constraint the model returned, or nil when it
	// returned none or an unusable one.
	DateConstraint *types.DateConstraint

	Model string
	Usage llm.Usage
}

// response is the shape the model is asked to return.
type response struct {
	Queries        []string       `json:"queries"`
	DateConstraint *rawConstraint `json:"dateConstraint"`
}

type rawConstraint struct {
	Type       string  `json:"type"`
	BeforeDate *string `json:"beforeDate"`
	AfterDate  *string `json:"afterDate"`
}

var responseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "queries": {"type": "array", "items": {"type": "string"}},
    "dateConstraint": {
      "type": "object",
      "properties": {
        "type": {"type": "string", "enum": ["none", "before", "after", "between"]},
        "beforeDate": {"type": ["string", "null"]},
        "afterDate": {"type": ["string", "null"]}
      },
      "required": ["type", "beforeDate", "afterDate"],
      "additionalProperties": false
    }
  },
  "required": ["queries", "dateConstraint"],
  "additionalProperties": false
}`)

var promptTmpl = template.Must(template.New("querygen").Parse(`You write search queries for the arXiv API from a researcher's question.

Produce between 2 and 4 queries. Use arXiv field prefixes: ti: (title), abs: (abstract), au: (author), cat: (category), all: (any field). Combine terms with AND, OR and ANDNOT, group with parentheses, and quote multi-word phrases. At least one query must use ti: or abs:. Do not put dates inside the queries.

If the question limits publication dates, also return a date constraint:
- type is one of "none", "before", "after", "between"
- beforeDate and afterDate are YYYY-MM-DD, or null when unused
- a bare year means the whole year: "in 2023" is between 2023-01-01 and 2023-12-31
Today is {{.Today}}; resolve relative expressions such as "last two years" against it.

Answer with this shape:
{"queries": ["ti:\"example phrase\" AND abs:term"], "dateConstraint": {"type": "none", "beforeDate": null, "afterDate": null}}

{{.Directive}}

Question:
{{.Query}}
`))

// Generate asks the resolved model for search terms, merges them with the
// brief's active terms, and stores the result. A response that no parse
// attempt can read is a ParseError; the brief is left unchanged.
func (s *Service) Generate(ctx context.Context, briefID string) (*Result, error) {
	brief, err := s.store.GetBrief(ctx, briefID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(brief.Query) == "" {
		return nil, errors.New("brief has no research question")
	}

	resolved, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	model := resolved.Model
	logger := s.logger.With(
		zap.String("brief_id", briefID),
		zap.String("provider", string(resolved.Provider.Name())),
		zap.String("model", model.ID))

	prompt, err := renderPrompt(brief.Query, model, s.now())
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	req := llm.ChatRequest{
		Prompt:         prompt,
		Model:          model.ID,
		MaxTokens:      s.opts.MaxTokens,
		Temperature:    llm.Float(s.opts.Temperature),
		ResponseFormat: llm.ResponseFormatFor(model, "search_queries", responseSchema),
	}
	resp, err := llm.Retry(ctx, logger, "querygen", s.opts.MaxAttempts, func(ctx context.Context) (*llm.ChatResponse, error) {
		return resolved.Provider.Chat(ctx, req)
	})
	if err != nil {
		logger.Warn("query generation request failed", zap.Error(err))
		return nil, err
	}

	parsed, err := llm.Parse(resp.Content, llm.AttemptsFor(model), validateResponse)
	if err != nil {
		logger.Warn("query generation response unreadable", zap.Error(err))
		return nil, err
	}

	res := &Result{Generated: parsed.Queries, Model: resp.Model, Usage: resp.Usage}
	var patch types.BriefPatch
	if parsed.DateConstraint != nil {
		dc, ok := normalizeConstraint(*parsed.DateConstraint)
		switch {
		case !ok:
			logger.Warn("ignoring unusable date constraint", zap.String("type", parsed.DateConstraint.Type))
		case dc.Type == types.DateNone:
			patch.ClearDateConstraint = true
		default:
			patch.DateConstraint = &dc
			res.DateConstraint = &dc
		}
	}

	// Merge against the stored terms so one activated during the request survives.
	res.Brief, err = s.store.UpdateBriefFunc(ctx, briefID, func(b *types.Brief) error {
		patch.SearchQueries = MergeQueries(b.SearchQueries, parsed.Queries, s.newID)
		patch.SetSearchQueries = true
		patch.Apply(b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing generated queries: %w", err)
	}
	logger.Info("generated search queries",
		zap.Int("generated", len(parsed.Queries)),
		zap.Int("total", len(res.Brief.SearchQueries)),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return res, nil
}

func renderPrompt(query string, model types.ModelInfo, now time.Time) (string, error) {
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, struct {
		Query, Today, Directive string
	}{
		Query:     query,
		Today:     now.Format("2006-01-02"),
		Directive: llm.OutputDirective(model),
	})
	return buf.String(), err
}

// validateResponse trims and de-duplicates the terms, keeps at most
// MaxQueries, and rejects a response left with none.
func validateResponse(r *response) error {
	seen := make(map[string]bool)
	var clean []string
	for _, q := range r.Queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		clean = append(clean, q)
		if len(clean) == MaxQueries {
			break
		}
	}
	if len(clean) == 0 {
		return errors.New("response has no queries")
	}
	r.Queries = clean
	return nil
}

// MergeQueries keeps every active existing term verbatim and in order, then
// appends each generated term that is not already active as a new inactive
// query. Inactive existing terms are replaced by the new suggestions.
func MergeQueries(existing []types.SearchQuery, generated []string, newID func() string) []types.SearchQuery {
	out := make([]types.SearchQuery, 0, len(existing)+len(generated))
	active := make(map[string]bool)
	for _, q := range existing {
		if q.IsActive {
			out = append(out, q)
			active[termKey(q.Term)] = true
		}
	}
	for _, term := range generated {
		key := termKey(term)
		if key == "" || active[key] {
			continue
		}
		active[key] = true
		out = append(out, types.SearchQuery{ID: newID(), Term: strings.TrimSpace(term), IsActive: false})
	}
	return out
}

func termKey(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}

// FallbackQuery is the trivial all-fields term callers may substitute when
// generation fails.
func FallbackQuery(query string) string {
	return "all:" + strings.Join(strings.Fields(query), " ")
}
