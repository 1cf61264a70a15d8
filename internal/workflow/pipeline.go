// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/internal/querygen"
	"github.com/pdiddy/litbrief/internal/refine"
	"github.com/pdiddy/litbrief/internal/relevancy"
	"github.com/pdiddy/litbrief/internal/review"
	"github.com/pdiddy/litbrief/internal/search"
	"github.com/pdiddy/litbrief/pkg/types"
)

var (
	// ErrNoActiveQueries is returned by RunSearch when the brief has no
	// active search term.
	ErrNoActiveQueries = errors.New("no active search queries")

	// ErrQueryNotFound is returned when a search query id is unknown.
	ErrQueryNotFound = errors.New("search query not found")

	// ErrStepNotFound is returned when a step id is not applicable to the
	// brief.
	ErrStepNotFound = errors.New("step not found")
)

// Store is the persistence the pipeline needs.
type Store interface {
	CreateBrief(ctx context.Context, b *types.Brief) error
	GetBrief(ctx context.Context, id string) (*types.Brief, error)
	UpdateBrief(ctx context.Context, id string, patch types.BriefPatch) (*types.Brief, error)
	UpdateBriefFunc(ctx context.Context, id string, fn func(b *types.Brief) error) (*types.Brief, error)
	ListAssociations(ctx context.Context, briefID string) ([]types.PaperBriefAssociation, error)
	ListBriefPapers(ctx context.Context, briefID string) ([]types.Paper, error)
	UpsertPaper(ctx context.Context, p types.Paper) (*types.Paper, error)
	AddFoundBy(ctx context.Context, briefID, paperID string, terms ...string) (*types.PaperBriefAssociation, error)
	SetSelected(ctx context.Context, briefID, paperID string, selected bool) (*types.PaperBriefAssociation, error)
}

// QueryGenerator proposes search terms for a brief.
type QueryGenerator interface {
	Generate(ctx context.Context, briefID string) (*querygen.Result, error)
}

// Scorer scores a brief's unscored papers.
type Scorer interface {
	Score(ctx context.Context, briefID string, papers []types.Paper, progress relevancy.Progress) (*relevancy.Result, error)
}

// Reviewer writes the review for a brief.
type Reviewer interface {
	Generate(ctx context.Context, briefID string) (*review.Result, error)
}

// Refiner answers refinement chat messages.
type Refiner interface {
	Send(ctx context.Context, briefID, message string) (*refine.Reply, error)
}

// Deps are the collaborators of a Pipeline. Searcher should be the shared
// rate limiter, not a bare client.
type Deps struct {
	Store    Store
	Engine   *Engine
	Queries  QueryGenerator
	Scorer   Scorer
	Reviewer Reviewer
	Refiner  Refiner
	Searcher search.Searcher

	// MaxResults is the page size requested per search term.
	MaxResults int

	Logger *zap.Logger
}

// Pipeline runs brief operations and reports step status.
type Pipeline struct {
	Deps
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewPipeline returns a Pipeline. A nil Engine uses DefaultSteps.
func NewPipeline(d Deps) *Pipeline {
	if d.Engine == nil {
		d.Engine = NewEngine(DefaultSteps()...)
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Deps: d, logger: logger, now: time.Now, newID: uuid.NewString}
}

// CreateBrief stores a new brief for query. An empty title is derived from
// the query.
func (p *Pipeline) CreateBrief(ctx context.Context, title, query string) (*types.Brief, error) {
	query = strings.TrimSpace(query)
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle(query)
	}
	b := &types.Brief{Title: title, Query: query}
	if err := p.Store.CreateBrief(ctx, b); err != nil {
		return nil, err
	}
	p.logger.Info("created brief", zap.String("brief_id", b.ID))
	return b, nil
}

func defaultTitle(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return "Untitled brief"
	}
	if len(words) > 8 {
		words = append(words[:8], "...")
	}
	return strings.Join(words, " ")
}

// OpenBrief loads a brief and stamps OpenedAt.
func (p *Pipeline) OpenBrief(ctx context.Context, briefID string) (*types.Brief, error) {
	opened := p.now().UTC()
	return p.Store.UpdateBrief(ctx, briefID, types.BriefPatch{OpenedAt: &opened})
}

// State loads everything the step predicates look at.
func (p *Pipeline) State(ctx context.Context, briefID string) (types.BriefState, error) {
	b, err := p.Store.GetBrief(ctx, briefID)
	if err != nil {
		return types.BriefState{}, err
	}
	assocs, err := p.Store.ListAssociations(ctx, briefID)
	if err != nil {
		return types.BriefState{}, err
	}
	return types.BriefState{Brief: b, Associations: assocs}, nil
}

// Refine sends one refinement chat message.
func (p *Pipeline) Refine(ctx context.Context, briefID, message string) (*refine.Reply, error) {
	return p.Refiner.Send(ctx, briefID, message)
}

// QueryResult is the outcome of GenerateQueries.
type QueryResult struct {
	Brief          *types.Brief
	Generated      []string
	DateConstraint *types.DateConstraint

	// Fallback is set when the model's answer was unreadable and a single
	// all-fields term was added instead.
	Fallback bool
}

// GenerateQueries asks the model for search terms. When the answer cannot
// be parsed, an active "all:<query>" term is added so the search step can
// still proceed. Other failures are returned.
func (p *Pipeline) GenerateQueries(ctx context.Context, briefID string) (*QueryResult, error) {
	res, err := p.Queries.Generate(ctx, briefID)
	if err == nil {
		return &QueryResult{Brief: res.Brief, Generated: res.Generated, DateConstraint: res.DateConstraint}, nil
	}
	if !llm.IsKind(err, llm.KindParse) {
		return nil, err
	}

	b, gerr := p.Store.GetBrief(ctx, briefID)
	if gerr != nil {
		return nil, gerr
	}
	term := querygen.FallbackQuery(b.Query)
	p.logger.Warn("query generation unreadable, using fallback term",
		zap.String("brief_id", briefID), zap.String("term", term), zap.Error(err))
	updated, err := p.AddQuery(ctx, briefID, term, true)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Brief: updated, Generated: []string{term}, Fallback: true}, nil
}

// AddQuery adds a search term to the brief. A term already present (ignoring
// case and spacing) is updated in place instead.
func (p *Pipeline) AddQuery(ctx context.Context, briefID, term string, active bool) (*types.Brief, error) {
	term = strings.Join(strings.Fields(term), " ")
	if term == "" {
		return nil, errors.New("empty search query")
	}
	return p.Store.UpdateBriefFunc(ctx, briefID, func(b *types.Brief) error {
		for i := range b.SearchQueries {
			if strings.EqualFold(strings.Join(strings.Fields(b.SearchQueries[i].Term), " "), term) {
				b.SearchQueries[i].IsActive = b.SearchQueries[i].IsActive || active
				return nil
			}
		}
		b.SearchQueries = append(b.SearchQueries, types.SearchQuery{ID: p.newID(), Term: term, IsActive: active})
		return nil
	})
}

// SetQueryActive checks or unchecks one search term.
func (p *Pipeline) SetQueryActive(ctx context.Context, briefID, queryID string, active bool) (*types.Brief, error) {
	return p.Store.UpdateBriefFunc(ctx, briefID, func(b *types.Brief) error {
		for i := range b.SearchQueries {
			if b.SearchQueries[i].ID == queryID {
				b.SearchQueries[i].IsActive = active
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrQueryNotFound, queryID)
	})
}

// SearchProgress receives the per-term status view after every change.
type SearchProgress func([]types.SearchQueryWithStatus)

// SearchResult is the outcome of RunSearch.
type SearchResult struct {
	Queries    []types.SearchQueryWithStatus
	Hits       []search.Hit
	Duplicates int
	Failed     int
}

// RunSearch runs every active term, one at a time, through the searcher and
// stores the papers it finds along with the terms that found them. A
// failing term is marked failed and the rest still run. The error is
// non-nil only when every term failed or papers could not be stored.
func (p *Pipeline) RunSearch(ctx context.Context, briefID string, progress SearchProgress) (*SearchResult, error) {
	b, err := p.Store.GetBrief(ctx, briefID)
	if err != nil {
		return nil, err
	}
	var active []types.SearchQuery
	for _, q := range b.SearchQueries {
		if q.IsActive {
			active = append(active, q)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoActiveQueries
	}

	logger := p.logger.With(zap.String("brief_id", briefID))
	view := types.WithStatus(active)
	report := func() {
		if progress != nil {
			progress(append([]types.SearchQueryWithStatus(nil), view...))
		}
	}
	report()

	collector := search.NewCollector()
	res := &SearchResult{}
	var storeErrs []error
	for i := range view {
		term := view[i].Term
		view[i].Status = types.QueryProcessing
		report()

		resp, err := p.Searcher.Search(ctx, search.Params{
			Query:          term,
			MaxResults:     p.MaxResults,
			DateConstraint: b.DateConstraint,
		})
		if err != nil {
			logger.Warn("search term failed", zap.String("term", term), zap.Error(err))
			view[i].Status = types.QueryFailed
			view[i].Error = err.Error()
			res.Failed++
			report()
			continue
		}

		collector.Add(term, resp.Papers)
		for _, paper := range resp.Papers {
			if err := p.storeHit(ctx, briefID, term, paper); err != nil {
				logger.Error("storing paper", zap.String("paper_id", paper.ID), zap.Error(err))
				storeErrs = append(storeErrs, err)
			}
		}
		view[i].Status = types.QueryCompleted
		report()
	}

	res.Queries = view
	res.Hits = collector.Hits()
	res.Duplicates = collector.Duplicates()
	logger.Info("search finished",
		zap.Int("terms", len(view)),
		zap.Int("failed", res.Failed),
		zap.Int("papers", len(res.Hits)),
		zap.Int("duplicates", res.Duplicates))

	if len(storeErrs) > 0 {
		return res, fmt.Errorf("storing search results: %w", errors.Join(storeErrs...))
	}
	if res.Failed == len(view) {
		return res, fmt.Errorf("all %d search terms failed", res.Failed)
	}
	return res, nil
}

func (p *Pipeline) storeHit(ctx context.Context, briefID, term string, paper types.Paper) error {
	stored, err := p.Store.UpsertPaper(ctx, paper)
	if err != nil {
		return fmt.Errorf("paper %s: %w", paper.ID, err)
	}
	if _, err := p.Store.AddFoundBy(ctx, briefID, stored.ID, term); err != nil {
		return fmt.Errorf("association %s: %w", paper.ID, err)
	}
	return nil
}

// ScoreRelevancy scores the next batch of the brief's unscored papers.
func (p *Pipeline) ScoreRelevancy(ctx context.Context, briefID string, progress relevancy.Progress) (*relevancy.Result, error) {
	papers, err := p.Store.ListBriefPapers(ctx, briefID)
	if err != nil {
		return nil, err
	}
	return p.Scorer.Score(ctx, briefID, papers, progress)
}

// SelectPaper marks a paper as chosen, or not, for the review.
func (p *Pipeline) SelectPaper(ctx context.Context, briefID, paperID string, selected bool) (*types.PaperBriefAssociation, error) {
	return p.Store.SetSelected(ctx, briefID, paperID, selected)
}

// GenerateBrief writes the review from the selected papers.
func (p *Pipeline) GenerateBrief(ctx context.Context, briefID string) (*review.Result, error) {
	return p.Reviewer.Generate(ctx, briefID)
}

// StepStatus is one applicable step with its derived state.
type StepStatus struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Complete  bool   `json:"complete"`
	Available bool   `json:"available"`
}

// Steps reports the applicable steps for the brief, in order.
func (p *Pipeline) Steps(ctx context.Context, briefID string) ([]StepStatus, error) {
	state, err := p.State(ctx, briefID)
	if err != nil {
		return nil, err
	}
	steps := p.applicable(state)
	completed := CompletedIDs(steps, state)
	out := make([]StepStatus, len(steps))
	for i, s := range steps {
		out[i] = StepStatus{
			Index:     i,
			ID:        s.ID,
			Title:     s.Title,
			Complete:  completed[s.ID],
			Available: IsStepAvailable(steps, i, completed),
		}
	}
	return out, nil
}

// Navigate checks a move between two applicable steps, named by id. It
// returns a *NavigationError when the move is refused.
func (p *Pipeline) Navigate(ctx context.Context, briefID, fromID, toID string) error {
	state, err := p.State(ctx, briefID)
	if err != nil {
		return err
	}
	steps := p.applicable(state)
	from, to := stepIndex(steps, fromID), stepIndex(steps, toID)
	if to < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, toID)
	}
	if from < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, fromID)
	}
	return ValidateNavigation(steps, from, to, CompletedIDs(steps, state), state)
}

func (p *Pipeline) applicable(state types.BriefState) []Step {
	var steps []Step
	for s := range p.Engine.ApplicableSteps(state) {
		steps = append(steps, s)
	}
	return steps
}

func stepIndex(steps []Step, id string) int {
	for i, s := range steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// ExportCSL writes the brief's papers as CSL-YAML. Only selected papers are
// written when any are selected.
func (p *Pipeline) ExportCSL(ctx context.Context, briefID string, w io.Writer) (int, error) {
	papers, err := p.Store.ListBriefPapers(ctx, briefID)
	if err != nil {
		return 0, err
	}
	assocs, err := p.Store.ListAssociations(ctx, briefID)
	if err != nil {
		return 0, err
	}
	selected := make(map[string]bool)
	for _, a := range assocs {
		if a.Selected {
			selected[a.PaperID] = true
		}
	}
	if len(selected) > 0 {
		var chosen []types.Paper
		for _, paper := range papers {
			if selected[paper.ID] {
				chosen = append(chosen, paper)
			}
		}
		papers = chosen
	}
	return len(papers), search.FormatCSL(papers, w)
}
