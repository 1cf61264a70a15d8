// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package querygen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/litbrief/internal/llm"
	"github.com/pdiddy/litbrief/internal/store"
	"github.com/pdiddy/litbrief/pkg/types"
)

func init() {
	llm.BackoffBase = time.Millisecond
}

// memBriefs is an in-memory BriefStore.
type memBriefs struct {
	briefs  map[string]*types.Brief
	updates int
}

func newMemBriefs(b ...types.Brief) *memBriefs {
	m := &memBriefs{briefs: make(map[string]*types.Brief)}
	for i := range b {
		m.briefs[b[i].ID] = &b[i]
	}
	return m
}

func (m *memBriefs) GetBrief(_ context.Context, id string) (*types.Brief, error) {
	b, ok := m.briefs[id]
	if !ok {
		return nil, fmt.Errorf("brief %s: not found", id)
	}
	cp := *b
	return &cp, nil
}

func (m *memBriefs) UpdateBriefFunc(_ context.Context, id string, fn func(*types.Brief) error) (*types.Brief, error) {
	b, ok := m.briefs[id]
	if !ok {
		return nil, fmt.Errorf("brief %s: not found", id)
	}
	cp := *b
	if err := fn(&cp); err != nil {
		return nil, err
	}
	*b = cp
	m.updates++
	return &cp, nil
}

func ptr(s string) *string { return &s }

var jsonModel = types.ModelInfo{ID: "gpt-4o-mini", Provider: types.ProviderOpenAI, SupportsStructuredOutput: true, SupportsJSONMode: true}
var plainModel = types.ModelInfo{ID: "claude-sonnet-4-5-20250929", Provider: types.ProviderAnthropic}

func newService(t *testing.T, store BriefStore, mock *llm.MockProvider, model types.ModelInfo) *Service {
	s := New(store, llm.StaticResolver{Resolved: llm.Resolved{Provider: mock, Model: model}},
		Options{MaxTokens: 512, Temperature: 0.2, Logger: zaptest.NewLogger(t)})
	s.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }
	n := 0
	s.newID = func() string { n++; return fmt.Sprintf("gen-%d", n) }
	return s
}

func TestGenerateTransformerEfficiency(t *testing.T) {
	store := newMemBriefs(types.Brief{ID: "b1", Query: "transformer efficiency in 2023"})
	mock := &llm.MockProvider{Responses: []string{`{
		"queries": ["ti:transformer AND abs:efficiency", "abs:\"efficient attention\"", "all:sparse transformer"],
		"dateConstraint": {"type": "between", "afterDate": "2023-01-01", "beforeDate": "2023-12-31"}}`}}

	res, err := newService(t, store, mock, jsonModel).Generate(context.Background(), "b1")
	require.NoError(t, err)

	require.NotNil(t, res.DateConstraint)
	assert.Equal(t, types.DateConstraint{Type: types.DateBetween, AfterDate: ptr("2023-01-01"), BeforeDate: ptr("2023-12-31")}, *res.DateConstraint)
	assert.Equal(t, res.DateConstraint, res.Brief.DateConstraint)

	fielded := false
	for _, q := range res.Brief.SearchQueries {
		if strings.Contains(q.Term, "ti:") || strings.Contains(q.Term, "abs:") {
			fielded = true
		}
		assert.False(t, q.IsActive, "generated terms start inactive")
	}
	assert.True(t, fielded)
	assert.Len(t, res.Brief.SearchQueries, 3)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].ResponseFormat)
	assert.Equal(t, llm.FormatJSONSchema, reqs[0].ResponseFormat.Type)
	assert.Contains(t, reqs[0].Prompt, "transformer efficiency in 2023")
	assert.Contains(t, reqs[0].Prompt, "Today is 2026-10-18")
}

func TestGenerateKeepsActiveTerms(t *testing.T) {
	store := newMemBriefs(types.Brief{ID: "b1", Query: "q", SearchQueries: []types.SearchQuery{
		{ID: "u1", Term: "au:hinton", IsActive: true},
		{ID: "u2", Term: "ti:stale", IsActive: false},
		{ID: "u3", Term: "abs:kept", IsActive: true},
	}})
	mock := &llm.MockProvider{Responses: []string{`<json>{"queries":["abs:kept","ti:new"],"dateConstraint":null}</json>`}}

	res, err := newService(t, store, mock, plainModel).Generate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []types.SearchQuery{
		{ID: "u1", Term: "au:hinton", IsActive: true},
		{ID: "u3", Term: "abs:kept", IsActive: true},
		{ID: "gen-1", Term: "ti:new", IsActive: false},
	}, res.Brief.SearchQueries)

	assert.Nil(t, mock.Requests()[0].ResponseFormat, "no JSON capability, no response format")
	assert.Contains(t, mock.Requests()[0].Prompt, "<json></json>")
}

func TestGenerateKeepsTermActivatedDuringRequest(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, types.StoreConfig{Driver: types.DriverSQLite, DSN: filepath.Join(t.TempDir(), "brief.db")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := &types.Brief{Query: "graph neural networks", SearchQueries: []types.SearchQuery{{ID: "q1", Term: "ti:gnn"}}}
	require.NoError(t, st.CreateBrief(ctx, b))

	mock := &llm.MockProvider{ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		// The user checks q1 while the model is still answering.
		_, err := st.UpdateBrief(ctx, b.ID, types.BriefPatch{
			SearchQueries:    []types.SearchQuery{{ID: "q1", Term: "ti:gnn", IsActive: true}},
			SetSearchQueries: true,
		})
		require.NoError(t, err)
		return &llm.ChatResponse{Content: `{"queries":["abs:graph"]}`, Model: req.Model}, nil
	}}

	res, err := newService(t, st, mock, jsonModel).Generate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.SearchQuery{
		{ID: "q1", Term: "ti:gnn", IsActive: true},
		{ID: "gen-1", Term: "abs:graph", IsActive: false},
	}, res.Brief.SearchQueries)

	stored, err := st.GetBrief(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Brief.SearchQueries, stored.SearchQueries)
}

func TestGenerateNoneClearsConstraint(t *testing.T) {
	store := newMemBriefs(types.Brief{ID: "b1", Query: "q",
		DateConstraint: &types.DateConstraint{Type: types.DateAfter, AfterDate: ptr("2020-01-01")}})
	mock := &llm.MockProvider{Responses: []string{`{"queries":["ti:a"],"dateConstraint":{"type":"none","beforeDate":null,"afterDate":null}}`}}

	res, err := newService(t, store, mock, jsonModel).Generate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Nil(t, res.Brief.DateConstraint)
	assert.Nil(t, res.DateConstraint)
}

func TestGenerateUnusableConstraintKeepsStored(t *testing.T) {
	stored := &types.DateConstraint{Type: types.DateAfter, AfterDate: ptr("2020-01-01")}
	store := newMemBriefs(types.Brief{ID: "b1", Query: "q", DateConstraint: stored})
	mock := &llm.MockProvider{Responses: []string{`{"queries":["ti:a"],"dateConstraint":{"type":"before","beforeDate":"someday"}}`}}

	res, err := newService(t, store, mock, jsonModel).Generate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, stored, res.Brief.DateConstraint)
}

func TestGenerateParseFailure(t *testing.T) {
	store := newMemBriefs(types.Brief{ID: "b1", Query: "q", SearchQueries: []types.SearchQuery{{ID: "u1", Term: "ti:x", IsActive: true}}})
	for _, raw := range []string{"", "I cannot help with that.", `{"queries": []}`, `{"queries": [1, 2]}`} {
		mock := &llm.MockProvider{Responses: []string{raw}}
		_, err := newService(t, store, mock, jsonModel).Generate(context.Background(), "b1")
		require.Error(t, err, raw)
		assert.True(t, llm.IsKind(err, llm.KindParse), raw)
	}
	assert.Zero(t, store.updates, "a failed generation stores nothing")
}

func TestGenerateConfigErrorBeforeRequest(t *testing.T) {
	store := newMemBriefs(types.Brief{ID: "b1", Query: "q"})
	s := New(store, llm.StaticResolver{Err: llm.ConfigError(types.ProviderOpenAI, "no API key")}, Options{})
	_, err := s.Generate(context.Background(), "b1")
	assert.True(t, llm.IsKind(err, llm.KindConfig))
}

func TestGenerateRetriesRequestErrors(t *testing.T) {
	store := newMemBriefs(types.Brief{ID: "b1", Query: "q"})
	calls := 0
	mock := &llm.MockProvider{ChatFunc: func(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return nil, llm.RequestError(types.ProviderOpenAI, "chat", 503, errors.New("overloaded"))
		}
		return &llm.ChatResponse{Content: `{"queries":["ti:a"]}`, Model: req.Model}, nil
	}}
	_, err := newService(t, store, mock, jsonModel).Generate(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGenerateBlankQuery(t *testing.T) {
	store := newMemBriefs(types.Brief{ID: "b1", Query: "  "})
	_, err := newService(t, store, &llm.MockProvider{}, jsonModel).Generate(context.Background(), "b1")
	assert.Error(t, err)
}

func TestValidateResponseCapsAndDedupes(t *testing.T) {
	r := response{Queries: []string{" ti:a ", "TI:A", "", "b", "c", "d", "e"}}
	require.NoError(t, validateResponse(&r))
	assert.Equal(t, []string{"ti:a", "b", "c", "d"}, r.Queries)
}

func TestMergeQueriesNeverDropsActive(t *testing.T) {
	id := 0
	newID := func() string { id++; return fmt.Sprintf("n%d", id) }
	cases := []struct {
		existing  []types.SearchQuery
		generated []string
	}{
		{nil, []string{"a", "b"}},
		{[]types.SearchQuery{{ID: "1", Term: "a", IsActive: true}}, []string{"A", "b"}},
		{[]types.SearchQuery{{ID: "1", Term: "x", IsActive: true}, {ID: "2", Term: "y"}}, []string{"y", "z"}},
		{[]types.SearchQuery{{ID: "1", Term: "x", IsActive: true}}, nil},
	}
	for _, c := range cases {
		merged := MergeQueries(c.existing, c.generated, newID)
		byID := make(map[string]types.SearchQuery)
		for _, q := range merged {
			byID[q.ID] = q
		}
		for _, q := range c.existing {
			if q.IsActive {
				assert.Equal(t, q, byID[q.ID], "active term kept verbatim")
			}
		}
		existingIDs := make(map[string]bool)
		for _, q := range c.existing {
			existingIDs[q.ID] = true
		}
		for _, q := range merged {
			if !existingIDs[q.ID] {
				assert.False(t, q.IsActive, "new term %q is inactive", q.Term)
			}
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2023-03-15", "2023-03-15", true},
		{"2023", "2023-01-01", true},
		{"2023-6", "2023-06-01", true},
		{"2023-13", "", false},
		{"June 2023", "2023-06-01", true},
		{"sep 2021", "2021-09-01", true},
		{"Spring 2023", "2023-03-01", true},
		{"2022 autumn", "2022-09-01", true},
		{"winter 2020", "2020-12-01", true},
		{"", "", false},
		{"someday", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeConstraint(t *testing.T) {
	dc, ok := normalizeConstraint(rawConstraint{Type: "between", AfterDate: ptr("2024"), BeforeDate: ptr("2022")})
	require.True(t, ok)
	assert.Equal(t, "2022-01-01", *dc.AfterDate, "reversed bounds are swapped")
	assert.Equal(t, "2024-01-01", *dc.BeforeDate)

	dc, ok = normalizeConstraint(rawConstraint{Type: "between", AfterDate: ptr("2021")})
	require.True(t, ok)
	assert.Equal(t, types.DateAfter, dc.Type)

	dc, ok = normalizeConstraint(rawConstraint{Type: ""})
	require.True(t, ok)
	assert.Equal(t, types.DateNone, dc.Type)

	_, ok = normalizeConstraint(rawConstraint{Type: "after"})
	assert.False(t, ok)
	_, ok = normalizeConstraint(rawConstraint{Type: "during", AfterDate: ptr("2021")})
	assert.False(t, ok)
}

func TestFallbackQuery(t *testing.T) {
	assert.Equal(t, "all:transformer efficiency", FallbackQuery("  transformer\nefficiency "))
}
