// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/litbrief/pkg/types"
)

// tick is a clock that advances one second per call.
func tick(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), types.StoreConfig{
		Driver: types.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.now = tick(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestBriefLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	b := &types.Brief{Title: "Efficiency", Query: "transformer efficiency in 2023"}
	require.NoError(t, s.CreateBrief(ctx, b))
	require.NotEmpty(t, b.ID)

	got, err := s.GetBrief(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Query, got.Query)
	assert.Empty(t, got.SearchQueries)
	assert.Nil(t, got.DateConstraint)
	assert.Equal(t, b.CreatedAt, got.CreatedAt)

	updated, err := s.UpdateBrief(ctx, b.ID, types.BriefPatch{
		SearchQueries:    []types.SearchQuery{{ID: "q1", Term: "ti:transformer", IsActive: true}},
		SetSearchQueries: true,
		DateConstraint: &types.DateConstraint{
			Type: types.DateBetween, AfterDate: ptr("2023-01-01"), BeforeDate: ptr("2023-12-31"),
		},
	})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(b.UpdatedAt), "every mutation refreshes UpdatedAt")

	got, err = s.GetBrief(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.SearchQuery{{ID: "q1", Term: "ti:transformer", IsActive: true}}, got.SearchQueries)
	require.NotNil(t, got.DateConstraint)
	assert.Equal(t, "2023-12-31", *got.DateConstraint.BeforeDate)
	assert.Equal(t, "Efficiency", got.Title, "untouched fields survive a patch")

	cleared, err := s.UpdateBrief(ctx, b.ID, types.BriefPatch{ClearDateConstraint: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.DateConstraint)
	assert.True(t, cleared.UpdatedAt.After(updated.UpdatedAt))

	list, err := s.ListBriefs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteBrief(ctx, b.ID))
	_, err = s.GetBrief(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteBrief(ctx, b.ID), ErrNotFound)
}

func TestUpdateBriefMissing(t *testing.T) {
	_, err := openTestStore(t).UpdateBrief(context.Background(), "nope", types.BriefPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBriefFuncSeesLatest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = time.Now
	b := &types.Brief{Query: "q"}
	require.NoError(t, s.CreateBrief(ctx, b))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateBriefFunc(ctx, b.ID, func(b *types.Brief) error {
				b.SearchQueries = append(b.SearchQueries, types.SearchQuery{ID: fmt.Sprintf("q%d", i), Term: fmt.Sprintf("ti:t%d", i)})
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetBrief(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, got.SearchQueries, writers, "no concurrent append is lost")
}

func TestUpdateBriefFuncErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	b := &types.Brief{Query: "q"}
	require.NoError(t, s.CreateBrief(ctx, b))

	boom := errors.New("boom")
	_, err := s.UpdateBriefFunc(ctx, b.ID, func(b *types.Brief) error {
		b.Review = "draft"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetBrief(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Review)
	assert.Equal(t, b.UpdatedAt, got.UpdatedAt)

	_, err = s.UpdateBriefFunc(ctx, "nope", func(*types.Brief) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertPaperMerges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.UpsertPaper(ctx, types.Paper{
		ID: "1706.03762", Title: "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"}, Year: 2017,
		Published: time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	second, err := s.UpsertPaper(ctx, types.Paper{ID: "1706.03762", DOI: "10.48550/arXiv.1706.03762"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	got, err := s.GetPaper(ctx, "1706.03762")
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", got.Title, "enrichment keeps earlier fields")
	assert.Equal(t, "10.48550/arXiv.1706.03762", got.DOI)
	assert.Equal(t, []string{"Ashish Vaswani"}, got.Authors)
	assert.Equal(t, 2017, got.Published.Year())

	_, err = s.UpsertPaper(ctx, types.Paper{})
	assert.Error(t, err)
}

func seedBriefAndPaper(t *testing.T, s *Store, paperIDs ...string) string {
	t.Helper()
	ctx := context.Background()
	b := &types.Brief{Query: "q"}
	require.NoError(t, s.CreateBrief(ctx, b))
	for _, id := range paperIDs {
		_, err := s.UpsertPaper(ctx, types.Paper{ID: id, Title: "Paper " + id})
		require.NoError(t, err)
	}
	return b.ID
}

func TestDoubleUpsertYieldsOneAssociation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	briefID := seedBriefAndPaper(t, s, "p1")

	_, err := s.UpsertRelevancy(ctx, briefID, "p1", types.RelevancyData{OverallScore: 40, Confidence: 50})
	require.NoError(t, err)
	a, err := s.UpsertRelevancy(ctx, briefID, "p1", types.RelevancyData{OverallScore: 85, Confidence: 90})
	require.NoError(t, err)
	require.NotNil(t, a.RelevancyScore)
	assert.Equal(t, 85, *a.RelevancyScore)

	list, err := s.ListAssociations(ctx, briefID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 85, list[0].Relevancy.OverallScore)
	assert.Equal(t, 85, *list[0].RelevancyScore, "score mirrors the relevancy record")
}

func TestAddFoundByMergesTerms(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	briefID := seedBriefAndPaper(t, s, "p1", "p2")

	_, err := s.AddFoundBy(ctx, briefID, "p1", "ti:a")
	require.NoError(t, err)
	_, err = s.AddFoundBy(ctx, briefID, "p1", "ti:a", "abs:b")
	require.NoError(t, err)
	_, err = s.AddFoundBy(ctx, briefID, "p2", "abs:b")
	require.NoError(t, err)

	a, err := s.GetAssociation(ctx, briefID, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ti:a", "abs:b"}, a.FoundBy)
	assert.False(t, a.Scored())

	papers, err := s.ListBriefPapers(ctx, briefID)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "p1", papers[0].ID)
}

func TestSetSelected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	briefID := seedBriefAndPaper(t, s, "p1")

	_, err := s.SetSelected(ctx, briefID, "p1", true)
	assert.ErrorIs(t, err, ErrNotFound, "selection needs an association")

	_, err = s.AddFoundBy(ctx, briefID, "p1", "ti:a")
	require.NoError(t, err)
	a, err := s.SetSelected(ctx, briefID, "p1", true)
	require.NoError(t, err)
	assert.True(t, a.Selected)

	got, err := s.GetAssociation(ctx, briefID, "p1")
	require.NoError(t, err)
	assert.True(t, got.Selected)
	assert.Equal(t, []string{"ti:a"}, got.FoundBy)
}

func TestDeleteBriefCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	briefID := seedBriefAndPaper(t, s, "p1")
	_, err := s.AddFoundBy(ctx, briefID, "p1", "t")
	require.NoError(t, err)

	require.NoError(t, s.DeleteBrief(ctx, briefID))
	list, err := s.ListAssociations(ctx, briefID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	b := &types.Brief{Query: "q"}
	require.NoError(t, s.CreateBrief(ctx, b))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q *Queries) error {
		if _, err := q.UpdateBrief(ctx, b.ID, types.BriefPatch{Review: ptr("draft")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetBrief(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Review)
}

func TestProviderSettings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.SaveProviderSettings(ctx, types.ProviderSettings{
		Provider: types.ProviderOpenAI, APIKey: "sk-1", SelectedModel: "gpt-4o",
		EnabledModels: map[string]bool{"o3-mini": false},
	}))
	first, err := s.GetProviderSettings(ctx, types.ProviderOpenAI)
	require.NoError(t, err)

	require.NoError(t, s.SaveProviderSettings(ctx, types.ProviderSettings{
		Provider: types.ProviderOpenAI, APIKey: "sk-2",
	}))
	got, err := s.GetProviderSettings(ctx, types.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-2", got.APIKey)
	assert.Empty(t, got.SelectedModel)
	assert.Nil(t, got.EnabledModels)
	assert.Equal(t, first.CreatedAt, got.CreatedAt, "creation time survives replacement")
	assert.True(t, got.UpdatedAt.After(first.UpdatedAt))

	require.NoError(t, s.SaveProviderSettings(ctx, types.ProviderSettings{Provider: types.ProviderAnthropic, APIKey: "sk-ant-1"}))
	list, err := s.ListProviderSettings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, types.ProviderAnthropic, list[0].Provider)

	_, err = s.GetProviderSettings(ctx, types.ProviderGemini)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", rebindDollar("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT '?' WHERE a = $1", rebindDollar("SELECT '?' WHERE a = ?"))
	q := &Queries{driver: types.DriverSQLite}
	assert.Equal(t, "a = ?", q.rebind("a = ?"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), types.StoreConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}
