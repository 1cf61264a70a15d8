// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/litbrief/pkg/types"
)

const associationColumns = `brief_id, paper_id, found_by, selected, relevancy, relevancy_score, created_at, updated_at`

// GetAssociation loads the association of a paper with a brief.
func (q *Queries) GetAssociation(ctx context.Context, briefID, paperID string) (*types.PaperBriefAssociation, error) {
	a, err := scanAssociation(q.queryRow(ctx,
		`SELECT `+associationColumns+` FROM paper_brief_associations WHERE brief_id = ? AND paper_id = ?`,
		briefID, paperID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("association %s/%s: %w", briefID, paperID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading association %s/%s: %w", briefID, paperID, err)
	}
	return a, nil
}

// ListAssociations returns a brief's associations in the order they were
// first created.
func (q *Queries) ListAssociations(ctx context.Context, briefID string) ([]types.PaperBriefAssociation, error) {
	rows, err := q.query(ctx,
		`SELECT `+associationColumns+` FROM paper_brief_associations WHERE brief_id = ? ORDER BY created_at, paper_id`,
		briefID)
	if err != nil {
		return nil, fmt.Errorf("listing associations for brief %s: %w", briefID, err)
	}
	defer rows.Close()

	var out []types.PaperBriefAssociation
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning association: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AddFoundBy records that terms returned the paper for the brief, creating
// the association when it does not exist yet.
func (q *Queries) AddFoundBy(ctx context.Context, briefID, paperID string, terms ...string) (*types.PaperBriefAssociation, error) {
	return q.upsertAssociation(ctx, briefID, paperID, func(a *types.PaperBriefAssociation) {
		for _, t := range terms {
			if !contains(a.FoundBy, t) {
				a.FoundBy = append(a.FoundBy, t)
			}
		}
	})
}

// UpsertRelevancy stores a relevancy record and mirrors its overall score.
func (q *Queries) UpsertRelevancy(ctx context.Context, briefID, paperID string, data types.RelevancyData) (*types.PaperBriefAssociation, error) {
	return q.upsertAssociation(ctx, briefID, paperID, func(a *types.PaperBriefAssociation) {
		d := data
		score := d.OverallScore
		a.Relevancy = &d
		a.RelevancyScore = &score
	})
}

// SetSelected marks a paper as selected (or not) for the brief. The
// association must already exist.
func (q *Queries) SetSelected(ctx context.Context, briefID, paperID string, selected bool) (*types.PaperBriefAssociation, error) {
	a, err := q.GetAssociation(ctx, briefID, paperID)
	if err != nil {
		return nil, err
	}
	a.Selected = selected
	a.UpdatedAt = q.now().UTC()
	if err := q.saveAssociation(ctx, a, false); err != nil {
		return nil, err
	}
	return a, nil
}

// upsertAssociation loads or creates the (briefID, paperID) row, applies
// mutate, and writes it back.
func (q *Queries) upsertAssociation(ctx context.Context, briefID, paperID string, mutate func(*types.PaperBriefAssociation)) (*types.PaperBriefAssociation, error) {
	now := q.now().UTC()
	a, err := q.GetAssociation(ctx, briefID, paperID)
	insert := false
	switch {
	case errors.Is(err, ErrNotFound):
		insert = true
		a = &types.PaperBriefAssociation{BriefID: briefID, PaperID: paperID, CreatedAt: now}
	case err != nil:
		return nil, err
	}
	mutate(a)
	a.UpdatedAt = now
	if err := q.saveAssociation(ctx, a, insert); err != nil {
		return nil, err
	}
	return a, nil
}

func (q *Queries) saveAssociation(ctx context.Context, a *types.PaperBriefAssociation, insert bool) error {
	foundBy := a.FoundBy
	if foundBy == nil {
		foundBy = []string{}
	}
	foundByJSON, err := encodeJSON(foundBy)
	if err != nil {
		return fmt.Errorf("encoding found-by: %w", err)
	}
	relevancy := ""
	if a.Relevancy != nil {
		if relevancy, err = encodeJSON(a.Relevancy); err != nil {
			return fmt.Errorf("encoding relevancy: %w", err)
		}
	}
	var score sql.NullInt64
	if a.RelevancyScore != nil {
		score = sql.NullInt64{Int64: int64(*a.RelevancyScore), Valid: true}
	}
	selected := 0
	if a.Selected {
		selected = 1
	}

	if insert {
		_, err = q.exec(ctx,
			`INSERT INTO paper_brief_associations (`+associationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.BriefID, a.PaperID, foundByJSON, selected, relevancy, score,
			formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	} else {
		_, err = q.exec(ctx,
			`UPDATE paper_brief_associations SET found_by = ?, selected = ?, relevancy = ?, relevancy_score = ?, updated_at = ?
			 WHERE brief_id = ? AND paper_id = ?`,
			foundByJSON, selected, relevancy, score, formatTime(a.UpdatedAt), a.BriefID, a.PaperID)
	}
	if err != nil {
		return fmt.Errorf("saving association %s/%s: %w", a.BriefID, a.PaperID, err)
	}
	return nil
}

// AddFoundBy records found-by terms inside a transaction.
func (s *Store) AddFoundBy(ctx context.Context, briefID, paperID string, terms ...string) (*types.PaperBriefAssociation, error) {
	var out *types.PaperBriefAssociation
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		out, err = q.AddFoundBy(ctx, briefID, paperID, terms...)
		return err
	})
	return out, err
}

// UpsertRelevancy stores a relevancy record inside a transaction.
func (s *Store) UpsertRelevancy(ctx context.Context, briefID, paperID string, data types.RelevancyData) (*types.PaperBriefAssociation, error) {
	var out *types.PaperBriefAssociation
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		out, err = q.UpsertRelevancy(ctx, briefID, paperID, data)
		return err
	})
	return out, err
}

// SetSelected updates the selection flag inside a transaction.
func (s *Store) SetSelected(ctx context.Context, briefID, paperID string, selected bool) (*types.PaperBriefAssociation, error) {
	var out *types.PaperBriefAssociation
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		out, err = q.SetSelected(ctx, briefID, paperID, selected)
		return err
	})
	return out, err
}

func scanAssociation(row scanner) (*types.PaperBriefAssociation, error) {
	var (
		a                  types.PaperBriefAssociation
		foundBy, relevancy string
		selected           int
		score              sql.NullInt64
		created, updated   string
	)
	if err := row.Scan(&a.BriefID, &a.PaperID, &foundBy, &selected, &relevancy, &score, &created, &updated); err != nil {
		return nil, err
	}
	if err := decodeJSON(foundBy, &a.FoundBy); err != nil {
		return nil, fmt.Errorf("decoding found-by: %w", err)
	}
	if relevancy != "" {
		a.Relevancy = &types.RelevancyData{}
		if err := decodeJSON(relevancy, a.Relevancy); err != nil {
			return nil, fmt.Errorf("decoding relevancy: %w", err)
		}
	}
	if score.Valid {
		v := int(score.Int64)
		a.RelevancyScore = &v
	}
	a.Selected = selected != 0
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
