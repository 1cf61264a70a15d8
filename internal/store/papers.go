// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/litbrief/pkg/types"
)

const paperColumns = `id, title, abstract, authors, year, published, updated, links, doi, journal_ref,
	comment, primary_category, categories, source, citation, created_at, updated_at`

// GetPaper loads one paper by its external id.
func (q *Queries) GetPaper(ctx context.Context, id string) (*types.Paper, error) {
	p, err := scanPaper(q.queryRow(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading paper %s: %w", id, err)
	}
	return p, nil
}

// UpsertPaper inserts p, or merges it into the stored record with the same
// id. The stored result is returned.
func (q *Queries) UpsertPaper(ctx context.Context, p types.Paper) (*types.Paper, error) {
	if p.ID == "" {
		return nil, errors.New("upserting paper: empty id")
	}
	now := q.now().UTC()

	existing, err := q.GetPaper(ctx, p.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		p.CreatedAt = now
		p.UpdatedAt = now
		args, err := paperArgs(&p)
		if err != nil {
			return nil, err
		}
		if _, err := q.exec(ctx,
			`INSERT INTO papers (`+paperColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...); err != nil {
			return nil, fmt.Errorf("inserting paper %s: %w", p.ID, err)
		}
		return &p, nil
	case err != nil:
		return nil, err
	}

	existing.Merge(p)
	existing.UpdatedAt = now
	args, err := paperArgs(existing)
	if err != nil {
		return nil, err
	}
	if _, err := q.exec(ctx,
		`UPDATE papers SET title = ?, abstract = ?, authors = ?, year = ?, published = ?, updated = ?,
			links = ?, doi = ?, journal_ref = ?, comment = ?, primary_category = ?, categories = ?,
			source = ?, citation = ?, created_at = ?, updated_at = ?
		 WHERE id = ?`,
		append(args[1:], existing.ID)...); err != nil {
		return nil, fmt.Errorf("updating paper %s: %w", p.ID, err)
	}
	return existing, nil
}

// ListBriefPapers returns the papers associated with a brief in the order
// they were first found.
func (q *Queries) ListBriefPapers(ctx context.Context, briefID string) ([]types.Paper, error) {
	rows, err := q.query(ctx,
		`SELECT p.id, p.title, p.abstract, p.authors, p.year, p.published, p.updated, p.links, p.doi,
			p.journal_ref, p.comment, p.primary_category, p.categories, p.source, p.citation,
			p.created_at, p.updated_at
		 FROM papers p JOIN paper_brief_associations a ON a.paper_id = p.id
		 WHERE a.brief_id = ?
		 ORDER BY a.created_at, p.id`, briefID)
	if err != nil {
		return nil, fmt.Errorf("listing papers for brief %s: %w", briefID, err)
	}
	defer rows.Close()

	var out []types.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpsertPaper merges p inside a transaction.
func (s *Store) UpsertPaper(ctx context.Context, p types.Paper) (*types.Paper, error) {
	var out *types.Paper
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		out, err = q.UpsertPaper(ctx, p)
		return err
	})
	return out, err
}

func paperArgs(p *types.Paper) ([]any, error) {
	authors := p.Authors
	if authors == nil {
		authors = []string{}
	}
	authorsJSON, err := encodeJSON(authors)
	if err != nil {
		return nil, fmt.Errorf("encoding authors: %w", err)
	}
	links, err := encodeJSON(p.Links)
	if err != nil {
		return nil, fmt.Errorf("encoding links: %w", err)
	}
	cats := p.Categories
	if cats == nil {
		cats = []string{}
	}
	catsJSON, err := encodeJSON(cats)
	if err != nil {
		return nil, fmt.Errorf("encoding categories: %w", err)
	}
	return []any{
		p.ID, p.Title, p.Abstract, authorsJSON, p.Year,
		formatTime(p.Published), formatTime(p.Updated), links,
		p.DOI, p.JournalRef, p.Comment, p.PrimaryCategory, catsJSON,
		p.Source, p.Citation, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	}, nil
}

func scanPaper(row scanner) (*types.Paper, error) {
	var (
		p                    types.Paper
		authors, links, cats string
		published, updated   string
		created, updatedAt   string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Abstract, &authors, &p.Year, &published, &updated,
		&links, &p.DOI, &p.JournalRef, &p.Comment, &p.PrimaryCategory, &cats, &p.Source,
		&p.Citation, &created, &updatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(authors, &p.Authors); err != nil {
		return nil, fmt.Errorf("decoding authors: %w", err)
	}
	if err := decodeJSON(links, &p.Links); err != nil {
		return nil, fmt.Errorf("decoding links: %w", err)
	}
	if err := decodeJSON(cats, &p.Categories); err != nil {
		return nil, fmt.Errorf("decoding categories: %w", err)
	}
	if len(p.Categories) == 0 {
		p.Categories = nil
	}
	p.Published = parseTime(published)
	p.Updated = parseTime(updated)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
