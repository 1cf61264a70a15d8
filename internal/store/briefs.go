// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pdiddy/litbrief/pkg/types"
)

const briefColumns = `id, title, query, search_queries, date_constraint, refs, review, bibtex,
	chat_messages, created_at, updated_at, opened_at, completed_at`

// CreateBrief inserts b, assigning an ID when it has none and stamping both
// timestamps.
func (q *Queries) CreateBrief(ctx context.Context, b *types.Brief) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := q.now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	args, err := briefArgs(b)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx,
		`INSERT INTO briefs (`+briefColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		return fmt.Errorf("inserting brief: %w", err)
	}
	return nil
}

// GetBrief loads one brief.
func (q *Queries) GetBrief(ctx context.Context, id string) (*types.Brief, error) {
	return q.getBrief(ctx, id, false)
}

// getBrief loads one brief. forUpdate locks the row on PostgreSQL; SQLite
// transactions already hold the write lock from BEGIN IMMEDIATE.
func (q *Queries) getBrief(ctx context.Context, id string, forUpdate bool) (*types.Brief, error) {
	query := `SELECT ` + briefColumns + ` FROM briefs WHERE id = ?`
	if forUpdate && q.driver == types.DriverPostgres {
		query += ` FOR UPDATE`
	}
	b, err := scanBrief(q.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("brief %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading brief %s: %w", id, err)
	}
	return b, nil
}

// ListBriefs returns every brief, most recently updated first.
func (q *Queries) ListBriefs(ctx context.Context) ([]types.Brief, error) {
	rows, err := q.query(ctx, `SELECT `+briefColumns+` FROM briefs ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing briefs: %w", err)
	}
	defer rows.Close()

	var out []types.Brief
	for rows.Next() {
		b, err := scanBrief(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning brief: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateBrief applies patch to the stored brief and refreshes UpdatedAt.
// An empty patch still refreshes the stamp.
func (q *Queries) UpdateBrief(ctx context.Context, id string, patch types.BriefPatch) (*types.Brief, error) {
	return q.UpdateBriefFunc(ctx, id, func(b *types.Brief) error {
		patch.Apply(b)
		return nil
	})
}

// UpdateBriefFunc loads the brief, lets fn modify it, and writes it back
// with a fresh UpdatedAt. Nothing is written when fn returns an error.
// Run it through Store.UpdateBriefFunc so the read and the write share a
// transaction.
func (q *Queries) UpdateBriefFunc(ctx context.Context, id string, fn func(b *types.Brief) error) (*types.Brief, error) {
	b, err := q.getBrief(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	b.ID = id
	b.UpdatedAt = q.now().UTC()

	args, err := briefArgs(b)
	if err != nil {
		return nil, err
	}
	// args[0] is the id; move it to the WHERE clause.
	_, err = q.exec(ctx,
		`UPDATE briefs SET title = ?, query = ?, search_queries = ?, date_constraint = ?, refs = ?,
			review = ?, bibtex = ?, chat_messages = ?, created_at = ?, updated_at = ?,
			opened_at = ?, completed_at = ?
		 WHERE id = ?`,
		append(args[1:], id)...)
	if err != nil {
		return nil, fmt.Errorf("updating brief %s: %w", id, err)
	}
	return b, nil
}

// DeleteBrief removes a brief and its associations.
func (q *Queries) DeleteBrief(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM briefs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting brief %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("brief %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateBrief applies patch inside a transaction.
func (s *Store) UpdateBrief(ctx context.Context, id string, patch types.BriefPatch) (*types.Brief, error) {
	var out *types.Brief
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		out, err = q.UpdateBrief(ctx, id, patch)
		return err
	})
	return out, err
}

// UpdateBriefFunc runs the read, fn, and the write in one transaction, so
// fn always sees the latest stored brief.
func (s *Store) UpdateBriefFunc(ctx context.Context, id string, fn func(b *types.Brief) error) (*types.Brief, error) {
	var out *types.Brief
	err := s.InTx(ctx, func(q *Queries) error {
		var err error
		out, err = q.UpdateBriefFunc(ctx, id, fn)
		return err
	})
	return out, err
}

func briefArgs(b *types.Brief) ([]any, error) {
	queries := b.SearchQueries
	if queries == nil {
		queries = []types.SearchQuery{}
	}
	sq, err := encodeJSON(queries)
	if err != nil {
		return nil, fmt.Errorf("encoding search queries: %w", err)
	}
	dc := ""
	if b.DateConstraint != nil {
		if dc, err = encodeJSON(b.DateConstraint); err != nil {
			return nil, fmt.Errorf("encoding date constraint: %w", err)
		}
	}
	refs := b.References
	if refs == nil {
		refs = []types.Reference{}
	}
	refsJSON, err := encodeJSON(refs)
	if err != nil {
		return nil, fmt.Errorf("encoding references: %w", err)
	}
	chat := b.ChatMessages
	if chat == nil {
		chat = []types.ChatMessage{}
	}
	chatJSON, err := encodeJSON(chat)
	if err != nil {
		return nil, fmt.Errorf("encoding chat messages: %w", err)
	}
	return []any{
		b.ID, b.Title, b.Query, sq, dc, refsJSON, b.Review, b.Bibtex, chatJSON,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
		formatTimePtr(b.OpenedAt), formatTimePtr(b.CompletedAt),
	}, nil
}

func scanBrief(row scanner) (*types.Brief, error) {
	var (
		b                  types.Brief
		sq, dc, refs, chat string
		created, updated   string
		opened, completed  sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Query, &sq, &dc, &refs, &b.Review, &b.Bibtex,
		&chat, &created, &updated, &opened, &completed); err != nil {
		return nil, err
	}
	if err := decodeJSON(sq, &b.SearchQueries); err != nil {
		return nil, fmt.Errorf("decoding search queries: %w", err)
	}
	if dc != "" {
		b.DateConstraint = &types.DateConstraint{}
		if err := decodeJSON(dc, b.DateConstraint); err != nil {
			return nil, fmt.Errorf("decoding date constraint: %w", err)
		}
	}
	if err := decodeJSON(refs, &b.References); err != nil {
		return nil, fmt.Errorf("decoding references: %w", err)
	}
	if err := decodeJSON(chat, &b.ChatMessages); err != nil {
		return nil, fmt.Errorf("decoding chat messages: %w", err)
	}
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	b.OpenedAt = parseTimePtr(opened)
	b.CompletedAt = parseTimePtr(completed)
	return &b, nil
}
