// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pdiddy/litbrief/pkg/types"
)

const settingsColumns = `provider, api_key, selected_model, enabled_models, base_url, created_at, updated_at`

// GetProviderSettings loads the settings saved for one provider.
func (q *Queries) GetProviderSettings(ctx context.Context, name types.ProviderName) (*types.ProviderSettings, error) {
	ps, err := scanSettings(q.queryRow(ctx,
		`SELECT `+settingsColumns+` FROM provider_settings WHERE provider = ?`, string(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider settings %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading provider settings %s: %w", name, err)
	}
	return ps, nil
}

// ListProviderSettings returns every saved provider's settings by name.
func (q *Queries) ListProviderSettings(ctx context.Context) ([]types.ProviderSettings, error) {
	rows, err := q.query(ctx, `SELECT `+settingsColumns+` FROM provider_settings ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("listing provider settings: %w", err)
	}
	defer rows.Close()

	var out []types.ProviderSettings
	for rows.Next() {
		ps, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider settings: %w", err)
		}
		out = append(out, *ps)
	}
	return out, rows.Err()
}

// SaveProviderSettings creates or replaces a provider's settings. The
// original creation time survives replacement.
func (q *Queries) SaveProviderSettings(ctx context.Context, ps types.ProviderSettings) error {
	now := q.now().UTC()
	if ps.CreatedAt.IsZero() {
		ps.CreatedAt = now
	}
	enabled := ps.EnabledModels
	if enabled == nil {
		enabled = map[string]bool{}
	}
	enabledJSON, err := encodeJSON(enabled)
	if err != nil {
		return fmt.Errorf("encoding enabled models: %w", err)
	}
	_, err = q.exec(ctx,
		`INSERT INTO provider_settings (`+settingsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
			api_key = excluded.api_key, selected_model = excluded.selected_model,
			enabled_models = excluded.enabled_models, base_url = excluded.base_url,
			updated_at = excluded.updated_at`,
		string(ps.Provider), ps.APIKey, ps.SelectedModel, enabledJSON, ps.BaseURL,
		formatTime(ps.CreatedAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("saving provider settings %s: %w", ps.Provider, err)
	}
	return nil
}

func scanSettings(row scanner) (*types.ProviderSettings, error) {
	var (
		ps               types.ProviderSettings
		name, enabled    string
		created, updated string
	)
	if err := row.Scan(&name, &ps.APIKey, &ps.SelectedModel, &enabled, &ps.BaseURL, &created, &updated); err != nil {
		return nil, err
	}
	ps.Provider = types.ProviderName(name)
	if err := decodeJSON(enabled, &ps.EnabledModels); err != nil {
		return nil, fmt.Errorf("decoding enabled models: %w", err)
	}
	if len(ps.EnabledModels) == 0 {
		ps.EnabledModels = nil
	}
	ps.CreatedAt = parseTime(created)
	ps.UpdatedAt = parseTime(updated)
	return &ps, nil
}
