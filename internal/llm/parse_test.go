// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litbrief/pkg/types"
)

type queriesShape struct {
	Queries []string `json:"queries"`
}

func requireQueries(v *queriesShape) error {
	if len(v.Queries) == 0 {
		return errors.New("queries is empty")
	}
	return nil
}

func TestDirectJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "object", raw: `{"a":1}`},
		{name: "surrounding whitespace", raw: "\n  {\"a\":1}\n"},
		{name: "prose prefix", raw: `Here you go: {"a":1}`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "truncated", raw: `{"a":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DirectJSON.Fn(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "prose around", raw: `Sure! {"queries":["a"]} Hope that helps.`, want: `{"queries":["a"]}`},
		{name: "code fence", raw: "```json\n{\"x\":{\"y\":1}}\n```", want: `{"x":{"y":1}}`},
		{name: "brace inside string", raw: `{"q":"a } b"} tail }`, want: `{"q":"a } b"}`},
		{name: "think tag", raw: `<think>{not json}</think>{"ok":true}`, want: `{"ok":true}`},
		{name: "no object", raw: `nothing here`, wantErr: true},
		{name: "unbalanced", raw: `{"a": {"b": 1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractObject.Fn(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripWrapper(t *testing.T) {
	a := StripWrapper("json")

	got, err := a.Fn("I think {this} matters.\n<json>\n{\"queries\":[\"ti:x\"]}\n</json>")
	require.NoError(t, err)
	assert.Equal(t, `{"queries":["ti:x"]}`, got)

	_, err = a.Fn(`{"queries":["ti:x"]}`)
	assert.ErrorContains(t, err, "no <json> wrapper")
}

func TestAttemptsFor(t *testing.T) {
	jsonModel := types.ModelInfo{SupportsJSONMode: true}
	names := func(as []Attempt) []string {
		var out []string
		for _, a := range as {
			out = append(out, a.Name)
		}
		return out
	}
	assert.Equal(t, []string{"direct", "extract"}, names(AttemptsFor(jsonModel)))
	assert.Equal(t, []string{"wrapper:json", "extract"}, names(AttemptsFor(types.ModelInfo{})))
}

func TestOutputDirective(t *testing.T) {
	assert.NotContains(t, OutputDirective(types.ModelInfo{SupportsJSONMode: true}), "<json>")
	assert.Contains(t, OutputDirective(types.ModelInfo{}), "<json></json>")
}

func TestParse(t *testing.T) {
	plain := AttemptsFor(types.ModelInfo{})
	guaranteed := AttemptsFor(types.ModelInfo{SupportsStructuredOutput: true})

	t.Run("direct", func(t *testing.T) {
		v, err := Parse(`{"queries":["ti:a","abs:b"]}`, guaranteed, requireQueries)
		require.NoError(t, err)
		assert.Equal(t, []string{"ti:a", "abs:b"}, v.Queries)
	})

	t.Run("falls through to extract", func(t *testing.T) {
		v, err := Parse(`Result: {"queries":["ti:a"]}`, guaranteed, requireQueries)
		require.NoError(t, err)
		assert.Equal(t, []string{"ti:a"}, v.Queries)
	})

	t.Run("wrapper wins over earlier stray object", func(t *testing.T) {
		raw := `{"queries":[]} draft... <json>{"queries":["ti:final"]}</json>`
		v, err := Parse(raw, plain, requireQueries)
		require.NoError(t, err)
		assert.Equal(t, []string{"ti:final"}, v.Queries)
	})

	t.Run("validation failure exhausts", func(t *testing.T) {
		_, err := Parse(`{"queries":[]}`, guaranteed, requireQueries)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindParse))
		assert.Contains(t, err.Error(), "direct: invalid")
		assert.Contains(t, err.Error(), "extract: invalid")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := Parse(`{"queries":"ti:a"}`, guaranteed, requireQueries)
		assert.True(t, IsKind(err, KindParse))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Parse("  ", plain, requireQueries)
		assert.True(t, IsKind(err, KindParse))
	})
}
