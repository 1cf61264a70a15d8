// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/litbrief/pkg/types"
)

func init() {
	BackoffBase = time.Millisecond
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
		wantKind  Kind
	}{
		{name: "first try", errs: []error{nil}, wantCalls: 1},
		{name: "request then success", errs: []error{RequestError("openai", "v", 500, nil), nil}, wantCalls: 2},
		{name: "auth is not retried", errs: []error{AuthError("openai", "v", 401, nil)}, wantCalls: 1, wantErr: true, wantKind: KindAuth},
		{name: "config is not retried", errs: []error{ConfigError("openai", "x")}, wantCalls: 1, wantErr: true, wantKind: KindConfig},
		{
			name:      "exhausts",
			errs:      []error{RequestError("openai", "v", 500, nil), RequestError("openai", "v", 502, nil), RequestError("openai", "v", 503, nil)},
			wantCalls: 3, wantErr: true, wantKind: KindRequest,
		},
		{
			name:      "auth in disguise after request error",
			errs:      []error{RequestError("openai", "v", 500, nil), AuthError("openai", "v", 401, nil)},
			wantCalls: 2, wantErr: true, wantKind: KindAuth,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Retry(context.Background(), zaptest.NewLogger(t), "validate", 3, func(context.Context) (bool, error) {
				e := tt.errs[calls]
				calls++
				return e == nil, e
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, got)
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, nil, "chat", 5, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestResponseFormatFor(t *testing.T) {
	schema := []byte(`{"type":"object"}`)

	rf := ResponseFormatFor(types.ModelInfo{SupportsStructuredOutput: true, SupportsJSONMode: true}, "queries", schema)
	require.NotNil(t, rf)
	assert.Equal(t, FormatJSONSchema, rf.Type)
	assert.Equal(t, "queries", rf.JSONSchema.Name)
	assert.True(t, rf.JSONSchema.Strict)

	rf = ResponseFormatFor(types.ModelInfo{SupportsJSONMode: true}, "queries", schema)
	require.NotNil(t, rf)
	assert.Equal(t, FormatJSONObject, rf.Type)
	assert.Nil(t, rf.JSONSchema)

	assert.Nil(t, ResponseFormatFor(types.ModelInfo{}, "queries", schema))
}
