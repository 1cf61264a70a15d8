// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refine runs the question-refinement conversation attached to a
// brief. Each turn appends the user's message and the model's reply to the
// brief's chat history.
package refine

import (
	"bytes"
	"context"
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

// ErrEmptyMessage is returned when the user message is blank.
var ErrEmptyMessage = errors.New("empty chat message")

// suggestionPrefix marks the line the model uses to propose a rewritten
// research question.
const suggestionPrefix = "refined question:"

// BriefStore is the persistence the service needs.
type BriefStore interface {
	GetBrief(ctx context.Context, id string) (*types.Brief, error)
	UpdateBriefFunc(ctx context.Context, id string, fn func(b *types.Brief) error) (*types.Brief, error)
}

// Options tune the completion request.
type Options struct {
	MaxTokens   int
	Temperature float64
	MaxAttempts int
	Logger      *zap.Logger
}

// Service answers refinement messages.
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

// Reply is the outcome of one chat turn.
type Reply struct {
	Brief   *types.Brief
	Message types.ChatMessage

	// Suggestion is the rewritten research question the model proposed, if
	// any. It is not applied to the brief.
	Suggestion string

	Usage llm.Usage
}

var promptTmpl = template.Must(template.New("refine").Parse(`You are helping a researcher sharpen a research question before a literature search on arXiv.
Ask at most one clarifying question per turn, or suggest narrower scope, key terms, or a date range.
When you can propose a better question, put it on its own line starting with "Refined question:".

Current research question:
{{.Query}}

Conversation so far:
{{range .Messages}}{{.Role}}: {{.Content}}
{{end}}ai:`))

// Send appends message to the brief's conversation, asks the model for a
// reply, and appends both turns to the stored conversation in one update.
// Nothing is stored when the model call fails.
func (s *Service) Send(ctx context.Context, briefID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	brief, err := s.store.GetBrief(ctx, briefID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(
		zap.String("brief_id", briefID),
		zap.String("provider", string(resolved.Provider.Name())),
		zap.String("model", resolved.Model.ID))

	user := types.ChatMessage{ID: s.newID(), Role: types.RoleUser, Content: message, Timestamp: s.now().UTC()}
	history := append(append([]types.ChatMessage(nil), brief.ChatMessages...), user)

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, struct {
		Query    string
		Messages []types.ChatMessage
	}{brief.Query, history}); err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	req := llm.ChatRequest{
		Prompt:      buf.String(),
		Model:       resolved.Model.ID,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: llm.Float(s.opts.Temperature),
	}
	resp, err := llm.Retry(ctx, logger, "refine", s.opts.MaxAttempts, func(ctx context.Context) (*llm.ChatResponse, error) {
		return resolved.Provider.Chat(ctx, req)
	})
	if err != nil {
		logger.Warn("refine request failed", zap.Error(err))
		return nil, err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, llm.ParseError("model returned an empty reply", nil)
	}

	ai := types.ChatMessage{ID: s.newID(), Role: types.RoleAI, Content: content, Timestamp: s.now().UTC()}
	updated, err := s.store.UpdateBriefFunc(ctx, briefID, func(b *types.Brief) error {
		b.ChatMessages = append(b.ChatMessages, user, ai)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing chat: %w", err)
	}
	logger.Debug("refine turn", zap.Int("messages", len(updated.ChatMessages)), zap.Int("tokens", resp.Usage.TotalTokens))
	return &Reply{Brief: updated, Message: ai, Suggestion: Suggestion(content), Usage: resp.Usage}, nil
}

// Suggestion returns the text after a "Refined question:" line in reply, or
// "" when the reply has none.
func Suggestion(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*_"))
		if len(line) < len(suggestionPrefix) || !strings.EqualFold(line[:len(suggestionPrefix)], suggestionPrefix) {
			continue
		}
		rest := strings.Trim(strings.TrimSpace(line[len(suggestionPrefix):]), `*_"`)
		if rest != "" {
			return rest
		}
	}
	return ""
}
