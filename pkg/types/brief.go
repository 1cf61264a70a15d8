// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the litbrief pipeline:
// briefs and their search terms, papers and brief associations, relevancy
// records, the model catalog, provider settings, and configuration.
package types

import "time"

// Brief is the unit of work: one research question carried through search,
// curation, and review synthesis. Every mutation refreshes UpdatedAt.
type Brief struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`

	// Query is the user's free-text research question.
	Query string `json:"query" yaml:"query"`

	// SearchQueries is the ordered list of index-specific search terms.
	SearchQueries []SearchQuery `json:"searchQueries" yaml:"search_queries"`

	// DateConstraint restricts search results by submission date. Nil means
	// no constraint has been stored.
	DateConstraint *DateConstraint `json:"dateConstraint,omitempty" yaml:"date_constraint,omitempty"`

	References   []Reference   `json:"references" yaml:"references"`
	Review       string        `json:"review" yaml:"review"`
	Bibtex       string        `json:"bibtex" yaml:"bibtex"`
	ChatMessages []ChatMessage `json:"chatMessages" yaml:"chat_messages"`

	CreatedAt   time.Time  `json:"createdAt" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updated_at"`
	OpenedAt    *time.Time `json:"openedAt,omitempty" yaml:"opened_at,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
}

// ActiveTerms returns the terms of the brief's active search queries in order.
func (b *Brief) ActiveTerms() []string {
	var terms []string
	for _, q := range b.SearchQueries {
		if q.IsActive {
			terms = append(terms, q.Term)
		}
	}
	return terms
}

// BriefPatch is a partial update to a Brief. Nil fields are left untouched.
// ClearDateConstraint removes a stored constraint.
type BriefPatch struct {
	Title               *string
	Query               *string
	SearchQueries       []SearchQuery
	SetSearchQueries    bool
	DateConstraint      *DateConstraint
	ClearDateConstraint bool
	References          []Reference
	SetReferences       bool
	Review              *string
	Bibtex              *string
	ChatMessages        []ChatMessage
	SetChatMessages     bool
	OpenedAt            *time.Time
	CompletedAt         *time.Time
}

// Apply merges the patch into b. It does not touch UpdatedAt; the store does.
func (p BriefPatch) Apply(b *Brief) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Query != nil {
		b.Query = *p.Query
	}
	if p.SetSearchQueries {
		b.SearchQueries = p.SearchQueries
	}
	if p.ClearDateConstraint {
		b.DateConstraint = nil
	} else if p.DateConstraint != nil {
		dc := *p.DateConstraint
		b.DateConstraint = &dc
	}
	if p.SetReferences {
		b.References = p.References
	}
	if p.Review != nil {
		b.Review = *p.Review
	}
	if p.Bibtex != nil {
		b.Bibtex = *p.Bibtex
	}
	if p.SetChatMessages {
		b.ChatMessages = p.ChatMessages
	}
	if p.OpenedAt != nil {
		b.OpenedAt = p.OpenedAt
	}
	if p.CompletedAt != nil {
		b.CompletedAt = p.CompletedAt
	}
}

// SearchQuery is the persisted form of a search term.
type SearchQuery struct {
	ID       string `json:"id" yaml:"id"`
	Term     string `json:"term" yaml:"term"`
	IsActive bool   `json:"isActive" yaml:"is_active"`
}

// QueryStatus is the session-only progress of one search term.
type QueryStatus string

const (
	QueryWaiting    QueryStatus = "waiting"
	QueryProcessing QueryStatus = "processing"
	QueryCompleted  QueryStatus = "completed"
	QueryFailed     QueryStatus = "failed"
)

// SearchQueryWithStatus decorates a SearchQuery with transient run state.
// It is never persisted; use Persisted to project it back.
type SearchQueryWithStatus struct {
	SearchQuery
	Status QueryStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Persisted drops the session fields.
func (q SearchQueryWithStatus) Persisted() SearchQuery {
	return q.SearchQuery
}

// WithStatus decorates each query with the waiting status.
func WithStatus(queries []SearchQuery) []SearchQueryWithStatus {
	out := make([]SearchQueryWithStatus, len(queries))
	for i, q := range queries {
		out[i] = SearchQueryWithStatus{SearchQuery: q, Status: QueryWaiting}
	}
	return out
}

// PersistedQueries projects a session view back to its durable records.
func PersistedQueries(queries []SearchQueryWithStatus) []SearchQuery {
	out := make([]SearchQuery, len(queries))
	for i, q := range queries {
		out[i] = q.Persisted()
	}
	return out
}

// DateConstraintType is the kind of date filter applied to a search.
type DateConstraintType string

const (
	DateNone    DateConstraintType = "none"
	DateBefore  DateConstraintType = "before"
	DateAfter   DateConstraintType = "after"
	DateBetween DateConstraintType = "between"
)

// DateConstraint bounds results by submission date. Dates are YYYY-MM-DD;
// an empty date marshals as JSON null.
type DateConstraint struct {
	Type       DateConstraintType `json:"type" yaml:"type"`
	BeforeDate *string            `json:"beforeDate" yaml:"before_date,omitempty"`
	AfterDate  *string            `json:"afterDate" yaml:"after_date,omitempty"`
}

// Reference is one cited paper in a generated review.
type Reference struct {
	PaperID  string `json:"paperId" yaml:"paper_id"`
	Citation string `json:"citation" yaml:"citation"`
	PDFLink  string `json:"pdfLink,omitempty" yaml:"pdf_link,omitempty"`
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleUser ChatRole = "user"
	RoleAI   ChatRole = "ai"
)

// ChatMessage is one turn of the question-refinement conversation.
type ChatMessage struct {
	ID        string    `json:"id" yaml:"id"`
	Role      ChatRole  `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
