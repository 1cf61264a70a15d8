// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries the external paper index, throttles access to it,
// and merges the per-term results of a brief into unique papers.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pdiddy/litbrief/pkg/types"
)

// SortBy selects the index's result ordering.
type SortBy string

const (
	SortRelevance   SortBy = "relevance"
	SortLastUpdated SortBy = "lastUpdatedDate"
	SortSubmitted   SortBy = "submittedDate"
)

// SortOrder selects ascending or descending order.
type SortOrder string

const (
	SortAscending  SortOrder = "ascending"
	SortDescending SortOrder = "descending"
)

// Params describe one search request.
type Params struct {
	Query      string
	Start      int
	MaxResults int
	SortBy     SortBy
	SortOrder  SortOrder

	// DateConstraint, when set and not of type none, is ANDed onto Query.
	DateConstraint *types.DateConstraint
}

// Response is one page of results.
type Response struct {
	Papers       []types.Paper
	TotalResults int
	StartIndex   int
	ItemsPerPage int

	// Skipped counts feed entries dropped for lacking an id or authors.
	Skipped int
}

// Searcher runs a single search. Both the index client and the rate
// limiter implement it.
type Searcher interface {
	Search(ctx context.Context, p Params) (*Response, error)
}

// Hit is a unique paper together with every term that found it.
type Hit struct {
	Paper   types.Paper
	FoundBy []string
}

// Collector merges results across search terms. Papers are unique on ID.
// Normalized title matches a sighting only when one side has no ID.
type Collector struct {
	hits []Hit
	seen map[string]int
	dups int
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]int)}
}

// Add records the papers found by term.
func (c *Collector) Add(term string, papers []types.Paper) {
	for _, p := range papers {
		idKey := ""
		if p.ID != "" {
			idKey = "id:" + p.ID
		}
		titleKey := ""
		if t := normalizeTitle(p.Title); t != "" {
			titleKey = "title:" + t
		}

		idx, ok := c.lookup(idKey, titleKey, p.ID)
		if ok {
			c.hits[idx].Paper.Merge(p)
			c.hits[idx].FoundBy = appendUnique(c.hits[idx].FoundBy, term)
			c.dups++
		} else {
			idx = len(c.hits)
			c.hits = append(c.hits, Hit{Paper: p, FoundBy: []string{term}})
		}
		if idKey != "" {
			c.seen[idKey] = idx
		}
		if _, taken := c.seen[titleKey]; titleKey != "" && !taken {
			c.seen[titleKey] = idx
		}
	}
}

func (c *Collector) lookup(idKey, titleKey, id string) (int, bool) {
	if idKey != "" {
		if idx, ok := c.seen[idKey]; ok {
			return idx, true
		}
	}
	if titleKey == "" {
		return 0, false
	}
	idx, ok := c.seen[titleKey]
	if !ok || (id != "" && c.hits[idx].Paper.ID != "") {
		return 0, false
	}
	return idx, true
}

// Hits returns the merged papers in first-seen order.
func (c *Collector) Hits() []Hit { return c.hits }

// Duplicates returns how many repeat sightings were merged.
func (c *Collector) Duplicates() int { return c.dups }

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FormatTable writes papers as a human-readable table to w.
func FormatTable(papers []types.Paper, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-12s  %-56s  %-20s  %s\n", "Rank", "ID", "Title", "Authors", "Year")
	fmt.Fprintln(w, strings.Repeat("-", 104))

	for i, p := range papers {
		year := ""
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		fmt.Fprintf(w, "%-4d  %-12s  %-56s  %-20s  %s\n",
			i+1, truncate(p.ID, 12), truncate(p.Title, 56), formatAuthors(p.Authors), year)
	}
	fmt.Fprintf(w, "\n%d results\n", len(papers))
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(papers []types.Paper, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
