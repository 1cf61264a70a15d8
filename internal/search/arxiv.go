// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/internal/httputil"
	"github.com/pdiddy/litbrief/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// SourceArxiv is the provenance tag stamped on papers from arXiv.
const SourceArxiv = "arxiv"

const defaultMaxResults = 20

// ArxivClient queries the arXiv Atom API. It performs no throttling of its
// own; wrap it in a RateLimiter for anything beyond a single call.
type ArxivClient struct {
	Client     *http.Client
	BaseURL    string
	UserAgent  string
	MaxResults int
	MaxRetries int
	Logger     *zap.Logger

	// Now supplies the upper bound of open "after" date ranges.
	Now func() time.Time
}

// NewArxivClient builds a client from the search configuration.
func NewArxivClient(cfg types.SearchConfig, logger *zap.Logger) *ArxivClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArxivClient{
		Client:     &http.Client{Timeout: cfg.Timeout},
		BaseURL:    cfg.BaseURL,
		UserAgent:  cfg.UserAgent,
		MaxResults: cfg.MaxResults,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	}
}

// Search issues one query and returns the normalized page of papers.
func (c *ArxivClient) Search(ctx context.Context, p Params) (*Response, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, errors.New("empty arXiv query")
	}

	reqURL := c.queryURL(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	logger := c.logger()
	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, c.Client, req, c.MaxRetries, logger)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("arXiv API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out, err := parseFeed(resp.Body)
	if err != nil {
		return nil, err
	}
	if out.Skipped > 0 {
		logger.Warn("skipped unusable arXiv entries",
			zap.String("query", p.Query), zap.Int("skipped", out.Skipped))
	}
	logger.Debug("arxiv search",
		zap.String("query", p.Query),
		zap.Int("papers", len(out.Papers)),
		zap.Int("total", out.TotalResults),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (c *ArxivClient) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// queryURL renders the GET URL for p, applying defaults and the date clause.
func (c *ArxivClient) queryURL(p Params) string {
	base := c.BaseURL
	if base == "" {
		base = arxivAPIBase
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = c.MaxResults
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = SortRelevance
	}
	sortOrder := p.SortOrder
	if sortOrder == "" {
		sortOrder = SortDescending
	}

	v := url.Values{}
	v.Set("search_query", ApplyDateConstraint(p.Query, p.DateConstraint, now()))
	v.Set("start", strconv.Itoa(max(p.Start, 0)))
	v.Set("max_results", strconv.Itoa(maxResults))
	v.Set("sortBy", string(sortBy))
	v.Set("sortOrder", string(sortOrder))
	return base + "?" + v.Encode()
}

// parseFeed decodes an arXiv Atom feed. The atom parser always yields
// slices for entries, authors, categories and links, so a one-entry feed
// normalizes exactly like a many-entry feed.
func parseFeed(r io.Reader) (*Response, error) {
	feed, err := (&atom.Parser{}).Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	out := &Response{
		TotalResults: extInt(feed.Extensions, "opensearch", "totalResults"),
		StartIndex:   extInt(feed.Extensions, "opensearch", "startIndex"),
		ItemsPerPage: extInt(feed.Extensions, "opensearch", "itemsPerPage"),
		Papers:       make([]types.Paper, 0, len(feed.Entries)),
	}
	for _, entry := range feed.Entries {
		p, ok := paperFromEntry(entry)
		if !ok {
			out.Skipped++
			continue
		}
		out.Papers = append(out.Papers, p)
	}
	// arXiv reports a single error entry instead of an HTTP error for a
	// malformed query.
	if len(out.Papers) == 0 && len(feed.Entries) == 1 && feed.Entries[0].Title == "Error" {
		return nil, fmt.Errorf("arXiv rejected query: %s", strings.TrimSpace(feed.Entries[0].Summary))
	}
	return out, nil
}

func paperFromEntry(e *atom.Entry) (types.Paper, bool) {
	id := extractArxivID(e.ID)
	if id == "" {
		return types.Paper{}, false
	}

	p := types.Paper{
		ID:              id,
		Title:           collapseSpace(e.Title),
		Abstract:        collapseSpace(e.Summary),
		Source:          SourceArxiv,
		DOI:             extString(e.Extensions, "arxiv", "doi"),
		JournalRef:      collapseSpace(extString(e.Extensions, "arxiv", "journal_ref")),
		Comment:         collapseSpace(extString(e.Extensions, "arxiv", "comment")),
		PrimaryCategory: extAttr(e.Extensions, "arxiv", "primary_category", "term"),
	}

	for _, a := range e.Authors {
		if a == nil {
			continue
		}
		if name := collapseSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	if len(p.Authors) == 0 {
		return types.Paper{}, false
	}
	for _, c := range e.Categories {
		if c != nil && c.Term != "" {
			p.Categories = append(p.Categories, c.Term)
		}
	}
	if p.PrimaryCategory == "" && len(p.Categories) > 0 {
		p.PrimaryCategory = p.Categories[0]
	}

	for _, l := range e.Links {
		if l == nil {
			continue
		}
		switch {
		case l.Title == "pdf" || l.Type == "application/pdf":
			p.Links.PDF = l.Href
		case l.Title == "doi":
			p.Links.DOI = l.Href
		case l.Rel == "alternate" || l.Rel == "":
			p.Links.Abs = l.Href
		}
	}
	if p.Links.Abs == "" {
		p.Links.Abs = strings.TrimSpace(e.ID)
	}
	if p.Links.DOI == "" && p.DOI != "" {
		p.Links.DOI = "https://doi.org/" + p.DOI
	}

	if e.PublishedParsed != nil {
		p.Published = e.PublishedParsed.UTC()
		p.Year = p.Published.Year()
	}
	if e.UpdatedParsed != nil {
		p.Updated = e.UpdatedParsed.UTC()
	}

	p.Citation = BibTeX(p)
	return p, true
}

// extLookup finds the extension elements named name, preferring the
// conventional prefix but accepting any prefix the feed declared.
func extLookup(exts ext.Extensions, prefix, name string) []ext.Extension {
	if list := exts[prefix][name]; len(list) > 0 {
		return list
	}
	for _, m := range exts {
		if list := m[name]; len(list) > 0 {
			return list
		}
	}
	return nil
}

func extString(exts ext.Extensions, prefix, name string) string {
	if list := extLookup(exts, prefix, name); len(list) > 0 {
		return strings.TrimSpace(list[0].Value)
	}
	return ""
}

func extAttr(exts ext.Extensions, prefix, name, attr string) string {
	if list := extLookup(exts, prefix, name); len(list) > 0 {
		return strings.TrimSpace(list[0].Attrs[attr])
	}
	return ""
}

func extInt(exts ext.Extensions, prefix, name string) int {
	n, err := strconv.Atoi(extString(exts, prefix, name))
	if err != nil {
		return 0
	}
	return n
}

// collapseSpace folds the line breaks and runs of spaces arXiv puts in
// titles and abstracts.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
