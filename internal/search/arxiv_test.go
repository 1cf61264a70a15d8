// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/litbrief/internal/httputil"
	"github.com/pdiddy/litbrief/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const feedHeader = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"
      xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/"
      xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title type="html">ArXiv Query</title>
  <id>http://arxiv.org/api/x</id>
  <updated>2024-01-01T00:00:00-05:00</updated>
  <opensearch:totalResults>%d</opensearch:totalResults>
  <opensearch:startIndex>0</opensearch:startIndex>
  <opensearch:itemsPerPage>%d</opensearch:itemsPerPage>
`

const attentionEntry = `
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <updated>2023-08-02T00:41:18Z</updated>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models
  are based on complex recurrent networks.</summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <arxiv:doi>10.48550/arXiv.1706.03762</arxiv:doi>
    <arxiv:comment>15 pages, 5 figures</arxiv:comment>
    <arxiv:journal_ref>NeurIPS 2017</arxiv:journal_ref>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
    <link title="doi" href="http://dx.doi.org/10.48550/arXiv.1706.03762" rel="related"/>
    <arxiv:primary_category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>`

const singleAuthorEntry = `
  <entry>
    <id>http://arxiv.org/abs/2301.07041v1</id>
    <updated>2023-01-17T00:00:00Z</updated>
    <published>2023-01-17T00:00:00Z</published>
    <title>Efficient Transformers</title>
    <summary>Survey.</summary>
    <author><name>Yi Tay</name></author>
    <link href="http://arxiv.org/abs/2301.07041v1" rel="alternate" type="text/html"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>`

func feed(total int, entries ...string) string {
	return fmt.Sprintf(feedHeader, total, len(entries)) + strings.Join(entries, "") + "\n</feed>"
}

func TestParseFeedNormalizesEntry(t *testing.T) {
	resp, err := parseFeed(strings.NewReader(feed(1, attentionEntry)))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, 1, resp.TotalResults)
	assert.Equal(t, 1, resp.ItemsPerPage)

	p := resp.Papers[0]
	assert.Equal(t, "1706.03762", p.ID)
	assert.Equal(t, "Attention Is All You Need", p.Title)
	assert.Equal(t, "The dominant sequence transduction models are based on complex recurrent networks.", p.Abstract)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, p.Authors)
	assert.Equal(t, 2017, p.Year)
	assert.Equal(t, "10.48550/arXiv.1706.03762", p.DOI)
	assert.Equal(t, "NeurIPS 2017", p.JournalRef)
	assert.Equal(t, "15 pages, 5 figures", p.Comment)
	assert.Equal(t, "cs.CL", p.PrimaryCategory)
	assert.Equal(t, []string{"cs.CL", "cs.LG"}, p.Categories)
	assert.Equal(t, types.PaperLinks{
		Abs: "http://arxiv.org/abs/1706.03762v7",
		PDF: "http://arxiv.org/pdf/1706.03762v7",
		DOI: "http://dx.doi.org/10.48550/arXiv.1706.03762",
	}, p.Links)
	assert.Equal(t, SourceArxiv, p.Source)
	assert.Equal(t, BibTeX(p), p.Citation)
}

func TestParseFeedSingleAndMultiEntryAgree(t *testing.T) {
	single, err := parseFeed(strings.NewReader(feed(1, singleAuthorEntry)))
	require.NoError(t, err)
	multi, err := parseFeed(strings.NewReader(feed(2, attentionEntry, singleAuthorEntry)))
	require.NoError(t, err)

	require.Len(t, single.Papers, 1)
	require.Len(t, multi.Papers, 2)
	if diff := cmp.Diff(single.Papers[0], multi.Papers[1]); diff != "" {
		t.Errorf("single-entry feed normalized differently (-single +multi):\n%s", diff)
	}
	assert.Equal(t, []string{"Yi Tay"}, single.Papers[0].Authors, "one author is still a list")
	assert.Equal(t, []string{"cs.LG"}, single.Papers[0].Categories)
	assert.Equal(t, "cs.LG", single.Papers[0].PrimaryCategory, "falls back to first category")
}

func TestParseFeedEmpty(t *testing.T) {
	resp, err := parseFeed(strings.NewReader(feed(0)))
	require.NoError(t, err)
	assert.Empty(t, resp.Papers)
	assert.NotNil(t, resp.Papers)
	assert.Equal(t, 0, resp.TotalResults)
}

func TestParseFeedSkipsEntryWithoutAuthors(t *testing.T) {
	anonymous := `
  <entry>
    <id>http://arxiv.org/abs/2405.00001v1</id>
    <published>2024-05-01T00:00:00Z</published>
    <title>No Byline</title>
    <summary>Abstract.</summary>
    <author><name>  </name></author>
  </entry>`
	resp, err := parseFeed(strings.NewReader(feed(2, anonymous, singleAuthorEntry)))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "2301.07041", resp.Papers[0].ID)
	assert.Equal(t, 1, resp.Skipped)
}

func TestParseFeedErrorEntry(t *testing.T) {
	errEntry := `
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_1234</id>
    <title>Error</title>
    <summary>incorrect id format for 1234</summary>
  </entry>`
	_, err := parseFeed(strings.NewReader(feed(1, errEntry)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect id format")
}

func TestParseFeedMalformed(t *testing.T) {
	_, err := parseFeed(strings.NewReader("<html>not a feed"))
	assert.Error(t, err)
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/2301.07041v12", "2301.07041"},
		{"http://arxiv.org/abs/2301.07041", "2301.07041"},
		{"http://arxiv.org/abs/hep-th/9901001v2", "hep-th/9901001"},
		{"http://arxiv.org/api/errors#x", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArxivID(tt.in), tt.in)
	}
}

func TestArxivClientSearch(t *testing.T) {
	var got *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, feed(57, attentionEntry))
	}))
	defer ts.Close()

	c := &ArxivClient{
		Client:    ts.Client(),
		BaseURL:   ts.URL,
		UserAgent: "litbrief-test",
		Logger:    zaptest.NewLogger(t),
		Now:       func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) },
	}
	resp, err := c.Search(context.Background(), Params{
		Query:          "ti:attention",
		Start:          10,
		MaxResults:     5,
		SortBy:         SortSubmitted,
		DateConstraint: &types.DateConstraint{Type: types.DateAfter, AfterDate: strPtr("2017-01-01")},
	})
	require.NoError(t, err)
	assert.Equal(t, 57, resp.TotalResults)
	require.Len(t, resp.Papers, 1)

	q := got.URL.Query()
	assert.Equal(t, "(ti:attention) AND submittedDate:[20170101 TO 20260102]", q.Get("search_query"))
	assert.Equal(t, "10", q.Get("start"))
	assert.Equal(t, "5", q.Get("max_results"))
	assert.Equal(t, "submittedDate", q.Get("sortBy"))
	assert.Equal(t, "descending", q.Get("sortOrder"))
	assert.Equal(t, "litbrief-test", got.Header.Get("User-Agent"))
}

func TestArxivClientDefaults(t *testing.T) {
	c := &ArxivClient{BaseURL: "http://example.test/api"}
	u := c.queryURL(Params{Query: "all:go"})
	assert.Contains(t, u, "max_results=20")
	assert.Contains(t, u, "sortBy=relevance")
	assert.Contains(t, u, "start=0")
}

func TestArxivClientRetriesUnavailable(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, feed(0))
	}))
	defer ts.Close()

	c := &ArxivClient{Client: ts.Client(), BaseURL: ts.URL}
	_, err := c.Search(context.Background(), Params{Query: "all:x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestArxivClientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad query")
	}))
	defer ts.Close()

	c := &ArxivClient{Client: ts.Client(), BaseURL: ts.URL}
	_, err := c.Search(context.Background(), Params{Query: "all:x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")

	_, err = c.Search(context.Background(), Params{Query: "  "})
	assert.Error(t, err)
}
