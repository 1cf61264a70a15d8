// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/litbrief/pkg/types"
)

// titleStopWords are skipped when picking the title word of a citation key.
var titleStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "on": true, "of": true, "for": true,
	"in": true, "to": true, "and": true, "with": true, "towards": true,
}

// CitationKey builds a key from the first author's family name, the year,
// and the first significant title word, e.g. "vaswani2017attention".
// Papers without authors fall back to the arXiv id.
func CitationKey(p types.Paper) string {
	var b strings.Builder
	if len(p.Authors) > 0 {
		name := parseAuthorName(p.Authors[0])
		family := name.Family
		if family == "" {
			family = name.Literal
		}
		b.WriteString(keyPart(family))
	}
	if b.Len() == 0 {
		return "arxiv" + keyPart(p.ID)
	}
	if p.Year > 0 {
		fmt.Fprintf(&b, "%d", p.Year)
	}
	for _, w := range strings.Fields(p.Title) {
		part := keyPart(w)
		if part != "" && !titleStopWords[part] {
			b.WriteString(part)
			break
		}
	}
	return b.String()
}

// keyPart lowercases s and keeps only ASCII letters and digits.
func keyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BibTeX renders p as a BibTeX @article entry keyed by CitationKey. Output
// depends only on the paper's fields, so repeated calls produce identical
// text.
func BibTeX(p types.Paper) string {
	return BibTeXWithKey(p, CitationKey(p))
}

// BibTeXWithKey renders p under an explicit citation key.
func BibTeXWithKey(p types.Paper, key string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@article{%s,\n", key)
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %s = {%s},\n", name, escapeBibTeX(value))
		}
	}
	field("title", strings.Join(strings.Fields(p.Title), " "))
	field("author", strings.Join(p.Authors, " and "))
	if p.Year > 0 {
		field("year", fmt.Sprintf("%d", p.Year))
	}
	if p.JournalRef != "" {
		field("journal", p.JournalRef)
	} else if p.ID != "" {
		field("journal", "arXiv preprint arXiv:"+p.ID)
	}
	if p.ID != "" {
		field("eprint", p.ID)
		field("archivePrefix", "arXiv")
	}
	field("primaryClass", p.PrimaryCategory)
	field("doi", p.DOI)
	if p.Links.Abs != "" {
		field("url", p.Links.Abs)
	} else if p.ID != "" {
		field("url", "https://arxiv.org/abs/"+p.ID)
	}
	b.WriteString("}")
	return b.String()
}

// escapeBibTeX protects characters that would otherwise break a braced value.
func escapeBibTeX(s string) string {
	r := strings.NewReplacer("{", `\{`, "}", `\}`, "&", `\&`, "%", `\%`)
	return r.Replace(s)
}
