// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/litbrief/internal/search"
	"github.com/pdiddy/litbrief/pkg/types"
)

// citationPattern matches inline citations: [Key] or [Key1; Key2].
var citationPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// AssignKeys gives each paper a citation key, suffixing b, c, ... when two
// papers would otherwise share one. The result maps paper id to key.
func AssignKeys(papers []types.Paper) map[string]string {
	keys := make(map[string]string, len(papers))
	used := make(map[string]int)
	for _, p := range papers {
		base := search.CitationKey(p)
		key := base
		if n := used[base]; n > 0 {
			key = fmt.Sprintf("%s%c", base, 'a'+n)
		}
		used[base]++
		keys[p.ID] = key
	}
	return keys
}

// extractCitationKeys finds the citation keys in text, in order of first
// appearance. It handles both [Key] and [Key1; Key2]. Bracketed text that is
// neither a known key nor key-shaped is ignored.
func extractCitationKeys(text string, known map[string]bool) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ";") {
			key := strings.TrimSpace(part)
			if key == "" || seen[key] || !(known[key] || isCitationKey(key)) {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// isCitationKey checks whether a string looks like a citation key (AuthorYear
// format). It rejects strings that look like Markdown links, image references,
// or other bracket content.
func isCitationKey(s string) bool {
	hasLetter := false
	hasDigit := false
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			hasLetter = true
		case c >= '0' && c <= '9':
			hasDigit = true
		case c == '-', c == '_':
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}

// UnknownCitations returns the sorted keys cited in text that are not among
// keys.
func UnknownCitations(text string, keys map[string]string) []string {
	known := knownSet(keys)
	var unknown []string
	for _, k := range extractCitationKeys(text, known) {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func knownSet(keys map[string]string) map[string]bool {
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	return known
}

// FormatReference renders a short human-readable citation, e.g.
// "Vaswani, A., Shazeer, N. (2017). Attention Is All You Need. arXiv:1706.03762."
func FormatReference(p types.Paper) string {
	var b strings.Builder
	var names []string
	for i, a := range p.Authors {
		if i == 3 {
			names = append(names, "et al.")
			break
		}
		names = append(names, shortName(a))
	}
	if len(names) > 0 {
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(" ")
	}
	if p.Year > 0 {
		fmt.Fprintf(&b, "(%d). ", p.Year)
	}
	title := strings.Join(strings.Fields(p.Title), " ")
	if title != "" {
		b.WriteString(strings.TrimSuffix(title, "."))
		b.WriteString(". ")
	}
	switch {
	case p.JournalRef != "":
		b.WriteString(p.JournalRef + ".")
	case p.ID != "":
		b.WriteString("arXiv:" + p.ID + ".")
	}
	return strings.TrimSpace(b.String())
}

// shortName turns "Ashish Vaswani" into "Vaswani, A.".
func shortName(full string) string {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	var initials []string
	for _, g := range parts[:len(parts)-1] {
		initials = append(initials, string([]rune(g)[0])+".")
	}
	return parts[len(parts)-1] + ", " + strings.Join(initials, " ")
}
