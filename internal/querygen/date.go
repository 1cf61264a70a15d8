// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package querygen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/litbrief/pkg/types"
)

// seasonMonths maps a season name to the month it starts in.
var seasonMonths = map[string]time.Month{
	"spring": time.March,
	"summer": time.June,
	"fall":   time.September,
	"autumn": time.September,
	"winter": time.December,
}

var (
	yearPattern      = regexp.MustCompile(`^\d{4}$`)
	yearMonthPattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	wordYearPattern  = regexp.MustCompile(`^([a-z]+)\s+(\d{4})$`)
	yearWordPattern  = regexp.MustCompile(`^(\d{4})\s+([a-z]+)$`)
)

// NormalizeDate resolves a partial date to YYYY-MM-DD. A missing day
// defaults to the 1st and a missing month to January; a season resolves to
// the first day of its starting month. Accepted forms: "2023",
// "2023-06", "2023-06-15", "June 2023", "spring 2023", "2023 spring".
func NormalizeDate(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), true
	}
	if yearPattern.MatchString(s) {
		return s + "-01-01", true
	}
	if m := yearMonthPattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return "", false
		}
		return fmt.Sprintf("%s-%02d-01", m[1], month), true
	}

	word, year := "", ""
	if m := wordYearPattern.FindStringSubmatch(s); m != nil {
		word, year = m[1], m[2]
	} else if m := yearWordPattern.FindStringSubmatch(s); m != nil {
		year, word = m[1], m[2]
	} else {
		return "", false
	}
	if month, ok := seasonMonths[word]; ok {
		return fmt.Sprintf("%s-%02d-01", year, int(month)), true
	}
	if t, err := time.Parse("January 2006", capitalize(word)+" "+year); err == nil {
		return t.Format("2006-01-02"), true
	}
	if t, err := time.Parse("Jan 2006", capitalize(word)+" "+year); err == nil {
		return t.Format("2006-01-02"), true
	}
	return "", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// normalizeConstraint validates a model-supplied constraint and resolves
// its dates. A between constraint with one usable bound degrades to before
// or after. It reports false when nothing usable remains.
func normalizeConstraint(raw rawConstraint) (types.DateConstraint, bool) {
	typ := types.DateConstraintType(strings.ToLower(strings.TrimSpace(raw.Type)))
	if typ == "" || typ == types.DateNone {
		return types.DateConstraint{Type: types.DateNone}, true
	}

	before, hasBefore := normalizePtr(raw.BeforeDate)
	after, hasAfter := normalizePtr(raw.AfterDate)

	switch typ {
	case types.DateBefore:
		if !hasBefore {
			return types.DateConstraint{}, false
		}
		return types.DateConstraint{Type: typ, BeforeDate: &before}, true
	case types.DateAfter:
		if !hasAfter {
			return types.DateConstraint{}, false
		}
		return types.DateConstraint{Type: typ, AfterDate: &after}, true
	case types.DateBetween:
		switch {
		case hasBefore && hasAfter:
			if after > before {
				after, before = before, after
			}
			return types.DateConstraint{Type: typ, AfterDate: &after, BeforeDate: &before}, true
		case hasBefore:
			return types.DateConstraint{Type: types.DateBefore, BeforeDate: &before}, true
		case hasAfter:
			return types.DateConstraint{Type: types.DateAfter, AfterDate: &after}, true
		}
	}
	return types.DateConstraint{}, false
}

func normalizePtr(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return NormalizeDate(*s)
}
