// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/litbrief/pkg/types"
)

// earliestSubmission is the lower bound used for open "before" ranges.
// arXiv holds nothing older.
const earliestSubmission = "19910101"

// DateClause renders dc in the index's bracket syntax, e.g.
// "submittedDate:[20230101 TO 20231231]". Open bounds are filled with the
// index's first day and now. It returns "" for a nil constraint, type none,
// or a constraint missing the dates its type requires.
func DateClause(dc *types.DateConstraint, now time.Time) string {
	if dc == nil {
		return ""
	}
	from, to := "", ""
	switch dc.Type {
	case types.DateBefore:
		from, to = earliestSubmission, compactDate(dc.BeforeDate)
	case types.DateAfter:
		from, to = compactDate(dc.AfterDate), now.UTC().Format("20060102")
	case types.DateBetween:
		from, to = compactDate(dc.AfterDate), compactDate(dc.BeforeDate)
	default:
		return ""
	}
	if from == "" || to == "" {
		return ""
	}
	return fmt.Sprintf("submittedDate:[%s TO %s]", from, to)
}

// ApplyDateConstraint ANDs the date clause for dc onto query.
func ApplyDateConstraint(query string, dc *types.DateConstraint, now time.Time) string {
	clause := DateClause(dc, now)
	switch {
	case clause == "":
		return query
	case strings.TrimSpace(query) == "":
		return clause
	default:
		return "(" + query + ") AND " + clause
	}
}

// compactDate turns "2023-01-31" into "20230131".
func compactDate(d *string) string {
	if d == nil {
		return ""
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*d))
	if err != nil {
		return ""
	}
	return t.Format("20060102")
}
