// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"strings"

	"github.com/pdiddy/litbrief/pkg/types"
)

// Step ids.
const (
	StepDefine   = "define"
	StepRefine   = "refine"
	StepSearch   = "search"
	StepGenerate = "generate"
)

// DefaultSteps returns the brief workflow: define the question, refine it
// into search terms, search and select papers, generate the review.
func DefaultSteps() []Step {
	return []Step{
		{
			ID:         StepDefine,
			Title:      "Define question",
			IsComplete: hasQuery,
		},
		{
			ID:           StepRefine,
			Title:        "Refine search terms",
			ShouldRender: hasQuery,
			IsComplete: func(s types.BriefState) bool {
				return s.Brief != nil && len(s.Brief.ActiveTerms()) > 0
			},
		},
		{
			ID:    StepSearch,
			Title: "Search papers",
			IsComplete: func(s types.BriefState) bool {
				return s.SelectedCount() > 0
			},
		},
		{
			ID:    StepGenerate,
			Title: "Generate brief",
			IsComplete: func(s types.BriefState) bool {
				return s.Brief != nil && strings.TrimSpace(s.Brief.Review) != ""
			},
		},
	}
}

func hasQuery(s types.BriefState) bool {
	return s.Brief != nil && strings.TrimSpace(s.Brief.Query) != ""
}
