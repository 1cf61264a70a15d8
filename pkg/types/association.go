// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PaperBriefAssociation joins a Paper to a Brief. At most one exists per
// (BriefID, PaperID). RelevancyScore mirrors Relevancy.OverallScore.
type PaperBriefAssociation struct {
	BriefID string `json:"briefId" yaml:"brief_id"`
	PaperID string `json:"paperId" yaml:"paper_id"`

	// FoundBy lists the search terms that returned the paper.
	FoundBy []string `json:"foundBy" yaml:"found_by"`

	Selected bool `json:"selected" yaml:"selected"`

	Relevancy      *RelevancyData `json:"relevancy,omitempty" yaml:"relevancy,omitempty"`
	RelevancyScore *int           `json:"relevancyScore,omitempty" yaml:"relevancy_score,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// Scored reports whether the association carries a relevancy record.
func (a PaperBriefAssociation) Scored() bool {
	return a.Relevancy != nil
}

// RelevancyData is a model's judgement of how well a paper fits a query.
type RelevancyData struct {
	// OverallScore is 0-100.
	OverallScore    int               `json:"overallScore" yaml:"overall_score"`
	Reasons         []RelevancyReason `json:"reasons" yaml:"reasons"`
	MatchedKeywords []string          `json:"matchedKeywords" yaml:"matched_keywords"`
	// Confidence is 0-100.
	Confidence int `json:"confidence" yaml:"confidence"`
}

// RelevancyReason is one itemized factor; Impact is signed.
type RelevancyReason struct {
	Reason string `json:"reason" yaml:"reason"`
	Impact int    `json:"impact" yaml:"impact"`
}

// BriefState is everything step predicates may look at.
type BriefState struct {
	Brief        *Brief
	Associations []PaperBriefAssociation
}

// SelectedCount returns the number of selected associations.
func (s BriefState) SelectedCount() int {
	n := 0
	for _, a := range s.Associations {
		if a.Selected {
			n++
		}
	}
	return n
}
