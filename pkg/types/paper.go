// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Paper is a record from the external paper index. Papers are unique on ID;
// later enrichments update the existing record.
type Paper struct {
	// ID is the arXiv identifier without its version suffix (e.g. "2301.07041").
	ID string `json:"id" yaml:"id"`

	Title    string `json:"title" yaml:"title"`
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	Year      int       `json:"year" yaml:"year"`
	Published time.Time `json:"published" yaml:"published"`
	Updated   time.Time `json:"updated" yaml:"updated"`

	Links PaperLinks `json:"links" yaml:"links"`

	DOI             string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	JournalRef      string   `json:"journalRef,omitempty" yaml:"journal_ref,omitempty"`
	Comment         string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	PrimaryCategory string   `json:"primaryCategory,omitempty" yaml:"primary_category,omitempty"`
	Categories      []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	// Source is the provenance tag of the index that produced the record.
	Source string `json:"source" yaml:"source"`

	// Citation is a BibTeX entry synthesized from the record.
	Citation string `json:"citation" yaml:"citation"`

	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// PaperLinks holds the landing page, PDF, and DOI URLs of a paper.
type PaperLinks struct {
	Abs string `json:"abs,omitempty" yaml:"abs,omitempty"`
	PDF string `json:"pdf,omitempty" yaml:"pdf,omitempty"`
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`
}

// Merge enriches p with the non-empty fields of other. A set ID and
// CreatedAt are kept; an empty ID adopts other's.
func (p *Paper) Merge(other Paper) {
	if p.ID == "" {
		p.ID = other.ID
	}
	if other.Title != "" {
		p.Title = other.Title
	}
	if other.Abstract != "" {
		p.Abstract = other.Abstract
	}
	if len(other.Authors) > 0 {
		p.Authors = other.Authors
	}
	if other.Year != 0 {
		p.Year = other.Year
	}
	if !other.Published.IsZero() {
		p.Published = other.Published
	}
	if !other.Updated.IsZero() {
		p.Updated = other.Updated
	}
	if other.Links.Abs != "" {
		p.Links.Abs = other.Links.Abs
	}
	if other.Links.PDF != "" {
		p.Links.PDF = other.Links.PDF
	}
	if other.Links.DOI != "" {
		p.Links.DOI = other.Links.DOI
	}
	if other.DOI != "" {
		p.DOI = other.DOI
	}
	if other.JournalRef != "" {
		p.JournalRef = other.JournalRef
	}
	if other.Comment != "" {
		p.Comment = other.Comment
	}
	if other.PrimaryCategory != "" {
		p.PrimaryCategory = other.PrimaryCategory
	}
	if len(other.Categories) > 0 {
		p.Categories = other.Categories
	}
	if other.Source != "" {
		p.Source = other.Source
	}
	if other.Citation != "" {
		p.Citation = other.Citation
	}
}
