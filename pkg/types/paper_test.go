// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPaperMerge(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Paper{Title: "Deep Learning: A Survey", Authors: []string{"A Author"}, CreatedAt: created}
	p.Merge(Paper{ID: "1111.2222", Title: "Deep Learning: a survey", DOI: "10.1/x", CreatedAt: created.Add(time.Hour)})

	assert.Equal(t, "1111.2222", p.ID, "empty id is adopted")
	assert.Equal(t, "Deep Learning: a survey", p.Title)
	assert.Equal(t, []string{"A Author"}, p.Authors, "empty fields do not erase")
	assert.Equal(t, "10.1/x", p.DOI)
	assert.Equal(t, created, p.CreatedAt)

	p.Merge(Paper{ID: "9999.0000"})
	assert.Equal(t, "1111.2222", p.ID, "a set id is kept")
}
