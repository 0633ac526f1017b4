package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docqa/internal/docqa/store"
)

func TestFuseHits(t *testing.T) {
	hits := []store.Hit{
		{VectorID: "a", Distance: 0.5},
		{VectorID: "b", Distance: 0.3},
		{VectorID: "a", Distance: 0.1},
		{VectorID: "c", Distance: 0.9},
		{VectorID: "d", Distance: 0.2},
	}

	fused := fuseHits(hits, 3)
	assert.Equal(t, []store.Hit{
		{VectorID: "a", Distance: 0.1},
		{VectorID: "d", Distance: 0.2},
		{VectorID: "b", Distance: 0.3},
	}, fused)
}

func TestSortHitsStable(t *testing.T) {
	hits := []store.Hit{
		{VectorID: "x", Distance: 0.4},
		{VectorID: "y", Distance: 0.2},
		{VectorID: "z", Distance: 0.2},
	}
	sortHits(hits)
	assert.Equal(t, "y", hits[0].VectorID)
	assert.Equal(t, "z", hits[1].VectorID)
	assert.Equal(t, "x", hits[2].VectorID)
}
