package omitnilpointers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOmitNilPointers(t *testing.T) {
	title := "song"
	var missing *string
	duration := int64(1200)
	durationPtr := &duration

	got := OmitNilPointers(map[string]any{
		"status":   "playing",
		"title":    &title,
		"missing":  missing,
		"nil":      nil,
		"duration": &durationPtr,
	})

	assert.Equal(t, map[string]any{
		"status":   "playing",
		"title":    "song",
		"duration": int64(1200),
	}, got)
}
