package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinInput struct {
	DisplayName string  `json:"display_name" validate:"required,max=8"`
	Position    float64 `json:"position" validate:"gte=0"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	_, ok := v.Validate(joinInput{DisplayName: "ann"})
	assert.True(t, ok)

	errs, ok := v.Validate(joinInput{DisplayName: "", Position: -1})
	require.False(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "REQUIRED", errs[0].Code)
	assert.Equal(t, "joinInput.display_name", errs[0].Field)
	assert.Equal(t, "GTE", errs[1].Code)

	errs, ok = v.Validate(joinInput{DisplayName: "much too long"})
	require.False(t, ok)
	assert.Equal(t, "display_name must not exceed 8 characters", errs[0].Message)
	assert.EqualError(t, Error(errs), "display_name must not exceed 8 characters")
}
