package guest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyBuckets(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		drift float64
		want  Bucket
	}{
		{0, BucketInSync},
		{0.19, BucketInSync},
		{0.2, BucketSoft},
		{0.79, BucketSoft},
		{0.8, BucketHard},
		{1.0, BucketHard},
		{1.01, BucketSevere},
		{30, BucketSevere},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Classify(tt.drift), "drift %v", tt.drift)
	}
}

func TestClassifyMonotonic(t *testing.T) {
	th := DefaultThresholds()

	prev := th.Classify(0)
	for d := 0.0; d < 3; d += 0.005 {
		b := th.Classify(d)
		require.GreaterOrEqual(t, b, prev, "drift %v", d)
		prev = b
	}
}

func TestCorrectorActions(t *testing.T) {
	c := NewCorrector(DefaultThresholds())

	d := c.Evaluate(10, 10.1)
	assert.Equal(t, ActionNone, d.Action)
	assert.InDelta(t, 0.1, d.Drift, 1e-9)

	d = c.Evaluate(10, 9.5)
	assert.Equal(t, ActionSoftSeek, d.Action)
	assert.InDelta(t, -0.5, d.Drift, 1e-9)
	assert.Equal(t, 0, d.Failures)

	d = c.Evaluate(10, 10.9)
	assert.Equal(t, ActionHardSeek, d.Action)
	assert.Equal(t, 1, d.Failures)

	d = c.Evaluate(10, 10.05)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, 0, d.Failures)
}

func TestResyncShownOnLargeDrift(t *testing.T) {
	c := NewCorrector(DefaultThresholds())

	d := c.Evaluate(0, 1.2)
	assert.False(t, d.ShowResync)

	d = c.Evaluate(0, 1.6)
	assert.True(t, d.ShowResync)
}

func TestResyncShownAfterRepeatedFailures(t *testing.T) {
	c := NewCorrector(DefaultThresholds())

	for i := 0; i < 3; i++ {
		d := c.Evaluate(0, 1.1)
		require.False(t, d.ShowResync, "failure %d", i+1)
	}

	d := c.Evaluate(0, 1.1)
	assert.Equal(t, 4, d.Failures)
	assert.True(t, d.ShowResync)
}

func TestResyncVisibilitySticky(t *testing.T) {
	c := NewCorrector(DefaultThresholds())
	require.True(t, c.Evaluate(0, 2).ShowResync)

	// hard range keeps the current visibility
	assert.True(t, c.Evaluate(0, 0.9).ShowResync)
	assert.True(t, c.Evaluate(0, 1.2).ShowResync)

	assert.False(t, c.Evaluate(0, 0.5).ShowResync)
}

func TestResyncHiddenOnlyBelowSoftOrReset(t *testing.T) {
	c := NewCorrector(DefaultThresholds())
	require.True(t, c.Evaluate(0, 2).ShowResync)

	c.Reset()
	assert.False(t, c.ShowResync())
	assert.Equal(t, 0, c.Failures())

	// hard range never shows by itself
	for i := 0; i < 10; i++ {
		assert.False(t, c.Evaluate(0, 0.9).ShowResync)
	}
}

func TestThresholdDefaults(t *testing.T) {
	th := Thresholds{Ignore: 0.1}.withDefaults()

	assert.Equal(t, 0.1, th.Ignore)
	assert.Equal(t, 0.8, th.Soft)
	assert.Equal(t, 1.0, th.Hard)
	assert.Equal(t, 1.5, th.Escalate)
	assert.Equal(t, 3, th.MaxFailures)
}
