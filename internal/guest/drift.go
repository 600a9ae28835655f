package guest

import "math"

// Thresholds are absolute drift limits in seconds.
type Thresholds struct {
	Ignore   float64 `json:"ignore"`
	Soft     float64 `json:"soft"`
	Hard     float64 `json:"hard"`
	Escalate float64 `json:"escalate"`
	// MaxFailures is the number of consecutive hard corrections tolerated
	// before the resync affordance is shown.
	MaxFailures int `json:"max_failures"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Ignore:      0.2,
		Soft:        0.8,
		Hard:        1.0,
		Escalate:    1.5,
		MaxFailures: 3,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.Ignore <= 0 {
		t.Ignore = d.Ignore
	}
	if t.Soft < t.Ignore {
		t.Soft = max(d.Soft, t.Ignore)
	}
	if t.Hard < t.Soft {
		t.Hard = max(d.Hard, t.Soft)
	}
	if t.Escalate < t.Hard {
		t.Escalate = max(d.Escalate, t.Hard)
	}
	if t.MaxFailures <= 0 {
		t.MaxFailures = d.MaxFailures
	}
	return t
}

// Bucket orders drift magnitudes. A larger bucket never means a milder
// correction.
type Bucket int

const (
	BucketInSync Bucket = iota
	BucketSoft
	BucketHard
	BucketSevere
)

func (b Bucket) String() string {
	switch b {
	case BucketInSync:
		return "in_sync"
	case BucketSoft:
		return "soft"
	case BucketHard:
		return "hard"
	default:
		return "severe"
	}
}

// Classify buckets an absolute drift.
func (t Thresholds) Classify(absDrift float64) Bucket {
	switch {
	case absDrift < t.Ignore:
		return BucketInSync
	case absDrift < t.Soft:
		return BucketSoft
	case absDrift <= t.Hard:
		return BucketHard
	default:
		return BucketSevere
	}
}

type Action string

const (
	ActionNone     Action = "none"
	ActionSoftSeek Action = "soft_seek"
	ActionHardSeek Action = "hard_seek"
)

type Decision struct {
	// Drift is actual - ideal in seconds. Positive means the local play-head
	// is ahead.
	Drift      float64
	Bucket     Bucket
	Action     Action
	Failures   int
	ShowResync bool
}

// Corrector tracks consecutive hard corrections and the visibility of the
// resync affordance. It is not safe for concurrent use.
type Corrector struct {
	thresholds Thresholds
	failures   int
	showResync bool
}

func NewCorrector(t Thresholds) *Corrector {
	return &Corrector{thresholds: t.withDefaults()}
}

func (c *Corrector) Evaluate(idealSec, actualSec float64) Decision {
	drift := actualSec - idealSec
	abs := math.Abs(drift)
	bucket := c.thresholds.Classify(abs)

	action := ActionNone
	switch bucket {
	case BucketInSync:
		c.failures = 0
		c.showResync = false
	case BucketSoft:
		action = ActionSoftSeek
		c.showResync = false
	case BucketHard:
		action = ActionHardSeek
		c.failures++
	case BucketSevere:
		action = ActionHardSeek
		c.failures++
		if abs > c.thresholds.Escalate || c.failures > c.thresholds.MaxFailures {
			c.showResync = true
		}
	}

	return Decision{
		Drift:      drift,
		Bucket:     bucket,
		Action:     action,
		Failures:   c.failures,
		ShowResync: c.showResync,
	}
}

// Reset clears the failure counter and hides the resync affordance after a
// successful manual resync.
func (c *Corrector) Reset() {
	c.failures = 0
	c.showResync = false
}

func (c *Corrector) Failures() int {
	return c.failures
}

func (c *Corrector) ShowResync() bool {
	return c.showResync
}
