// Package difficulty adapts the mining difficulty to the aggregate hash rate
// of the simulation by watching the time between accepted blocks.
package difficulty

import (
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/pow"
)

// Bounds applied to every difficulty change.
const (
	MinDifficulty uint = 1
	MaxDifficulty uint = pow.MaxDifficulty
)

// Default values for a zero Config.
const (
	DefaultTarget      = 10 * time.Second
	DefaultSampleCount = 5
	DefaultStillness   = time.Minute
	DefaultHistory     = 20
)

// Set of triggers that can change the difficulty.
const (
	TriggerSampleWindow = "sample_window"
	TriggerStillness    = "stillness"
)

// =============================================================================

// Config represents the settings for a controller.
type Config struct {
	Initial     uint
	Target      time.Duration
	SampleCount int
	Stillness   time.Duration
	History     int
}

// Change describes an adjustment made by the controller.
type Change struct {
	Previous uint
	Current  uint
	Trigger  string
	Mean     time.Duration
}

// Controller tracks recent block intervals and recommends difficulty.
// It is not safe for concurrent use; the owner serializes access.
type Controller struct {
	difficulty   uint
	target       time.Duration
	sampleCount  int
	stillness    time.Duration
	window       []time.Duration
	history      []time.Duration
	historySize  int
	lastAccepted time.Time
}

// New constructs a controller. The stillness timer starts at now.
func New(cfg Config, now time.Time) *Controller {
	if cfg.Target <= 0 {
		cfg.Target = DefaultTarget
	}
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = DefaultSampleCount
	}
	if cfg.Stillness <= 0 {
		cfg.Stillness = DefaultStillness
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}

	return &Controller{
		difficulty:   clamp(cfg.Initial),
		target:       cfg.Target,
		sampleCount:  cfg.SampleCount,
		stillness:    cfg.Stillness,
		window:       make([]time.Duration, 0, cfg.SampleCount),
		historySize:  cfg.History,
		lastAccepted: now,
	}
}

// Difficulty returns the current difficulty.
func (c *Controller) Difficulty() uint {
	return c.difficulty
}

// Target returns the block interval the controller steers toward.
func (c *Controller) Target() time.Duration {
	return c.target
}

// Record adds the interval of a newly accepted block and restarts the
// stillness timer. Once the window holds the configured number of samples
// the mean is compared to the target: below 90% raises the difficulty by
// one, above 110% lowers it by one. The window is cleared after every
// decision.
func (c *Controller) Record(interval time.Duration, now time.Time) (Change, bool) {
	c.lastAccepted = now

	c.history = append(c.history, interval)
	if len(c.history) > c.historySize {
		c.history = c.history[len(c.history)-c.historySize:]
	}

	c.window = append(c.window, interval)
	if len(c.window) > c.sampleCount {
		c.window = c.window[1:]
	}
	if len(c.window) < c.sampleCount {
		return Change{}, false
	}

	mean := average(c.window)
	c.window = c.window[:0]

	prev := c.difficulty
	switch {
	case float64(mean) < 0.9*float64(c.target):
		c.difficulty = clamp(c.difficulty + 1)
	case float64(mean) > 1.1*float64(c.target):
		if c.difficulty > MinDifficulty {
			c.difficulty--
		}
	}

	if c.difficulty == prev {
		return Change{}, false
	}

	ch := Change{
		Previous: prev,
		Current:  c.difficulty,
		Trigger:  TriggerSampleWindow,
		Mean:     mean,
	}

	return ch, true
}

// CheckStillness lowers the difficulty by one when no block has been
// accepted for longer than the stillness timeout. The timer restarts
// whenever the timeout expires, even at the floor.
func (c *Controller) CheckStillness(now time.Time) (Change, bool) {
	if now.Sub(c.lastAccepted) <= c.stillness {
		return Change{}, false
	}
	c.lastAccepted = now

	if c.difficulty <= MinDifficulty {
		return Change{}, false
	}

	prev := c.difficulty
	c.difficulty--

	ch := Change{
		Previous: prev,
		Current:  c.difficulty,
		Trigger:  TriggerStillness,
	}

	return ch, true
}

// Touch restarts the stillness timer without recording an interval.
func (c *Controller) Touch(now time.Time) {
	c.lastAccepted = now
}

// Pending returns the number of samples waiting for the next decision.
func (c *Controller) Pending() int {
	return len(c.window)
}

// Intervals returns a copy of the most recent accepted block intervals,
// oldest first.
func (c *Controller) Intervals() []time.Duration {
	out := make([]time.Duration, len(c.history))
	copy(out, c.history)

	return out
}

// Average returns the mean of the recent intervals, zero if there are none.
func (c *Controller) Average() time.Duration {
	return average(c.history)
}

// =============================================================================

func average(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range ds {
		sum += d
	}

	return sum / time.Duration(len(ds))
}

func clamp(d uint) uint {
	switch {
	case d < MinDifficulty:
		return MinDifficulty
	case d > MaxDifficulty:
		return MaxDifficulty
	}
	return d
}
