// Package congestion adapts upload parallelism to observed network
// conditions.
//
// The policy is additive-increase / aggressive-decrease: concurrency
// creeps up while recent transfers succeed and throughput holds, and
// drops sharply on failures or a throughput collapse. A fixed worker
// count either wastes bandwidth on fast links or stalls slow ones;
// this recovers quickly from a congestion burst without oscillating on
// transient noise.
package congestion

import (
	"sync"
	"time"

	"github.com/framehub/framehub/core/internal/observability"
	"github.com/framehub/framehub/core/internal/settings"
)

// Outcome is one finished transfer as seen by the controller.
type Outcome struct {
	Success  bool
	Bytes    int64
	Duration time.Duration
}

// Controller decides how many transfers may run at once.
//
// Safe for concurrent use; every task reports its outcome here.
type Controller struct {
	mu sync.Mutex

	minConcurrency       int
	maxConcurrency       int
	initialConcurrency   int
	increaseStep         int
	decreaseStep         int
	sampleWindow         int
	recomputeEvery       int
	successRateThreshold float64
	throughputDropFactor float64
	increaseCooldown     time.Duration

	logger *observability.CoreLogger

	// now is replaceable in tests.
	now func() time.Time

	current               int
	history               []Outcome
	samplesSinceRecompute int
	lastDecrease          time.Time

	// prevThroughput is the window throughput at the last recompute,
	// in bytes per second. Zero means no baseline yet.
	prevThroughput float64
}

func NewController(
	s *settings.Settings,
	logger *observability.CoreLogger,
) *Controller {
	c := &Controller{
		minConcurrency:       s.MinConcurrency,
		maxConcurrency:       s.MaxConcurrency,
		initialConcurrency:   s.InitialConcurrency,
		increaseStep:         s.IncreaseStep,
		decreaseStep:         s.DecreaseStep,
		sampleWindow:         s.SampleWindow,
		recomputeEvery:       s.RecomputeEvery,
		successRateThreshold: s.SuccessRateThreshold,
		throughputDropFactor: s.ThroughputDropFactor,
		increaseCooldown:     s.IncreaseCooldown,
		logger:               logger,
		now:                  time.Now,
	}
	c.Reset()
	return c
}

// Reset returns concurrency to the conservative starting value and
// clears the outcome history. Called once per new batch.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.initialConcurrency
	c.history = c.history[:0]
	c.samplesSinceRecompute = 0
	c.lastDecrease = time.Time{}
	c.prevThroughput = 0
}

// GetConcurrency returns the current allowed parallelism, always
// within the configured bounds.
func (c *Controller) GetConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// RecordUpload appends a transfer outcome and may adjust concurrency.
//
// A failure decreases concurrency immediately. Otherwise the target is
// recomputed on a fixed sample cadence.
func (c *Controller) RecordUpload(
	success bool,
	bytes int64,
	duration time.Duration,
) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, Outcome{
		Success:  success,
		Bytes:    bytes,
		Duration: duration,
	})
	if len(c.history) > c.sampleWindow {
		c.history = c.history[len(c.history)-c.sampleWindow:]
	}

	if !success {
		c.decrease("transfer failed")
		return
	}

	c.samplesSinceRecompute++
	if c.samplesSinceRecompute < c.recomputeEvery {
		return
	}
	c.samplesSinceRecompute = 0
	c.recompute()
}

// recompute adjusts the target from the recent window. Lock held.
func (c *Controller) recompute() {
	throughput := c.windowThroughput()
	defer func() { c.prevThroughput = throughput }()

	if c.prevThroughput > 0 &&
		throughput < c.prevThroughput*c.throughputDropFactor {
		c.decrease("throughput dropped sharply")
		return
	}

	if c.windowSuccessRate() < c.successRateThreshold {
		return
	}
	if c.now().Sub(c.lastDecrease) < c.increaseCooldown {
		return
	}

	next := min(c.current+c.increaseStep, c.maxConcurrency)
	if next != c.current {
		c.logger.Debug(
			"congestion: increasing concurrency",
			"from", c.current, "to", next,
		)
		c.current = next
	}
}

// decrease backs off by more than the increase step and starts the
// cooldown window. Lock held.
func (c *Controller) decrease(reason string) {
	c.lastDecrease = c.now()
	c.samplesSinceRecompute = 0

	next := max(c.current-c.decreaseStep, c.minConcurrency)
	if next != c.current {
		c.logger.Debug(
			"congestion: decreasing concurrency",
			"from", c.current, "to", next, "reason", reason,
		)
		c.current = next
	}
}

// windowSuccessRate is the fraction of successful outcomes in the
// history window. Lock held.
func (c *Controller) windowSuccessRate() float64 {
	if len(c.history) == 0 {
		return 1
	}

	successes := 0
	for _, outcome := range c.history {
		if outcome.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(c.history))
}

// windowThroughput is the aggregate bytes per second of successful
// outcomes in the history window. Lock held.
func (c *Controller) windowThroughput() float64 {
	var bytes int64
	var elapsed time.Duration
	for _, outcome := range c.history {
		if outcome.Success {
			bytes += outcome.Bytes
			elapsed += outcome.Duration
		}
	}

	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}
