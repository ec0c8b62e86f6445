package notify

import (
	"runtime"

	"github.com/okian/cohort/internal/domain/dedupe"
	"golang.org/x/time/rate"
)

const (
	defaultRate      = 10
	defaultBurst     = 5
	defaultQueueSize = 10000
)

var defaultWorkers = runtime.NumCPU()

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithWorkers sets the size of the worker pool.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize bounds the job queue.
func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithRateLimit throttles sends to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Coordinator) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithDeduper replaces the in-flight deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.deduper = d
		}
	}
}
