// Package pacer enforces the fixed spacing between consecutive mutating
// Instagram actions. Conservative, purely time-based throttling: a constant
// delay after every action (shorter after a failed one) plus an hourly cap,
// tuned to stay under the provider's abuse detection.
package pacer

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultNormalDelay is the spacing after a successful mutating action.
	DefaultNormalDelay = 4 * time.Second

	// DefaultFailureDelay is the shorter spacing after a failed action.
	DefaultFailureDelay = 2 * time.Second

	// DefaultMaxPerHour caps mutating actions per hour.
	DefaultMaxPerHour = 60
)

// Config controls pacing. Zero values fall back to the defaults above.
type Config struct {
	NormalDelay  time.Duration
	FailureDelay time.Duration
	MaxPerHour   int
}

// Pacer blocks the calling goroutine between mutating actions. It never
// returns an error and is released only by elapsed time — cancellation is a
// concern of the job loop, checked at iteration boundaries, never inside a
// pace interval.
//
// Pacer is safe for concurrent use; the hourly budget is shared across all
// jobs in the process so parallel users cannot multiply the action rate.
type Pacer struct {
	normal  time.Duration
	failure time.Duration
	hourly  *rate.Limiter
}

// New returns a Pacer for the given config.
func New(cfg Config) *Pacer {
	if cfg.NormalDelay <= 0 {
		cfg.NormalDelay = DefaultNormalDelay
	}
	if cfg.FailureDelay <= 0 {
		cfg.FailureDelay = DefaultFailureDelay
	}
	if cfg.MaxPerHour <= 0 {
		cfg.MaxPerHour = DefaultMaxPerHour
	}
	return &Pacer{
		normal:  cfg.NormalDelay,
		failure: cfg.FailureDelay,
		hourly:  rate.NewLimiter(rate.Limit(float64(cfg.MaxPerHour)/3600.0), cfg.MaxPerHour),
	}
}

// Pace blocks for the configured delay: NormalDelay when the preceding
// action succeeded, FailureDelay when it failed. When the hourly budget is
// exhausted the wait stretches to whichever is longer, the fixed delay or
// the time until the limiter frees a slot.
//
// Reserve (not Wait) keeps the contract error-free: the reservation is
// always honoured by sleeping, never abandoned.
func (p *Pacer) Pace(succeeded bool) {
	delay := p.failure
	if succeeded {
		delay = p.normal
	}

	if r := p.hourly.Reserve(); r.OK() {
		if wait := r.Delay(); wait > delay {
			delay = wait
		}
	}

	time.Sleep(delay)
}

// NormalDelay reports the configured post-success spacing. Used for the
// time-estimate line in batch start messages.
func (p *Pacer) NormalDelay() time.Duration {
	return p.normal
}
