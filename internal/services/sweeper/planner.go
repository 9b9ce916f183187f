package sweeper

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Planner computes the retry window after a failed submission. Windows only
// throttle sweeps re-triggered while already online; a reachability
// transition bypasses them (fresh network, fresh chances).
type Planner struct {
	initial time.Duration
	max     time.Duration
}

func NewPlanner(initial, max time.Duration) *Planner {
	if initial <= 0 {
		initial = 30 * time.Second
	}
	if max <= 0 {
		max = 15 * time.Minute
	}
	return &Planner{initial: initial, max: max}
}

func DefaultPlanner() *Planner {
	return NewPlanner(0, 0)
}

// Delay returns the wait before attempt n+1, given n failed attempts.
func (p *Planner) Delay(attempts int32) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max
	b.RandomizationFactor = 0 // deterministic windows
	b.MaxElapsedTime = 0      // never gives up; the queue holds the record
	// Reset re-latches currentInterval; without it the constructor's default
	// initial interval is what NextBackOff serves first.
	b.Reset()

	d := p.initial
	for i := int32(0); i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
