// Package netmon tracks device connectivity and edge-triggers work on the
// offline -> online transition. It never polls: the host platform feeds
// connectivity change notifications through a Source.
package netmon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Source is the injectable connectivity feed (platform API in production,
// a ChanSource in tests).
type Source interface {
	// Events emits the new connectivity state on every change.
	Events() <-chan bool
	// Current is the state at subscription time.
	Current() bool
}

// ChanSource is a channel-backed Source for hosts and tests.
type ChanSource struct {
	ch  chan bool
	cur atomic.Bool
}

func NewChanSource(online bool) *ChanSource {
	s := &ChanSource{ch: make(chan bool, 8)}
	s.cur.Store(online)
	return s
}

// Set records and emits a new connectivity state.
func (s *ChanSource) Set(online bool) {
	s.cur.Store(online)
	s.ch <- online
}

func (s *ChanSource) Events() <-chan bool { return s.ch }
func (s *ChanSource) Current() bool       { return s.cur.Load() }

// Monitor holds the single process-wide online flag. It is written only
// here; everything else reads it through Online().
type Monitor struct {
	src      Source
	debounce time.Duration

	online atomic.Bool

	mu       sync.Mutex
	onOnline []func()
	onChange []func(bool)
}

func New(src Source, debounce time.Duration) *Monitor {
	m := &Monitor{src: src, debounce: debounce}
	m.online.Store(src.Current())
	return m
}

func (m *Monitor) Online() bool { return m.online.Load() }

// OnOnline registers a callback fired exactly once per offline -> online
// transition.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnChange registers a callback fired on every transition, with the new state.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-m.src.Events():
			if !ok {
				return nil
			}
			if up == m.online.Load() {
				continue
			}
			if up && m.debounce > 0 {
				stable, err := m.waitStable(ctx)
				if err != nil {
					return err
				}
				if !stable {
					continue // flicker: dropped again inside the window
				}
			}
			m.transition(up)
		}
	}
}

// waitStable holds an online edge for the debounce window; a drop back to
// offline inside the window cancels the transition.
func (m *Monitor) waitStable(ctx context.Context) (bool, error) {
	t := time.NewTimer(m.debounce)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case next, ok := <-m.src.Events():
			if !ok {
				return true, nil
			}
			if !next {
				return false, nil
			}
		case <-t.C:
			return true, nil
		}
	}
}

func (m *Monitor) transition(up bool) {
	m.online.Store(up)

	m.mu.Lock()
	change := make([]func(bool), len(m.onChange))
	copy(change, m.onChange)
	var online []func()
	if up {
		online = make([]func(), len(m.onOnline))
		copy(online, m.onOnline)
	}
	m.mu.Unlock()

	for _, fn := range change {
		fn(up)
	}
	for _, fn := range online {
		fn()
	}
}
