// Package status aggregates the observable state of the offline subsystem
// for the embedding UI: connectivity, sweep progress, pending counts and the
// latest user-facing message. Purely derived; performs no writes.
package status

import (
	"sync"
	"time"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/status/notify"
)

type Snapshot struct {
	Online          bool        `json:"online"`
	SweepInProgress bool        `json:"sweepInProgress"`
	PendingHarvests int         `json:"pendingHarvests"`
	PendingScans    int         `json:"pendingScans"`
	LastSweepAt     *time.Time  `json:"lastSweepAt,omitempty"`
	LastMessage     string      `json:"lastMessage,omitempty"`
	LastMessageKind notify.Kind `json:"lastMessageKind,omitempty"`
}

// PendingTotal is the count the UI badge shows.
func (s Snapshot) PendingTotal() int {
	return s.PendingHarvests + s.PendingScans
}

type Bus struct {
	mu     sync.RWMutex
	snap   Snapshot
	nextID int
	subs   map[int]func(Snapshot)
}

func NewBus(initial Snapshot) *Bus {
	return &Bus{snap: initial, subs: make(map[int]func(Snapshot))}
}

func (b *Bus) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// Subscribe registers a callback invoked with every new snapshot. The
// returned function removes the subscription.
func (b *Bus) Subscribe(fn func(Snapshot)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Bus) SetOnline(online bool) {
	b.update(func(s *Snapshot) { s.Online = online })
}

func (b *Bus) SetSweepInProgress(in bool, at time.Time) {
	b.update(func(s *Snapshot) {
		s.SweepInProgress = in
		if !in {
			t := at
			s.LastSweepAt = &t
		}
	})
}

func (b *Bus) SetPending(harvests, scans int) {
	b.update(func(s *Snapshot) {
		s.PendingHarvests = harvests
		s.PendingScans = scans
	})
}

// OnStatus lets the bus sit in the notifier chain so the UI always has the
// latest user-facing message.
func (b *Bus) OnStatus(kind notify.Kind, message string) {
	b.update(func(s *Snapshot) {
		s.LastMessage = message
		s.LastMessageKind = kind
	})
}

func (b *Bus) update(mut func(*Snapshot)) {
	b.mu.Lock()
	mut(&b.snap)
	snap := b.snap
	fns := make([]func(Snapshot), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

var _ notify.Notifier = (*Bus)(nil)
