package sqlitequeue

import "sync"

type Kind string

const (
	KindHarvest Kind = "harvest"
	KindScan    Kind = "scan"
)

type Op string

const (
	OpInsert Op = "insert"
	OpRemove Op = "remove"
	OpUpdate Op = "update"
)

// Change describes a mutation of the queue. Subscribers receive it after the
// mutation is committed, so a reader sees the new state.
type Change struct {
	Kind Kind
	Op   Op
	ID   uint64
}

type subscribers struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(Change)
}

// Subscribe registers a callback invoked on every insert, update and delete.
// The returned function removes the subscription.
func (s *Storage) Subscribe(fn func(Change)) func() {
	s.subs.mu.Lock()
	defer s.subs.mu.Unlock()

	if s.subs.fns == nil {
		s.subs.fns = make(map[int]func(Change))
	}
	id := s.subs.nextID
	s.subs.nextID++
	s.subs.fns[id] = fn

	return func() {
		s.subs.mu.Lock()
		defer s.subs.mu.Unlock()
		delete(s.subs.fns, id)
	}
}

func (s *Storage) notify(c Change) {
	s.subs.mu.RLock()
	fns := make([]func(Change), 0, len(s.subs.fns))
	for _, fn := range s.subs.fns {
		fns = append(fns, fn)
	}
	s.subs.mu.RUnlock()

	// Called without the lock so a subscriber may query the storage.
	for _, fn := range fns {
		fn(c)
	}
}
