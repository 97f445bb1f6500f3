package memorystore

import (
	"sync"
	"time"

	"marketfeed/internal/market"
	"marketfeed/pkg/timedbuffer"
)

// TickStore is the bounded tick history of one pair. Ticks repeating the
// newest timestamp are dropped.
type TickStore struct {
	mu    sync.RWMutex
	ticks *timedbuffer.Buffer[market.Tick]
}

func NewTickStore(capacity int) *TickStore {
	return &TickStore{
		ticks: timedbuffer.New(capacity,
			timedbuffer.WithKey(func(t market.Tick) time.Time { return t.Time }),
			timedbuffer.WithDedupe[market.Tick]()),
	}
}

func (s *TickStore) Add(t market.Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks.Add(t)
}

// Latest returns the newest tick.
func (s *TickStore) Latest() (market.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks.Last()
}

func (s *TickStore) LastN(n int) []market.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks.LastN(n)
}

// Since returns ticks stamped within d of now.
func (s *TickStore) Since(d time.Duration) []market.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks.ForPeriod(d)
}

func (s *TickStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks.Count()
}

func (s *TickStore) TotalCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks.TotalCount()
}
