package memorystore

import (
	"sort"
	"sync"
	"time"

	"marketfeed/internal/market"
)

// CandleStore keeps one TimeframeBuffer per resolution. Safe for concurrent use:
// the event loop writes while health and query paths read.
type CandleStore struct {
	globalMu sync.RWMutex
	capacity int
	data     map[market.Resolution]*timeframeEntry
}

type timeframeEntry struct {
	mu  sync.Mutex
	buf *TimeframeBuffer
}

func NewCandleStore(capacity int) *CandleStore {
	return &CandleStore{
		capacity: capacity,
		data:     make(map[market.Resolution]*timeframeEntry),
	}
}

// Add stores c in the buffer for res. It returns false when c repeats the
// newest stored period.
func (s *CandleStore) Add(res market.Resolution, c market.Candle) bool {
	s.globalMu.RLock()
	entry, ok := s.data[res]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if entry, ok = s.data[res]; !ok {
			entry = &timeframeEntry{buf: newTimeframeBuffer(res, s.capacity)}
			s.data[res] = entry
		}
		s.globalMu.Unlock()
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.buf.candles.Add(c)
}

// LastN returns up to n of the newest candles of res, oldest first.
func (s *CandleStore) LastN(res market.Resolution, n int) []market.Candle {
	entry := s.entry(res)
	if entry == nil {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.buf.candles.LastN(n)
}

// Since returns the candles of res whose period started within d of now.
func (s *CandleStore) Since(res market.Resolution, d time.Duration) []market.Candle {
	entry := s.entry(res)
	if entry == nil {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.buf.candles.ForPeriod(d)
}

// GetByResolution returns every stored candle of res, oldest first.
func (s *CandleStore) GetByResolution(res market.Resolution) []market.Candle {
	entry := s.entry(res)
	if entry == nil {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.buf.candles.All()
}

// Summaries reports every timeframe ordered by resolution.
func (s *CandleStore) Summaries() []Summary {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]Summary, 0, len(s.data))
	for res, entry := range s.data {
		entry.mu.Lock()
		out = append(out, Summary{
			Resolution:      res,
			Count:           entry.buf.candles.Count(),
			TotalReceived:   entry.buf.TotalReceived(),
			LastPeriodStart: entry.buf.LastPeriodStart(),
		})
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resolution < out[j].Resolution })
	return out
}

// CountAll returns the number of candles held across all resolutions.
func (s *CandleStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, entry := range s.data {
		entry.mu.Lock()
		total += entry.buf.candles.Count()
		entry.mu.Unlock()
	}
	return total
}

// Reset empties every timeframe, keeping lifetime totals.
func (s *CandleStore) Reset() {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	for _, entry := range s.data {
		entry.mu.Lock()
		entry.buf.candles.Reset()
		entry.mu.Unlock()
	}
}

func (s *CandleStore) entry(res market.Resolution) *timeframeEntry {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return s.data[res]
}
