package candles

import (
	"time"

	"marketfeed/internal/market"
)

// step rolls count candles of resolution from into one candle of resolution to.
type step struct {
	from  market.Resolution
	to    market.Resolution
	count int

	acc  []market.Candle
	last time.Time // period start of the last candle seen at from; zero when unknown
}

type stepResult struct {
	gap      bool
	expected time.Time
	started  bool // candle opened or joined the accumulator
	overflow bool
	out      *market.Candle
}

// push feeds one candle of resolution from. The caller has already checked
// alignment to from and rejected stale candles.
func (s *step) push(c market.Candle) stepResult {
	var res stepResult

	if !s.last.IsZero() {
		expected := s.from.Next(s.last)
		if !c.PeriodStart.Equal(expected) {
			res.gap = true
			res.expected = expected
			// never merge across a hole
			s.acc = s.acc[:0]
		}
	}
	s.last = c.PeriodStart

	if len(s.acc) == 0 && !s.to.Aligned(c.PeriodStart) {
		return res
	}
	s.acc = append(s.acc, c)
	res.started = true

	switch {
	case len(s.acc) > s.count:
		s.acc = s.acc[:0]
		res.overflow = true
	case len(s.acc) == s.count:
		out := market.Merge(s.acc)
		s.acc = s.acc[:0]
		res.out = &out
	}
	return res
}

// seed replaces the accumulator with a partial run restored from storage.
func (s *step) seed(run []market.Candle, last time.Time) {
	s.acc = append(s.acc[:0], run...)
	s.last = last
}

func (s *step) reset() {
	s.acc = s.acc[:0]
	s.last = time.Time{}
}

func (s *step) pending() []market.Candle {
	out := make([]market.Candle, len(s.acc))
	copy(out, s.acc)
	return out
}
