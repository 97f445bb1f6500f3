// Package candles cascades base resolution candles into two coarser tiers.
//
// The Aggregator is not safe for concurrent use; the collector drives it from
// its event loop.
package candles

import (
	"errors"
	"fmt"
	"time"

	"marketfeed/internal/events"
	"marketfeed/internal/market"

	"go.uber.org/zap"
)

var (
	ErrMisaligned = errors.New("candle not aligned to resolution")
	ErrStale      = errors.New("candle not newer than last ingested")
)

// Tiers is the resolution ladder: base, mid and coarse.
type Tiers [3]market.Resolution

// DefaultTiers is 5m -> 30m -> 4h (6 then 8 candles per step).
var DefaultTiers = Tiers{market.Minute5, market.Minute30, market.Hour4}

// Validate checks that each tier is an integer multiple of the one below.
func (t Tiers) Validate() error {
	for i := 1; i < len(t); i++ {
		if _, err := t[i-1].Ratio(t[i]); err != nil {
			return fmt.Errorf("tier %d: %w", i, err)
		}
	}
	return nil
}

// Gap describes base periods that never arrived: [From, To).
type Gap struct {
	Pair       string
	Resolution market.Resolution
	From       time.Time
	To         time.Time
}

// Missing returns how many periods the gap spans.
func (g Gap) Missing() int {
	if !g.To.After(g.From) {
		return 0
	}
	return int(g.To.Sub(g.From) / g.Resolution.Duration())
}

// GapHandler is asked to backfill a detected gap. It must not block; a failed
// backfill is simply skipped.
type GapHandler func(Gap)

type Aggregator struct {
	pair    string
	tiers   Tiers
	steps   [2]*step
	publish events.Publisher
	onGap   GapHandler
	logger  *zap.Logger
}

// New builds an aggregator for pair. publish receives a CandleCompleted event
// for every accepted base candle and every derived candle.
func New(pair string, tiers Tiers, publish events.Publisher, onGap GapHandler, logger *zap.Logger) (*Aggregator, error) {
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	if publish == nil {
		publish = events.Discard
	}
	a := &Aggregator{
		pair:    pair,
		tiers:   tiers,
		publish: publish,
		onGap:   onGap,
		logger:  logger.Named("candles"),
	}
	for i := range a.steps {
		n, _ := tiers[i].Ratio(tiers[i+1])
		a.steps[i] = &step{from: tiers[i], to: tiers[i+1], count: n}
	}
	return a, nil
}

// IngestBase accepts one completed base candle. Misaligned candles return
// ErrMisaligned and candles at or before the last one return ErrStale; both
// are discarded.
func (a *Aggregator) IngestBase(c market.Candle) error {
	base := a.tiers[0]
	if !base.Aligned(c.PeriodStart) {
		a.logger.Warn("discarding misaligned candle",
			zap.String("pair", a.pair),
			zap.Stringer("resolution", base),
			zap.Time("periodStart", c.PeriodStart))
		return ErrMisaligned
	}
	if last := a.steps[0].last; !last.IsZero() && !c.PeriodStart.After(last) {
		return ErrStale
	}

	a.emit(0, c)
	a.cascade(0, c)
	return nil
}

func (a *Aggregator) cascade(i int, c market.Candle) {
	st := a.steps[i]
	res := st.push(c)

	if res.gap {
		a.logger.Warn("candle gap detected",
			zap.String("pair", a.pair),
			zap.Stringer("resolution", st.from),
			zap.Time("expected", res.expected),
			zap.Time("got", c.PeriodStart))
		if i == 0 && a.onGap != nil {
			a.onGap(Gap{Pair: a.pair, Resolution: st.from, From: res.expected, To: c.PeriodStart})
		}
	}
	if res.overflow {
		a.logger.Warn("accumulator overflow, discarding group",
			zap.String("pair", a.pair),
			zap.Stringer("resolution", st.to),
			zap.Int("limit", st.count))
		return
	}
	if res.out == nil {
		return
	}

	a.emit(i+1, *res.out)
	if i+1 < len(a.steps) {
		a.cascade(i+1, *res.out)
	}
}

func (a *Aggregator) emit(tier int, c market.Candle) {
	a.publish(events.CandleCompleted{
		Pair:       a.pair,
		Tier:       tier,
		Resolution: a.tiers[tier],
		Candle:     c,
	})
}

// Reset clears both accumulators and their continuity trackers.
func (a *Aggregator) Reset() {
	for _, st := range a.steps {
		st.reset()
	}
}

// Pending returns a copy of the accumulator feeding tier (1 or 2).
func (a *Aggregator) Pending(tier int) []market.Candle {
	if tier < 1 || tier > len(a.steps) {
		return nil
	}
	return a.steps[tier-1].pending()
}

// LastBase returns the period start of the last ingested base candle.
func (a *Aggregator) LastBase() time.Time { return a.steps[0].last }
