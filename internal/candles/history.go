package candles

import (
	"context"
	"fmt"
	"time"

	"marketfeed/internal/market"

	"go.uber.org/zap"
)

// HistorySource returns the most recent stored candles of one resolution in
// ascending period order.
type HistorySource interface {
	RecentCandles(ctx context.Context, pair string, res market.Resolution, limit int) ([]market.Candle, error)
}

// InitializeFromHistory seeds each accumulator from the trailing incomplete
// run of stored candles. A run is used only when it is contiguous and starts
// on the next tier's boundary; otherwise that accumulator starts empty. The
// continuity tracker resumes from the newest stored candle either way.
func (a *Aggregator) InitializeFromHistory(ctx context.Context, src HistorySource) error {
	for i, st := range a.steps {
		stored, err := src.RecentCandles(ctx, a.pair, st.from, st.count)
		if err != nil {
			return fmt.Errorf("load %s history: %w", st.from, err)
		}
		run, last := trailingRun(stored, st)
		if last.IsZero() {
			continue
		}
		st.seed(run, last)

		a.logger.Info("accumulator restored",
			zap.String("pair", a.pair),
			zap.Int("tier", i+1),
			zap.Stringer("resolution", st.to),
			zap.Int("pending", len(run)),
			zap.Int("of", st.count),
			zap.Time("last", last))
	}
	return nil
}

// trailingRun picks the accumulator contents implied by stored. It returns
// the zero time when stored holds nothing usable.
func trailingRun(stored []market.Candle, st *step) (run []market.Candle, last time.Time) {
	aligned := make([]market.Candle, 0, len(stored))
	for _, c := range stored {
		if st.from.Aligned(c.PeriodStart) {
			aligned = append(aligned, c)
		}
	}
	if len(aligned) == 0 {
		return nil, time.Time{}
	}
	last = aligned[len(aligned)-1].PeriodStart

	// walk back over the contiguous tail to the latest boundary
	for i := len(aligned) - 1; i >= 0; i-- {
		if i < len(aligned)-1 && !st.from.Next(aligned[i].PeriodStart).Equal(aligned[i+1].PeriodStart) {
			return nil, last
		}
		if st.to.Aligned(aligned[i].PeriodStart) {
			run = aligned[i:]
			break
		}
	}
	if len(run) >= st.count {
		// group already complete
		return nil, last
	}
	return run, last
}
