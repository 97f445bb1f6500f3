package candles

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketfeed/internal/events"
	"marketfeed/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// 2024-01-01 00:00 UTC, aligned to every default tier.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candleAt(start time.Time, open, high, low, close, vol int64) market.Candle {
	return market.Candle{
		PeriodStart: start,
		Open:        decimal.NewFromInt(open),
		High:        decimal.NewFromInt(high),
		Low:         decimal.NewFromInt(low),
		Close:       decimal.NewFromInt(close),
		Volume:      decimal.NewFromInt(vol),
		QuoteVolume: decimal.NewFromInt(vol * 10),
	}
}

// series returns n contiguous base candles starting at from.
func series(from time.Time, n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := int64(100 + i)
		out[i] = candleAt(from.Add(time.Duration(i)*market.Minute5.Duration()), p, p+5, p-5, p+1, 1)
	}
	return out
}

type harness struct {
	agg  *Aggregator
	rec  *events.Recorder
	gaps []Gap
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{rec: &events.Recorder{}}
	agg, err := New("BTCTRY", DefaultTiers, h.rec.Publish, func(g Gap) { h.gaps = append(h.gaps, g) }, zap.NewNop())
	require.NoError(t, err)
	h.agg = agg
	return h
}

func (h *harness) completed(tier int) []market.Candle {
	var out []market.Candle
	for _, e := range h.rec.OfKind(events.KindCandleCompleted) {
		if c := e.(events.CandleCompleted); c.Tier == tier {
			out = append(out, c.Candle)
		}
	}
	return out
}

// go test -v --run TestAggregateSixContiguous
func TestAggregateSixContiguous(t *testing.T) {
	h := newHarness(t)
	for _, c := range series(epoch, 6) {
		require.NoError(t, h.agg.IngestBase(c))
	}

	assert.Len(t, h.completed(0), 6)
	mid := h.completed(1)
	require.Len(t, mid, 1)

	got := mid[0]
	assert.Equal(t, epoch, got.PeriodStart)
	assert.Equal(t, "100", got.Open.String())
	assert.Equal(t, "106", got.Close.String())
	assert.Equal(t, "110", got.High.String())
	assert.Equal(t, "95", got.Low.String())
	assert.Equal(t, "6", got.Volume.String())
	assert.Equal(t, "60", got.QuoteVolume.String())
	assert.Empty(t, h.agg.Pending(1))
	assert.Len(t, h.agg.Pending(2), 1)
}

// go test -v --run TestCascadeToCoarseTier
func TestCascadeToCoarseTier(t *testing.T) {
	h := newHarness(t)
	for _, c := range series(epoch, 48) {
		require.NoError(t, h.agg.IngestBase(c))
	}

	assert.Len(t, h.completed(1), 8)
	coarse := h.completed(2)
	require.Len(t, coarse, 1)
	assert.Equal(t, epoch, coarse[0].PeriodStart)
	assert.Equal(t, "100", coarse[0].Open.String())
	assert.Equal(t, "148", coarse[0].Close.String())
	assert.Equal(t, "152", coarse[0].High.String())
	assert.Equal(t, "95", coarse[0].Low.String())
	assert.Equal(t, "48", coarse[0].Volume.String())
	assert.Empty(t, h.agg.Pending(2))
}

// go test -v --run TestGapIsNotAggregated
func TestGapIsNotAggregated(t *testing.T) {
	h := newHarness(t)
	in := series(epoch, 6)
	// drop the fourth candle
	in = append(in[:3], in[4:]...)
	for _, c := range in {
		require.NoError(t, h.agg.IngestBase(c))
	}

	assert.Empty(t, h.completed(1), "must not merge across a gap")
	require.Len(t, h.gaps, 1)
	g := h.gaps[0]
	assert.Equal(t, epoch.Add(15*time.Minute), g.From)
	assert.Equal(t, epoch.Add(20*time.Minute), g.To)
	assert.Equal(t, 1, g.Missing())
	assert.Equal(t, market.Minute5, g.Resolution)

	// the accumulator waits for the next 30m boundary
	assert.Empty(t, h.agg.Pending(1))
	for _, c := range series(epoch.Add(30*time.Minute), 6) {
		require.NoError(t, h.agg.IngestBase(c))
	}
	mid := h.completed(1)
	require.Len(t, mid, 1)
	assert.Equal(t, epoch.Add(30*time.Minute), mid[0].PeriodStart)
}

// go test -v --run TestMisalignedRejected
func TestMisalignedRejected(t *testing.T) {
	h := newHarness(t)
	err := h.agg.IngestBase(candleAt(epoch.Add(2*time.Minute), 1, 1, 1, 1, 1))
	assert.ErrorIs(t, err, ErrMisaligned)
	err = h.agg.IngestBase(candleAt(epoch.Add(300*time.Microsecond), 1, 1, 1, 1, 1))
	assert.ErrorIs(t, err, ErrMisaligned)
	assert.Empty(t, h.rec.Events())
	assert.True(t, h.agg.LastBase().IsZero())

	// aligned candles that follow are contiguous
	for _, c := range series(epoch, 2) {
		require.NoError(t, h.agg.IngestBase(c))
	}
	assert.Empty(t, h.gaps)
}

// go test -v --run TestStaleAndDuplicateRejected
func TestStaleAndDuplicateRejected(t *testing.T) {
	h := newHarness(t)
	in := series(epoch, 2)
	require.NoError(t, h.agg.IngestBase(in[0]))
	require.NoError(t, h.agg.IngestBase(in[1]))

	assert.ErrorIs(t, h.agg.IngestBase(in[1]), ErrStale)
	assert.ErrorIs(t, h.agg.IngestBase(in[0]), ErrStale)
	assert.Len(t, h.agg.Pending(1), 2)
	assert.Empty(t, h.gaps)
}

// go test -v --run TestStartsOnBoundary
func TestStartsOnBoundary(t *testing.T) {
	h := newHarness(t)
	// 00:10 .. 00:45: the group only opens at 00:30
	for _, c := range series(epoch.Add(10*time.Minute), 8) {
		require.NoError(t, h.agg.IngestBase(c))
	}
	assert.Empty(t, h.completed(1))
	assert.Len(t, h.agg.Pending(1), 4)

	for _, c := range series(epoch.Add(50*time.Minute), 2) {
		require.NoError(t, h.agg.IngestBase(c))
	}
	mid := h.completed(1)
	require.Len(t, mid, 1)
	assert.Equal(t, epoch.Add(30*time.Minute), mid[0].PeriodStart)
}

// go test -v --run TestOverflowDiscardsGroup
func TestOverflowDiscardsGroup(t *testing.T) {
	h := newHarness(t)
	st := h.agg.steps[0]
	// an oversized restored group can only come from bad seeding
	st.seed(series(epoch, 6), epoch.Add(25*time.Minute))

	require.NoError(t, h.agg.IngestBase(series(epoch.Add(30*time.Minute), 1)[0]))
	assert.Empty(t, h.completed(1))
	assert.Empty(t, h.agg.Pending(1))
}

// go test -v --run TestReset
func TestReset(t *testing.T) {
	h := newHarness(t)
	for _, c := range series(epoch, 4) {
		require.NoError(t, h.agg.IngestBase(c))
	}
	h.agg.Reset()
	assert.Empty(t, h.agg.Pending(1))
	assert.True(t, h.agg.LastBase().IsZero())

	// no gap is reported after a reset
	require.NoError(t, h.agg.IngestBase(series(epoch.Add(2*time.Hour), 1)[0]))
	assert.Empty(t, h.gaps)
}

// go test -v --run TestTiersValidate
func TestTiersValidate(t *testing.T) {
	assert.NoError(t, DefaultTiers.Validate())
	assert.NoError(t, Tiers{market.Minute5, market.Minute15, market.Minute30}.Validate())
	assert.Error(t, Tiers{market.Minute5, market.Minute15, market.Resolution(40 * time.Minute)}.Validate())
	assert.Error(t, Tiers{market.Minute30, market.Minute5, market.Hour4}.Validate())

	_, err := New("BTCTRY", Tiers{market.Minute5, market.Minute5, market.Hour1}, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

type fakeHistory map[market.Resolution][]market.Candle

func (f fakeHistory) RecentCandles(_ context.Context, _ string, res market.Resolution, limit int) ([]market.Candle, error) {
	all := f[res]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

type failingHistory struct{}

func (failingHistory) RecentCandles(context.Context, string, market.Resolution, int) ([]market.Candle, error) {
	return nil, errors.New("db down")
}

// go test -v --run TestInitializeFromHistory
func TestInitializeFromHistory(t *testing.T) {
	h := newHarness(t)
	// 23:50 .. 00:10: contiguous, boundary at 00:00
	src := fakeHistory{market.Minute5: series(epoch.Add(-10*time.Minute), 5)}
	require.NoError(t, h.agg.InitializeFromHistory(context.Background(), src))

	pending := h.agg.Pending(1)
	require.Len(t, pending, 3)
	assert.Equal(t, epoch, pending[0].PeriodStart)
	assert.Equal(t, epoch.Add(10*time.Minute), h.agg.LastBase())
	assert.Empty(t, h.agg.Pending(2))

	for _, c := range series(epoch.Add(15*time.Minute), 3) {
		require.NoError(t, h.agg.IngestBase(c))
	}
	mid := h.completed(1)
	require.Len(t, mid, 1)
	assert.Equal(t, epoch, mid[0].PeriodStart)
	assert.Empty(t, h.gaps)
}

// go test -v --run TestInitializeFromBrokenHistory
func TestInitializeFromBrokenHistory(t *testing.T) {
	h := newHarness(t)
	stored := series(epoch, 4)
	stored = append(stored[:2], stored[3:]...) // hole at 00:10
	src := fakeHistory{market.Minute5: stored}
	require.NoError(t, h.agg.InitializeFromHistory(context.Background(), src))

	assert.Empty(t, h.agg.Pending(1))
	assert.Equal(t, epoch.Add(15*time.Minute), h.agg.LastBase())

	err := h.agg.InitializeFromHistory(context.Background(), failingHistory{})
	assert.Error(t, err)
}
