package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketfeed/internal/events"
	"marketfeed/internal/market"
	"marketfeed/internal/memorystore"
	"marketfeed/pkg/storage/postgres"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDB struct {
	mu   sync.Mutex
	seen map[string]bool
	recs []*postgres.CandleRecord
}

func (f *fakeDB) InsertCandle(_ context.Context, rec *postgres.CandleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%d", rec.Pair, rec.Resolution, rec.PeriodStart.Unix())
	if f.seen[key] {
		return postgres.ErrDuplicateCandle
	}
	f.seen[key] = true
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeDB) records() []*postgres.CandleRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*postgres.CandleRecord(nil), f.recs...)
}

// go test -v --run TestEventHandlerStoresAndPersists
func TestEventHandlerStoresAndPersists(t *testing.T) {
	db := &fakeDB{seen: map[string]bool{}}
	writer := NewCandleWriter(db, 16, zap.NewNop())
	ticks := memorystore.NewTickStore(10)
	candles := memorystore.NewCandleStore(10)
	handle := MakeEventHandler(zap.NewNop(), ticks, candles, writer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = writer.StartWorker(ctx) }()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := market.Candle{PeriodStart: start, Open: decimal.NewFromInt(1), Close: decimal.NewFromInt(2)}

	handle(events.Tick{Tick: market.Tick{Pair: "BTCTRY", Last: decimal.NewFromInt(5), Time: start}})
	handle(events.CandleCompleted{Pair: "BTCTRY", Tier: 0, Resolution: market.Minute5, Candle: base})
	handle(events.CandleCompleted{Pair: "BTCTRY", Tier: 0, Resolution: market.Minute5, Candle: base})
	handle(events.CandleCompleted{Pair: "BTCTRY", Tier: 1, Resolution: market.Minute30, Candle: base})
	handle(events.Connection{Status: events.StatusReady})

	assert.Equal(t, 1, ticks.Count())
	assert.Len(t, candles.GetByResolution(market.Minute5), 1)
	assert.Len(t, candles.GetByResolution(market.Minute30), 1)

	require.Eventually(t, func() bool { return writer.Written() == 2 }, time.Second, 5*time.Millisecond)
	recs := db.records()
	assert.Equal(t, postgres.SourceVenue, recs[0].Source)
	assert.Equal(t, "5m", recs[0].Resolution)
	assert.Equal(t, postgres.SourceAggregate, recs[1].Source)
	assert.Equal(t, "30m", recs[1].Resolution)
}

// go test -v --run TestWriterDropsWhenFull
func TestWriterDropsWhenFull(t *testing.T) {
	writer := NewCandleWriter(&fakeDB{seen: map[string]bool{}}, 1, zap.NewNop())
	c := market.Candle{PeriodStart: time.Unix(0, 0).UTC()}

	writer.Enqueue("BTCTRY", market.Minute5, c, postgres.SourceBackfill)
	writer.Enqueue("BTCTRY", market.Minute5, c, postgres.SourceBackfill)
	writer.Enqueue("BTCTRY", market.Resolution(7*time.Minute), c, postgres.SourceBackfill)
	assert.Equal(t, int64(1), writer.Dropped())
}
