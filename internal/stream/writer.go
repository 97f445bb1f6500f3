package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"marketfeed/internal/market"
	"marketfeed/pkg/storage/postgres"

	"go.uber.org/zap"
)

// CandleInserter stores one candle record. *postgres.PostgresClient implements it.
type CandleInserter interface {
	InsertCandle(ctx context.Context, record *postgres.CandleRecord) error
}

// CandleWriter persists candles from a single worker so database latency never
// reaches the event loop.
type CandleWriter struct {
	db      CandleInserter
	queue   chan *postgres.CandleRecord
	timeout time.Duration
	written atomic.Int64
	dropped atomic.Int64
	logger  *zap.Logger
}

func NewCandleWriter(db CandleInserter, size int, logger *zap.Logger) *CandleWriter {
	if size < 1 {
		size = 256
	}
	return &CandleWriter{
		db:      db,
		queue:   make(chan *postgres.CandleRecord, size),
		timeout: 2 * time.Second,
		logger:  logger.Named("writer"),
	}
}

// Enqueue converts and queues c. It never blocks; a full queue drops the candle.
// Safe to call from any goroutine.
func (w *CandleWriter) Enqueue(pair string, res market.Resolution, c market.Candle, source string) {
	rec, err := postgres.ToCandleRecord(pair, res, c, source)
	if err != nil {
		w.logger.Warn("failed to convert candle to record", zap.Error(err))
		return
	}
	select {
	case w.queue <- rec:
	default:
		w.dropped.Add(1)
		w.logger.Warn("candle queue full, dropping",
			zap.String("pair", pair),
			zap.Stringer("resolution", res),
			zap.Time("periodStart", c.PeriodStart))
	}
}

// StartWorker drains the queue until ctx is cancelled.
func (w *CandleWriter) StartWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-w.queue:
			w.insert(ctx, rec)
		}
	}
}

func (w *CandleWriter) insert(ctx context.Context, rec *postgres.CandleRecord) {
	dbCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	err := w.db.InsertCandle(dbCtx, rec)
	switch {
	case err == nil:
		w.written.Add(1)
	case errors.Is(err, postgres.ErrDuplicateCandle):
		w.logger.Debug("candle already stored", zap.String("resolution", rec.Resolution), zap.Time("periodStart", rec.PeriodStart))
	default:
		w.logger.Warn("failed to insert candle record", zap.String("resolution", rec.Resolution), zap.Error(err))
	}
}

// Written returns how many records were inserted.
func (w *CandleWriter) Written() int64 { return w.written.Load() }

// Dropped returns how many candles were discarded on a full queue.
func (w *CandleWriter) Dropped() int64 { return w.dropped.Load() }
