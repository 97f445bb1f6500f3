package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketfeed/internal/market"
	"marketfeed/pkg/venue"

	"gorm.io/gorm/clause"
)

// ErrDuplicateCandle is returned when the pair, resolution and period are already stored.
var ErrDuplicateCandle = errors.New("duplicate candle skipped")

func (p *PostgresClient) InsertCandle(ctx context.Context, record *CandleRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(onConflictSkip()).Create(record)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: pair=%s resolution=%s start=%s",
			ErrDuplicateCandle, record.Pair, record.Resolution, record.PeriodStart.Format(time.RFC3339))
	}
	return nil
}

// InsertCandles stores records in one statement, skipping existing periods.
// It returns how many rows were written.
func (p *PostgresClient) InsertCandles(ctx context.Context, records []*CandleRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx := p.DB.WithContext(ctx).Clauses(onConflictSkip()).Create(records)
	return tx.RowsAffected, tx.Error
}

func onConflictSkip() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{
			{Name: "pair"},
			{Name: "resolution"},
			{Name: "period_start"},
		},
		DoNothing: true,
	}
}

func (p *PostgresClient) GetCandle(ctx context.Context, pair string, res market.Resolution, start time.Time) (*CandleRecord, error) {
	meta, err := venue.LookupResolution(res)
	if err != nil {
		return nil, err
	}
	var rec CandleRecord
	err = p.DB.WithContext(ctx).
		Where("pair = ? AND resolution = ? AND period_start = ?", pair, meta.DBValue, start.UTC()).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentCandles returns up to limit of the newest stored candles, oldest first.
func (p *PostgresClient) RecentCandles(ctx context.Context, pair string, res market.Resolution, limit int) ([]market.Candle, error) {
	meta, err := venue.LookupResolution(res)
	if err != nil {
		return nil, err
	}
	var recs []CandleRecord
	err = p.DB.WithContext(ctx).
		Where("pair = ? AND resolution = ?", pair, meta.DBValue).
		Order("period_start DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query recent %s candles: %w", meta.DBValue, err)
	}

	out := make([]market.Candle, len(recs))
	for i, rec := range recs {
		out[len(recs)-1-i] = rec.ToCandle()
	}
	return out, nil
}

// DeleteOldCandles removes candles whose period started before the cutoff.
func (p *PostgresClient) DeleteOldCandles(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("period_start < ?", before.UTC()).
		Delete(&CandleRecord{})
	return tx.RowsAffected, tx.Error
}

// ToCandleRecord converts a candle of resolution res for insertion.
func ToCandleRecord(pair string, res market.Resolution, c market.Candle, source string) (*CandleRecord, error) {
	meta, err := venue.LookupResolution(res)
	if err != nil {
		return nil, err
	}
	return &CandleRecord{
		Pair:        pair,
		Resolution:  meta.DBValue,
		PeriodStart: c.PeriodStart.UTC(),
		Open:        c.Open,
		High:        c.High,
		Low:         c.Low,
		Close:       c.Close,
		Volume:      c.Volume,
		QuoteVolume: c.QuoteVolume,
		Source:      source,
	}, nil
}

func (r CandleRecord) ToCandle() market.Candle {
	return market.Candle{
		PeriodStart: r.PeriodStart.UTC(),
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Close:       r.Close,
		Volume:      r.Volume,
		QuoteVolume: r.QuoteVolume,
	}
}
