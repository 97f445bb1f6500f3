package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle sources.
const (
	SourceVenue     = "venue"     // polled base candle
	SourceAggregate = "aggregate" // derived by the cascade
	SourceBackfill  = "backfill"  // fetched to fill a detected gap
)

// CandleRecord is one completed candle stored in the database.
type CandleRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Pair        string    `gorm:"type:text;not null;index:idx_candle_pair;index:idx_pair_resolution_start,unique"`
	Resolution  string    `gorm:"type:varchar(10);not null;index:idx_pair_resolution_start,unique"`
	PeriodStart time.Time `gorm:"not null;index:idx_pair_resolution_start,unique"`

	Open  decimal.Decimal `gorm:"type:numeric;not null"`
	High  decimal.Decimal `gorm:"type:numeric;not null"`
	Low   decimal.Decimal `gorm:"type:numeric;not null"`
	Close decimal.Decimal `gorm:"type:numeric;not null"`

	Volume      decimal.Decimal `gorm:"type:numeric;not null"`
	QuoteVolume decimal.Decimal `gorm:"type:numeric;not null"`

	Source string `gorm:"type:varchar(16);not null"`

	RecordedAt time.Time `gorm:"autoCreateTime;index:idx_candle_recorded_at"`
}

// TableName overrides the default table name for GORM.
func (CandleRecord) TableName() string {
	return "candle_record"
}
