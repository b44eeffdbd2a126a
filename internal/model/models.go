package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryPoint is one timestamped balance snapshot.
type HistoryPoint struct {
	ID           int64     `json:"id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	TotalUSD     float64   `json:"total_usd"`
	TotalUSDUSDT float64   `json:"total_usd_usdt"`
	TotalRLB     float64   `json:"total_rlb"`
	RLBPriceUSD  *float64  `json:"rlb_price_usd,omitempty"`
}

// At returns the snapshot time.
func (p HistoryPoint) At() time.Time { return p.Timestamp }

// Trade is a single executed trade. Profit fields stay invalid until settled.
type Trade struct {
	ID                int64
	Timestamp         time.Time
	TriggerType       string
	TriggerDetail     string
	TradeAmount       decimal.Decimal
	RawProfitUSD      decimal.NullDecimal
	ProfitWithGasUSD  decimal.NullDecimal
	Opponent          bool
	Win               *bool
	OpponentTimeGapMs *int64
	APICallDurationMs *int64
}

// At returns the execution time.
func (t Trade) At() time.Time { return t.Timestamp }

// Settled reports whether both profit fields are known.
func (t Trade) Settled() bool {
	return t.RawProfitUSD.Valid && t.ProfitWithGasUSD.Valid
}

// Thresholds bound the allowed delta between neighbouring snapshots.
type Thresholds struct {
	StableDelta float64 `mapstructure:"stable_delta"`
	TokenDelta  float64 `mapstructure:"token_delta"`
}

// AnomalousSnapshot is a stored snapshot flagged by the detector.
type AnomalousSnapshot struct {
	ID           int64
	Timestamp    time.Time
	TotalUSD     float64
	TotalUSDUSDT float64
	TotalRLB     float64
	StableDelta  float64
	TokenDelta   float64
	Reason       string
}

// TradeFilter narrows a trade fetch. Zero values mean "no constraint".
type TradeFilter struct {
	Since       *time.Time
	Until       *time.Time
	TriggerType string
	Limit       int
}
