package models

import (
	"encoding/json"
	"time"
)

// ScoreKind identifies which family of metrics a TickerScore holds.
type ScoreKind string

const (
	// ScoreKindFraud holds M-Score, Z-Score, accruals ratio and composite fraud risk.
	ScoreKindFraud ScoreKind = "fraud"
	// ScoreKindHealth holds risk-adjusted return metrics and the composite health score.
	ScoreKindHealth ScoreKind = "health"
)

// Valid reports whether k is a known score kind.
func (k ScoreKind) Valid() bool {
	return k == ScoreKindFraud || k == ScoreKindHealth
}

// TickerScore is the persisted snapshot of one metric family for one ticker.
type TickerScore struct {
	Ticker      string          `json:"ticker"`
	Kind        ScoreKind       `json:"kind"`
	CompanyName string          `json:"company_name,omitempty"`
	Composite   float64         `json:"composite"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	LastUpdated time.Time       `json:"last_updated"`
}

// IsFresh reports whether the score was updated within window of now.
func (s TickerScore) IsFresh(now time.Time, window time.Duration) bool {
	if s.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(s.LastUpdated) < window
}
