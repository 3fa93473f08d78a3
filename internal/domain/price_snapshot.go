package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceSnapshot is one point in the append-only value history for a logical
// item key. The impact analyzer reads the most recent snapshot before a
// commit and writes a new one after.
type PriceSnapshot struct {
	ID         uuid.UUID       `json:"id"`
	Kind       JobKind         `json:"kind"`
	ItemKey    string          `json:"item_key"`
	Value      decimal.Decimal `json:"value"`
	CapturedAt time.Time       `json:"captured_at"`
}

// NewPriceSnapshot captures the current value for an item key.
func NewPriceSnapshot(kind JobKind, itemKey string, value decimal.Decimal, capturedAt time.Time) PriceSnapshot {
	return PriceSnapshot{
		ID:         uuid.New(),
		Kind:       kind,
		ItemKey:    itemKey,
		Value:      value,
		CapturedAt: capturedAt,
	}
}
