package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ImpactDirection classifies how a committed value compares to the most
// recent prior snapshot of the same item. The four directions are exhaustive
// and mutually exclusive.
type ImpactDirection string

const (
	ImpactCheaper       ImpactDirection = "cheaper"
	ImpactMoreExpensive ImpactDirection = "more_expensive"
	ImpactUnchanged     ImpactDirection = "unchanged"
	ImpactNoPrevious    ImpactDirection = "no_previous"
)

// ClassifyImpact compares a new value to a prior one. old is nil when no
// previous snapshot exists for the key. Comparison is exact; these are
// currency amounts.
func ClassifyImpact(old *decimal.Decimal, new decimal.Decimal) ImpactDirection {
	if old == nil {
		return ImpactNoPrevious
	}
	switch new.Cmp(*old) {
	case -1:
		return ImpactCheaper
	case 1:
		return ImpactMoreExpensive
	default:
		return ImpactUnchanged
	}
}

// ItemDelta is one per-item comparison surfaced in the bounded sample list.
type ItemDelta struct {
	ItemKey   string           `json:"item_key"`
	OldValue  *decimal.Decimal `json:"old_value,omitempty"`
	NewValue  decimal.Decimal  `json:"new_value"`
	Diff      decimal.Decimal  `json:"diff"`
	Direction ImpactDirection  `json:"direction"`
}

// ImpactSummary aggregates the value impact of a committed job against
// history. Derived on demand; never the source of truth.
type ImpactSummary struct {
	JobID          uuid.UUID       `json:"job_id"`
	CommittedRows  int             `json:"committed_rows"`
	ComparableRows int             `json:"comparable_rows"`
	Cheaper        int             `json:"cheaper"`
	MoreExpensive  int             `json:"more_expensive"`
	Unchanged      int             `json:"unchanged"`
	NoPrevious     int             `json:"no_previous"`
	TotalOld       decimal.Decimal `json:"total_old"`
	TotalNew       decimal.Decimal `json:"total_new"`
	NetChange      decimal.Decimal `json:"net_change"`
	Sample         []ItemDelta     `json:"sample"`
}
