package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RowStatus is the review state of a staged row. Only matched rows reach the
// permanent store at commit time; duplicate_skipped and needs_review rows are
// excluded unless an operator re-marks them first.
type RowStatus string

const (
	RowStatusPending          RowStatus = "pending"
	RowStatusMatched          RowStatus = "matched"
	RowStatusDuplicateSkipped RowStatus = "duplicate_skipped"
	RowStatusNeedsReview      RowStatus = "needs_review"
)

// ValidRowStatus reports whether status is a known review state.
func ValidRowStatus(status RowStatus) bool {
	switch status {
	case RowStatusPending, RowStatusMatched, RowStatusDuplicateSkipped, RowStatusNeedsReview:
		return true
	}
	return false
}

// CanonicalFields is the typed shape a raw row is normalized into at
// mapping-apply time. Only the fields relevant to the job kind are populated;
// the raw key/value bag never crosses past the mapper.
type CanonicalFields struct {
	CustomerName     string           `json:"customer_name,omitempty"`
	BookingReference string           `json:"booking_reference,omitempty"`
	SupplierName     string           `json:"supplier_name,omitempty"`
	HotelName        string           `json:"hotel_name,omitempty"`
	Airline          string           `json:"airline,omitempty"`
	City             string           `json:"city,omitempty"`
	Origin           string           `json:"origin,omitempty"`
	Destination      string           `json:"destination,omitempty"`
	RoomType         string           `json:"room_type,omitempty"`
	CabinClass       string           `json:"cabin_class,omitempty"`
	Occupancy        string           `json:"occupancy,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Markup           *decimal.Decimal `json:"markup,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	PeriodStart      string           `json:"period_start,omitempty"`
	PeriodEnd        string           `json:"period_end,omitempty"`
	EntryDate        string           `json:"entry_date,omitempty"`
	Description      string           `json:"description,omitempty"`
	Account          string           `json:"account,omitempty"`
}

// NaturalKey derives the composite key used for duplicate grouping and for
// price-history lookups. An empty key means the row carries too little
// identifying information to be grouped at all.
func (f CanonicalFields) NaturalKey(kind JobKind) string {
	var parts []string
	switch kind {
	case JobKindLedger:
		parts = []string{f.CustomerName, f.BookingReference}
	case JobKindHotelRate:
		parts = []string{f.HotelName, f.RoomType, f.PeriodStart, f.PeriodEnd}
	case JobKindFlightRate:
		parts = []string{f.Airline, f.Origin, f.Destination, f.CabinClass, f.PeriodStart, f.PeriodEnd}
	default:
		return ""
	}

	normalized := make([]string, len(parts))
	empty := true
	for i, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			empty = false
		}
		normalized[i] = part
	}
	if empty {
		return ""
	}
	return strings.Join(normalized, "|")
}

// StagedRow is one parsed, mapped, not-yet-committed input record held for
// operator review.
type StagedRow struct {
	ID         uuid.UUID         `json:"id"`
	JobID      uuid.UUID         `json:"job_id"`
	RowNumber  int               `json:"row_number"`
	Raw        map[string]string `json:"raw"`
	Fields     CanonicalFields   `json:"fields"`
	SupplierID *uuid.UUID        `json:"supplier_id,omitempty"`
	Status     RowStatus         `json:"status"`
	Note       string            `json:"note,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewStagedRow creates a pending row for a job.
func NewStagedRow(jobID uuid.UUID, rowNumber int, raw map[string]string, fields CanonicalFields) StagedRow {
	now := time.Now()
	copied := make(map[string]string, len(raw))
	for k, v := range raw {
		copied[k] = v
	}
	return StagedRow{
		ID:        uuid.New(),
		JobID:     jobID,
		RowNumber: rowNumber,
		Raw:       copied,
		Fields:    fields,
		Status:    RowStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
