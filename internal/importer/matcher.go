package importer

import (
	"strings"

	"github.com/travelops/importhub/internal/domain"
)

// evaluateMatch decides the review status for one pending row. Pending is
// the only input state; the auto-match pass never touches rows an operator
// or a prior run already settled, which is what makes re-running it a no-op.
//
// Ledger rows match when they carry both a customer identifier and a booking
// reference, enough to merge against an existing record. Rate rows match
// when the supplier resolved and the row carries a positive value.
func evaluateMatch(kind domain.JobKind, row domain.StagedRow) domain.RowStatus {
	f := row.Fields
	switch kind {
	case domain.JobKindLedger:
		if strings.TrimSpace(f.CustomerName) != "" && strings.TrimSpace(f.BookingReference) != "" {
			return domain.RowStatusMatched
		}
	case domain.JobKindHotelRate, domain.JobKindFlightRate:
		if row.SupplierID != nil && f.Amount != nil && f.Amount.IsPositive() {
			return domain.RowStatusMatched
		}
	}
	return domain.RowStatusNeedsReview
}
