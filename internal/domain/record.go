package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateRecord is a committed hotel or flight rate in the permanent store.
// StagedRowID is unique per record so a retried commit can never insert the
// same staged row twice.
type RateRecord struct {
	ID          uuid.UUID       `json:"id"`
	JobID       uuid.UUID       `json:"job_id"`
	StagedRowID uuid.UUID       `json:"staged_row_id"`
	Kind        JobKind         `json:"kind"`
	SupplierID  *uuid.UUID      `json:"supplier_id,omitempty"`
	ItemName    string          `json:"item_name"`
	City        string          `json:"city,omitempty"`
	Origin      string          `json:"origin,omitempty"`
	Destination string          `json:"destination,omitempty"`
	UnitName    string          `json:"unit_name"`
	Occupancy   string          `json:"occupancy,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Markup      decimal.Decimal `json:"markup"`
	Currency    string          `json:"currency"`
	PeriodStart string          `json:"period_start"`
	PeriodEnd   string          `json:"period_end"`
	ItemKey     string          `json:"item_key"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LedgerRecord is a committed legacy ledger row reconciled into the permanent
// store by the agent data migration flow.
type LedgerRecord struct {
	ID               uuid.UUID       `json:"id"`
	JobID            uuid.UUID       `json:"job_id"`
	StagedRowID      uuid.UUID       `json:"staged_row_id"`
	CustomerName     string          `json:"customer_name"`
	BookingReference string          `json:"booking_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency,omitempty"`
	EntryDate        string          `json:"entry_date,omitempty"`
	Description      string          `json:"description,omitempty"`
	Account          string          `json:"account,omitempty"`
	ItemKey          string          `json:"item_key"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewRateRecord materializes a matched rate row.
func NewRateRecord(row StagedRow, kind JobKind) RateRecord {
	f := row.Fields
	itemName := f.HotelName
	unitName := f.RoomType
	if kind == JobKindFlightRate {
		itemName = f.Airline
		unitName = f.CabinClass
	}
	var price, markup decimal.Decimal
	if f.Amount != nil {
		price = *f.Amount
	}
	if f.Markup != nil {
		markup = *f.Markup
	}
	return RateRecord{
		ID:          uuid.New(),
		JobID:       row.JobID,
		StagedRowID: row.ID,
		Kind:        kind,
		SupplierID:  row.SupplierID,
		ItemName:    itemName,
		City:        f.City,
		Origin:      f.Origin,
		Destination: f.Destination,
		UnitName:    unitName,
		Occupancy:   f.Occupancy,
		Price:       price,
		Markup:      markup,
		Currency:    f.Currency,
		PeriodStart: f.PeriodStart,
		PeriodEnd:   f.PeriodEnd,
		ItemKey:     f.NaturalKey(kind),
		CreatedAt:   time.Now(),
	}
}

// NewLedgerRecord materializes a matched ledger row.
func NewLedgerRecord(row StagedRow) LedgerRecord {
	f := row.Fields
	var amount decimal.Decimal
	if f.Amount != nil {
		amount = *f.Amount
	}
	return LedgerRecord{
		ID:               uuid.New(),
		JobID:            row.JobID,
		StagedRowID:      row.ID,
		CustomerName:     f.CustomerName,
		BookingReference: f.BookingReference,
		Amount:           amount,
		Currency:         f.Currency,
		EntryDate:        f.EntryDate,
		Description:      f.Description,
		Account:          f.Account,
		ItemKey:          f.NaturalKey(JobKindLedger),
		CreatedAt:        time.Now(),
	}
}
