// Package mapping owns the canonical field schema per job kind and the
// column auto-guess rules. Source columns map to at most one system field;
// everything else is ignored.
package mapping

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/travelops/importhub/internal/domain"
)

// Ignore is the mapping target for source columns with no system field.
const Ignore = "ignore"

// Canonical field names. These are the only keys a ColumnMapping may target.
const (
	FieldCustomerName     = "customer_name"
	FieldBookingReference = "booking_reference"
	FieldAmount           = "amount"
	FieldCurrency         = "currency"
	FieldEntryDate        = "entry_date"
	FieldDescription      = "description"
	FieldAccount          = "account"

	FieldHotelName = "hotel_name"
	FieldCity      = "city"
	FieldRoomType  = "room_type"
	FieldOccupancy = "occupancy"
	FieldBasePrice = "base_price"
	FieldCheckIn   = "check_in"
	FieldCheckOut  = "check_out"
	FieldMarkup    = "markup"
	FieldSupplier  = "supplier"

	FieldAirline     = "airline"
	FieldOrigin      = "origin"
	FieldDestination = "destination"
	FieldCabinClass  = "cabin_class"
	FieldFare        = "fare"
	FieldValidFrom   = "valid_from"
	FieldValidTo     = "valid_to"
)

// Field describes one canonical target field of a job kind.
type Field struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

var ledgerFields = []Field{
	{Name: FieldCustomerName, Required: true},
	{Name: FieldBookingReference, Required: true},
	{Name: FieldAmount, Required: true},
	{Name: FieldCurrency},
	{Name: FieldEntryDate},
	{Name: FieldDescription},
	{Name: FieldAccount},
}

var hotelRateFields = []Field{
	{Name: FieldHotelName, Required: true},
	{Name: FieldCity, Required: true},
	{Name: FieldRoomType, Required: true},
	{Name: FieldOccupancy, Required: true},
	{Name: FieldBasePrice, Required: true},
	{Name: FieldCurrency, Required: true},
	{Name: FieldCheckIn, Required: true},
	{Name: FieldCheckOut, Required: true},
	{Name: FieldMarkup, Required: true},
	{Name: FieldSupplier, Required: true},
}

var flightRateFields = []Field{
	{Name: FieldAirline, Required: true},
	{Name: FieldOrigin, Required: true},
	{Name: FieldDestination, Required: true},
	{Name: FieldCabinClass, Required: true},
	{Name: FieldFare, Required: true},
	{Name: FieldCurrency, Required: true},
	{Name: FieldValidFrom, Required: true},
	{Name: FieldValidTo, Required: true},
	{Name: FieldMarkup, Required: true},
	{Name: FieldSupplier, Required: true},
}

// FieldsFor returns the canonical field list for a job kind.
func FieldsFor(kind domain.JobKind) []Field {
	switch kind {
	case domain.JobKindLedger:
		return ledgerFields
	case domain.JobKindHotelRate:
		return hotelRateFields
	case domain.JobKindFlightRate:
		return flightRateFields
	}
	return nil
}

// RequiredFor returns the required field names for a job kind.
func RequiredFor(kind domain.JobKind) []string {
	var required []string
	for _, field := range FieldsFor(kind) {
		if field.Required {
			required = append(required, field.Name)
		}
	}
	return required
}

// KnownField reports whether name is a canonical field of the job kind.
func KnownField(kind domain.JobKind, name string) bool {
	for _, field := range FieldsFor(kind) {
		if field.Name == name {
			return true
		}
	}
	return false
}

// NormalizeResult carries the typed fields plus any per-field parse issues
// the validator folds into the row error.
type NormalizeResult struct {
	Fields domain.CanonicalFields
	Issues []string
}

// Normalize lifts a mapped field/value bag into the typed CanonicalFields.
// The raw bag stops here; business logic only ever sees the result.
func Normalize(kind domain.JobKind, mapped map[string]string) NormalizeResult {
	var result NormalizeResult
	f := &result.Fields

	get := func(name string) string { return strings.TrimSpace(mapped[name]) }

	parseAmount := func(name string) *decimal.Decimal {
		raw := get(name)
		if raw == "" {
			return nil
		}
		cleaned := strings.ReplaceAll(raw, ",", "")
		value, err := decimal.NewFromString(cleaned)
		if err != nil {
			result.Issues = append(result.Issues, "invalid numeric value for "+name+": "+raw)
			return nil
		}
		return &value
	}

	f.Currency = strings.ToUpper(get(FieldCurrency))

	switch kind {
	case domain.JobKindLedger:
		f.CustomerName = get(FieldCustomerName)
		f.BookingReference = get(FieldBookingReference)
		f.Amount = parseAmount(FieldAmount)
		f.EntryDate = get(FieldEntryDate)
		f.Description = get(FieldDescription)
		f.Account = get(FieldAccount)
	case domain.JobKindHotelRate:
		f.HotelName = get(FieldHotelName)
		f.City = get(FieldCity)
		f.RoomType = get(FieldRoomType)
		f.Occupancy = get(FieldOccupancy)
		f.Amount = parseAmount(FieldBasePrice)
		f.PeriodStart = get(FieldCheckIn)
		f.PeriodEnd = get(FieldCheckOut)
		f.Markup = parseAmount(FieldMarkup)
		f.SupplierName = get(FieldSupplier)
	case domain.JobKindFlightRate:
		f.Airline = get(FieldAirline)
		f.Origin = get(FieldOrigin)
		f.Destination = get(FieldDestination)
		f.CabinClass = get(FieldCabinClass)
		f.Amount = parseAmount(FieldFare)
		f.PeriodStart = get(FieldValidFrom)
		f.PeriodEnd = get(FieldValidTo)
		f.Markup = parseAmount(FieldMarkup)
		f.SupplierName = get(FieldSupplier)
	}

	return result
}
