package importer

import (
	"fmt"
	"strings"

	"github.com/travelops/importhub/internal/domain"
	"github.com/travelops/importhub/internal/mapping"
)

// fieldValue reads one canonical field off the typed struct by its mapping
// name. A field absent for the job kind reads as empty and therefore counts
// as missing when required.
func fieldValue(fields domain.CanonicalFields, name string) string {
	switch name {
	case mapping.FieldCustomerName:
		return fields.CustomerName
	case mapping.FieldBookingReference:
		return fields.BookingReference
	case mapping.FieldSupplier:
		return fields.SupplierName
	case mapping.FieldHotelName:
		return fields.HotelName
	case mapping.FieldAirline:
		return fields.Airline
	case mapping.FieldCity:
		return fields.City
	case mapping.FieldOrigin:
		return fields.Origin
	case mapping.FieldDestination:
		return fields.Destination
	case mapping.FieldRoomType:
		return fields.RoomType
	case mapping.FieldCabinClass:
		return fields.CabinClass
	case mapping.FieldOccupancy:
		return fields.Occupancy
	case mapping.FieldCurrency:
		return fields.Currency
	case mapping.FieldCheckIn, mapping.FieldValidFrom:
		return fields.PeriodStart
	case mapping.FieldCheckOut, mapping.FieldValidTo:
		return fields.PeriodEnd
	case mapping.FieldEntryDate:
		return fields.EntryDate
	case mapping.FieldDescription:
		return fields.Description
	case mapping.FieldAccount:
		return fields.Account
	case mapping.FieldAmount, mapping.FieldBasePrice, mapping.FieldFare:
		if fields.Amount == nil {
			return ""
		}
		return fields.Amount.String()
	case mapping.FieldMarkup:
		if fields.Markup == nil {
			return ""
		}
		return fields.Markup.String()
	}
	return ""
}

// missingFields returns the required canonical fields absent from the row.
// A field is missing when it is unmapped, null, or empty after trimming.
func missingFields(kind domain.JobKind, fields domain.CanonicalFields) []string {
	var missing []string
	for _, name := range mapping.RequiredFor(kind) {
		if strings.TrimSpace(fieldValue(fields, name)) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// validateRow produces the operator-facing error message for a row, or ""
// when the row passes. issues carries numeric parse problems from
// normalization; they fail the row the same way a missing field does.
func validateRow(kind domain.JobKind, fields domain.CanonicalFields, issues []string) string {
	missing := missingFields(kind, fields)

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	if len(issues) > 0 {
		parts = append(parts, strings.Join(issues, "; "))
	}
	return strings.Join(parts, "; ")
}
