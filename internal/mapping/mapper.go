package mapping

import (
	"strings"

	"github.com/travelops/importhub/internal/domain"
)

// ColumnMapping maps a source column name to a canonical field name or
// Ignore. Held per job and immutable once applied to staging.
type ColumnMapping map[string]string

// Rule is one (substring, field) auto-guess entry. Rules are data: they are
// evaluated in order against the lower-cased source column and the first hit
// wins, so more specific substrings must come first.
type Rule struct {
	Substring string
	Field     string
}

var ledgerRules = []Rule{
	{"customer", FieldCustomerName},
	{"client", FieldCustomerName},
	{"guest", FieldCustomerName},
	{"booking", FieldBookingReference},
	{"reference", FieldBookingReference},
	{"ref", FieldBookingReference},
	{"amount", FieldAmount},
	{"total", FieldAmount},
	{"value", FieldAmount},
	{"currency", FieldCurrency},
	{"date", FieldEntryDate},
	{"description", FieldDescription},
	{"memo", FieldDescription},
	{"narrative", FieldDescription},
	{"account", FieldAccount},
}

var hotelRateRules = []Rule{
	{"hotel", FieldHotelName},
	{"property", FieldHotelName},
	{"city", FieldCity},
	{"destination", FieldCity},
	{"room", FieldRoomType},
	{"occupancy", FieldOccupancy},
	{"pax", FieldOccupancy},
	{"markup", FieldMarkup},
	{"margin", FieldMarkup},
	{"price", FieldBasePrice},
	{"rate", FieldBasePrice},
	{"cost", FieldBasePrice},
	{"total", FieldBasePrice},
	{"currency", FieldCurrency},
	{"check in", FieldCheckIn},
	{"checkin", FieldCheckIn},
	{"check_in", FieldCheckIn},
	{"from", FieldCheckIn},
	{"check out", FieldCheckOut},
	{"checkout", FieldCheckOut},
	{"check_out", FieldCheckOut},
	{"to", FieldCheckOut},
	{"supplier", FieldSupplier},
	{"vendor", FieldSupplier},
	{"provider", FieldSupplier},
}

var flightRateRules = []Rule{
	{"airline", FieldAirline},
	{"carrier", FieldAirline},
	{"origin", FieldOrigin},
	{"depart", FieldOrigin},
	{"destination", FieldDestination},
	{"arriv", FieldDestination},
	{"cabin", FieldCabinClass},
	{"class", FieldCabinClass},
	{"markup", FieldMarkup},
	{"margin", FieldMarkup},
	{"fare", FieldFare},
	{"price", FieldFare},
	{"rate", FieldFare},
	{"currency", FieldCurrency},
	{"valid from", FieldValidFrom},
	{"valid_from", FieldValidFrom},
	{"from", FieldValidFrom},
	{"valid to", FieldValidTo},
	{"valid_to", FieldValidTo},
	{"to", FieldValidTo},
	{"supplier", FieldSupplier},
	{"vendor", FieldSupplier},
	{"provider", FieldSupplier},
}

// RulesFor returns the auto-guess rule table for a job kind.
func RulesFor(kind domain.JobKind) []Rule {
	switch kind {
	case domain.JobKindLedger:
		return ledgerRules
	case domain.JobKindHotelRate:
		return hotelRateRules
	case domain.JobKindFlightRate:
		return flightRateRules
	}
	return nil
}

// Guess produces the default mapping for the source columns. Each column is
// tested against the rule table top to bottom; no match maps to Ignore.
func Guess(kind domain.JobKind, columns []string) ColumnMapping {
	rules := RulesFor(kind)
	guessed := make(ColumnMapping, len(columns))
	claimed := make(map[string]bool)

	for _, column := range columns {
		lowered := strings.ToLower(strings.ReplaceAll(column, "_", " "))
		target := Ignore
		for _, rule := range rules {
			probe := strings.ReplaceAll(rule.Substring, "_", " ")
			if strings.Contains(lowered, probe) && !claimed[rule.Field] {
				target = rule.Field
				claimed[rule.Field] = true
				break
			}
		}
		guessed[column] = target
	}

	return guessed
}

// Merge overlays operator overrides onto a guessed mapping. Overrides that
// name an unknown field or column are dropped silently; the apply step
// validates the final mapping.
func Merge(guessed ColumnMapping, overrides map[string]string) ColumnMapping {
	merged := make(ColumnMapping, len(guessed))
	for column, field := range guessed {
		merged[column] = field
	}
	for column, field := range overrides {
		if _, ok := merged[column]; ok {
			merged[column] = field
		}
	}
	return merged
}

// Project applies a mapping to one raw row, producing the canonical
// field/value bag. Ignored and unmapped columns are dropped.
func Project(mapped ColumnMapping, row map[string]string) map[string]string {
	projected := make(map[string]string)
	for column, field := range mapped {
		if field == Ignore || field == "" {
			continue
		}
		if value, ok := row[column]; ok {
			projected[field] = value
		}
	}
	return projected
}

// Validate rejects mappings that target unknown fields or map two source
// columns onto the same field.
func Validate(kind domain.JobKind, mapped ColumnMapping) []string {
	var problems []string
	used := make(map[string]string)
	for column, field := range mapped {
		if field == Ignore || field == "" {
			continue
		}
		if !KnownField(kind, field) {
			problems = append(problems, "unknown field "+field+" for column "+column)
			continue
		}
		if prev, ok := used[field]; ok {
			problems = append(problems, "field "+field+" mapped from both "+prev+" and "+column)
			continue
		}
		used[field] = column
	}
	return problems
}
