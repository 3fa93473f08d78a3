package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Supplier is a canonical entity resolved from free-text supplier references.
// The normalized name is unique; resolution is get-or-create, never
// get-or-duplicate.
type Supplier struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	NormalizedName  string    `json:"normalized_name"`
	CreatedByImport bool      `json:"created_by_import"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NormalizeSupplierName lowers, trims, and collapses internal whitespace so
// "Sun  Travel " and "sun travel" resolve to the same entity.
func NormalizeSupplierName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// NewSupplier creates a supplier first seen through an import.
func NewSupplier(name string) Supplier {
	now := time.Now()
	return Supplier{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(name),
		NormalizedName:  NormalizeSupplierName(name),
		CreatedByImport: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
