package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/travelops/importhub/internal/domain"
)

type supplierRepository struct {
	db DBTX
}

// NewSupplierRepository wires a repository backed by pgx.
func NewSupplierRepository(db DBTX) SupplierRepository {
	return &supplierRepository{db: db}
}

func (r *supplierRepository) GetByNormalizedName(ctx context.Context, normalized string) (domain.Supplier, bool, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT id, name, normalized_name, created_by_import, created_at, updated_at
		 FROM suppliers WHERE normalized_name = $1`,
		normalized,
	)
	supplier, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Supplier{}, false, nil
		}
		return domain.Supplier{}, false, fmt.Errorf("failed to get supplier: %w", err)
	}
	return supplier, true, nil
}

// Insert relies on the unique constraint over normalized_name: a concurrent
// insert of the same name loses the race, hits the conflict, and the
// re-select returns the winner's row.
func (r *supplierRepository) Insert(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO suppliers (id, name, normalized_name, created_by_import, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (normalized_name) DO NOTHING`,
		supplier.ID,
		supplier.Name,
		supplier.NormalizedName,
		supplier.CreatedByImport,
		supplier.CreatedAt,
	)
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("failed to insert supplier: %w", err)
	}

	row := r.db.QueryRow(
		ctx,
		`SELECT id, name, normalized_name, created_by_import, created_at, updated_at
		 FROM suppliers WHERE normalized_name = $1`,
		supplier.NormalizedName,
	)
	stored, err := scanSupplier(row)
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("failed to read back supplier: %w", err)
	}
	return stored, nil
}

func scanSupplier(row pgx.Row) (domain.Supplier, error) {
	var (
		supplier  domain.Supplier
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&supplier.ID,
		&supplier.Name,
		&supplier.NormalizedName,
		&supplier.CreatedByImport,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Supplier{}, err
	}
	if createdAt.Valid {
		supplier.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		supplier.UpdatedAt = updatedAt.Time
	}
	return supplier, nil
}
