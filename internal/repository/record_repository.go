package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/travelops/importhub/internal/domain"
)

type recordRepository struct {
	db DBTX
}

// NewRecordRepository wires the permanent store repository.
func NewRecordRepository(db DBTX) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) InsertRate(ctx context.Context, record domain.RateRecord) error {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO rate_records (id, job_id, staged_row_id, kind, supplier_id, item_name, city, origin,
		        destination, unit_name, occupancy, price, markup, currency, period_start, period_end, item_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		record.ID,
		record.JobID,
		record.StagedRowID,
		string(record.Kind),
		record.SupplierID,
		record.ItemName,
		record.City,
		record.Origin,
		record.Destination,
		record.UnitName,
		record.Occupancy,
		record.Price.String(),
		record.Markup.String(),
		record.Currency,
		record.PeriodStart,
		record.PeriodEnd,
		record.ItemKey,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rate record: %w", err)
	}
	return nil
}

func (r *recordRepository) InsertLedger(ctx context.Context, record domain.LedgerRecord) error {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO ledger_records (id, job_id, staged_row_id, customer_name, booking_reference, amount,
		        currency, entry_date, description, account, item_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID,
		record.JobID,
		record.StagedRowID,
		record.CustomerName,
		record.BookingReference,
		record.Amount.String(),
		record.Currency,
		record.EntryDate,
		record.Description,
		record.Account,
		record.ItemKey,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger record: %w", err)
	}
	return nil
}

func (r *recordRepository) ExistsForStagedRow(ctx context.Context, kind domain.JobKind, stagedRowID uuid.UUID) (bool, error) {
	table := "rate_records"
	if kind == domain.JobKindLedger {
		table = "ledger_records"
	}
	var exists bool
	err := r.db.QueryRow(
		ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE staged_row_id = $1)`, table),
		stagedRowID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check committed row: %w", err)
	}
	return exists, nil
}

func (r *recordRepository) ListRatesByJob(ctx context.Context, jobID uuid.UUID) ([]domain.RateRecord, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, job_id, staged_row_id, kind, supplier_id, item_name, city, origin, destination,
		        unit_name, occupancy, price::text, markup::text, currency, period_start, period_end, item_key, created_at
		 FROM rate_records WHERE job_id = $1 ORDER BY created_at`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate records: %w", err)
	}
	defer rows.Close()

	records := []domain.RateRecord{}
	for rows.Next() {
		var (
			record    domain.RateRecord
			kind      string
			price     string
			markup    string
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&record.ID,
			&record.JobID,
			&record.StagedRowID,
			&kind,
			&record.SupplierID,
			&record.ItemName,
			&record.City,
			&record.Origin,
			&record.Destination,
			&record.UnitName,
			&record.Occupancy,
			&price,
			&markup,
			&record.Currency,
			&record.PeriodStart,
			&record.PeriodEnd,
			&record.ItemKey,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan rate record: %w", scanErr)
		}

		record.Kind = domain.JobKind(kind)
		parsedPrice, parseErr := decimal.NewFromString(price)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse price %q: %w", price, parseErr)
		}
		record.Price = parsedPrice
		parsedMarkup, parseErr := decimal.NewFromString(markup)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse markup %q: %w", markup, parseErr)
		}
		record.Markup = parsedMarkup
		if createdAt.Valid {
			record.CreatedAt = createdAt.Time
		}

		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate rate records: %w", rowsErr)
	}

	return records, nil
}

func (r *recordRepository) ListLedgerByJob(ctx context.Context, jobID uuid.UUID) ([]domain.LedgerRecord, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, job_id, staged_row_id, customer_name, booking_reference, amount::text,
		        currency, entry_date, description, account, item_key, created_at
		 FROM ledger_records WHERE job_id = $1 ORDER BY created_at`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger records: %w", err)
	}
	defer rows.Close()

	records := []domain.LedgerRecord{}
	for rows.Next() {
		var (
			record    domain.LedgerRecord
			amount    string
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&record.ID,
			&record.JobID,
			&record.StagedRowID,
			&record.CustomerName,
			&record.BookingReference,
			&amount,
			&record.Currency,
			&record.EntryDate,
			&record.Description,
			&record.Account,
			&record.ItemKey,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", scanErr)
		}

		parsedAmount, parseErr := decimal.NewFromString(amount)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, parseErr)
		}
		record.Amount = parsedAmount
		if createdAt.Valid {
			record.CreatedAt = createdAt.Time
		}

		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ledger records: %w", rowsErr)
	}

	return records, nil
}
