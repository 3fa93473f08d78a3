package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/travelops/importhub/internal/domain"
)

type importErrorRepository struct {
	db DBTX
}

// NewImportErrorRepository wires a repository backed by pgx.
func NewImportErrorRepository(db DBTX) ImportErrorRepository {
	return &importErrorRepository{db: db}
}

func (r *importErrorRepository) WithTx(tx pgx.Tx) ImportErrorRepository {
	return &importErrorRepository{db: tx}
}

func (r *importErrorRepository) Replace(ctx context.Context, importError domain.ImportError) error {
	rawJSON, err := json.Marshal(importError.RawPayload)
	if err != nil {
		return fmt.Errorf("failed to encode raw payload: %w", err)
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO import_errors (id, job_id, row_number, message, raw_payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id, row_number)
		 DO UPDATE SET message = EXCLUDED.message, raw_payload = EXCLUDED.raw_payload, created_at = EXCLUDED.created_at`,
		importError.ID,
		importError.JobID,
		importError.RowNumber,
		importError.Message,
		rawJSON,
		importError.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record import error: %w", err)
	}
	return nil
}

func (r *importErrorRepository) DeleteForRow(ctx context.Context, jobID uuid.UUID, rowNumber int) error {
	_, err := r.db.Exec(
		ctx,
		`DELETE FROM import_errors WHERE job_id = $1 AND row_number = $2`,
		jobID,
		rowNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to clear import error: %w", err)
	}
	return nil
}

func (r *importErrorRepository) ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportError, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, job_id, row_number, message, raw_payload, created_at
		 FROM import_errors
		 WHERE job_id = $1
		 ORDER BY row_number
		 LIMIT $2 OFFSET $3`,
		jobID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import errors: %w", err)
	}
	defer rows.Close()

	importErrors := []domain.ImportError{}
	for rows.Next() {
		var (
			importError domain.ImportError
			rawJSON     []byte
			createdAt   pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&importError.ID,
			&importError.JobID,
			&importError.RowNumber,
			&importError.Message,
			&rawJSON,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import error: %w", scanErr)
		}

		if len(rawJSON) > 0 {
			if err := json.Unmarshal(rawJSON, &importError.RawPayload); err != nil {
				return nil, fmt.Errorf("failed to decode raw payload: %w", err)
			}
		}
		if createdAt.Valid {
			importError.CreatedAt = createdAt.Time
		}

		importErrors = append(importErrors, importError)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import errors: %w", rowsErr)
	}

	return importErrors, nil
}

func (r *importErrorRepository) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM import_errors WHERE job_id = $1`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count import errors: %w", err)
	}
	return count, nil
}
