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

type stagedRowRepository struct {
	db DBTX
}

// NewStagedRowRepository wires a repository backed by pgx.
func NewStagedRowRepository(db DBTX) StagedRowRepository {
	return &stagedRowRepository{db: db}
}

func (r *stagedRowRepository) WithTx(tx pgx.Tx) StagedRowRepository {
	return &stagedRowRepository{db: tx}
}

func (r *stagedRowRepository) CreateBatch(ctx context.Context, rows []domain.StagedRow) error {
	for _, row := range rows {
		rawJSON, err := json.Marshal(row.Raw)
		if err != nil {
			return fmt.Errorf("failed to encode raw payload for row %d: %w", row.RowNumber, err)
		}
		fieldsJSON, err := json.Marshal(row.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields for row %d: %w", row.RowNumber, err)
		}

		_, err = r.db.Exec(
			ctx,
			`INSERT INTO staged_rows (id, job_id, row_number, raw, fields, supplier_id, status, note, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
			row.ID,
			row.JobID,
			row.RowNumber,
			rawJSON,
			fieldsJSON,
			row.SupplierID,
			string(row.Status),
			row.Note,
			row.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert staged row %d: %w", row.RowNumber, err)
		}
	}
	return nil
}

func (r *stagedRowRepository) ListByJob(ctx context.Context, jobID uuid.UUID, status *domain.RowStatus, limit, offset int) ([]domain.StagedRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, job_id, row_number, raw, fields, supplier_id, status, note, created_at, updated_at
	          FROM staged_rows WHERE job_id = $1`
	args := []any{jobID}
	if status != nil {
		query += ` AND status = $2 ORDER BY row_number LIMIT $3 OFFSET $4`
		args = append(args, string(*status), limit, offset)
	} else {
		query += ` ORDER BY row_number LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged rows: %w", err)
	}
	defer rows.Close()

	return collectStagedRows(rows)
}

func (r *stagedRowRepository) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM staged_rows WHERE job_id = $1`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count staged rows: %w", err)
	}
	return count, nil
}

func (r *stagedRowRepository) CountOwned(ctx context.Context, jobID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := r.db.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM staged_rows WHERE job_id = $1 AND id = ANY($2)`,
		jobID,
		ids,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned rows: %w", err)
	}
	return count, nil
}

func (r *stagedRowRepository) UpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.RowStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(
		ctx,
		`UPDATE staged_rows SET status = $2, updated_at = now() WHERE id = ANY($1)`,
		ids,
		string(status),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update row status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *stagedRowRepository) UpdateSupplier(ctx context.Context, id uuid.UUID, supplierID *uuid.UUID) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE staged_rows SET supplier_id = $2, updated_at = now() WHERE id = $1`,
		id,
		supplierID,
	)
	if err != nil {
		return fmt.Errorf("failed to update row supplier: %w", err)
	}
	return nil
}

func collectStagedRows(rows pgx.Rows) ([]domain.StagedRow, error) {
	staged := []domain.StagedRow{}
	for rows.Next() {
		var (
			row        domain.StagedRow
			rawJSON    []byte
			fieldsJSON []byte
			status     string
			createdAt  pgtype.Timestamptz
			updatedAt  pgtype.Timestamptz
		)
		if err := rows.Scan(
			&row.ID,
			&row.JobID,
			&row.RowNumber,
			&rawJSON,
			&fieldsJSON,
			&row.SupplierID,
			&status,
			&row.Note,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan staged row: %w", err)
		}

		if len(rawJSON) > 0 {
			if err := json.Unmarshal(rawJSON, &row.Raw); err != nil {
				return nil, fmt.Errorf("failed to decode raw payload: %w", err)
			}
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &row.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode fields: %w", err)
			}
		}
		row.Status = domain.RowStatus(status)
		if createdAt.Valid {
			row.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			row.UpdatedAt = updatedAt.Time
		}

		staged = append(staged, row)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staged rows: %w", rowsErr)
	}
	return staged, nil
}
