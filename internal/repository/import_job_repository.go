package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/travelops/importhub/internal/domain"
)

type importJobRepository struct {
	db DBTX
}

// NewImportJobRepository wires a repository backed by pgx.
func NewImportJobRepository(db DBTX) ImportJobRepository {
	return &importJobRepository{db: db}
}

func (r *importJobRepository) WithTx(tx pgx.Tx) ImportJobRepository {
	return &importJobRepository{db: tx}
}

func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	columnsJSON, err := json.Marshal(job.SourceColumns)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to encode source columns: %w", err)
	}
	rowsJSON, err := json.Marshal(job.RawRows)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to encode raw rows: %w", err)
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO import_jobs (id, kind, file_name, label, source_columns, raw_rows, total_rows, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		job.ID,
		string(job.Kind),
		job.FileName,
		job.Label,
		columnsJSON,
		rowsJSON,
		job.TotalRows,
		string(job.Status),
		job.CreatedAt,
	)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}

	return job, nil
}

func (r *importJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT id, kind, file_name, label, source_columns, raw_rows, mapping, mapping_applied,
		        total_rows, success_rows, failed_rows, status, created_at, updated_at
		 FROM import_jobs WHERE id = $1`,
		id,
	)
	job, err := scanImportJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, err
		}
		return domain.ImportJob{}, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

func (r *importJobRepository) List(ctx context.Context, limit, offset int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, kind, file_name, label, source_columns, raw_rows, mapping, mapping_applied,
		        total_rows, success_rows, failed_rows, status, created_at, updated_at
		 FROM import_jobs
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, scanErr := scanImportJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import jobs: %w", rowsErr)
	}

	return jobs, nil
}

func (r *importJobRepository) MarkMappingApplied(ctx context.Context, id uuid.UUID, mapping map[string]string) (bool, error) {
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return false, fmt.Errorf("failed to encode mapping: %w", err)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE import_jobs
		 SET mapping = $2, mapping_applied = TRUE, status = $3, updated_at = now()
		 WHERE id = $1 AND mapping_applied = FALSE`,
		id,
		mappingJSON,
		string(domain.JobStatusStaged),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark mapping applied: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *importJobRepository) UpdateCounters(ctx context.Context, id uuid.UUID, success, failed int, status domain.JobStatus) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE import_jobs
		 SET success_rows = $2, failed_rows = $3, status = $4, updated_at = now()
		 WHERE id = $1`,
		id,
		success,
		failed,
		string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update job counters: %w", err)
	}
	return nil
}

func scanImportJob(row pgx.Row) (domain.ImportJob, error) {
	var (
		job         domain.ImportJob
		kind        string
		status      string
		columnsJSON []byte
		rowsJSON    []byte
		mappingJSON []byte
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)

	if err := row.Scan(
		&job.ID,
		&kind,
		&job.FileName,
		&job.Label,
		&columnsJSON,
		&rowsJSON,
		&mappingJSON,
		&job.MappingApplied,
		&job.TotalRows,
		&job.SuccessRows,
		&job.FailedRows,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.ImportJob{}, err
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if len(columnsJSON) > 0 {
		if err := json.Unmarshal(columnsJSON, &job.SourceColumns); err != nil {
			return domain.ImportJob{}, fmt.Errorf("failed to decode source columns: %w", err)
		}
	}
	if len(rowsJSON) > 0 {
		if err := json.Unmarshal(rowsJSON, &job.RawRows); err != nil {
			return domain.ImportJob{}, fmt.Errorf("failed to decode raw rows: %w", err)
		}
	}
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &job.Mapping); err != nil {
			return domain.ImportJob{}, fmt.Errorf("failed to decode mapping: %w", err)
		}
	}
	if createdAt.Valid {
		job.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		job.UpdatedAt = updatedAt.Time
	}

	return job, nil
}
