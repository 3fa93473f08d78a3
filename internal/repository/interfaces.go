package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/travelops/importhub/internal/domain"
)

// DBTX is the query surface shared by pgxpool.Pool and pgx.Tx, so a
// repository can run either directly against the pool or inside a
// transaction opened by the caller.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ImportJobRepository persists the unit of work for one upload. Jobs are
// never deleted.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	List(ctx context.Context, limit, offset int) ([]domain.ImportJob, error)
	// MarkMappingApplied sets the mapping and the applied flag. It returns
	// false when the flag was already set, which is how apply stays
	// non-re-entrant.
	MarkMappingApplied(ctx context.Context, id uuid.UUID, mapping map[string]string) (bool, error)
	UpdateCounters(ctx context.Context, id uuid.UUID, success, failed int, status domain.JobStatus) error
	WithTx(tx pgx.Tx) ImportJobRepository
}

// StagedRowRepository persists staged rows and their review status.
type StagedRowRepository interface {
	CreateBatch(ctx context.Context, rows []domain.StagedRow) error
	ListByJob(ctx context.Context, jobID uuid.UUID, status *domain.RowStatus, limit, offset int) ([]domain.StagedRow, error)
	CountByJob(ctx context.Context, jobID uuid.UUID) (int, error)
	// CountOwned reports how many of the given row ids belong to the job.
	CountOwned(ctx context.Context, jobID uuid.UUID, ids []uuid.UUID) (int, error)
	UpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.RowStatus) (int, error)
	UpdateSupplier(ctx context.Context, id uuid.UUID, supplierID *uuid.UUID) error
	WithTx(tx pgx.Tx) StagedRowRepository
}

// ImportErrorRepository stores row-level failures for operator inspection.
// One row has at most one open error; re-validation replaces it.
type ImportErrorRepository interface {
	Replace(ctx context.Context, importError domain.ImportError) error
	DeleteForRow(ctx context.Context, jobID uuid.UUID, rowNumber int) error
	ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportError, error)
	CountByJob(ctx context.Context, jobID uuid.UUID) (int, error)
	WithTx(tx pgx.Tx) ImportErrorRepository
}

// SupplierRepository backs entity resolution. Insert relies on the unique
// constraint over normalized_name; on conflict it returns the existing row.
type SupplierRepository interface {
	GetByNormalizedName(ctx context.Context, normalized string) (domain.Supplier, bool, error)
	Insert(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error)
}

// RecordRepository is the permanent store for committed rows.
type RecordRepository interface {
	InsertRate(ctx context.Context, record domain.RateRecord) error
	InsertLedger(ctx context.Context, record domain.LedgerRecord) error
	// ExistsForStagedRow is the commit idempotency guard.
	ExistsForStagedRow(ctx context.Context, kind domain.JobKind, stagedRowID uuid.UUID) (bool, error)
	ListRatesByJob(ctx context.Context, jobID uuid.UUID) ([]domain.RateRecord, error)
	ListLedgerByJob(ctx context.Context, jobID uuid.UUID) ([]domain.LedgerRecord, error)
}

// PriceSnapshotRepository is the append-only value history per item key.
type PriceSnapshotRepository interface {
	LatestBefore(ctx context.Context, kind domain.JobKind, itemKey string, before time.Time) (*domain.PriceSnapshot, error)
	Insert(ctx context.Context, snapshot domain.PriceSnapshot) error
}
