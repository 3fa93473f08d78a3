// Package importer implements the staged import pipeline: upload, mapping,
// staging with validation and duplicate detection, auto-matching, operator
// overrides, and the final commit into the permanent store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/travelops/importhub/internal/domain"
	"github.com/travelops/importhub/internal/mapping"
	"github.com/travelops/importhub/internal/parser"
	"github.com/travelops/importhub/internal/repository"
	pipeerrors "github.com/travelops/importhub/pkg/errors"
	"github.com/travelops/importhub/pkg/logger"
)

const listPageSize = 500

// TxRunner executes a function inside a staging-store transaction.
// *db.Connection satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Service orchestrates the import pipeline over the staging store.
type Service struct {
	jobs      repository.ImportJobRepository
	rows      repository.StagedRowRepository
	errs      repository.ImportErrorRepository
	records   repository.RecordRepository
	snapshots repository.PriceSnapshotRepository
	resolver  *Resolver
	tx        TxRunner
	log       logger.Logger

	maxRows      int
	previewRows  int
	stageWorkers int
	now          func() time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithMaxRows caps how many data rows one upload may carry.
func WithMaxRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

// WithPreviewRows bounds the sample returned by Preview.
func WithPreviewRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewRows = n
		}
	}
}

// WithStageWorkers sets the per-row worker count used at mapping-apply time.
func WithStageWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.stageWorkers = n
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the pipeline service.
func NewService(
	jobs repository.ImportJobRepository,
	rows repository.StagedRowRepository,
	errs repository.ImportErrorRepository,
	records repository.RecordRepository,
	snapshots repository.PriceSnapshotRepository,
	suppliers repository.SupplierRepository,
	tx TxRunner,
	log logger.Logger,
	opts ...Option,
) *Service {
	service := &Service{
		jobs:         jobs,
		rows:         rows,
		errs:         errs,
		records:      records,
		snapshots:    snapshots,
		resolver:     NewResolver(suppliers),
		tx:           tx,
		log:          log.WithComponent("importer"),
		maxRows:      50000,
		previewRows:  10,
		stageWorkers: 8,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// UploadRequest describes one uploaded file.
type UploadRequest struct {
	Kind     domain.JobKind
	FileName string
	Label    string
	Data     io.Reader
}

// Upload parses the file and creates the job. Rows are not staged yet; the
// operator reviews the mapping first.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (domain.ImportJob, error) {
	if !domain.ValidJobKind(req.Kind) {
		return domain.ImportJob{}, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeUnexpected,
			"unknown import kind %q", req.Kind)
	}
	if req.Data == nil {
		return domain.ImportJob{}, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeEmptyFile, "data reader is required")
	}

	table, err := parser.Parse(req.FileName, req.Data, parser.Options{MaxRows: s.maxRows})
	if err != nil {
		return domain.ImportJob{}, err
	}
	if len(table.Rows) == 0 {
		return domain.ImportJob{}, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeEmptyFile, "file has no data rows")
	}

	job := domain.NewImportJob(req.Kind, req.FileName, req.Label, table.Columns, table.Rows)
	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return domain.ImportJob{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to create job")
	}

	s.log.WithFields(logger.Fields{
		"job_id": created.ID,
		"kind":   created.Kind,
		"file":   created.FileName,
		"rows":   created.TotalRows,
	}).Info("upload accepted")

	return created, nil
}

// Preview drives the mapping UI: source columns, the auto-guessed mapping,
// the canonical field list, and a bounded row sample.
type Preview struct {
	JobID            uuid.UUID             `json:"job_id"`
	Kind             domain.JobKind        `json:"kind"`
	SourceColumns    []string              `json:"source_columns"`
	Fields           []mapping.Field       `json:"fields"`
	SuggestedMapping mapping.ColumnMapping `json:"suggested_mapping"`
	SampleRows       []map[string]string   `json:"sample_rows"`
	TotalRows        int                   `json:"total_rows"`
	MappingApplied   bool                  `json:"mapping_applied"`
}

// PreviewJob returns the preview for a job.
func (s *Service) PreviewJob(ctx context.Context, jobID uuid.UUID) (Preview, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return Preview{}, err
	}

	suggested := mapping.Guess(job.Kind, job.SourceColumns)
	if job.MappingApplied && job.Mapping != nil {
		suggested = job.Mapping
	}

	sample := job.RawRows
	if len(sample) > s.previewRows {
		sample = sample[:s.previewRows]
	}

	return Preview{
		JobID:            job.ID,
		Kind:             job.Kind,
		SourceColumns:    job.SourceColumns,
		Fields:           mapping.FieldsFor(job.Kind),
		SuggestedMapping: suggested,
		SampleRows:       sample,
		TotalRows:        job.TotalRows,
		MappingApplied:   job.MappingApplied,
	}, nil
}

// StageSummary reports what ApplyMapping did.
type StageSummary struct {
	TotalRows     int `json:"total_rows"`
	SuccessRows   int `json:"success_rows"`
	FailedRows    int `json:"failed_rows"`
	DuplicateRows int `json:"duplicate_rows"`
}

type stagedOutcome struct {
	row      domain.StagedRow
	errorMsg string
}

// ApplyMapping stages all raw rows under the merged mapping, then runs
// validation and duplicate detection. It is not re-entrant: the second call
// for a job fails and stages nothing.
func (s *Service) ApplyMapping(ctx context.Context, jobID uuid.UUID, overrides map[string]string) (StageSummary, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return StageSummary{}, err
	}
	if job.MappingApplied {
		return StageSummary{}, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeMappingApplied,
			"mapping already applied for this job").
			WithSuggestion("upload the file again to re-map it")
	}

	merged := mapping.Merge(mapping.Guess(job.Kind, job.SourceColumns), overrides)
	if problems := mapping.Validate(job.Kind, merged); len(problems) > 0 {
		return StageSummary{}, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeUnexpected,
			"invalid mapping: %s", strings.Join(problems, "; "))
	}

	outcomes := s.stageRows(ctx, job, merged)

	summary := StageSummary{TotalRows: len(outcomes)}
	staged := make([]domain.StagedRow, 0, len(outcomes))
	importErrors := make([]domain.ImportError, 0)
	for _, outcome := range outcomes {
		staged = append(staged, outcome.row)
		if outcome.errorMsg != "" {
			summary.FailedRows++
			importErrors = append(importErrors, domain.NewImportError(job.ID, outcome.row.RowNumber, outcome.errorMsg, outcome.row.Raw))
		} else {
			summary.SuccessRows++
		}
	}

	duplicateIDs := detectDuplicates(job.Kind, staged)
	summary.DuplicateRows = len(duplicateIDs)
	duplicate := make(map[uuid.UUID]bool, len(duplicateIDs))
	for _, id := range duplicateIDs {
		duplicate[id] = true
	}
	for i := range staged {
		if duplicate[staged[i].ID] {
			staged[i].Status = domain.RowStatusDuplicateSkipped
		}
	}

	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		applied, txErr := s.jobs.WithTx(tx).MarkMappingApplied(ctx, job.ID, merged)
		if txErr != nil {
			return txErr
		}
		if !applied {
			return pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeMappingApplied, "mapping already applied for this job")
		}
		if txErr := s.rows.WithTx(tx).CreateBatch(ctx, staged); txErr != nil {
			return txErr
		}
		errRepo := s.errs.WithTx(tx)
		for _, importError := range importErrors {
			if txErr := errRepo.Replace(ctx, importError); txErr != nil {
				return txErr
			}
		}
		return s.jobs.WithTx(tx).UpdateCounters(ctx, job.ID, summary.SuccessRows, summary.FailedRows, domain.JobStatusStaged)
	})
	if err != nil {
		var pe *pipeerrors.PipelineError
		if errors.As(err, &pe) {
			return StageSummary{}, err
		}
		return StageSummary{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to stage rows")
	}

	s.log.WithFields(logger.Fields{
		"job_id":     job.ID,
		"total":      summary.TotalRows,
		"success":    summary.SuccessRows,
		"failed":     summary.FailedRows,
		"duplicates": summary.DuplicateRows,
	}).Info("mapping applied")

	return summary, nil
}

// stageRows projects, normalizes, resolves, and validates every raw row.
// Per-row work is independent, so it fans out over a bounded worker pool;
// same-name supplier resolution is the only serialized point, inside the
// resolver.
func (s *Service) stageRows(ctx context.Context, job domain.ImportJob, merged mapping.ColumnMapping) []stagedOutcome {
	outcomes := make([]stagedOutcome, len(job.RawRows))

	workers := s.stageWorkers
	if workers > len(job.RawRows) {
		workers = len(job.RawRows)
	}
	if workers < 1 {
		workers = 1
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				outcomes[i] = s.stageOne(ctx, job, merged, i)
			}
		}()
	}
	for i := range job.RawRows {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return outcomes
}

func (s *Service) stageOne(ctx context.Context, job domain.ImportJob, merged mapping.ColumnMapping, index int) stagedOutcome {
	raw := job.RawRows[index]
	rowNumber := index + 1

	projected := mapping.Project(merged, raw)
	normalized := mapping.Normalize(job.Kind, projected)

	row := domain.NewStagedRow(job.ID, rowNumber, raw, normalized.Fields)

	issues := normalized.Issues
	if name := normalized.Fields.SupplierName; name != "" {
		supplierID, err := s.resolver.Resolve(ctx, name)
		if err != nil {
			issues = append(issues, fmt.Sprintf("supplier resolution failed: %v", err))
		} else {
			row.SupplierID = supplierID
		}
	}

	return stagedOutcome{
		row:      row,
		errorMsg: validateRow(job.Kind, row.Fields, issues),
	}
}

// Rows lists staged rows for review, optionally filtered by status.
func (s *Service) Rows(ctx context.Context, jobID uuid.UUID, status *domain.RowStatus, limit, offset int) ([]domain.StagedRow, error) {
	if _, err := s.getJob(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := s.rows.ListByJob(ctx, jobID, status, limit, offset)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to list rows")
	}
	return rows, nil
}

// MatchSummary reports one auto-match pass.
type MatchSummary struct {
	Evaluated   int `json:"evaluated"`
	Matched     int `json:"matched"`
	NeedsReview int `json:"needs_review"`
}

// AutoMatch re-evaluates rows still pending. Rows settled by a prior run or
// by the operator are never touched, so re-running the pass with no new
// pending rows is a no-op.
func (s *Service) AutoMatch(ctx context.Context, jobID uuid.UUID) (MatchSummary, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return MatchSummary{}, err
	}

	pending := domain.RowStatusPending
	rows, err := s.listAll(ctx, jobID, &pending)
	if err != nil {
		return MatchSummary{}, err
	}

	var matched, review []uuid.UUID
	for _, row := range rows {
		switch evaluateMatch(job.Kind, row) {
		case domain.RowStatusMatched:
			matched = append(matched, row.ID)
		default:
			review = append(review, row.ID)
		}
	}

	if _, err := s.rows.UpdateStatus(ctx, matched, domain.RowStatusMatched); err != nil {
		return MatchSummary{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to mark matched rows")
	}
	if _, err := s.rows.UpdateStatus(ctx, review, domain.RowStatusNeedsReview); err != nil {
		return MatchSummary{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to mark review rows")
	}

	summary := MatchSummary{Evaluated: len(rows), Matched: len(matched), NeedsReview: len(review)}
	s.log.WithFields(logger.Fields{
		"job_id":       jobID,
		"evaluated":    summary.Evaluated,
		"matched":      summary.Matched,
		"needs_review": summary.NeedsReview,
	}).Info("auto-match pass finished")

	return summary, nil
}

// BulkStatus applies an operator-chosen status to a selected row subset.
// Every id must belong to the job; one foreign id rejects the whole call.
// This is the only path that moves a row out of duplicate_skipped or
// needs_review back toward matched.
func (s *Service) BulkStatus(ctx context.Context, jobID uuid.UUID, rowIDs []uuid.UUID, status domain.RowStatus) (int, error) {
	if !domain.ValidRowStatus(status) {
		return 0, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeUnexpected, "unknown row status %q", status)
	}
	if _, err := s.getJob(ctx, jobID); err != nil {
		return 0, err
	}

	unique := make([]uuid.UUID, 0, len(rowIDs))
	seen := make(map[uuid.UUID]bool, len(rowIDs))
	for _, id := range rowIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return 0, nil
	}

	owned, err := s.rows.CountOwned(ctx, jobID, unique)
	if err != nil {
		return 0, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to verify row ownership")
	}
	if owned != len(unique) {
		return 0, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeRowNotInJob,
			"one or more selected rows do not belong to this job")
	}

	updated, err := s.rows.UpdateStatus(ctx, unique, status)
	if err != nil {
		return 0, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to update row status")
	}
	return updated, nil
}

// CommitResult reports the final materialization.
type CommitResult struct {
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Status      domain.JobStatus `json:"status"`
}

// Commit materializes matched rows into the permanent store. Each row is
// defensively re-resolved and re-validated; rows failing now become
// ImportErrors even though they were marked matched. Insert failures are
// captured per row and never abort the remaining batch. Already committed
// staged rows are skipped, so a retried commit cannot double-insert.
func (s *Service) Commit(ctx context.Context, jobID uuid.UUID) (CommitResult, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return CommitResult{}, err
	}
	if !job.MappingApplied {
		return CommitResult{}, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeJobNotCommittable,
			"mapping has not been applied for this job")
	}

	matchedStatus := domain.RowStatusMatched
	matched, err := s.listAll(ctx, jobID, &matchedStatus)
	if err != nil {
		return CommitResult{}, err
	}

	committedAt := s.now()
	var success, failed int
	for _, row := range matched {
		exists, checkErr := s.records.ExistsForStagedRow(ctx, job.Kind, row.ID)
		if checkErr != nil {
			return CommitResult{}, pipeerrors.Wrap(checkErr, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to check committed rows")
		}
		if exists {
			success++
			continue
		}

		if name := row.Fields.SupplierName; name != "" {
			supplierID, resolveErr := s.resolver.Resolve(ctx, name)
			if resolveErr != nil {
				failed++
				s.recordRowError(ctx, job.ID, row, fmt.Sprintf("supplier resolution failed: %v", resolveErr))
				continue
			}
			if supplierID != nil && (row.SupplierID == nil || *row.SupplierID != *supplierID) {
				if updErr := s.rows.UpdateSupplier(ctx, row.ID, supplierID); updErr != nil {
					s.log.WithError(updErr).WithField("row", row.RowNumber).Warn("failed to persist resolved supplier")
				}
			}
			row.SupplierID = supplierID
		}

		if msg := validateRow(job.Kind, row.Fields, nil); msg != "" {
			failed++
			s.recordRowError(ctx, job.ID, row, msg)
			continue
		}

		var insertErr error
		var itemKey string
		var value = row.Fields.Amount
		if job.Kind == domain.JobKindLedger {
			record := domain.NewLedgerRecord(row)
			record.CreatedAt = committedAt
			itemKey = record.ItemKey
			insertErr = s.records.InsertLedger(ctx, record)
		} else {
			record := domain.NewRateRecord(row, job.Kind)
			record.CreatedAt = committedAt
			itemKey = record.ItemKey
			insertErr = s.records.InsertRate(ctx, record)
		}
		if insertErr != nil {
			failed++
			commitErr := pipeerrors.Wrap(insertErr, pipeerrors.CategoryCommit, pipeerrors.CodeInsertRejected, "insert rejected")
			s.recordRowError(ctx, job.ID, row, commitErr.Error())
			continue
		}
		success++

		// A row that failed on an earlier attempt has no open error anymore.
		if delErr := s.errs.DeleteForRow(ctx, job.ID, row.RowNumber); delErr != nil {
			s.log.WithError(delErr).WithField("row", row.RowNumber).Warn("failed to clear stale row error")
		}

		if itemKey != "" && value != nil {
			snapshot := domain.NewPriceSnapshot(job.Kind, itemKey, *value, committedAt)
			if snapErr := s.snapshots.Insert(ctx, snapshot); snapErr != nil {
				s.log.WithError(snapErr).WithField("job_id", job.ID).Warn("failed to capture price snapshot")
			}
		}
	}

	// Rows that never reached matched still hold their open errors from
	// staging. The final counter covers those failures too, so the summary
	// accounts for every row: open errors are exactly the staging-time
	// failures plus the commit-time ones recorded above.
	openErrors, err := s.errs.CountByJob(ctx, jobID)
	if err != nil {
		return CommitResult{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to count open row errors")
	}
	failed = openErrors

	status := domain.JobStatusFailed
	if success > 0 {
		status = domain.JobStatusCompleted
	}
	if err := s.jobs.UpdateCounters(ctx, jobID, success, failed, status); err != nil {
		return CommitResult{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to finalize job")
	}

	s.log.WithFields(logger.Fields{
		"job_id":  jobID,
		"success": success,
		"failed":  failed,
		"status":  status,
	}).Info("commit finished")

	return CommitResult{SuccessRows: success, FailedRows: failed, Status: status}, nil
}

// Job returns one job by id.
func (s *Service) Job(ctx context.Context, jobID uuid.UUID) (domain.ImportJob, error) {
	return s.getJob(ctx, jobID)
}

// Jobs lists jobs, newest first.
func (s *Service) Jobs(ctx context.Context, limit, offset int) ([]domain.ImportJob, error) {
	jobs, err := s.jobs.List(ctx, limit, offset)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to list jobs")
	}
	return jobs, nil
}

// Errors lists the row-level errors of a job.
func (s *Service) Errors(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportError, error) {
	if _, err := s.getJob(ctx, jobID); err != nil {
		return nil, err
	}
	importErrors, err := s.errs.ListByJob(ctx, jobID, limit, offset)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to list errors")
	}
	return importErrors, nil
}

func (s *Service) getJob(ctx context.Context, jobID uuid.UUID) (domain.ImportJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeJobNotFound,
				"import job %s not found", jobID)
		}
		return domain.ImportJob{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to load job")
	}
	return job, nil
}

func (s *Service) listAll(ctx context.Context, jobID uuid.UUID, status *domain.RowStatus) ([]domain.StagedRow, error) {
	var all []domain.StagedRow
	offset := 0
	for {
		page, err := s.rows.ListByJob(ctx, jobID, status, listPageSize, offset)
		if err != nil {
			return nil, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to list rows")
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			return all, nil
		}
		offset += listPageSize
	}
}

func (s *Service) recordRowError(ctx context.Context, jobID uuid.UUID, row domain.StagedRow, message string) {
	importError := domain.NewImportError(jobID, row.RowNumber, message, row.Raw)
	if err := s.errs.Replace(ctx, importError); err != nil {
		s.log.WithError(err).WithFields(logger.Fields{
			"job_id": jobID,
			"row":    row.RowNumber,
		}).Error("failed to record row error")
	}
}
