package importer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/travelops/importhub/internal/domain"
	"github.com/travelops/importhub/internal/repository"
	pipeerrors "github.com/travelops/importhub/pkg/errors"
	"github.com/travelops/importhub/pkg/logger"
)

// In-memory repositories backing the service tests.

type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.ImportJob
}

func newMemJobs() *memJobs { return &memJobs{jobs: make(map[uuid.UUID]domain.ImportJob)} }

func (m *memJobs) Create(_ context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ImportJob{}, pgx.ErrNoRows
	}
	return job, nil
}

func (m *memJobs) List(_ context.Context, limit, offset int) ([]domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]domain.ImportJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memJobs) MarkMappingApplied(_ context.Context, id uuid.UUID, mapping map[string]string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if job.MappingApplied {
		return false, nil
	}
	job.Mapping = mapping
	job.MappingApplied = true
	m.jobs[id] = job
	return true, nil
}

func (m *memJobs) UpdateCounters(_ context.Context, id uuid.UUID, success, failed int, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	job.SuccessRows = success
	job.FailedRows = failed
	job.Status = status
	m.jobs[id] = job
	return nil
}

func (m *memJobs) WithTx(pgx.Tx) repository.ImportJobRepository { return m }

type memRows struct {
	mu   sync.Mutex
	rows []domain.StagedRow
}

func (m *memRows) CreateBatch(_ context.Context, rows []domain.StagedRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memRows) ListByJob(_ context.Context, jobID uuid.UUID, status *domain.RowStatus, limit, offset int) ([]domain.StagedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.StagedRow
	for _, row := range m.rows {
		if row.JobID != jobID {
			continue
		}
		if status != nil && row.Status != *status {
			continue
		}
		matched = append(matched, row)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RowNumber < matched[j].RowNumber })
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memRows) CountByJob(_ context.Context, jobID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.JobID == jobID {
			count++
		}
	}
	return count, nil
}

func (m *memRows) CountOwned(_ context.Context, jobID uuid.UUID, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	count := 0
	for _, row := range m.rows {
		if row.JobID == jobID && want[row.ID] {
			count++
		}
	}
	return count, nil
}

func (m *memRows) UpdateStatus(_ context.Context, ids []uuid.UUID, status domain.RowStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	updated := 0
	for i := range m.rows {
		if want[m.rows[i].ID] {
			m.rows[i].Status = status
			updated++
		}
	}
	return updated, nil
}

func (m *memRows) UpdateSupplier(_ context.Context, id uuid.UUID, supplierID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].SupplierID = supplierID
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memRows) WithTx(pgx.Tx) repository.StagedRowRepository { return m }

type errKey struct {
	jobID uuid.UUID
	row   int
}

type memErrs struct {
	mu   sync.Mutex
	byID map[errKey]domain.ImportError
}

func newMemErrs() *memErrs { return &memErrs{byID: make(map[errKey]domain.ImportError)} }

func (m *memErrs) Replace(_ context.Context, importError domain.ImportError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[errKey{importError.JobID, importError.RowNumber}] = importError
	return nil
}

func (m *memErrs) DeleteForRow(_ context.Context, jobID uuid.UUID, rowNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, errKey{jobID, rowNumber})
	return nil
}

func (m *memErrs) ListByJob(_ context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.ImportError
	for _, importError := range m.byID {
		if importError.JobID == jobID {
			matched = append(matched, importError)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RowNumber < matched[j].RowNumber })
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memErrs) CountByJob(_ context.Context, jobID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, importError := range m.byID {
		if importError.JobID == jobID {
			count++
		}
	}
	return count, nil
}

func (m *memErrs) WithTx(pgx.Tx) repository.ImportErrorRepository { return m }

type memSuppliers struct {
	mu         sync.Mutex
	byName     map[string]domain.Supplier
	insertSeen int
}

func newMemSuppliers() *memSuppliers { return &memSuppliers{byName: make(map[string]domain.Supplier)} }

func (m *memSuppliers) GetByNormalizedName(_ context.Context, normalized string) (domain.Supplier, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	supplier, ok := m.byName[normalized]
	return supplier, ok, nil
}

func (m *memSuppliers) Insert(_ context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertSeen++
	if existing, ok := m.byName[supplier.NormalizedName]; ok {
		return existing, nil
	}
	m.byName[supplier.NormalizedName] = supplier
	return supplier, nil
}

type memRecords struct {
	mu            sync.Mutex
	rates         []domain.RateRecord
	ledger        []domain.LedgerRecord
	committed     map[uuid.UUID]bool
	failStagedRow map[uuid.UUID]error
}

func newMemRecords() *memRecords {
	return &memRecords{
		committed:     make(map[uuid.UUID]bool),
		failStagedRow: make(map[uuid.UUID]error),
	}
}

func (m *memRecords) InsertRate(_ context.Context, record domain.RateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failStagedRow[record.StagedRowID]; ok {
		return err
	}
	m.rates = append(m.rates, record)
	m.committed[record.StagedRowID] = true
	return nil
}

func (m *memRecords) InsertLedger(_ context.Context, record domain.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failStagedRow[record.StagedRowID]; ok {
		return err
	}
	m.ledger = append(m.ledger, record)
	m.committed[record.StagedRowID] = true
	return nil
}

func (m *memRecords) ExistsForStagedRow(_ context.Context, _ domain.JobKind, stagedRowID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed[stagedRowID], nil
}

func (m *memRecords) ListRatesByJob(_ context.Context, jobID uuid.UUID) ([]domain.RateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.RateRecord
	for _, record := range m.rates {
		if record.JobID == jobID {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (m *memRecords) ListLedgerByJob(_ context.Context, jobID uuid.UUID) ([]domain.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.LedgerRecord
	for _, record := range m.ledger {
		if record.JobID == jobID {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

type memSnapshots struct {
	mu        sync.Mutex
	snapshots []domain.PriceSnapshot
}

func (m *memSnapshots) LatestBefore(_ context.Context, kind domain.JobKind, itemKey string, before time.Time) (*domain.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.PriceSnapshot
	for i := range m.snapshots {
		snapshot := m.snapshots[i]
		if snapshot.Kind != kind || snapshot.ItemKey != itemKey || !snapshot.CapturedAt.Before(before) {
			continue
		}
		if latest == nil || snapshot.CapturedAt.After(latest.CapturedAt) {
			latest = &m.snapshots[i]
		}
	}
	return latest, nil
}

func (m *memSnapshots) Insert(_ context.Context, snapshot domain.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

type stubTx struct{}

func (stubTx) WithTx(_ context.Context, fn func(pgx.Tx) error) error { return fn(nil) }

type fixture struct {
	service   *Service
	jobs      *memJobs
	rows      *memRows
	errs      *memErrs
	suppliers *memSuppliers
	records   *memRecords
	snapshots *memSnapshots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		jobs:      newMemJobs(),
		rows:      &memRows{},
		errs:      newMemErrs(),
		suppliers: newMemSuppliers(),
		records:   newMemRecords(),
		snapshots: &memSnapshots{},
	}
	f.service = NewService(
		f.jobs, f.rows, f.errs, f.records, f.snapshots, f.suppliers,
		stubTx{}, logger.Nop(),
		WithPreviewRows(3), WithStageWorkers(2),
	)
	return f
}

func (f *fixture) upload(t *testing.T, kind domain.JobKind, fileName, csvData string) domain.ImportJob {
	t.Helper()
	job, err := f.service.Upload(context.Background(), UploadRequest{
		Kind:     kind,
		FileName: fileName,
		Label:    "test upload",
		Data:     strings.NewReader(csvData),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return job
}

const hotelCSV = `Hotel Name,City,Room Type,Occupancy,Base Price,Currency,Check In,Check Out,Markup,Supplier
Grand Plaza,Cairo,Double,2,120.00,USD,2026-01-01,2026-03-31,0.15,Nile Tours
Sea View,Alexandria,Single,1,,USD,2026-01-01,2026-03-31,0.10,Nile Tours
Grand Plaza,Cairo,Suite,2,300.00,USD,2026-01-01,2026-03-31,0.15,nile tours
Desert Rose,Luxor,Double,2,,EUR,2026-02-01,2026-04-30,0.12,Horizon Travel
Sea View,Alexandria,Double,2,95.50,USD,2026-01-01,2026-03-31,0.10,Horizon Travel
`

const ledgerCSV = `Customer,Booking Ref,Amount,Currency
Ahmed Hassan,TR-100,1500.00,USD
Mona Adel,TR-101,820.00,USD
ahmed hassan,TR-100,1500.00,USD
`

func TestUploadCreatesJobAndPreviewGuessesMapping(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)

	if job.TotalRows != 5 {
		t.Fatalf("TotalRows = %d, want 5", job.TotalRows)
	}
	if job.Status != domain.JobStatusUploaded {
		t.Fatalf("Status = %s, want uploaded", job.Status)
	}

	preview, err := f.service.PreviewJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("PreviewJob: %v", err)
	}
	if len(preview.SampleRows) != 3 {
		t.Fatalf("SampleRows = %d, want 3", len(preview.SampleRows))
	}
	wantGuesses := map[string]string{
		"hotel_name": "hotel_name",
		"base_price": "base_price",
		"check_in":   "check_in",
		"check_out":  "check_out",
		"supplier":   "supplier",
	}
	for column, field := range wantGuesses {
		if got := preview.SuggestedMapping[column]; got != field {
			t.Errorf("guess[%s] = %q, want %q", column, got, field)
		}
	}
}

func TestUploadRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Upload(context.Background(), UploadRequest{
		Kind:     domain.JobKind("payroll"),
		FileName: "x.csv",
		Data:     strings.NewReader("a\n1\n"),
	})
	if !pipeerrors.IsCategory(err, pipeerrors.CategoryInput) {
		t.Fatalf("err = %v, want input category", err)
	}
}

func TestApplyMappingStagesAllRowsAndRecordsErrors(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)

	summary, err := f.service.ApplyMapping(context.Background(), job.ID, nil)
	if err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	if summary.TotalRows != 5 || summary.SuccessRows != 3 || summary.FailedRows != 2 {
		t.Fatalf("summary = %+v, want total 5 / success 3 / failed 2", summary)
	}

	staged, err := f.service.Rows(context.Background(), job.ID, nil, 100, 0)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(staged) != 5 {
		t.Fatalf("staged %d rows, want all 5 including failing ones", len(staged))
	}

	importErrors, err := f.service.Errors(context.Background(), job.ID, 100, 0)
	if err != nil {
		t.Fatalf("Errors: %v", err)
	}
	if len(importErrors) != 2 {
		t.Fatalf("got %d errors, want 2", len(importErrors))
	}
	if importErrors[0].RowNumber != 2 || importErrors[1].RowNumber != 4 {
		t.Fatalf("error rows = %d,%d, want 2,4", importErrors[0].RowNumber, importErrors[1].RowNumber)
	}
	if !strings.Contains(importErrors[0].Message, "base_price") {
		t.Fatalf("error message %q does not name the missing field", importErrors[0].Message)
	}
	if importErrors[0].RawPayload["hotel_name"] != "Sea View" {
		t.Fatalf("error payload lost the raw row: %v", importErrors[0].RawPayload)
	}

	stored, err := f.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != domain.JobStatusStaged {
		t.Fatalf("job status = %s, want staged", stored.Status)
	}
	if stored.SuccessRows+stored.FailedRows != stored.TotalRows {
		t.Fatalf("counters %d+%d != total %d", stored.SuccessRows, stored.FailedRows, stored.TotalRows)
	}
}

func TestApplyMappingIsNotReentrant(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)

	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("first ApplyMapping: %v", err)
	}
	_, err := f.service.ApplyMapping(context.Background(), job.ID, nil)
	if !pipeerrors.IsCode(err, pipeerrors.CodeMappingApplied) {
		t.Fatalf("second apply err = %v, want mapping_applied", err)
	}

	count, _ := f.rows.CountByJob(context.Background(), job.ID)
	if count != 5 {
		t.Fatalf("row count after rejected re-apply = %d, want 5", count)
	}
}

func TestApplyMappingResolvesSupplierOncePerName(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)

	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}

	// "Nile Tours" and "nile tours" normalize to the same supplier.
	if len(f.suppliers.byName) != 2 {
		t.Fatalf("created %d suppliers, want 2", len(f.suppliers.byName))
	}
	supplier, ok, _ := f.suppliers.GetByNormalizedName(context.Background(), "nile tours")
	if !ok {
		t.Fatal("nile tours supplier missing")
	}
	if !supplier.CreatedByImport {
		t.Fatal("supplier not flagged created_by_import")
	}
}

func TestApplyMappingMarksDuplicates(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindLedger, "ledger.csv", ledgerCSV)

	summary, err := f.service.ApplyMapping(context.Background(), job.ID, nil)
	if err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	if summary.DuplicateRows != 1 {
		t.Fatalf("DuplicateRows = %d, want 1", summary.DuplicateRows)
	}

	dup := domain.RowStatusDuplicateSkipped
	rows, _ := f.service.Rows(context.Background(), job.ID, &dup, 100, 0)
	if len(rows) != 1 {
		t.Fatalf("got %d duplicate rows, want 1", len(rows))
	}
	// First occurrence keeps pending; the later one is flagged.
	if rows[0].RowNumber != 3 {
		t.Fatalf("duplicate row number = %d, want 3", rows[0].RowNumber)
	}
}

func TestApplyMappingRejectsConflictingOverrides(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindLedger, "ledger.csv", ledgerCSV)

	_, err := f.service.ApplyMapping(context.Background(), job.ID, map[string]string{
		"currency": "amount", // amount already guessed from the amount column
	})
	if !pipeerrors.IsCategory(err, pipeerrors.CategoryInput) {
		t.Fatalf("err = %v, want input category", err)
	}
}

func TestAutoMatchSettlesPendingRowsOnly(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)
	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}

	first, err := f.service.AutoMatch(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}
	// Rows 1, 3, 5 have supplier + positive price; rows 2 and 4 miss the
	// price. The duplicate-skipped set is empty for this file.
	if first.Evaluated != 5 || first.Matched != 3 || first.NeedsReview != 2 {
		t.Fatalf("first pass = %+v, want evaluated 5 / matched 3 / review 2", first)
	}

	second, err := f.service.AutoMatch(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("second AutoMatch: %v", err)
	}
	if second.Evaluated != 0 {
		t.Fatalf("second pass evaluated %d rows, want 0", second.Evaluated)
	}
}

func TestAutoMatchSkipsDuplicateSkippedRows(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindLedger, "ledger.csv", ledgerCSV)
	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}

	summary, err := f.service.AutoMatch(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}
	if summary.Evaluated != 2 || summary.Matched != 2 {
		t.Fatalf("summary = %+v, want evaluated 2 / matched 2", summary)
	}

	dup := domain.RowStatusDuplicateSkipped
	rows, _ := f.service.Rows(context.Background(), job.ID, &dup, 100, 0)
	if len(rows) != 1 {
		t.Fatalf("duplicate row was re-evaluated away: %d rows", len(rows))
	}
}

func TestBulkStatusOverridesAndAutoMatchHonorsIt(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindLedger, "ledger.csv", ledgerCSV)
	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}

	dup := domain.RowStatusDuplicateSkipped
	rows, _ := f.service.Rows(context.Background(), job.ID, &dup, 100, 0)
	if len(rows) != 1 {
		t.Fatalf("want 1 duplicate row, got %d", len(rows))
	}

	updated, err := f.service.BulkStatus(context.Background(), job.ID, []uuid.UUID{rows[0].ID}, domain.RowStatusMatched)
	if err != nil {
		t.Fatalf("BulkStatus: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}

	// The operator decision survives another auto-match pass.
	if _, err := f.service.AutoMatch(context.Background(), job.ID); err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}
	matched := domain.RowStatusMatched
	matchedRows, _ := f.service.Rows(context.Background(), job.ID, &matched, 100, 0)
	if len(matchedRows) != 3 {
		t.Fatalf("matched rows = %d, want 3 after override", len(matchedRows))
	}
}

func TestBulkStatusRejectsForeignRows(t *testing.T) {
	f := newFixture(t)
	jobA := f.upload(t, domain.JobKindLedger, "a.csv", ledgerCSV)
	jobB := f.upload(t, domain.JobKindLedger, "b.csv", ledgerCSV)
	if _, err := f.service.ApplyMapping(context.Background(), jobA.ID, nil); err != nil {
		t.Fatalf("ApplyMapping A: %v", err)
	}
	if _, err := f.service.ApplyMapping(context.Background(), jobB.ID, nil); err != nil {
		t.Fatalf("ApplyMapping B: %v", err)
	}

	rowsA, _ := f.service.Rows(context.Background(), jobA.ID, nil, 100, 0)
	rowsB, _ := f.service.Rows(context.Background(), jobB.ID, nil, 100, 0)

	_, err := f.service.BulkStatus(context.Background(), jobA.ID,
		[]uuid.UUID{rowsA[0].ID, rowsB[0].ID}, domain.RowStatusMatched)
	if !pipeerrors.IsCode(err, pipeerrors.CodeRowNotInJob) {
		t.Fatalf("err = %v, want row_not_in_job", err)
	}

	// Nothing was updated, not even the owned row.
	pending := domain.RowStatusPending
	stillPending, _ := f.service.Rows(context.Background(), jobA.ID, &pending, 100, 0)
	if len(stillPending) != 2 {
		t.Fatalf("pending rows in job A = %d, want 2", len(stillPending))
	}
}

func TestBulkStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindLedger, "ledger.csv", ledgerCSV)
	_, err := f.service.BulkStatus(context.Background(), job.ID, nil, domain.RowStatus("archived"))
	if !pipeerrors.IsCategory(err, pipeerrors.CategoryInput) {
		t.Fatalf("err = %v, want input category", err)
	}
}

func TestCommitMaterializesMatchedRowsOnly(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)
	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	if _, err := f.service.AutoMatch(context.Background(), job.ID); err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}

	result, err := f.service.Commit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Rows 2 and 4 failed validation at staging; their errors are still
	// open, so the final summary counts them as failed.
	if result.SuccessRows != 3 || result.FailedRows != 2 {
		t.Fatalf("result = %+v, want success 3 / failed 2", result)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}
	if len(f.records.rates) != 3 {
		t.Fatalf("inserted %d rate records, want 3", len(f.records.rates))
	}
	if len(f.snapshots.snapshots) != 3 {
		t.Fatalf("captured %d snapshots, want 3", len(f.snapshots.snapshots))
	}

	stored, err := f.service.Job(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if stored.TotalRows != 5 || stored.SuccessRows != 3 || stored.FailedRows != 2 {
		t.Fatalf("stored counters = total %d / success %d / failed %d, want 5 / 3 / 2",
			stored.TotalRows, stored.SuccessRows, stored.FailedRows)
	}
	openErrors, _ := f.errs.CountByJob(context.Background(), job.ID)
	if openErrors != stored.FailedRows {
		t.Fatalf("open errors = %d, stored failed = %d, want equal", openErrors, stored.FailedRows)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)
	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	if _, err := f.service.AutoMatch(context.Background(), job.ID); err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}
	if _, err := f.service.Commit(context.Background(), job.ID); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	result, err := f.service.Commit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if result.SuccessRows != 3 {
		t.Fatalf("second commit success = %d, want 3", result.SuccessRows)
	}
	if len(f.records.rates) != 3 {
		t.Fatalf("record count after retry = %d, want 3 (no double insert)", len(f.records.rates))
	}
}

func TestCommitCapturesPerRowInsertFailures(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)
	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	if _, err := f.service.AutoMatch(context.Background(), job.ID); err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}

	matched := domain.RowStatusMatched
	matchedRows, _ := f.service.Rows(context.Background(), job.ID, &matched, 100, 0)
	f.records.failStagedRow[matchedRows[0].ID] = pgx.ErrTxClosed

	result, err := f.service.Commit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Two staging failures plus the rejected insert.
	if result.SuccessRows != 2 || result.FailedRows != 3 {
		t.Fatalf("result = %+v, want success 2 / failed 3", result)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (partial success)", result.Status)
	}

	importError, ok := f.errs.byID[errKey{job.ID, matchedRows[0].RowNumber}]
	if !ok {
		t.Fatal("insert failure did not produce an ImportError")
	}
	if !strings.Contains(importError.Message, "insert rejected") {
		t.Fatalf("message = %q, want insert rejection", importError.Message)
	}

	// Retrying after the insert recovers commits the remaining row without
	// duplicating the two already committed ones, and clears its error.
	delete(f.records.failStagedRow, matchedRows[0].ID)
	retry, err := f.service.Commit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("retry Commit: %v", err)
	}
	if retry.SuccessRows != 3 || retry.FailedRows != 2 {
		t.Fatalf("retry result = %+v, want success 3 / failed 2", retry)
	}
	if len(f.records.rates) != 3 {
		t.Fatalf("record count after retry = %d, want 3 (no double insert)", len(f.records.rates))
	}
	if _, open := f.errs.byID[errKey{job.ID, matchedRows[0].RowNumber}]; open {
		t.Fatal("recovered row still has an open error after retry")
	}
}

func TestCommitRequiresAppliedMapping(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindHotelRate, "rates.csv", hotelCSV)
	_, err := f.service.Commit(context.Background(), job.ID)
	if !pipeerrors.IsCode(err, pipeerrors.CodeJobNotCommittable) {
		t.Fatalf("err = %v, want job_not_committable", err)
	}
}

func TestCommitLedgerJob(t *testing.T) {
	f := newFixture(t)
	job := f.upload(t, domain.JobKindLedger, "ledger.csv", ledgerCSV)
	if _, err := f.service.ApplyMapping(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("ApplyMapping: %v", err)
	}
	if _, err := f.service.AutoMatch(context.Background(), job.ID); err != nil {
		t.Fatalf("AutoMatch: %v", err)
	}

	result, err := f.service.Commit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// The duplicate TR-100 row was skipped at staging, so two rows commit.
	if result.SuccessRows != 2 {
		t.Fatalf("success = %d, want 2", result.SuccessRows)
	}
	if len(f.records.ledger) != 2 {
		t.Fatalf("ledger records = %d, want 2", len(f.records.ledger))
	}
	if f.records.ledger[0].ItemKey != "ahmed hassan|tr-100" {
		t.Fatalf("item key = %q", f.records.ledger[0].ItemKey)
	}
}

func TestJobNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Job(context.Background(), uuid.New())
	if !pipeerrors.IsCode(err, pipeerrors.CodeJobNotFound) {
		t.Fatalf("err = %v, want job_not_found", err)
	}
}
