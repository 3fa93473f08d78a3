package impact

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/travelops/importhub/internal/domain"
	pipeerrors "github.com/travelops/importhub/pkg/errors"
	"github.com/travelops/importhub/pkg/logger"
)

type stubRecords struct {
	rates  []domain.RateRecord
	ledger []domain.LedgerRecord
}

func (s *stubRecords) InsertRate(context.Context, domain.RateRecord) error     { return nil }
func (s *stubRecords) InsertLedger(context.Context, domain.LedgerRecord) error { return nil }
func (s *stubRecords) ExistsForStagedRow(context.Context, domain.JobKind, uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubRecords) ListRatesByJob(_ context.Context, jobID uuid.UUID) ([]domain.RateRecord, error) {
	var matched []domain.RateRecord
	for _, record := range s.rates {
		if record.JobID == jobID {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (s *stubRecords) ListLedgerByJob(_ context.Context, jobID uuid.UUID) ([]domain.LedgerRecord, error) {
	var matched []domain.LedgerRecord
	for _, record := range s.ledger {
		if record.JobID == jobID {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

type stubSnapshots struct {
	snapshots []domain.PriceSnapshot
}

func (s *stubSnapshots) LatestBefore(_ context.Context, kind domain.JobKind, itemKey string, before time.Time) (*domain.PriceSnapshot, error) {
	var latest *domain.PriceSnapshot
	for i := range s.snapshots {
		snapshot := s.snapshots[i]
		if snapshot.Kind != kind || snapshot.ItemKey != itemKey || !snapshot.CapturedAt.Before(before) {
			continue
		}
		if latest == nil || snapshot.CapturedAt.After(latest.CapturedAt) {
			latest = &s.snapshots[i]
		}
	}
	return latest, nil
}

func (s *stubSnapshots) Insert(_ context.Context, snapshot domain.PriceSnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rate(jobID uuid.UUID, key string, price string, at time.Time) domain.RateRecord {
	return domain.RateRecord{
		ID:          uuid.New(),
		JobID:       jobID,
		StagedRowID: uuid.New(),
		Kind:        domain.JobKindHotelRate,
		ItemName:    "Grand Plaza",
		ItemKey:     key,
		Price:       d(price),
		CreatedAt:   at,
	}
}

func completedJob(kind domain.JobKind) domain.ImportJob {
	return domain.ImportJob{ID: uuid.New(), Kind: kind, Status: domain.JobStatusCompleted}
}

func TestAnalyzeClassifiesEveryDirection(t *testing.T) {
	job := completedJob(domain.JobKindHotelRate)
	committedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	earlier := committedAt.Add(-24 * time.Hour)

	records := &stubRecords{rates: []domain.RateRecord{
		rate(job.ID, "grand plaza|double|2026-01-01|2026-03-31", "100.00", committedAt),
		rate(job.ID, "grand plaza|suite|2026-01-01|2026-03-31", "350.00", committedAt),
		rate(job.ID, "sea view|single|2026-01-01|2026-03-31", "80.00", committedAt),
		rate(job.ID, "desert rose|double|2026-02-01|2026-04-30", "110.00", committedAt),
	}}
	snapshots := &stubSnapshots{snapshots: []domain.PriceSnapshot{
		domain.NewPriceSnapshot(domain.JobKindHotelRate, "grand plaza|double|2026-01-01|2026-03-31", d("150.00"), earlier),
		domain.NewPriceSnapshot(domain.JobKindHotelRate, "grand plaza|suite|2026-01-01|2026-03-31", d("300.00"), earlier),
		domain.NewPriceSnapshot(domain.JobKindHotelRate, "sea view|single|2026-01-01|2026-03-31", d("80.00"), earlier),
	}}

	summary, err := NewAnalyzer(records, snapshots, logger.Nop()).Analyze(context.Background(), job)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if summary.CommittedRows != 4 || summary.ComparableRows != 3 {
		t.Fatalf("committed %d / comparable %d, want 4 / 3", summary.CommittedRows, summary.ComparableRows)
	}
	if summary.Cheaper != 1 || summary.MoreExpensive != 1 || summary.Unchanged != 1 || summary.NoPrevious != 1 {
		t.Fatalf("direction buckets = %d/%d/%d/%d, want 1 each",
			summary.Cheaper, summary.MoreExpensive, summary.Unchanged, summary.NoPrevious)
	}
	if total := summary.Cheaper + summary.MoreExpensive + summary.Unchanged + summary.NoPrevious; total != summary.CommittedRows {
		t.Fatalf("buckets sum to %d, want every record classified (%d)", total, summary.CommittedRows)
	}
	// 100-150 cheaper, 350-300 more expensive: net is 0.
	if !summary.NetChange.Equal(d("0")) {
		t.Fatalf("net change = %s, want 0", summary.NetChange)
	}
}

func TestAnalyzeCheaperDelta(t *testing.T) {
	job := completedJob(domain.JobKindHotelRate)
	committedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	records := &stubRecords{rates: []domain.RateRecord{
		rate(job.ID, "grand plaza|double|2026-01-01|2026-03-31", "100.00", committedAt),
	}}
	snapshots := &stubSnapshots{snapshots: []domain.PriceSnapshot{
		domain.NewPriceSnapshot(domain.JobKindHotelRate, "grand plaza|double|2026-01-01|2026-03-31", d("150.00"), committedAt.Add(-time.Hour)),
	}}

	summary, err := NewAnalyzer(records, snapshots, logger.Nop()).Analyze(context.Background(), job)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(summary.Sample) != 1 {
		t.Fatalf("sample size = %d, want 1", len(summary.Sample))
	}
	delta := summary.Sample[0]
	if delta.Direction != domain.ImpactCheaper {
		t.Fatalf("direction = %s, want cheaper", delta.Direction)
	}
	if !delta.Diff.Equal(d("-50.00")) {
		t.Fatalf("diff = %s, want -50.00", delta.Diff)
	}
}

func TestAnalyzeIgnoresSnapshotsWrittenAtCommit(t *testing.T) {
	job := completedJob(domain.JobKindHotelRate)
	committedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	records := &stubRecords{rates: []domain.RateRecord{
		rate(job.ID, "grand plaza|double|2026-01-01|2026-03-31", "100.00", committedAt),
	}}
	// Only snapshot for the key is the one this commit captured.
	snapshots := &stubSnapshots{snapshots: []domain.PriceSnapshot{
		domain.NewPriceSnapshot(domain.JobKindHotelRate, "grand plaza|double|2026-01-01|2026-03-31", d("100.00"), committedAt),
	}}

	summary, err := NewAnalyzer(records, snapshots, logger.Nop()).Analyze(context.Background(), job)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if summary.NoPrevious != 1 {
		t.Fatalf("no_previous = %d, want 1 (own snapshot must not count as history)", summary.NoPrevious)
	}
}

func TestAnalyzeLedgerJob(t *testing.T) {
	job := completedJob(domain.JobKindLedger)
	committedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	records := &stubRecords{ledger: []domain.LedgerRecord{{
		ID:               uuid.New(),
		JobID:            job.ID,
		StagedRowID:      uuid.New(),
		CustomerName:     "Ahmed Hassan",
		BookingReference: "TR-100",
		Amount:           d("1500.00"),
		ItemKey:          "ahmed hassan|tr-100",
		CreatedAt:        committedAt,
	}}}
	snapshots := &stubSnapshots{snapshots: []domain.PriceSnapshot{
		domain.NewPriceSnapshot(domain.JobKindLedger, "ahmed hassan|tr-100", d("1400.00"), committedAt.Add(-time.Hour)),
	}}

	summary, err := NewAnalyzer(records, snapshots, logger.Nop()).Analyze(context.Background(), job)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if summary.MoreExpensive != 1 {
		t.Fatalf("more_expensive = %d, want 1", summary.MoreExpensive)
	}
	if !summary.NetChange.Equal(d("100.00")) {
		t.Fatalf("net change = %s, want 100.00", summary.NetChange)
	}
}

func TestAnalyzeBoundsSample(t *testing.T) {
	job := completedJob(domain.JobKindHotelRate)
	committedAt := time.Now()

	records := &stubRecords{}
	for i := 0; i < 30; i++ {
		records.rates = append(records.rates,
			rate(job.ID, uuid.NewString(), "10.00", committedAt))
	}

	summary, err := NewAnalyzer(records, &stubSnapshots{}, logger.Nop(), WithSampleSize(5)).
		Analyze(context.Background(), job)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if summary.CommittedRows != 30 {
		t.Fatalf("committed = %d, want 30", summary.CommittedRows)
	}
	if len(summary.Sample) != 5 {
		t.Fatalf("sample = %d, want 5", len(summary.Sample))
	}
}

func TestAnalyzeRequiresCommittedJob(t *testing.T) {
	job := domain.ImportJob{ID: uuid.New(), Kind: domain.JobKindHotelRate, Status: domain.JobStatusStaged}
	_, err := NewAnalyzer(&stubRecords{}, &stubSnapshots{}, logger.Nop()).Analyze(context.Background(), job)
	if !pipeerrors.IsCode(err, pipeerrors.CodeJobNotCommittable) {
		t.Fatalf("err = %v, want job_not_committable", err)
	}
}
