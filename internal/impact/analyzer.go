// Package impact derives the before/after value comparison for a committed
// import job. The summary is computed on demand from the permanent records
// and the snapshot history; nothing here mutates state.
package impact

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/travelops/importhub/internal/domain"
	"github.com/travelops/importhub/internal/repository"
	pipeerrors "github.com/travelops/importhub/pkg/errors"
	"github.com/travelops/importhub/pkg/logger"
)

// Analyzer computes impact summaries for committed jobs.
type Analyzer struct {
	records    repository.RecordRepository
	snapshots  repository.PriceSnapshotRepository
	log        logger.Logger
	sampleSize int
}

// Option customizes the analyzer.
type Option func(*Analyzer)

// WithSampleSize bounds the per-item delta list in the summary.
func WithSampleSize(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.sampleSize = n
		}
	}
}

// NewAnalyzer wires the analyzer over the permanent store.
func NewAnalyzer(records repository.RecordRepository, snapshots repository.PriceSnapshotRepository, log logger.Logger, opts ...Option) *Analyzer {
	analyzer := &Analyzer{
		records:    records,
		snapshots:  snapshots,
		log:        log.WithComponent("impact"),
		sampleSize: 20,
	}
	for _, opt := range opts {
		opt(analyzer)
	}
	return analyzer
}

type committedItem struct {
	itemKey   string
	value     decimal.Decimal
	createdAt time.Time
}

// Analyze compares every record the job committed against the latest
// snapshot captured strictly before the record itself, so re-running the
// analysis after the commit wrote its own snapshots yields the same answer.
// Every record lands in exactly one direction bucket; totals only cover
// items that had a prior value.
func (a *Analyzer) Analyze(ctx context.Context, job domain.ImportJob) (domain.ImpactSummary, error) {
	if job.Status != domain.JobStatusCompleted && job.Status != domain.JobStatusFailed {
		return domain.ImpactSummary{}, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeJobNotCommittable,
			"impact is only available after commit")
	}

	items, err := a.committedItems(ctx, job)
	if err != nil {
		return domain.ImpactSummary{}, err
	}

	summary := domain.ImpactSummary{
		JobID:         job.ID,
		CommittedRows: len(items),
	}

	for _, item := range items {
		var old *decimal.Decimal
		if item.itemKey != "" {
			snapshot, lookupErr := a.snapshots.LatestBefore(ctx, job.Kind, item.itemKey, item.createdAt)
			if lookupErr != nil {
				return domain.ImpactSummary{}, pipeerrors.Wrap(lookupErr, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "snapshot lookup failed")
			}
			if snapshot != nil {
				value := snapshot.Value
				old = &value
			}
		}

		direction := domain.ClassifyImpact(old, item.value)
		switch direction {
		case domain.ImpactCheaper:
			summary.Cheaper++
		case domain.ImpactMoreExpensive:
			summary.MoreExpensive++
		case domain.ImpactUnchanged:
			summary.Unchanged++
		case domain.ImpactNoPrevious:
			summary.NoPrevious++
		}

		diff := item.value
		if old != nil {
			summary.ComparableRows++
			diff = item.value.Sub(*old)
			summary.TotalOld = summary.TotalOld.Add(*old)
			summary.TotalNew = summary.TotalNew.Add(item.value)
		}

		if len(summary.Sample) < a.sampleSize {
			summary.Sample = append(summary.Sample, domain.ItemDelta{
				ItemKey:   item.itemKey,
				OldValue:  old,
				NewValue:  item.value,
				Diff:      diff,
				Direction: direction,
			})
		}
	}

	summary.NetChange = summary.TotalNew.Sub(summary.TotalOld)

	a.log.WithFields(logger.Fields{
		"job_id":      job.ID,
		"committed":   summary.CommittedRows,
		"comparable":  summary.ComparableRows,
		"net_change":  summary.NetChange.String(),
		"no_previous": summary.NoPrevious,
	}).Debug("impact computed")

	return summary, nil
}

func (a *Analyzer) committedItems(ctx context.Context, job domain.ImportJob) ([]committedItem, error) {
	if job.Kind == domain.JobKindLedger {
		records, err := a.records.ListLedgerByJob(ctx, job.ID)
		if err != nil {
			return nil, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to list ledger records")
		}
		items := make([]committedItem, 0, len(records))
		for _, record := range records {
			items = append(items, committedItem{record.ItemKey, record.Amount, record.CreatedAt})
		}
		return items, nil
	}

	records, err := a.records.ListRatesByJob(ctx, job.ID)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to list rate records")
	}
	items := make([]committedItem, 0, len(records))
	for _, record := range records {
		items = append(items, committedItem{record.ItemKey, record.Price, record.CreatedAt})
	}
	return items, nil
}
