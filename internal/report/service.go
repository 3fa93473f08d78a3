// Package report renders operator-facing exports of a finished import job:
// the run summary, the row-level error list, and the impact delta table.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/travelops/importhub/internal/domain"
	"github.com/travelops/importhub/internal/impact"
	"github.com/travelops/importhub/internal/repository"
	pipeerrors "github.com/travelops/importhub/pkg/errors"
	"github.com/travelops/importhub/pkg/logger"
)

// Kind selects which report to render.
type Kind string

const (
	KindSummary Kind = "summary"
	KindErrors  Kind = "errors"
	KindImpact  Kind = "impact"
)

// ValidKind reports whether kind names a known report.
func ValidKind(kind Kind) bool {
	switch kind {
	case KindSummary, KindErrors, KindImpact:
		return true
	}
	return false
}

// Document is a rendered report before serialization: a titled table.
type Document struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// DocumentRenderer converts a document into a binary format the service
// cannot produce itself, such as PDF. Implementations wrap an external
// rendering engine.
type DocumentRenderer interface {
	Render(ctx context.Context, document Document) ([]byte, error)
}

const errorPageSize = 500

// Service builds report documents from the staging store and the impact
// analyzer.
type Service struct {
	jobs     repository.ImportJobRepository
	errs     repository.ImportErrorRepository
	analyzer *impact.Analyzer
	renderer DocumentRenderer
	log      logger.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithRenderer attaches a binary document renderer.
func WithRenderer(renderer DocumentRenderer) Option {
	return func(s *Service) { s.renderer = renderer }
}

// NewService wires the report service.
func NewService(jobs repository.ImportJobRepository, errs repository.ImportErrorRepository, analyzer *impact.Analyzer, log logger.Logger, opts ...Option) *Service {
	service := &Service{
		jobs:     jobs,
		errs:     errs,
		analyzer: analyzer,
		log:      log.WithComponent("report"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Build assembles the report document for a job.
func (s *Service) Build(ctx context.Context, jobID uuid.UUID, kind Kind) (Document, error) {
	if !ValidKind(kind) {
		return Document{}, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeUnexpected, "unknown report kind %q", kind)
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, pipeerrors.Newf(pipeerrors.CategoryInput, pipeerrors.CodeJobNotFound, "import job %s not found", jobID)
		}
		return Document{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to load job")
	}

	switch kind {
	case KindErrors:
		return s.buildErrors(ctx, job)
	case KindImpact:
		return s.buildImpact(ctx, job)
	default:
		return s.buildSummary(ctx, job)
	}
}

// WriteCSV streams the document as CSV.
func (s *Service) WriteCSV(document Document, w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(document.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range document.Rows {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// RenderPDF delegates to the configured renderer.
func (s *Service) RenderPDF(ctx context.Context, document Document) ([]byte, error) {
	if s.renderer == nil {
		return nil, pipeerrors.New(pipeerrors.CategoryInput, pipeerrors.CodeUnsupportedFormat,
			"pdf rendering is not configured")
	}
	rendered, err := s.renderer.Render(ctx, document)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryInternal, pipeerrors.CodeUnexpected, "pdf rendering failed")
	}
	return rendered, nil
}

func (s *Service) buildSummary(ctx context.Context, job domain.ImportJob) (Document, error) {
	document := Document{
		Title:   fmt.Sprintf("Import summary %s", job.ID),
		Columns: []string{"field", "value"},
		Rows: [][]string{
			{"job_id", job.ID.String()},
			{"kind", string(job.Kind)},
			{"file_name", job.FileName},
			{"label", job.Label},
			{"status", string(job.Status)},
			{"total_rows", strconv.Itoa(job.TotalRows)},
			{"success_rows", strconv.Itoa(job.SuccessRows)},
			{"failed_rows", strconv.Itoa(job.FailedRows)},
			{"created_at", job.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
		},
	}

	if job.Status == domain.JobStatusCompleted || job.Status == domain.JobStatusFailed {
		summary, err := s.analyzer.Analyze(ctx, job)
		if err != nil {
			return Document{}, err
		}
		document.Rows = append(document.Rows,
			[]string{"committed_rows", strconv.Itoa(summary.CommittedRows)},
			[]string{"cheaper", strconv.Itoa(summary.Cheaper)},
			[]string{"more_expensive", strconv.Itoa(summary.MoreExpensive)},
			[]string{"unchanged", strconv.Itoa(summary.Unchanged)},
			[]string{"no_previous", strconv.Itoa(summary.NoPrevious)},
			[]string{"net_change", summary.NetChange.String()},
		)
	}

	return document, nil
}

func (s *Service) buildErrors(ctx context.Context, job domain.ImportJob) (Document, error) {
	document := Document{
		Title:   fmt.Sprintf("Import errors %s", job.ID),
		Columns: []string{"row_number", "message", "raw_row"},
	}

	offset := 0
	for {
		page, err := s.errs.ListByJob(ctx, job.ID, errorPageSize, offset)
		if err != nil {
			return Document{}, pipeerrors.Wrap(err, pipeerrors.CategoryStorage, pipeerrors.CodeUnexpected, "failed to list errors")
		}
		for _, importError := range page {
			raw, marshalErr := json.Marshal(importError.RawPayload)
			if marshalErr != nil {
				raw = []byte("{}")
			}
			document.Rows = append(document.Rows, []string{
				strconv.Itoa(importError.RowNumber),
				importError.Message,
				string(raw),
			})
		}
		if len(page) < errorPageSize {
			return document, nil
		}
		offset += errorPageSize
	}
}

func (s *Service) buildImpact(ctx context.Context, job domain.ImportJob) (Document, error) {
	summary, err := s.analyzer.Analyze(ctx, job)
	if err != nil {
		return Document{}, err
	}

	document := Document{
		Title:   fmt.Sprintf("Import impact %s", job.ID),
		Columns: []string{"item_key", "old_value", "new_value", "diff", "direction"},
	}
	for _, delta := range summary.Sample {
		document.Rows = append(document.Rows, []string{
			delta.ItemKey,
			formatOptionalDecimal(delta.OldValue),
			delta.NewValue.String(),
			delta.Diff.String(),
			string(delta.Direction),
		})
	}
	return document, nil
}

func formatOptionalDecimal(value *decimal.Decimal) string {
	if value == nil {
		return ""
	}
	return value.String()
}
