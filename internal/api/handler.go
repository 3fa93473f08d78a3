// Package api exposes the import pipeline over HTTP. Handlers decode the
// request, call the service, and translate pipeline errors into statuses;
// all behavior lives in the services.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/travelops/importhub/internal/domain"
	"github.com/travelops/importhub/internal/importer"
	"github.com/travelops/importhub/internal/report"
	pipeerrors "github.com/travelops/importhub/pkg/errors"
	"github.com/travelops/importhub/pkg/logger"
)

// ImportService is the pipeline surface the handlers call.
type ImportService interface {
	Upload(ctx context.Context, req importer.UploadRequest) (domain.ImportJob, error)
	Jobs(ctx context.Context, limit, offset int) ([]domain.ImportJob, error)
	Job(ctx context.Context, jobID uuid.UUID) (domain.ImportJob, error)
	PreviewJob(ctx context.Context, jobID uuid.UUID) (importer.Preview, error)
	ApplyMapping(ctx context.Context, jobID uuid.UUID, overrides map[string]string) (importer.StageSummary, error)
	Rows(ctx context.Context, jobID uuid.UUID, status *domain.RowStatus, limit, offset int) ([]domain.StagedRow, error)
	AutoMatch(ctx context.Context, jobID uuid.UUID) (importer.MatchSummary, error)
	BulkStatus(ctx context.Context, jobID uuid.UUID, rowIDs []uuid.UUID, status domain.RowStatus) (int, error)
	Commit(ctx context.Context, jobID uuid.UUID) (importer.CommitResult, error)
	Errors(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportError, error)
}

// ImpactService computes the impact summary for a committed job.
type ImpactService interface {
	Analyze(ctx context.Context, job domain.ImportJob) (domain.ImpactSummary, error)
}

// ReportService renders exports.
type ReportService interface {
	Build(ctx context.Context, jobID uuid.UUID, kind report.Kind) (report.Document, error)
	WriteCSV(document report.Document, w io.Writer) error
	RenderPDF(ctx context.Context, document report.Document) ([]byte, error)
}

// Handler holds the wired services.
type Handler struct {
	imports        ImportService
	impact         ImpactService
	reports        ReportService
	log            logger.Logger
	maxUploadBytes int64
}

// NewHandler creates the API handler.
func NewHandler(imports ImportService, impact ImpactService, reports ReportService, log logger.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &Handler{
		imports:        imports,
		impact:         impact,
		reports:        reports,
		log:            log.WithComponent("api"),
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	kind := domain.JobKind(strings.TrimSpace(r.FormValue("kind")))
	label := strings.TrimSpace(r.FormValue("label"))

	job, err := h.imports.Upload(r.Context(), importer.UploadRequest{
		Kind:     kind,
		FileName: header.Filename,
		Label:    label,
		Data:     file,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	jobs, err := h.imports.Jobs(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.imports.Job(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	preview, err := h.imports.PreviewJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type applyMappingPayload struct {
	Mapping map[string]string `json:"mapping"`
}

func (h *Handler) handleApplyMapping(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	var payload applyMappingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	summary, err := h.imports.ApplyMapping(r.Context(), jobID, payload.Mapping)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRows(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	var status *domain.RowStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		candidate := domain.RowStatus(raw)
		if !domain.ValidRowStatus(candidate) {
			http.Error(w, fmt.Sprintf("unknown status %q", raw), http.StatusBadRequest)
			return
		}
		status = &candidate
	}

	limit, offset := pagination(r, 100)
	rows, err := h.imports.Rows(r.Context(), jobID, status, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleAutoMatch(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	summary, err := h.imports.AutoMatch(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type bulkStatusPayload struct {
	RowIDs []string `json:"row_ids"`
	Status string   `json:"status"`
}

func (h *Handler) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	var payload bulkStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	rowIDs := make([]uuid.UUID, 0, len(payload.RowIDs))
	for _, raw := range payload.RowIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid row id %q", raw), http.StatusBadRequest)
			return
		}
		rowIDs = append(rowIDs, id)
	}

	updated, err := h.imports.BulkStatus(r.Context(), jobID, rowIDs, domain.RowStatus(payload.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	result, err := h.imports.Commit(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleImpact(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.imports.Job(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.impact.Analyze(r.Context(), job)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleErrors(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r, 100)
	importErrors, err := h.imports.Errors(r.Context(), jobID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": importErrors})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	kind := report.Kind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind == "" {
		kind = report.KindSummary
	}
	format := strings.TrimSpace(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}

	document, err := h.reports.Build(r.Context(), jobID, kind)
	if err != nil {
		h.writeError(w, err)
		return
	}

	fileName := fmt.Sprintf("import_%s_%s.%s", kind, jobID, format)
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		if err := h.reports.WriteCSV(document, w); err != nil {
			h.log.WithError(err).Error("csv export write failed")
		}
	case "pdf":
		rendered, renderErr := h.reports.RenderPDF(r.Context(), document)
		if renderErr != nil {
			h.writeError(w, renderErr)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		_, _ = w.Write(rendered)
	default:
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "jobID")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid job id %q", raw), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}

	var pipelineError *pipeerrors.PipelineError
	if errors.As(err, &pipelineError) {
		writeJSON(w, status, map[string]any{"error": pipelineError})
		return
	}
	writeJSON(w, status, map[string]any{"error": map[string]string{"message": err.Error()}})
}

// statusForError maps pipeline errors onto HTTP statuses. Row-level
// failures never reach here; they live in the import_errors list.
func statusForError(err error) int {
	var pipelineError *pipeerrors.PipelineError
	if !errors.As(err, &pipelineError) {
		return http.StatusInternalServerError
	}

	switch pipelineError.Code {
	case pipeerrors.CodeJobNotFound:
		return http.StatusNotFound
	case pipeerrors.CodeMappingApplied, pipeerrors.CodeJobNotCommittable:
		return http.StatusConflict
	case pipeerrors.CodeRowNotInJob:
		return http.StatusUnprocessableEntity
	case pipeerrors.CodeRowCapExceeded:
		return http.StatusRequestEntityTooLarge
	}

	switch pipelineError.Category {
	case pipeerrors.CategoryInput, pipeerrors.CategoryParse:
		return http.StatusBadRequest
	case pipeerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func pagination(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
