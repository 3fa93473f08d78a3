package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobKind identifies which import flavor a job carries.
type JobKind string

const (
	JobKindLedger     JobKind = "ledger"
	JobKindHotelRate  JobKind = "hotel_rate"
	JobKindFlightRate JobKind = "flight_rate"
)

// ValidJobKind reports whether kind is one of the supported import kinds.
func ValidJobKind(kind JobKind) bool {
	switch kind {
	case JobKindLedger, JobKindHotelRate, JobKindFlightRate:
		return true
	}
	return false
}

// JobStatus tracks the job lifecycle. Jobs are never deleted; a failed or
// completed job remains as the audit record of the upload.
type JobStatus string

const (
	JobStatusUploaded  JobStatus = "uploaded"
	JobStatusStaged    JobStatus = "staged"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ImportJob is the unit of work for one uploaded file. The raw parsed rows
// and the applied column mapping are persisted on the job so a client can be
// killed and resume against the job id at any stage.
type ImportJob struct {
	ID             uuid.UUID           `json:"id"`
	Kind           JobKind             `json:"kind"`
	FileName       string              `json:"file_name"`
	Label          string              `json:"label,omitempty"`
	SourceColumns  []string            `json:"source_columns"`
	RawRows        []map[string]string `json:"-"`
	Mapping        map[string]string   `json:"mapping,omitempty"`
	MappingApplied bool                `json:"mapping_applied"`
	TotalRows      int                 `json:"total_rows"`
	SuccessRows    int                 `json:"success_rows"`
	FailedRows     int                 `json:"failed_rows"`
	Status         JobStatus           `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewImportJob creates a job for a freshly parsed upload.
func NewImportJob(kind JobKind, fileName, label string, columns []string, rows []map[string]string) ImportJob {
	now := time.Now()
	return ImportJob{
		ID:            uuid.New(),
		Kind:          kind,
		FileName:      fileName,
		Label:         label,
		SourceColumns: append([]string(nil), columns...),
		RawRows:       rows,
		TotalRows:     len(rows),
		Status:        JobStatusUploaded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
