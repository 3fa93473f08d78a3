package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportError captures a row-level failure together with the raw payload the
// operator needs to trace it back to the source file. Append-only, except
// that re-validating a row replaces its open error.
type ImportError struct {
	ID         uuid.UUID         `json:"id"`
	JobID      uuid.UUID         `json:"job_id"`
	RowNumber  int               `json:"row_number"`
	Message    string            `json:"message"`
	RawPayload map[string]string `json:"raw_payload"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewImportError creates an error record for one staged row.
func NewImportError(jobID uuid.UUID, rowNumber int, message string, raw map[string]string) ImportError {
	copied := make(map[string]string, len(raw))
	for k, v := range raw {
		copied[k] = v
	}
	return ImportError{
		ID:         uuid.New(),
		JobID:      jobID,
		RowNumber:  rowNumber,
		Message:    message,
		RawPayload: copied,
		CreatedAt:  time.Now(),
	}
}
