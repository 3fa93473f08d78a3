package importer

import (
	"sort"

	"github.com/google/uuid"

	"github.com/travelops/importhub/internal/domain"
)

// detectDuplicates groups staged rows by their natural key and returns the
// ids of every group member except the first by original row order. Rows
// with an empty key are never grouped, so two rows that both lack
// identifying fields are not duplicates of each other. Deterministic:
// running it twice over the same staged set yields the same marks.
func detectDuplicates(kind domain.JobKind, rows []domain.StagedRow) []uuid.UUID {
	ordered := append([]domain.StagedRow(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RowNumber < ordered[j].RowNumber
	})

	seen := make(map[string]bool)
	var duplicates []uuid.UUID
	for _, row := range ordered {
		key := row.Fields.NaturalKey(kind)
		if key == "" {
			continue
		}
		if seen[key] {
			duplicates = append(duplicates, row.ID)
			continue
		}
		seen[key] = true
	}
	return duplicates
}
