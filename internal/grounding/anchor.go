package grounding

import (
	"github.com/lernloop/guidance/internal/corpus"
	"github.com/lernloop/guidance/internal/domain"
)

// DeterministicAnchor canonicalizes the error subtype against the alias
// table, looks up its reference rows, and picks one by hashing
// canonicalSubtype + "|" + seed modulo the row count. A pure function:
// identical arguments always select the identical row, across process
// restarts. Returns false when the subtype has no reference rows.
func DeterministicAnchor(table *corpus.Table, subtype, seed string) (*domain.AnchorRow, bool) {
	if table == nil || subtype == "" {
		return nil, false
	}
	canonical := table.Canonical(subtype)
	rows := table.Rows(canonical)
	if len(rows) == 0 {
		return nil, false
	}

	idx := int(hashString(canonical+"|"+seed) % uint32(len(rows)))
	row := rows[idx]
	return &domain.AnchorRow{
		RowID:                   row.RowID,
		ErrorSubtype:            canonical,
		FeedbackTarget:          row.FeedbackTarget,
		IntendedLearningOutcome: row.IntendedLearningOutcome,
	}, true
}
