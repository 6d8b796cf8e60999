// Package corpus holds the static reference table the grounding builder
// and the auto-escalation trigger read: reference rows keyed by
// canonical error subtype, a subtype alias map, and per-subtype
// verification flags. The table is loaded once and never mutated at
// runtime.
package corpus

import "strings"

// Row is one reference entry for a canonical error subtype.
type Row struct {
	RowID                   string `yaml:"row_id"`
	ErrorSubtype            string `yaml:"error_subtype"`
	FeedbackTarget          string `yaml:"feedback_target"`
	IntendedLearningOutcome string `yaml:"intended_learning_outcome"`
}

// Table is the immutable reference corpus.
type Table struct {
	rows     map[string][]Row // canonical subtype -> rows, file order preserved
	aliases  map[string]string
	verified map[string]bool
	excluded map[string]bool
}

// NewTable builds a table from rows, aliases, and flag lists. Alias keys
// and subtypes are normalized to lowercase.
func NewTable(rows []Row, aliases map[string]string, verified, excluded []string) *Table {
	t := &Table{
		rows:     make(map[string][]Row),
		aliases:  make(map[string]string, len(aliases)),
		verified: make(map[string]bool, len(verified)),
		excluded: make(map[string]bool, len(excluded)),
	}
	for k, v := range aliases {
		t.aliases[normalize(k)] = normalize(v)
	}
	for _, r := range rows {
		canon := t.Canonical(r.ErrorSubtype)
		t.rows[canon] = append(t.rows[canon], r)
	}
	for _, s := range verified {
		t.verified[t.Canonical(s)] = true
	}
	for _, s := range excluded {
		t.excluded[t.Canonical(s)] = true
	}
	return t
}

// Canonical resolves a subtype through the alias map. Unknown subtypes
// canonicalize to their normalized form.
func (t *Table) Canonical(subtype string) string {
	n := normalize(subtype)
	if canon, ok := t.aliases[n]; ok {
		return canon
	}
	return n
}

// Rows returns all reference rows for a subtype (after alias
// resolution), in file order. Nil for unknown subtypes.
func (t *Table) Rows(subtype string) []Row {
	return t.rows[t.Canonical(subtype)]
}

// AutoEscalationEligible reports whether a subtype is verified and not
// excluded in the alignment table.
func (t *Table) AutoEscalationEligible(subtype string) bool {
	canon := t.Canonical(subtype)
	return t.verified[canon] && !t.excluded[canon]
}

// Size returns the total number of reference rows.
func (t *Table) Size() int {
	n := 0
	for _, rs := range t.rows {
		n += len(rs)
	}
	return n
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DefaultTable returns a compiled-in table covering common exercise
// error subtypes, used when no corpus file is configured.
func DefaultTable() *Table {
	rows := []Row{
		{
			RowID:                   "ref-001",
			ErrorSubtype:            "off-by-one",
			FeedbackTarget:          "loop boundary conditions",
			IntendedLearningOutcome: "learner checks inclusive vs exclusive bounds before running",
		},
		{
			RowID:                   "ref-002",
			ErrorSubtype:            "off-by-one",
			FeedbackTarget:          "index arithmetic near collection ends",
			IntendedLearningOutcome: "learner traces first and last iteration by hand",
		},
		{
			RowID:                   "ref-003",
			ErrorSubtype:            "null-dereference",
			FeedbackTarget:          "unchecked optional access",
			IntendedLearningOutcome: "learner guards dereferences on untrusted inputs",
		},
		{
			RowID:                   "ref-004",
			ErrorSubtype:            "type-mismatch",
			FeedbackTarget:          "implicit conversion assumptions",
			IntendedLearningOutcome: "learner reads declared types before assigning",
		},
		{
			RowID:                   "ref-005",
			ErrorSubtype:            "unhandled-error",
			FeedbackTarget:          "ignored failure paths",
			IntendedLearningOutcome: "learner handles or propagates every error value",
		},
		{
			RowID:                   "ref-006",
			ErrorSubtype:            "infinite-loop",
			FeedbackTarget:          "loop variant progress",
			IntendedLearningOutcome: "learner identifies the decreasing quantity in each loop",
		},
	}
	aliases := map[string]string{
		"obo":            "off-by-one",
		"fencepost":      "off-by-one",
		"npe":            "null-dereference",
		"nil-deref":      "null-dereference",
		"type-error":     "type-mismatch",
		"ignored-error":  "unhandled-error",
		"nontermination": "infinite-loop",
	}
	verified := []string{"off-by-one", "null-dereference", "unhandled-error"}
	excluded := []string{"infinite-loop"}
	return NewTable(rows, aliases, verified, excluded)
}
