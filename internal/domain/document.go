package domain

import "time"

// Passage is one indexed reference passage available for grounding.
type Passage struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
}

// PdfIndexDoc is a versioned snapshot of the passage index. Rebuilds
// replace the whole document so in-flight readers never observe a
// partially written index.
type PdfIndexDoc struct {
	Version   int       `json:"version"`
	Passages  []Passage `json:"passages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TextbookUnit is one recommended unit within a textbook.
type TextbookUnit struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary,omitempty"`
	ConceptIDs []string `json:"concept_ids,omitempty"`
}

// Textbook groups units for a course or reference text.
type Textbook struct {
	ID    string         `json:"id"`
	Title string         `json:"title"`
	Units []TextbookUnit `json:"units,omitempty"`
}

// LearnerProfile is the persisted per-learner summary the host
// application maintains alongside bandit state.
type LearnerProfile struct {
	LearnerID      string    `json:"learner_id"`
	TotalProblems  int       `json:"total_problems"`
	TotalHelp      int       `json:"total_help"`
	MedianSolveMs  int64     `json:"median_solve_ms"`
	BaselineErrors int       `json:"baseline_errors"`
	UpdatedAt      time.Time `json:"updated_at"`
}
