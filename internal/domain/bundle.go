package domain

import "time"

// HintRecord is one prior hint-view, enriched with resolved source ids.
type HintRecord struct {
	ViewedAt  time.Time `json:"viewed_at"`
	SourceIDs []string  `json:"source_ids,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// AnchorRow is a canonical reference row selected deterministically for
// an error subtype.
type AnchorRow struct {
	RowID                   string `json:"row_id"`
	ErrorSubtype            string `json:"error_subtype"`
	FeedbackTarget          string `json:"feedback_target"`
	IntendedLearningOutcome string `json:"intended_learning_outcome"`
}

// ScoredPassage is an indexed passage with its keyword-overlap score.
type ScoredPassage struct {
	PassageID string  `json:"passage_id"`
	SourceID  string  `json:"source_id"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// RetrievalBundle is the grounding material backing a rung-2/3 response.
// A bundle is immutable once built; it is rebuilt on every request.
type RetrievalBundle struct {
	LearnerID          string          `json:"learner_id"`
	ProblemID          string          `json:"problem_id"`
	LastErrorSubtypeID string          `json:"last_error_subtype_id,omitempty"`
	HintHistory        []HintRecord    `json:"hint_history,omitempty"`
	Anchor             *AnchorRow      `json:"anchor,omitempty"`
	ConceptCandidates  []string        `json:"concept_candidates,omitempty"`
	RetrievedSourceIDs []string        `json:"retrieved_source_ids,omitempty"`
	PdfPassages        []ScoredPassage `json:"pdf_passages,omitempty"`
}

// HasGrounding reports whether the bundle carries any citable material.
func (b *RetrievalBundle) HasGrounding() bool {
	return b.Anchor != nil || len(b.PdfPassages) > 0
}
