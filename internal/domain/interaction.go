package domain

import (
	"time"

	"github.com/google/uuid"
)

// InteractionKind classifies a learner interaction event.
type InteractionKind string

const (
	KindAttempt       InteractionKind = "attempt"        // a solution attempt
	KindError         InteractionKind = "error"          // an observed error
	KindExecution     InteractionKind = "execution"      // a code run, Success set
	KindHintView      InteractionKind = "hint_view"      // guidance shown to learner
	KindHelpRequest   InteractionKind = "help_request"   // explicit ask for help
	KindHelpDismissed InteractionKind = "help_dismissed" // learner closed guidance
)

// Interaction is one event in a learner's history for a problem. The
// engine treats history as append-only; triggers and grounding read it.
type Interaction struct {
	ID           uuid.UUID       `json:"id"`
	LearnerID    string          `json:"learner_id"`
	ProblemID    string          `json:"problem_id"`
	Kind         InteractionKind `json:"kind"`
	ErrorSubtype string          `json:"error_subtype,omitempty"`
	SourceIDs    []string        `json:"source_ids,omitempty"`
	Success      bool            `json:"success,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// NewInteraction creates an interaction event with a fresh id.
func NewInteraction(learnerID, problemID string, kind InteractionKind) Interaction {
	return Interaction{
		ID:         uuid.New(),
		LearnerID:  learnerID,
		ProblemID:  problemID,
		Kind:       kind,
		OccurredAt: time.Now(),
	}
}

// Problem is the minimal problem context the engine needs.
type Problem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	ConceptNames []string `json:"concept_names,omitempty"`
	ConceptIDs   []string `json:"concept_ids,omitempty"`
}

// OutcomeSignals are the raw episode outcomes fed to the reward function.
type OutcomeSignals struct {
	Solved            bool
	UsedExplanation   bool
	ErrorCount        int
	BaselineErrors    int
	DelayedRetention  float64 // [-1,1], supplied by the host application
	DependencyPenalty float64 // [-1,0]
	Elapsed           time.Duration
	MedianElapsed     time.Duration
}
