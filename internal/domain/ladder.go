package domain

import "time"

// Rung is one of three escalating tiers of instructional support.
type Rung int

const (
	RungMicroHint  Rung = 1 // short nudge, no explanation
	RungExplain    Rung = 2 // cited explanation
	RungReflective Rung = 3 // reflective note, terminal
)

// MaxRung is the terminal rung; no escalation is possible past it.
const MaxRung = RungReflective

// String returns the human-readable name of the rung.
func (r Rung) String() string {
	switch r {
	case RungMicroHint:
		return "micro-hint"
	case RungExplain:
		return "explanation"
	case RungReflective:
		return "reflective-note"
	default:
		return "unknown"
	}
}

// ContentLimit returns the character cap for content at this rung.
func (r Rung) ContentLimit() int {
	switch r {
	case RungMicroHint:
		return 150
	case RungExplain:
		return 800
	case RungReflective:
		return 2000
	default:
		return 0
	}
}

// Escalation is one recorded rung transition.
type Escalation struct {
	FromRung  Rung      `json:"from_rung"`
	ToRung    Rung      `json:"to_rung"`
	Trigger   Trigger   `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
	Evidence  string    `json:"evidence,omitempty"`
}

// LadderState is the per-(learner, problem) guidance state. The current
// rung never decreases; rung 3 is terminal.
type LadderState struct {
	LearnerID         string       `json:"learner_id"`
	ProblemID         string       `json:"problem_id"`
	CurrentRung       Rung         `json:"current_rung"`
	RungAttempts      map[Rung]int `json:"rung_attempts"`
	EscalationHistory []Escalation `json:"escalation_history"`
	CurrentConceptIDs []string     `json:"current_concept_ids,omitempty"`
	GroundedInSources bool         `json:"grounded_in_sources"`
	// Thresholds comes from the active strategy profile; zero value means
	// the built-in rung defaults apply.
	Thresholds Thresholds `json:"thresholds"`
	// EnabledTriggers comes from the active strategy profile; an empty
	// list means every trigger may fire.
	EnabledTriggers []Trigger `json:"enabled_triggers,omitempty"`
	// ProfileArmID records which bandit arm chose this episode's profile.
	ProfileArmID string    `json:"profile_arm_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// NewLadderState creates the initial state for a learner/problem pair.
func NewLadderState(learnerID, problemID string) *LadderState {
	return &LadderState{
		LearnerID:    learnerID,
		ProblemID:    problemID,
		CurrentRung:  RungMicroHint,
		RungAttempts: make(map[Rung]int),
		StartedAt:    time.Now(),
	}
}

// TriggerEnabled reports whether the active strategy profile allows the
// trigger to fire for this episode.
func (s *LadderState) TriggerEnabled(t Trigger) bool {
	if len(s.EnabledTriggers) == 0 {
		return true
	}
	for _, et := range s.EnabledTriggers {
		if et == t {
			return true
		}
	}
	return false
}

// Terminal reports whether no further escalation is possible.
func (s *LadderState) Terminal() bool {
	return s.CurrentRung >= MaxRung
}

// TotalAttempts returns attempts summed across all rungs.
func (s *LadderState) TotalAttempts() int {
	total := 0
	for _, n := range s.RungAttempts {
		total += n
	}
	return total
}
