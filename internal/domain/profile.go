package domain

// StrategyProfile is a static escalation-strategy configuration mapped to
// one bandit arm. Profiles are read-only after construction.
type StrategyProfile struct {
	ArmID      string
	Name       string
	Thresholds Thresholds
	Triggers   []Trigger
}

// Thresholds holds the per-profile escalation knobs. Aggregate is always
// strictly greater than Escalate.
type Thresholds struct {
	Escalate  int // attempts at a rung before rung_exhausted may fire
	Aggregate int // attempts across rungs before aggregate interventions
}

// Canonical arm ids.
const (
	ArmFastEscalator     = "fast-escalator"
	ArmAdaptiveEscalator = "adaptive-escalator"
	ArmSlowEscalator     = "slow-escalator"
	ArmExplanationFirst  = "explanation-first"
)

// DefaultProfiles returns the four canonical strategy profiles.
func DefaultProfiles() []StrategyProfile {
	all := []Trigger{
		TriggerLearnerRequest,
		TriggerRungExhausted,
		TriggerRepeatedError,
		TriggerTimeStuck,
		TriggerHintReopened,
		TriggerAutoEscalation,
	}
	return []StrategyProfile{
		{
			ArmID:      ArmFastEscalator,
			Name:       "Fast escalator",
			Thresholds: Thresholds{Escalate: 2, Aggregate: 4},
			Triggers:   all,
		},
		{
			ArmID:      ArmAdaptiveEscalator,
			Name:       "Adaptive escalator",
			Thresholds: Thresholds{Escalate: 3, Aggregate: 5},
			Triggers:   all,
		},
		{
			ArmID:      ArmSlowEscalator,
			Name:       "Slow escalator",
			Thresholds: Thresholds{Escalate: 5, Aggregate: 7},
			// Slow escalation leans on explicit signals only.
			Triggers: []Trigger{
				TriggerLearnerRequest,
				TriggerRungExhausted,
				TriggerHintReopened,
			},
		},
		{
			ArmID:      ArmExplanationFirst,
			Name:       "Explanation first",
			Thresholds: Thresholds{Escalate: 1, Aggregate: 3},
			Triggers:   all,
		},
	}
}

// Valid reports whether the profile satisfies its structural invariants.
func (p StrategyProfile) Valid() bool {
	return p.ArmID != "" &&
		p.Thresholds.Escalate >= 1 &&
		p.Thresholds.Aggregate > p.Thresholds.Escalate
}
