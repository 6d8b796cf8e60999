package domain

// Trigger is a named condition that permits moving to the next rung.
type Trigger string

const (
	// TriggerLearnerRequest is an explicit help request from the learner.
	TriggerLearnerRequest Trigger = "learner_request"
	// TriggerRungExhausted fires after enough attempts at the current rung.
	TriggerRungExhausted Trigger = "rung_exhausted"
	// TriggerRepeatedError fires when the same canonical error subtype
	// recurs among the recent errors for a problem.
	TriggerRepeatedError Trigger = "repeated_error"
	// TriggerTimeStuck fires after prolonged time without a successful run.
	TriggerTimeStuck Trigger = "time_stuck"
	// TriggerHintReopened fires when help is requested again after a
	// prior dismissal.
	TriggerHintReopened Trigger = "hint_reopened"
	// TriggerAutoEscalation fires when the latest error subtype is marked
	// verified and not excluded in the reference alignment table.
	TriggerAutoEscalation Trigger = "auto_escalation_eligible"
)

// TriggerDecision is the outcome of evaluating a single trigger.
type TriggerDecision struct {
	Allowed  bool    `json:"allowed"`
	Trigger  Trigger `json:"trigger"`
	Reason   string  `json:"reason"`
	Evidence string  `json:"evidence,omitempty"`
}

// NextAction is the result of the priority-ordered trigger scan.
type NextAction struct {
	Escalate bool            `json:"escalate"`
	Decision TriggerDecision `json:"decision"`
}

// Stay returns the no-escalation action.
func Stay(reason string) NextAction {
	return NextAction{Decision: TriggerDecision{Reason: reason}}
}
