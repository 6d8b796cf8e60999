// Package ladder implements the three-rung guidance state machine:
// trigger evaluation, forward-only escalation, and per-rung content
// contracts.
package ladder

import (
	"time"

	"github.com/lernloop/guidance/internal/domain"
)

// Aligner resolves error subtypes against the reference alignment
// table. The corpus table satisfies this.
type Aligner interface {
	Canonical(subtype string) string
	AutoEscalationEligible(subtype string) bool
}

// identityAligner is the fallback when no corpus is configured: subtypes
// canonicalize to themselves and nothing is auto-escalation eligible.
type identityAligner struct{}

func (identityAligner) Canonical(subtype string) string    { return subtype }
func (identityAligner) AutoEscalationEligible(string) bool { return false }

// Default attempt requirements per rung before rung_exhausted may fire.
const (
	DefaultRung1Attempts = 3
	DefaultRung2Attempts = 2
)

// StuckAfter is the default time_stuck window.
const StuckAfter = 5 * time.Minute

// Machine evaluates escalation triggers and advances ladder state.
// Machines are stateless across calls; all per-learner state lives in
// the LadderState passed in.
type Machine struct {
	aligner    Aligner
	stuckAfter time.Duration
	now        func() time.Time
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithAligner attaches the reference alignment table.
func WithAligner(a Aligner) MachineOption {
	return func(m *Machine) { m.aligner = a }
}

// WithStuckAfter overrides the time_stuck window.
func WithStuckAfter(d time.Duration) MachineOption {
	return func(m *Machine) { m.stuckAfter = d }
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a trigger-evaluating machine.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		aligner:    identityAligner{},
		stuckAfter: StuckAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordRungAttempt increments the attempt counter for the current rung
// only.
func (m *Machine) RecordRungAttempt(state *domain.LadderState) {
	if state.RungAttempts == nil {
		state.RungAttempts = make(map[domain.Rung]int)
	}
	state.RungAttempts[state.CurrentRung]++
}

// Escalate advances the rung by exactly one and records the transition.
// At rung 3 it is a no-op and returns false; the rung never decreases.
func (m *Machine) Escalate(state *domain.LadderState, trigger domain.Trigger, evidence string, conceptIDs []string) (domain.Escalation, bool) {
	if state.Terminal() {
		return domain.Escalation{}, false
	}

	esc := domain.Escalation{
		FromRung:  state.CurrentRung,
		ToRung:    state.CurrentRung + 1,
		Trigger:   trigger,
		Timestamp: m.now(),
		Evidence:  evidence,
	}
	state.CurrentRung = esc.ToRung
	state.EscalationHistory = append(state.EscalationHistory, esc)
	state.GroundedInSources = state.CurrentRung >= domain.RungExplain
	if len(conceptIDs) > 0 {
		state.CurrentConceptIDs = conceptIDs
	}
	return esc, true
}

// rungRequirement returns the attempts needed at a rung before
// rung_exhausted fires. A profile's escalate threshold governs rung 1;
// rung 2 keeps the fixed requirement.
func (m *Machine) rungRequirement(state *domain.LadderState) int {
	switch state.CurrentRung {
	case domain.RungMicroHint:
		if state.Thresholds.Escalate > 0 {
			return state.Thresholds.Escalate
		}
		return DefaultRung1Attempts
	case domain.RungExplain:
		return DefaultRung2Attempts
	default:
		return 0
	}
}
