package ladder

import (
	"fmt"
	"sort"

	"github.com/lernloop/guidance/internal/domain"
)

// TriggerPriority is the fixed evaluation order for DetermineNextAction.
// Explicit learner intent always outranks heuristic triggers; the first
// trigger that allows escalation wins. The order is a package-level
// value so the contract stays visible and testable.
var TriggerPriority = []domain.Trigger{
	domain.TriggerLearnerRequest,
	domain.TriggerRungExhausted,
	domain.TriggerRepeatedError,
	domain.TriggerTimeStuck,
	domain.TriggerAutoEscalation,
}

// CanEscalate evaluates exactly one trigger condition against the state
// and interaction history.
func (m *Machine) CanEscalate(state *domain.LadderState, trigger domain.Trigger, interactions []domain.Interaction) domain.TriggerDecision {
	if state.Terminal() {
		return domain.TriggerDecision{
			Trigger: trigger,
			Reason:  "already at terminal rung",
		}
	}
	if !state.TriggerEnabled(trigger) {
		return domain.TriggerDecision{
			Trigger: trigger,
			Reason:  "trigger disabled by the active strategy profile",
		}
	}

	switch trigger {
	case domain.TriggerLearnerRequest:
		return domain.TriggerDecision{
			Allowed: true,
			Trigger: trigger,
			Reason:  "explicit learner request",
		}
	case domain.TriggerRungExhausted:
		return m.evalRungExhausted(state)
	case domain.TriggerRepeatedError:
		return m.evalRepeatedError(state, interactions)
	case domain.TriggerTimeStuck:
		return m.evalTimeStuck(state, interactions)
	case domain.TriggerHintReopened:
		return m.evalHintReopened(state, interactions)
	case domain.TriggerAutoEscalation:
		return m.evalAutoEscalation(state, interactions)
	default:
		return domain.TriggerDecision{
			Trigger: trigger,
			Reason:  fmt.Sprintf("unknown trigger %q", trigger),
		}
	}
}

// DetermineNextAction scans TriggerPriority and returns the first
// trigger that allows escalation, or stay. The learner_request rung is
// only considered when the latest interaction is an unserviced help
// request.
func (m *Machine) DetermineNextAction(state *domain.LadderState, interactions []domain.Interaction) domain.NextAction {
	if state.Terminal() {
		return domain.Stay("already at terminal rung")
	}

	for _, trigger := range TriggerPriority {
		if trigger == domain.TriggerLearnerRequest && !pendingHelpRequest(interactions) {
			continue
		}
		decision := m.CanEscalate(state, trigger, interactions)
		if decision.Allowed {
			return domain.NextAction{Escalate: true, Decision: decision}
		}
	}
	return domain.Stay("no trigger condition met")
}

func (m *Machine) evalRungExhausted(state *domain.LadderState) domain.TriggerDecision {
	required := m.rungRequirement(state)
	attempts := state.RungAttempts[state.CurrentRung]
	if required > 0 && attempts >= required {
		return domain.TriggerDecision{
			Allowed:  true,
			Trigger:  domain.TriggerRungExhausted,
			Reason:   "attempt budget at current rung exhausted",
			Evidence: fmt.Sprintf("%d attempts at rung %d (required %d)", attempts, state.CurrentRung, required),
		}
	}
	return domain.TriggerDecision{
		Trigger: domain.TriggerRungExhausted,
		Reason:  fmt.Sprintf("%d of %d attempts at rung %d", attempts, required, state.CurrentRung),
	}
}

func (m *Machine) evalRepeatedError(state *domain.LadderState, interactions []domain.Interaction) domain.TriggerDecision {
	recent := recentErrors(state.ProblemID, interactions, 3)
	counts := make(map[string]int)
	for _, e := range recent {
		counts[m.aligner.Canonical(e.ErrorSubtype)]++
	}
	for subtype, n := range counts {
		if n >= 2 {
			return domain.TriggerDecision{
				Allowed:  true,
				Trigger:  domain.TriggerRepeatedError,
				Reason:   "same canonical error subtype recurring",
				Evidence: fmt.Sprintf("%q seen %d times in last %d errors", subtype, n, len(recent)),
			}
		}
	}
	return domain.TriggerDecision{
		Trigger: domain.TriggerRepeatedError,
		Reason:  "no canonical subtype repeated in recent errors",
	}
}

func (m *Machine) evalTimeStuck(state *domain.LadderState, interactions []domain.Interaction) domain.TriggerDecision {
	var first *domain.Interaction
	for i := range interactions {
		it := &interactions[i]
		if it.ProblemID != state.ProblemID {
			continue
		}
		if it.Kind == domain.KindExecution && it.Success {
			return domain.TriggerDecision{
				Trigger: domain.TriggerTimeStuck,
				Reason:  "a successful execution exists",
			}
		}
		if first == nil || it.OccurredAt.Before(first.OccurredAt) {
			first = it
		}
	}
	if first == nil {
		return domain.TriggerDecision{
			Trigger: domain.TriggerTimeStuck,
			Reason:  "no interactions recorded",
		}
	}
	elapsed := m.now().Sub(first.OccurredAt)
	if elapsed >= m.stuckAfter {
		return domain.TriggerDecision{
			Allowed:  true,
			Trigger:  domain.TriggerTimeStuck,
			Reason:   "no successful execution within the stuck window",
			Evidence: fmt.Sprintf("%s elapsed since first interaction", elapsed.Round(0)),
		}
	}
	return domain.TriggerDecision{
		Trigger: domain.TriggerTimeStuck,
		Reason:  fmt.Sprintf("only %s elapsed", elapsed.Round(0)),
	}
}

func (m *Machine) evalHintReopened(state *domain.LadderState, interactions []domain.Interaction) domain.TriggerDecision {
	var dismissed bool
	for _, it := range sortedByTime(state.ProblemID, interactions) {
		switch it.Kind {
		case domain.KindHelpDismissed:
			dismissed = true
		case domain.KindHelpRequest:
			if dismissed {
				return domain.TriggerDecision{
					Allowed:  true,
					Trigger:  domain.TriggerHintReopened,
					Reason:   "help requested again after dismissal",
					Evidence: fmt.Sprintf("request at %s followed a dismissal", it.OccurredAt.Format("15:04:05")),
				}
			}
		}
	}
	return domain.TriggerDecision{
		Trigger: domain.TriggerHintReopened,
		Reason:  "no help request after a dismissal",
	}
}

func (m *Machine) evalAutoEscalation(state *domain.LadderState, interactions []domain.Interaction) domain.TriggerDecision {
	last := lastError(state.ProblemID, interactions)
	if last == nil {
		return domain.TriggerDecision{
			Trigger: domain.TriggerAutoEscalation,
			Reason:  "no errors recorded",
		}
	}
	canon := m.aligner.Canonical(last.ErrorSubtype)
	if m.aligner.AutoEscalationEligible(last.ErrorSubtype) {
		return domain.TriggerDecision{
			Allowed:  true,
			Trigger:  domain.TriggerAutoEscalation,
			Reason:   "latest error subtype is verified and not excluded",
			Evidence: fmt.Sprintf("subtype %q", canon),
		}
	}
	return domain.TriggerDecision{
		Trigger: domain.TriggerAutoEscalation,
		Reason:  fmt.Sprintf("subtype %q not eligible", canon),
	}
}

// pendingHelpRequest reports whether the most recent interaction is an
// explicit help request.
func pendingHelpRequest(interactions []domain.Interaction) bool {
	var latest *domain.Interaction
	for i := range interactions {
		it := &interactions[i]
		if latest == nil || it.OccurredAt.After(latest.OccurredAt) {
			latest = it
		}
	}
	return latest != nil && latest.Kind == domain.KindHelpRequest
}

// recentErrors returns the last n error interactions for a problem,
// oldest first.
func recentErrors(problemID string, interactions []domain.Interaction, n int) []domain.Interaction {
	var errs []domain.Interaction
	for _, it := range sortedByTime(problemID, interactions) {
		if it.Kind == domain.KindError {
			errs = append(errs, it)
		}
	}
	if len(errs) > n {
		errs = errs[len(errs)-n:]
	}
	return errs
}

// lastError returns the most recent error interaction for a problem.
func lastError(problemID string, interactions []domain.Interaction) *domain.Interaction {
	var last *domain.Interaction
	for i := range interactions {
		it := &interactions[i]
		if it.ProblemID != problemID || it.Kind != domain.KindError {
			continue
		}
		if last == nil || it.OccurredAt.After(last.OccurredAt) {
			last = it
		}
	}
	return last
}

func sortedByTime(problemID string, interactions []domain.Interaction) []domain.Interaction {
	var out []domain.Interaction
	for _, it := range interactions {
		if it.ProblemID == problemID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}
