package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/lernloop/guidance/internal/bandit"
	"github.com/lernloop/guidance/internal/corpus"
	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/engine"
	"github.com/lernloop/guidance/internal/grounding"
	"github.com/lernloop/guidance/internal/ladder"
	"github.com/lernloop/guidance/internal/store"
)

var testProblem = domain.Problem{
	ID:           "p1",
	Title:        "Sum the even numbers",
	ConceptNames: []string{"loops"},
	ConceptIDs:   []string{"c-loops"},
}

// steadyProfile keeps heuristic thresholds high enough that nothing
// escalates behind a test's back.
func steadyProfile() domain.StrategyProfile {
	return domain.StrategyProfile{
		ArmID:      "steady",
		Name:       "Steady",
		Thresholds: domain.Thresholds{Escalate: 3, Aggregate: 6},
		Triggers: []domain.Trigger{
			domain.TriggerLearnerRequest,
			domain.TriggerRungExhausted,
			domain.TriggerRepeatedError,
			domain.TriggerTimeStuck,
			domain.TriggerHintReopened,
		},
	}
}

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *bandit.Manager, *store.MemoryStore) {
	return newEngineWithProfile(t, steadyProfile(), opts...)
}

func newEngineWithProfile(t *testing.T, p domain.StrategyProfile, opts ...engine.Option) (*engine.Engine, *bandit.Manager, *store.MemoryStore) {
	t.Helper()
	manager := bandit.NewManager([]domain.StrategyProfile{p})
	machine := ladder.NewMachine(ladder.WithAligner(corpus.DefaultTable()))
	builder := grounding.NewBuilder(corpus.DefaultTable(), nil)
	mem := store.NewMemoryStore()
	opts = append([]engine.Option{engine.WithStore(mem)}, opts...)
	return engine.New(manager, machine, builder, opts...), manager, mem
}

func TestRecordAttempt_InitializesEpisode(t *testing.T) {
	eng, _, mem := newTestEngine(t)
	ctx := context.Background()

	it := domain.NewInteraction("l1", "p1", domain.KindAttempt)
	if _, err := eng.RecordAttempt(ctx, "l1", testProblem, it); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	state := eng.StateFor("l1", "p1")
	if state == nil {
		t.Fatal("no episode state after first attempt")
	}
	if state.CurrentRung != domain.RungMicroHint {
		t.Errorf("CurrentRung = %d; want 1", state.CurrentRung)
	}
	if state.ProfileArmID == "" {
		t.Error("episode has no selected profile arm")
	}
	if state.RungAttempts[domain.RungMicroHint] != 1 {
		t.Errorf("rung 1 attempts = %d; want 1", state.RungAttempts[domain.RungMicroHint])
	}

	saved, _ := mem.InteractionsByLearner(ctx, "l1")
	if len(saved) != 1 {
		t.Errorf("persisted interactions = %d; want 1", len(saved))
	}
}

func TestRecordAttempt_HintViewDoesNotCountAsAttempt(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	view := domain.NewInteraction("l1", "p1", domain.KindHintView)
	if _, err := eng.RecordAttempt(ctx, "l1", testProblem, view); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	state := eng.StateFor("l1", "p1")
	if state.RungAttempts[domain.RungMicroHint] != 0 {
		t.Errorf("hint view counted as an attempt: %d", state.RungAttempts[domain.RungMicroHint])
	}
}

func TestRequestHelp_EscalatesOnLearnerRequest(t *testing.T) {
	eng, _, mem := newTestEngine(t)
	ctx := context.Background()

	g, err := eng.RequestHelp(ctx, "l1", testProblem)
	if err != nil {
		t.Fatalf("RequestHelp failed: %v", err)
	}
	if !g.Escalated {
		t.Fatalf("not escalated: %s", g.Decision.Reason)
	}
	if g.Rung != domain.RungExplain {
		t.Errorf("rung = %d; want 2", g.Rung)
	}
	if g.Decision.Trigger != domain.TriggerLearnerRequest {
		t.Errorf("trigger = %q; want learner_request", g.Decision.Trigger)
	}
	if g.Content == "" {
		t.Error("escalation delivered no content")
	}
	if g.Bundle == nil {
		t.Fatal("escalation delivered no bundle")
	}

	state := eng.StateFor("l1", "p1")
	if state.CurrentRung != domain.RungExplain {
		t.Errorf("state rung = %d; want 2", state.CurrentRung)
	}
	if !state.GroundedInSources {
		t.Error("rung 2 state not marked grounded")
	}

	// Help request and hint view both persisted
	saved, _ := mem.InteractionsByLearner(ctx, "l1")
	var kinds []string
	for _, it := range saved {
		kinds = append(kinds, string(it.Kind))
	}
	joined := strings.Join(kinds, ",")
	if !strings.Contains(joined, string(domain.KindHelpRequest)) || !strings.Contains(joined, string(domain.KindHintView)) {
		t.Errorf("persisted kinds = %v; want help_request and hint_view", kinds)
	}
}

func TestRequestHelp_GroundsInLatestError(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	errEvent := domain.NewInteraction("l1", "p1", domain.KindError)
	errEvent.ErrorSubtype = "obo"
	if _, err := eng.RecordAttempt(ctx, "l1", testProblem, errEvent); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	g, err := eng.RequestHelp(ctx, "l1", testProblem)
	if err != nil {
		t.Fatalf("RequestHelp failed: %v", err)
	}
	if g.Bundle.Anchor == nil {
		t.Fatal("bundle has no anchor despite a recorded error")
	}
	if g.Bundle.Anchor.ErrorSubtype != "off-by-one" {
		t.Errorf("anchor subtype = %q; want canonical off-by-one", g.Bundle.Anchor.ErrorSubtype)
	}
	if !strings.Contains(g.Content, "[source:"+g.Bundle.Anchor.RowID+"]") {
		t.Errorf("rung 2 content does not cite the anchor:\n%s", g.Content)
	}
}

func TestRequestHelp_TerminalRungStays(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	// Two help requests walk the ladder to rung 3
	for i := 0; i < 2; i++ {
		if _, err := eng.RequestHelp(ctx, "l1", testProblem); err != nil {
			t.Fatalf("RequestHelp %d failed: %v", i, err)
		}
	}

	g, err := eng.RequestHelp(ctx, "l1", testProblem)
	if err != nil {
		t.Fatalf("RequestHelp at terminal failed: %v", err)
	}
	if g.Escalated {
		t.Error("escalated past the terminal rung")
	}
	if g.Rung != domain.RungReflective {
		t.Errorf("rung = %d; want 3", g.Rung)
	}
}

func TestRequestHelp_PublishesEscalatedEvent(t *testing.T) {
	events := domain.NewEventDispatcher()
	eng, _, _ := newTestEngine(t, engine.WithEventDispatcher(events))

	var got *domain.EscalatedEvent
	events.Subscribe("guidance.escalated", func(event domain.Event) {
		if e, ok := event.(domain.EscalatedEvent); ok {
			got = &e
		}
	})

	if _, err := eng.RequestHelp(context.Background(), "l1", testProblem); err != nil {
		t.Fatalf("RequestHelp failed: %v", err)
	}
	if got == nil {
		t.Fatal("no escalated event published")
	}
	if got.LearnerID != "l1" || got.ProblemID != "p1" {
		t.Errorf("event = %+v; want l1/p1", got)
	}
	if got.ToRung != domain.RungExplain {
		t.Errorf("event ToRung = %d; want 2", got.ToRung)
	}
}

func TestConcludeEpisode_FeedsBanditAndClearsState(t *testing.T) {
	eng, manager, _ := newTestEngine(t)
	ctx := context.Background()

	it := domain.NewInteraction("l1", "p1", domain.KindAttempt)
	if _, err := eng.RecordAttempt(ctx, "l1", testProblem, it); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	armID := eng.StateFor("l1", "p1").ProfileArmID

	signals := domain.OutcomeSignals{Solved: true}
	if err := eng.ConcludeEpisode(ctx, "l1", "p1", signals); err != nil {
		t.Fatalf("ConcludeEpisode failed: %v", err)
	}

	if eng.StateFor("l1", "p1") != nil {
		t.Error("episode state survived conclusion")
	}
	stats := manager.BanditFor("l1").ArmStats(armID)
	if stats == nil || stats.PullCount != 1 {
		t.Errorf("arm stats = %+v; want one pull recorded", stats)
	}
}

func TestConcludeEpisode_UnknownEpisode(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	err := eng.ConcludeEpisode(context.Background(), "l1", "never-started", domain.OutcomeSignals{})
	if err != domain.ErrLadderStateNotFound {
		t.Errorf("ConcludeEpisode = %v; want ErrLadderStateNotFound", err)
	}
}

func TestEpisodes_IndependentPerProblem(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	other := domain.Problem{ID: "p2", Title: "Reverse a list"}
	if _, err := eng.RequestHelp(ctx, "l1", testProblem); err != nil {
		t.Fatalf("RequestHelp failed: %v", err)
	}

	it := domain.NewInteraction("l1", "p2", domain.KindAttempt)
	if _, err := eng.RecordAttempt(ctx, "l1", other, it); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	if got := eng.StateFor("l1", "p1").CurrentRung; got != domain.RungExplain {
		t.Errorf("p1 rung = %d; want 2", got)
	}
	if got := eng.StateFor("l1", "p2").CurrentRung; got != domain.RungMicroHint {
		t.Errorf("p2 rung = %d; want 1", got)
	}
}

func TestStateFor_ReturnsCopy(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	it := domain.NewInteraction("l1", "p1", domain.KindAttempt)
	if _, err := eng.RecordAttempt(ctx, "l1", testProblem, it); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}

	cp := eng.StateFor("l1", "p1")
	cp.CurrentRung = domain.RungReflective
	cp.RungAttempts[domain.RungMicroHint] = 99

	fresh := eng.StateFor("l1", "p1")
	if fresh.CurrentRung != domain.RungMicroHint {
		t.Error("mutating the returned state leaked into the engine")
	}
	if fresh.RungAttempts[domain.RungMicroHint] == 99 {
		t.Error("mutating the returned attempt map leaked into the engine")
	}
}

func TestRecordAttempt_ProactiveEscalationOnRungExhausted(t *testing.T) {
	fast := steadyProfile()
	fast.Thresholds = domain.Thresholds{Escalate: 2, Aggregate: 4}
	eng, _, _ := newEngineWithProfile(t, fast)
	ctx := context.Background()

	g, err := eng.RecordAttempt(ctx, "l1", testProblem, domain.NewInteraction("l1", "p1", domain.KindAttempt))
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if g != nil {
		t.Fatalf("guidance after one attempt = %+v; want none", g)
	}

	g, err = eng.RecordAttempt(ctx, "l1", testProblem, domain.NewInteraction("l1", "p1", domain.KindAttempt))
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if g == nil || !g.Escalated {
		t.Fatal("exhausting the rung 1 attempt budget did not escalate")
	}
	if g.Decision.Trigger != domain.TriggerRungExhausted {
		t.Errorf("trigger = %q; want rung_exhausted", g.Decision.Trigger)
	}
	if g.Rung != domain.RungExplain {
		t.Errorf("rung = %d; want 2", g.Rung)
	}
	if g.Content == "" {
		t.Error("proactive escalation delivered no content")
	}
}

func TestRecordAttempt_ProactiveEscalationOnRepeatedError(t *testing.T) {
	// The steady profile's escalate threshold is 3, so rung_exhausted
	// stays quiet and repeated_error decides.
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	first := domain.NewInteraction("l1", "p1", domain.KindError)
	first.ErrorSubtype = "type-error"
	g, err := eng.RecordAttempt(ctx, "l1", testProblem, first)
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if g != nil {
		t.Fatalf("guidance after one error = %+v; want none", g)
	}

	second := domain.NewInteraction("l1", "p1", domain.KindError)
	second.ErrorSubtype = "type-mismatch"
	g, err = eng.RecordAttempt(ctx, "l1", testProblem, second)
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if g == nil || !g.Escalated {
		t.Fatal("aliased recurring error did not escalate")
	}
	if g.Decision.Trigger != domain.TriggerRepeatedError {
		t.Errorf("trigger = %q; want repeated_error", g.Decision.Trigger)
	}
	if g.Bundle == nil || g.Bundle.Anchor == nil || g.Bundle.Anchor.ErrorSubtype != "type-mismatch" {
		t.Errorf("bundle anchor = %+v; want the canonical recurring subtype", g.Bundle)
	}
}

func TestRecordAttempt_ProfileTriggerSetGatesHeuristics(t *testing.T) {
	explicitOnly := domain.StrategyProfile{
		ArmID:      "explicit-only",
		Name:       "Explicit signals only",
		Thresholds: domain.Thresholds{Escalate: 5, Aggregate: 7},
		Triggers: []domain.Trigger{
			domain.TriggerLearnerRequest,
			domain.TriggerRungExhausted,
			domain.TriggerHintReopened,
		},
	}
	eng, _, _ := newEngineWithProfile(t, explicitOnly)
	ctx := context.Background()

	// off-by-one recurs and is auto-escalation eligible, but neither
	// repeated_error nor auto_escalation_eligible is in the profile.
	for i := 0; i < 3; i++ {
		errEvent := domain.NewInteraction("l1", "p1", domain.KindError)
		errEvent.ErrorSubtype = "off-by-one"
		g, err := eng.RecordAttempt(ctx, "l1", testProblem, errEvent)
		if err != nil {
			t.Fatalf("RecordAttempt %d failed: %v", i, err)
		}
		if g != nil {
			t.Fatalf("heuristic trigger fired despite the profile disabling it: %+v", g.Decision)
		}
	}

	g, err := eng.RequestHelp(ctx, "l1", testProblem)
	if err != nil {
		t.Fatalf("RequestHelp failed: %v", err)
	}
	if !g.Escalated || g.Decision.Trigger != domain.TriggerLearnerRequest {
		t.Errorf("explicit request = %+v; want a learner_request escalation", g.Decision)
	}
}
