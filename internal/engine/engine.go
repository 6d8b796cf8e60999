// Package engine orchestrates one guidance episode: profile selection,
// trigger evaluation, escalation, grounding, content delivery, and the
// closing reward update.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lernloop/guidance/internal/bandit"
	"github.com/lernloop/guidance/internal/content"
	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/grounding"
	"github.com/lernloop/guidance/internal/ladder"
	"github.com/lernloop/guidance/internal/queue"
	"github.com/lernloop/guidance/internal/store"
)

// Engine is the per-process guidance service. All state transitions for
// one learner run under that learner's lock; different learners never
// contend.
type Engine struct {
	manager   *bandit.Manager
	machine   *ladder.Machine
	builder   *grounding.Builder
	generator *content.Generator
	store     store.Store
	producer  *queue.Producer
	events    *domain.EventDispatcher
	topK      int

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]*domain.LadderState
}

// Option configures an Engine.
type Option func(*Engine)

// WithGenerator attaches a content generator. Without one, guidance is
// rendered from the deterministic templates.
func WithGenerator(g *content.Generator) Option {
	return func(e *Engine) { e.generator = g }
}

// WithStore attaches a persistence backend for interaction history.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithProducer attaches a telemetry producer. Publish failures are
// logged, never surfaced.
func WithProducer(p *queue.Producer) Option {
	return func(e *Engine) { e.producer = p }
}

// WithEventDispatcher attaches an in-process event dispatcher.
func WithEventDispatcher(d *domain.EventDispatcher) Option {
	return func(e *Engine) { e.events = d }
}

// WithTopK overrides the passage count per retrieval bundle.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// New creates an Engine over the given collaborators.
func New(manager *bandit.Manager, machine *ladder.Machine, builder *grounding.Builder, opts ...Option) *Engine {
	e := &Engine{
		manager: manager,
		machine: machine,
		builder: builder,
		topK:    grounding.DefaultTopK,
		locks:   make(map[string]*sync.Mutex),
		states:  make(map[string]*domain.LadderState),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.generator == nil {
		e.generator = content.NewGenerator()
	}
	return e
}

// Guidance is what the learner receives from a help request.
type Guidance struct {
	Escalated bool                    `json:"escalated"`
	Rung      domain.Rung             `json:"rung"`
	Content   string                  `json:"content,omitempty"`
	Decision  domain.TriggerDecision  `json:"decision"`
	Bundle    *domain.RetrievalBundle `json:"bundle,omitempty"`
}

// learnerLock returns the mutex guarding one learner's episodes.
func (e *Engine) learnerLock(learnerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[learnerID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[learnerID] = l
	}
	return l
}

func stateKey(learnerID, problemID string) string {
	return learnerID + "|" + problemID
}

// stateFor returns the episode state, creating it on first touch. The
// caller must hold the learner's lock.
func (e *Engine) stateFor(learnerID string, problem domain.Problem) *domain.LadderState {
	key := stateKey(learnerID, problem.ID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[key]; ok {
		return s
	}
	s := domain.NewLadderState(learnerID, problem.ID)
	if armID, profile, err := e.manager.SelectProfile(learnerID); err == nil {
		s.ProfileArmID = armID
		s.Thresholds = profile.Thresholds
		s.EnabledTriggers = append([]domain.Trigger(nil), profile.Triggers...)
		slog.Info("strategy profile selected",
			"learner_id", learnerID,
			"problem_id", problem.ID,
			"arm_id", armID,
		)
	}
	e.states[key] = s
	return s
}

// StateFor returns a copy of the current episode state, nil when the
// episode has not started.
func (e *Engine) StateFor(learnerID, problemID string) *domain.LadderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[stateKey(learnerID, problemID)]
	if !ok {
		return nil
	}
	cp := *s
	cp.RungAttempts = make(map[domain.Rung]int, len(s.RungAttempts))
	for r, n := range s.RungAttempts {
		cp.RungAttempts[r] = n
	}
	cp.EscalationHistory = append([]domain.Escalation(nil), s.EscalationHistory...)
	cp.CurrentConceptIDs = append([]string(nil), s.CurrentConceptIDs...)
	cp.EnabledTriggers = append([]domain.Trigger(nil), s.EnabledTriggers...)
	return &cp
}

// RecordAttempt registers a learner interaction, counts solution
// attempts against the current rung, and evaluates the heuristic
// triggers. When one fires, the rung advances and the returned guidance
// carries the proactively delivered content; otherwise it is nil.
func (e *Engine) RecordAttempt(ctx context.Context, learnerID string, problem domain.Problem, it domain.Interaction) (*Guidance, error) {
	lock := e.learnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()

	if it.LearnerID == "" {
		it.LearnerID = learnerID
	}
	if it.ProblemID == "" {
		it.ProblemID = problem.ID
	}
	if it.OccurredAt.IsZero() {
		it.OccurredAt = time.Now()
	}

	state := e.stateFor(learnerID, problem)
	if it.Kind == domain.KindAttempt || it.Kind == domain.KindError {
		e.machine.RecordRungAttempt(state)
	}

	interactions, err := e.history(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		if err := e.store.SaveInteraction(ctx, it); err != nil {
			return nil, fmt.Errorf("save interaction: %w", err)
		}
	}
	interactions = append(interactions, it)

	action := e.machine.DetermineNextAction(state, interactions)
	if !action.Escalate {
		return nil, nil
	}
	g := e.deliverEscalation(ctx, state, problem, interactions, action)
	return g, nil
}

// RequestHelp evaluates the triggers and, when one allows, escalates
// and delivers grounded guidance for the new rung. When no trigger
// fires the response says so with the blocking decision.
func (e *Engine) RequestHelp(ctx context.Context, learnerID string, problem domain.Problem) (*Guidance, error) {
	lock := e.learnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()

	state := e.stateFor(learnerID, problem)

	interactions, err := e.history(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	request := domain.NewInteraction(learnerID, problem.ID, domain.KindHelpRequest)
	interactions = append(interactions, request)
	if e.store != nil {
		if err := e.store.SaveInteraction(ctx, request); err != nil {
			return nil, fmt.Errorf("save help request: %w", err)
		}
	}

	action := e.machine.DetermineNextAction(state, interactions)
	if !action.Escalate {
		return &Guidance{
			Rung:     state.CurrentRung,
			Decision: action.Decision,
		}, nil
	}

	return e.deliverEscalation(ctx, state, problem, interactions, action), nil
}

// deliverEscalation advances the rung and produces grounded guidance
// for it: bundle, content, persisted hint view, and the telemetry
// publishes. The caller must hold the learner's lock.
func (e *Engine) deliverEscalation(ctx context.Context, state *domain.LadderState, problem domain.Problem, interactions []domain.Interaction, action domain.NextAction) *Guidance {
	bundle := e.builder.Build(state.LearnerID, problem, interactions, "", e.topK)

	esc, ok := e.machine.Escalate(state, action.Decision.Trigger, action.Decision.Evidence, bundle.ConceptCandidates)
	if !ok {
		return &Guidance{
			Rung:     state.CurrentRung,
			Decision: action.Decision,
		}
	}

	text := e.generator.Generate(ctx, state.CurrentRung, problem, bundle)

	view := domain.NewInteraction(state.LearnerID, problem.ID, domain.KindHintView)
	view.SourceIDs = bundle.RetrievedSourceIDs
	view.Detail = state.CurrentRung.String()
	if e.store != nil {
		if err := e.store.SaveInteraction(ctx, view); err != nil {
			slog.Warn("failed to persist hint view",
				"learner_id", state.LearnerID, "problem_id", problem.ID, "error", err)
		}
	}

	e.publishEscalation(ctx, state.LearnerID, problem.ID, esc, bundle.RetrievedSourceIDs)

	return &Guidance{
		Escalated: true,
		Rung:      state.CurrentRung,
		Content:   text,
		Decision:  action.Decision,
		Bundle:    bundle,
	}
}

// ConcludeEpisode closes the episode, feeds the reward into the
// learner's bandit, and clears the ladder state.
func (e *Engine) ConcludeEpisode(ctx context.Context, learnerID, problemID string, signals domain.OutcomeSignals) error {
	lock := e.learnerLock(learnerID)
	lock.Lock()
	defer lock.Unlock()

	key := stateKey(learnerID, problemID)
	e.mu.Lock()
	state, ok := e.states[key]
	if ok {
		delete(e.states, key)
	}
	e.mu.Unlock()
	if !ok {
		return domain.ErrLadderStateNotFound
	}

	e.manager.RecordOutcome(learnerID, state.ProfileArmID, signals)

	if e.producer != nil {
		msg := &queue.OutcomeMessage{
			LearnerID: learnerID,
			ProblemID: problemID,
			ArmID:     state.ProfileArmID,
			Signals:   signals,
		}
		if err := e.producer.PublishOutcome(ctx, msg); err != nil {
			slog.Warn("failed to publish outcome",
				"learner_id", learnerID, "problem_id", problemID, "error", err)
		}
	}

	slog.Info("episode concluded",
		"learner_id", learnerID,
		"problem_id", problemID,
		"arm_id", state.ProfileArmID,
		"final_rung", state.CurrentRung,
		"solved", signals.Solved,
	)
	return nil
}

// history loads the learner's interaction history, empty without a
// store.
func (e *Engine) history(ctx context.Context, learnerID string) ([]domain.Interaction, error) {
	if e.store == nil {
		return nil, nil
	}
	interactions, err := e.store.InteractionsByLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	return interactions, nil
}

func (e *Engine) publishEscalation(ctx context.Context, learnerID, problemID string, esc domain.Escalation, sourceIDs []string) {
	if e.events != nil {
		e.events.Publish(domain.NewEscalatedEvent(learnerID, problemID, esc))
	}
	if e.producer != nil {
		msg := queue.EscalationFromEvent(learnerID, problemID, esc, sourceIDs)
		if err := e.producer.PublishEscalation(ctx, msg); err != nil {
			slog.Warn("failed to publish escalation",
				"learner_id", learnerID, "problem_id", problemID, "error", err)
		}
	}
}
