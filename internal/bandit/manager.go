package bandit

import (
	"log/slog"
	"sync"

	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/reward"
)

// Manager owns one Bandit per learner identity. Bandits are created
// lazily on first sight of a learner and cached by identity, so repeat
// calls always return the same instance.
type Manager struct {
	mu       sync.Mutex
	bandits  map[string]*Bandit
	profiles map[string]domain.StrategyProfile
	armIDs   []string
	weights  reward.Weights
	events   *domain.EventDispatcher
	loader   SnapshotLoader
}

// SnapshotLoader fetches persisted bandit state for a learner. Nil data
// with nil error means no snapshot exists.
type SnapshotLoader func(learnerID string) ([]byte, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRewardWeights overrides the default reward weights.
func WithRewardWeights(w reward.Weights) ManagerOption {
	return func(m *Manager) { m.weights = w }
}

// WithEventDispatcher attaches a dispatcher for bandit update events.
func WithEventDispatcher(d *domain.EventDispatcher) ManagerOption {
	return func(m *Manager) { m.events = d }
}

// WithSnapshotLoader restores persisted posteriors on first sight of a
// learner, before any profile selection. Load failures fall back to the
// uniform prior.
func WithSnapshotLoader(l SnapshotLoader) ManagerOption {
	return func(m *Manager) { m.loader = l }
}

// NewManager creates a manager over the given strategy profiles. Each
// profile contributes one arm; invalid profiles are skipped with a
// warning since a bad profile table is a deploy-time mistake, not a
// per-request failure.
func NewManager(profiles []domain.StrategyProfile, opts ...ManagerOption) *Manager {
	m := &Manager{
		bandits:  make(map[string]*Bandit),
		profiles: make(map[string]domain.StrategyProfile, len(profiles)),
		weights:  reward.DefaultWeights(),
	}
	for _, p := range profiles {
		if !p.Valid() {
			slog.Warn("skipping invalid strategy profile", "arm_id", p.ArmID)
			continue
		}
		if _, ok := m.profiles[p.ArmID]; ok {
			continue
		}
		m.profiles[p.ArmID] = p
		m.armIDs = append(m.armIDs, p.ArmID)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BanditFor returns the learner's bandit, creating it on first use.
func (m *Manager) BanditFor(learnerID string) *Bandit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banditForLocked(learnerID)
}

func (m *Manager) banditForLocked(learnerID string) *Bandit {
	if b, ok := m.bandits[learnerID]; ok {
		return b
	}
	b := New(m.armIDs)
	if m.loader != nil {
		data, err := m.loader(learnerID)
		switch {
		case err != nil:
			slog.Warn("failed to load bandit snapshot, starting fresh",
				"learner_id", learnerID, "error", err)
		case data != nil:
			if err := b.Deserialize(data); err != nil {
				slog.Warn("corrupt bandit snapshot, starting fresh",
					"learner_id", learnerID, "error", err)
				b = New(m.armIDs)
			}
		}
	}
	m.bandits[learnerID] = b
	return b
}

// SelectProfile samples the learner's bandit and resolves the chosen
// arm to its strategy profile.
func (m *Manager) SelectProfile(learnerID string) (string, domain.StrategyProfile, error) {
	m.mu.Lock()
	b := m.banditForLocked(learnerID)
	m.mu.Unlock()

	armID, err := b.SelectArm()
	if err != nil {
		return "", domain.StrategyProfile{}, err
	}
	m.mu.Lock()
	profile := m.profiles[armID]
	m.mu.Unlock()
	return armID, profile, nil
}

// Profile resolves an arm id to its profile. The second return is false
// for unknown arms.
func (m *Manager) Profile(armID string) (domain.StrategyProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[armID]
	return p, ok
}

// RecordOutcome scores the episode signals and feeds the reward into the
// learner's bandit. An unknown learner is a silent no-op: the episode
// predates this process and there is no posterior to update.
func (m *Manager) RecordOutcome(learnerID, armID string, signals domain.OutcomeSignals) {
	m.mu.Lock()
	b, ok := m.bandits[learnerID]
	m.mu.Unlock()
	if !ok {
		return
	}

	r := reward.Score(reward.FromSignals(signals), m.weights)
	b.UpdateArm(armID, r)

	if stats := b.ArmStats(armID); stats != nil {
		slog.Debug("bandit updated",
			"learner_id", learnerID,
			"arm_id", armID,
			"reward", r,
			"pull_count", stats.PullCount,
		)
		if m.events != nil {
			m.events.Publish(domain.NewBanditUpdatedEvent(learnerID, armID, r, stats.PullCount))
		}
	}
}

// ResetLearner discards the learner's bandit state.
func (m *Manager) ResetLearner(learnerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bandits, learnerID)
}

// ClearAll discards all per-learner state.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bandits = make(map[string]*Bandit)
}

// Learners returns the ids of all learners with live bandit state.
func (m *Manager) Learners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.bandits))
	for id := range m.bandits {
		out = append(out, id)
	}
	return out
}

// Snapshot serializes one learner's bandit, or nil for unknown learners.
func (m *Manager) Snapshot(learnerID string) ([]byte, error) {
	m.mu.Lock()
	b, ok := m.bandits[learnerID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return b.Serialize()
}

// Restore loads persisted bandit state for a learner, replacing any
// in-memory state.
func (m *Manager) Restore(learnerID string, data []byte) error {
	b := New(m.armIDs)
	if err := b.Deserialize(data); err != nil {
		return err
	}
	m.mu.Lock()
	m.bandits[learnerID] = b
	m.mu.Unlock()
	return nil
}
