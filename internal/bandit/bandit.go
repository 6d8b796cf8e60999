// Package bandit implements per-learner Thompson Sampling over
// Beta-Bernoulli arms, one arm per escalation-strategy profile.
package bandit

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lernloop/guidance/internal/domain"
)

// Bandit owns a fixed set of arms for one learner. Selection is
// intentionally stochastic; every other operation is deterministic
// given state. All methods are safe for concurrent use.
type Bandit struct {
	mu    sync.Mutex
	arms  map[string]*domain.Arm
	order []string // registration order, kept stable for serialization
	rng   *rand.Rand
}

// Option configures a Bandit.
type Option func(*Bandit)

// WithSeed fixes the sampler seed. Tests use this for reproducible draws.
func WithSeed(s1, s2 uint64) Option {
	return func(b *Bandit) {
		b.rng = rand.New(rand.NewPCG(s1, s2))
	}
}

// New creates a bandit with one Beta(1,1) arm per id.
func New(armIDs []string, opts ...Option) *Bandit {
	b := &Bandit{
		arms: make(map[string]*domain.Arm, len(armIDs)),
		rng:  rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
	for _, id := range armIDs {
		if _, ok := b.arms[id]; ok {
			continue
		}
		b.arms[id] = domain.NewArm(id)
		b.order = append(b.order, id)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SelectArm draws a Beta sample per arm and returns the arm id with the
// maximum sample. A bandit with zero arms is a configuration error.
func (b *Bandit) SelectArm() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) == 0 {
		return "", domain.ErrNoArms
	}

	best := ""
	bestSample := math.Inf(-1)
	for _, id := range b.order {
		arm := b.arms[id]
		sample := sampleBeta(b.rng, arm.Alpha, arm.Beta)
		if sample > bestSample {
			bestSample = sample
			best = id
		}
	}
	return best, nil
}

// UpdateArm absorbs a reward into the arm posterior. Rewards are clamped
// to [0,1]. Unknown arm ids are a silent no-op.
func (b *Bandit) UpdateArm(armID string, reward float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arm, ok := b.arms[armID]
	if !ok {
		return
	}
	reward = clamp01(reward)
	arm.Alpha += reward
	arm.Beta += 1 - reward
	arm.PullCount++
	arm.CumulativeReward += reward
}

// ArmStats returns posterior statistics for an arm, or nil if the arm
// id is unknown.
func (b *Bandit) ArmStats(armID string) *domain.ArmStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	arm, ok := b.arms[armID]
	if !ok {
		return nil
	}
	mean := arm.MeanReward()
	sd := math.Sqrt(arm.Alpha * arm.Beta /
		((arm.Alpha + arm.Beta) * (arm.Alpha + arm.Beta) * (arm.Alpha + arm.Beta + 1)))
	return &domain.ArmStats{
		ArmID:      armID,
		MeanReward: mean,
		PullCount:  arm.PullCount,
		ConfidenceInterval: [2]float64{
			math.Max(0, mean-1.96*sd),
			math.Min(1, mean+1.96*sd),
		},
	}
}

// BestArm returns a copy of the arm with the highest empirical mean
// reward, or nil if no arms exist.
func (b *Bandit) BestArm() *domain.Arm {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best *domain.Arm
	for _, id := range b.order {
		arm := b.arms[id]
		if best == nil || arm.MeanReward() > best.MeanReward() {
			best = arm
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// Reset restores every arm to the uniform prior.
func (b *Bandit) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, arm := range b.arms {
		arm.Reset()
	}
}

// ArmIDs returns the arm ids in registration order.
func (b *Bandit) ArmIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// snapshot is the serialized bandit state, including prior parameters,
// for persistence and reload across sessions.
type snapshot struct {
	Arms []domain.Arm `json:"arms"`
}

// Serialize round-trips the full bandit state to JSON.
func (b *Bandit) Serialize() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := snapshot{Arms: make([]domain.Arm, 0, len(b.order))}
	for _, id := range b.order {
		snap.Arms = append(snap.Arms, *b.arms[id])
	}
	return json.Marshal(snap)
}

// Deserialize restores bandit state from a Serialize payload. The arm
// set is replaced wholesale.
func (b *Bandit) Deserialize(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode bandit snapshot: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.arms = make(map[string]*domain.Arm, len(snap.Arms))
	b.order = b.order[:0]
	for i := range snap.Arms {
		arm := snap.Arms[i]
		if arm.Alpha < 1 {
			arm.Alpha = 1
		}
		if arm.Beta < 1 {
			arm.Beta = 1
		}
		b.arms[arm.ID] = &arm
		b.order = append(b.order, arm.ID)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
