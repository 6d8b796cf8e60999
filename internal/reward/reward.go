// Package reward maps episode outcome signals to a scalar in [0,1] that
// closes the feedback loop into the bandit.
package reward

import (
	"time"

	"github.com/lernloop/guidance/internal/domain"
)

// Components are the individual outcome scores, each in [-1,1]
// (DependencyPenalty in [-1,0]).
type Components struct {
	IndependentSuccess float64
	ErrorReduction     float64
	DelayedRetention   float64
	DependencyPenalty  float64
	TimeEfficiency     float64
}

// Weights combines components into a single reward. The absolute values
// always sum to 1.0.
type Weights struct {
	IndependentSuccess float64
	ErrorReduction     float64
	DelayedRetention   float64
	DependencyPenalty  float64
	TimeEfficiency     float64
}

// DefaultWeights returns the canonical weighting.
func DefaultWeights() Weights {
	return Weights{
		IndependentSuccess: 0.35,
		ErrorReduction:     0.25,
		DelayedRetention:   0.20,
		DependencyPenalty:  -0.15,
		TimeEfficiency:     0.05,
	}
}

// Score combines weighted components and rescales from [-1,1] to [0,1].
func Score(c Components, w Weights) float64 {
	sum := w.IndependentSuccess*clamp(c.IndependentSuccess, -1, 1) +
		w.ErrorReduction*clamp(c.ErrorReduction, -1, 1) +
		w.DelayedRetention*clamp(c.DelayedRetention, -1, 1) +
		w.DependencyPenalty*clamp(c.DependencyPenalty, -1, 0) +
		w.TimeEfficiency*clamp(c.TimeEfficiency, -1, 1)
	return clamp((sum+1)/2, 0, 1)
}

// FromSignals derives components from raw episode signals.
func FromSignals(s domain.OutcomeSignals) Components {
	return Components{
		IndependentSuccess: IndependentSuccess(s.Solved, s.UsedExplanation),
		ErrorReduction:     ErrorReduction(s.ErrorCount, s.BaselineErrors),
		DelayedRetention:   clamp(s.DelayedRetention, -1, 1),
		DependencyPenalty:  clamp(s.DependencyPenalty, -1, 0),
		TimeEfficiency:     TimeEfficiency(s.Elapsed, s.MedianElapsed),
	}
}

// IndependentSuccess scores how the problem was solved: 1.0 without an
// explanation, 0.5 with one, 0 unsolved.
func IndependentSuccess(solved, usedExplanation bool) float64 {
	switch {
	case solved && !usedExplanation:
		return 1.0
	case solved:
		return 0.5
	default:
		return 0
	}
}

// ErrorReduction scores (baseline-errors)/baseline, clamped to [-1,1].
// A zero baseline yields 0: there is nothing to improve against.
func ErrorReduction(errors, baseline int) float64 {
	if baseline == 0 {
		return 0
	}
	return clamp(float64(baseline-errors)/float64(baseline), -1, 1)
}

// TimeEfficiency scores (median-elapsed)/median, clamped to [-1,1].
// A zero median yields 0.
func TimeEfficiency(elapsed, median time.Duration) float64 {
	if median == 0 {
		return 0
	}
	return clamp(float64(median-elapsed)/float64(median), -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
