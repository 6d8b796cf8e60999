package reward_test

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/reward"
)

func TestDefaultWeights_AbsoluteSum(t *testing.T) {
	w := reward.DefaultWeights()
	sum := math.Abs(w.IndependentSuccess) + math.Abs(w.ErrorReduction) +
		math.Abs(w.DelayedRetention) + math.Abs(w.DependencyPenalty) +
		math.Abs(w.TimeEfficiency)
	if math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("absolute weight sum = %v; want 1.0", sum)
	}
}

func TestScore_NeutralComponents(t *testing.T) {
	got := reward.Score(reward.Components{}, reward.DefaultWeights())
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Score of all-zero components = %v; want 0.5", got)
	}
}

func TestScore_BestCase(t *testing.T) {
	c := reward.Components{
		IndependentSuccess: 1,
		ErrorReduction:     1,
		DelayedRetention:   1,
		DependencyPenalty:  0,
		TimeEfficiency:     1,
	}
	got := reward.Score(c, reward.DefaultWeights())
	// 0.35 + 0.25 + 0.20 + 0 + 0.05 = 0.85; rescaled to 0.925
	if math.Abs(got-0.925) > 1e-12 {
		t.Errorf("best-case score = %v; want 0.925", got)
	}
}

func TestScore_WorstCase(t *testing.T) {
	c := reward.Components{
		IndependentSuccess: -1,
		ErrorReduction:     -1,
		DelayedRetention:   -1,
		DependencyPenalty:  -1,
		TimeEfficiency:     -1,
	}
	got := reward.Score(c, reward.DefaultWeights())
	// -0.35 - 0.25 - 0.20 + 0.15 - 0.05 = -0.70; rescaled to 0.15
	if math.Abs(got-0.15) > 1e-12 {
		t.Errorf("worst-case score = %v; want 0.15", got)
	}
}

func TestScore_ClampsOutOfRangeComponents(t *testing.T) {
	over := reward.Components{IndependentSuccess: 10, DependencyPenalty: 5}
	clamped := reward.Components{IndependentSuccess: 1, DependencyPenalty: 0}

	w := reward.DefaultWeights()
	if got, want := reward.Score(over, w), reward.Score(clamped, w); got != want {
		t.Errorf("Score with out-of-range components = %v; want clamped %v", got, want)
	}
}

func TestScore_AlwaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	w := reward.DefaultWeights()
	for i := 0; i < 1000; i++ {
		c := reward.Components{
			IndependentSuccess: rng.Float64()*4 - 2,
			ErrorReduction:     rng.Float64()*4 - 2,
			DelayedRetention:   rng.Float64()*4 - 2,
			DependencyPenalty:  rng.Float64()*4 - 2,
			TimeEfficiency:     rng.Float64()*4 - 2,
		}
		got := reward.Score(c, w)
		if got < 0 || got > 1 {
			t.Fatalf("Score(%+v) = %v; want in [0,1]", c, got)
		}
	}
}

func TestIndependentSuccess(t *testing.T) {
	tests := []struct {
		solved, usedExplanation bool
		want                    float64
	}{
		{true, false, 1.0},
		{true, true, 0.5},
		{false, false, 0},
		{false, true, 0},
	}
	for _, tt := range tests {
		got := reward.IndependentSuccess(tt.solved, tt.usedExplanation)
		if got != tt.want {
			t.Errorf("IndependentSuccess(%v, %v) = %v; want %v", tt.solved, tt.usedExplanation, got, tt.want)
		}
	}
}

func TestErrorReduction(t *testing.T) {
	tests := []struct {
		errors, baseline int
		want             float64
	}{
		{0, 10, 1},
		{10, 10, 0},
		{20, 10, -1},
		{5, 10, 0.5},
		{30, 10, -1}, // clamped
		{3, 0, 0},    // no baseline
	}
	for _, tt := range tests {
		got := reward.ErrorReduction(tt.errors, tt.baseline)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ErrorReduction(%d, %d) = %v; want %v", tt.errors, tt.baseline, got, tt.want)
		}
	}
}

func TestTimeEfficiency(t *testing.T) {
	tests := []struct {
		elapsed, median time.Duration
		want            float64
	}{
		{0, 10 * time.Minute, 1},
		{10 * time.Minute, 10 * time.Minute, 0},
		{20 * time.Minute, 10 * time.Minute, -1},
		{5 * time.Minute, 10 * time.Minute, 0.5},
		{time.Hour, 10 * time.Minute, -1}, // clamped
		{5 * time.Minute, 0, 0},           // no median
	}
	for _, tt := range tests {
		got := reward.TimeEfficiency(tt.elapsed, tt.median)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("TimeEfficiency(%v, %v) = %v; want %v", tt.elapsed, tt.median, got, tt.want)
		}
	}
}

func TestFromSignals(t *testing.T) {
	s := domain.OutcomeSignals{
		Solved:            true,
		UsedExplanation:   true,
		ErrorCount:        2,
		BaselineErrors:    4,
		DelayedRetention:  0.8,
		DependencyPenalty: -0.2,
		Elapsed:           6 * time.Minute,
		MedianElapsed:     12 * time.Minute,
	}

	c := reward.FromSignals(s)
	if c.IndependentSuccess != 0.5 {
		t.Errorf("IndependentSuccess = %v; want 0.5", c.IndependentSuccess)
	}
	if math.Abs(c.ErrorReduction-0.5) > 1e-12 {
		t.Errorf("ErrorReduction = %v; want 0.5", c.ErrorReduction)
	}
	if c.DelayedRetention != 0.8 {
		t.Errorf("DelayedRetention = %v; want 0.8", c.DelayedRetention)
	}
	if c.DependencyPenalty != -0.2 {
		t.Errorf("DependencyPenalty = %v; want -0.2", c.DependencyPenalty)
	}
	if math.Abs(c.TimeEfficiency-0.5) > 1e-12 {
		t.Errorf("TimeEfficiency = %v; want 0.5", c.TimeEfficiency)
	}
}

func TestFromSignals_ClampsRawSignals(t *testing.T) {
	c := reward.FromSignals(domain.OutcomeSignals{
		DelayedRetention:  3,
		DependencyPenalty: 0.5, // penalties never go positive
	})
	if c.DelayedRetention != 1 {
		t.Errorf("DelayedRetention = %v; want clamped 1", c.DelayedRetention)
	}
	if c.DependencyPenalty != 0 {
		t.Errorf("DependencyPenalty = %v; want clamped 0", c.DependencyPenalty)
	}
}
