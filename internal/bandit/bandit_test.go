package bandit_test

import (
	"math"
	"testing"

	"github.com/lernloop/guidance/internal/bandit"
	"github.com/lernloop/guidance/internal/domain"
)

var testArms = []string{
	domain.ArmFastEscalator,
	domain.ArmAdaptiveEscalator,
	domain.ArmSlowEscalator,
	domain.ArmExplanationFirst,
}

func TestNew_UniformPrior(t *testing.T) {
	b := bandit.New(testArms)

	for _, id := range testArms {
		stats := b.ArmStats(id)
		if stats == nil {
			t.Fatalf("ArmStats(%q) = nil; want stats", id)
		}
		if stats.MeanReward != 0.5 {
			t.Errorf("arm %q prior mean = %v; want 0.5", id, stats.MeanReward)
		}
		if stats.PullCount != 0 {
			t.Errorf("arm %q prior pull count = %d; want 0", id, stats.PullCount)
		}
	}
}

func TestNew_DeduplicatesArmIDs(t *testing.T) {
	b := bandit.New([]string{"a", "b", "a", "b", "a"})

	ids := b.ArmIDs()
	if len(ids) != 2 {
		t.Fatalf("ArmIDs length = %d; want 2", len(ids))
	}
	if ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ArmIDs = %v; want [a b]", ids)
	}
}

func TestSelectArm_EmptyBandit(t *testing.T) {
	b := bandit.New(nil)

	_, err := b.SelectArm()
	if err != domain.ErrNoArms {
		t.Errorf("SelectArm on empty bandit = %v; want ErrNoArms", err)
	}
}

func TestSelectArm_ReturnsKnownArm(t *testing.T) {
	b := bandit.New(testArms, bandit.WithSeed(7, 7))

	known := make(map[string]bool, len(testArms))
	for _, id := range testArms {
		known[id] = true
	}
	for i := 0; i < 100; i++ {
		id, err := b.SelectArm()
		if err != nil {
			t.Fatalf("SelectArm failed: %v", err)
		}
		if !known[id] {
			t.Fatalf("SelectArm returned unknown arm %q", id)
		}
	}
}

func TestUpdateArm_PosteriorAccumulates(t *testing.T) {
	b := bandit.New(testArms)
	arm := domain.ArmFastEscalator

	// Rewards 1, 1, 1 move the posterior to Beta(4, 1)
	for i := 0; i < 3; i++ {
		b.UpdateArm(arm, 1.0)
	}

	stats := b.ArmStats(arm)
	if stats.PullCount != 3 {
		t.Errorf("PullCount = %d; want 3", stats.PullCount)
	}
	if math.Abs(stats.MeanReward-0.8) > 1e-9 {
		t.Errorf("MeanReward = %v; want 0.8 (Beta(4,1))", stats.MeanReward)
	}
}

func TestUpdateArm_ClampsReward(t *testing.T) {
	b := bandit.New(testArms)
	arm := domain.ArmSlowEscalator

	b.UpdateArm(arm, 5.0)
	b.UpdateArm(arm, -3.0)

	// Clamped to 1 and 0: posterior Beta(2, 2), mean 0.5
	stats := b.ArmStats(arm)
	if math.Abs(stats.MeanReward-0.5) > 1e-9 {
		t.Errorf("MeanReward = %v; want 0.5 after clamped updates", stats.MeanReward)
	}
	if stats.PullCount != 2 {
		t.Errorf("PullCount = %d; want 2", stats.PullCount)
	}
}

func TestUpdateArm_UnknownArmIsNoOp(t *testing.T) {
	b := bandit.New(testArms)

	b.UpdateArm("nonexistent", 1.0)

	for _, id := range testArms {
		if stats := b.ArmStats(id); stats.PullCount != 0 {
			t.Errorf("arm %q PullCount = %d after unknown-arm update; want 0", id, stats.PullCount)
		}
	}
}

func TestUpdateArm_OrderIndependentPosterior(t *testing.T) {
	rewards := []float64{0.9, 0.1, 0.6, 0.3, 1.0}

	b1 := bandit.New([]string{"x"})
	for _, r := range rewards {
		b1.UpdateArm("x", r)
	}
	b2 := bandit.New([]string{"x"})
	for i := len(rewards) - 1; i >= 0; i-- {
		b2.UpdateArm("x", rewards[i])
	}

	s1, s2 := b1.ArmStats("x"), b2.ArmStats("x")
	if math.Abs(s1.MeanReward-s2.MeanReward) > 1e-12 {
		t.Errorf("posterior mean depends on update order: %v vs %v", s1.MeanReward, s2.MeanReward)
	}
}

func TestSelectArm_PrefersGoodArm(t *testing.T) {
	b := bandit.New([]string{"good", "bad"}, bandit.WithSeed(11, 13))

	for i := 0; i < 30; i++ {
		b.UpdateArm("good", 1.0)
		b.UpdateArm("bad", 0.0)
	}

	goodCount := 0
	const draws = 50
	for i := 0; i < draws; i++ {
		id, err := b.SelectArm()
		if err != nil {
			t.Fatalf("SelectArm failed: %v", err)
		}
		if id == "good" {
			goodCount++
		}
	}
	if goodCount <= draws/2 {
		t.Errorf("good arm selected %d/%d times; want majority", goodCount, draws)
	}
}

func TestArmStats_UnknownArm(t *testing.T) {
	b := bandit.New(testArms)
	if stats := b.ArmStats("nope"); stats != nil {
		t.Errorf("ArmStats for unknown arm = %+v; want nil", stats)
	}
}

func TestArmStats_ConfidenceIntervalBounds(t *testing.T) {
	b := bandit.New(testArms)
	b.UpdateArm(domain.ArmFastEscalator, 1.0)

	stats := b.ArmStats(domain.ArmFastEscalator)
	lo, hi := stats.ConfidenceInterval[0], stats.ConfidenceInterval[1]
	if lo < 0 || hi > 1 || lo > hi {
		t.Errorf("confidence interval = [%v, %v]; want ordered within [0,1]", lo, hi)
	}
	if stats.MeanReward < lo || stats.MeanReward > hi {
		t.Errorf("mean %v outside interval [%v, %v]", stats.MeanReward, lo, hi)
	}
}

func TestBestArm(t *testing.T) {
	b := bandit.New([]string{"a", "b", "c"})
	b.UpdateArm("a", 0.2)
	b.UpdateArm("b", 1.0)
	b.UpdateArm("b", 1.0)
	b.UpdateArm("c", 0.5)

	best := b.BestArm()
	if best == nil {
		t.Fatal("BestArm = nil; want an arm")
	}
	if best.ID != "b" {
		t.Errorf("BestArm = %q; want %q", best.ID, "b")
	}
}

func TestBestArm_Empty(t *testing.T) {
	b := bandit.New(nil)
	if best := b.BestArm(); best != nil {
		t.Errorf("BestArm on empty bandit = %+v; want nil", best)
	}
}

func TestReset_RestoresPrior(t *testing.T) {
	b := bandit.New(testArms)
	for _, id := range testArms {
		b.UpdateArm(id, 1.0)
	}

	b.Reset()

	for _, id := range testArms {
		stats := b.ArmStats(id)
		if stats.MeanReward != 0.5 || stats.PullCount != 0 {
			t.Errorf("arm %q after reset: mean=%v pulls=%d; want 0.5, 0", id, stats.MeanReward, stats.PullCount)
		}
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	b := bandit.New(testArms)
	b.UpdateArm(domain.ArmFastEscalator, 1.0)
	b.UpdateArm(domain.ArmFastEscalator, 0.3)
	b.UpdateArm(domain.ArmSlowEscalator, 0.7)

	data, err := b.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	restored := bandit.New(nil)
	if err := restored.Deserialize(data); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	for _, id := range testArms {
		orig, got := b.ArmStats(id), restored.ArmStats(id)
		if got == nil {
			t.Fatalf("restored bandit missing arm %q", id)
		}
		if math.Abs(orig.MeanReward-got.MeanReward) > 1e-12 {
			t.Errorf("arm %q restored mean = %v; want %v", id, got.MeanReward, orig.MeanReward)
		}
		if orig.PullCount != got.PullCount {
			t.Errorf("arm %q restored pulls = %d; want %d", id, got.PullCount, orig.PullCount)
		}
	}
}

func TestDeserialize_RestoresParameterFloors(t *testing.T) {
	payload := []byte(`{"arms":[{"id":"a","alpha":0.2,"beta":-3,"pull_count":1,"cumulative_reward":0.2}]}`)

	b := bandit.New(nil)
	if err := b.Deserialize(payload); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	stats := b.ArmStats("a")
	if stats == nil {
		t.Fatal("arm not restored")
	}
	// Floored to Beta(1,1)
	if stats.MeanReward != 0.5 {
		t.Errorf("MeanReward = %v; want 0.5 after flooring", stats.MeanReward)
	}
}

func TestDeserialize_MalformedPayload(t *testing.T) {
	b := bandit.New(testArms)
	if err := b.Deserialize([]byte("{")); err == nil {
		t.Error("Deserialize of malformed payload should fail")
	}
}
