package mesh_test

import (
	"testing"

	"github.com/dantte-lp/gomesh/internal/mesh"
)

func TestRNGDeterministicGivenSameSeed(t *testing.T) {
	t.Parallel()

	a := mesh.NewRNG(12345)
	b := mesh.NewRNG(12345)

	for i := 0; i < 1000; i++ {
		av, bv := a.Float64(), b.Float64()
		if av != bv {
			t.Fatalf("draw %d diverged: %v != %v", i, av, bv)
		}
		if av < 0 || av >= 1 {
			t.Fatalf("draw %d out of [0,1): %v", i, av)
		}
	}
}

func TestRNGSeedResets(t *testing.T) {
	t.Parallel()

	r := mesh.NewRNG(1)
	first := r.Float64()
	r.Seed(1)
	second := r.Float64()
	if first != second {
		t.Fatalf("reseeding to the same value did not reproduce the sequence: %v != %v", first, second)
	}
}

func TestScheduleListenRatioDistribution(t *testing.T) {
	t.Parallel()

	const trials = 10000
	sched := mesh.NewStochasticSchedule(mesh.DefaultStochasticSlots, 0.8, mesh.DefaultMaxRetries,
		mesh.DefaultMinBroadcastCap, 10000) // high cap so the cap itself does not gate this test
	rng := mesh.NewRNG(999)

	broadcasts := 0
	for i := 0; i < trials; i++ {
		sched.ResetCycle()
		if sched.Advance(rng, 0) == mesh.ActionBroadcast {
			broadcasts++
		}
	}

	frac := float64(broadcasts) / float64(trials)
	// listenRatio=0.8 means ~20% of draws broadcast.
	if frac < 0.17 || frac > 0.23 {
		t.Fatalf("broadcast fraction = %v, want roughly 0.20 (within [0.17,0.23])", frac)
	}
}

func TestScheduleStochasticCapDecreasesWithCrowding(t *testing.T) {
	t.Parallel()

	sched := mesh.NewStochasticSchedule(mesh.DefaultStochasticSlots, 0.0, mesh.DefaultMaxRetries, 1, 4)
	rng := mesh.NewRNG(1)

	sched.ResetCycle()
	broadcastsAtFullCrowding := 0
	for i := 0; i < 20; i++ {
		if sched.Advance(rng, 1.0) == mesh.ActionBroadcast {
			broadcastsAtFullCrowding++
		}
	}
	if broadcastsAtFullCrowding > 1 {
		t.Fatalf("broadcasts at crowding=1.0 (cap should be min=1) = %d, want <= 1", broadcastsAtFullCrowding)
	}

	sched.ResetCycle()
	broadcastsAtNoCrowding := 0
	for i := 0; i < 20; i++ {
		if sched.Advance(rng, 0.0) == mesh.ActionBroadcast {
			broadcastsAtNoCrowding++
		}
	}
	if broadcastsAtNoCrowding > 4 {
		t.Fatalf("broadcasts at crowding=0.0 (cap should be max=4) = %d, want <= 4", broadcastsAtNoCrowding)
	}
}

func TestScheduleRecordSuccessResetsRetryCount(t *testing.T) {
	t.Parallel()

	sched := mesh.NewNoisySchedule(mesh.DefaultNoisySlots, 0.8, 3)
	sched.RecordFailure()
	sched.RecordFailure()
	if sched.RetryCount() != 2 {
		t.Fatalf("RetryCount() = %d, want 2", sched.RetryCount())
	}
	sched.RecordSuccess()
	if sched.RetryCount() != 0 {
		t.Fatalf("RetryCount() after success = %d, want 0", sched.RetryCount())
	}
	if sched.Successes() != 1 {
		t.Fatalf("Successes() = %d, want 1", sched.Successes())
	}
}

func TestScheduleRecordFailureExhaustsRetries(t *testing.T) {
	t.Parallel()

	sched := mesh.NewNoisySchedule(mesh.DefaultNoisySlots, 0.8, 2)
	if !sched.RecordFailure() {
		t.Fatal("first failure should still permit a retry")
	}
	if !sched.RecordFailure() {
		t.Fatal("second failure should still permit a retry (retryCount == maxRetries)")
	}
	if sched.RecordFailure() {
		t.Fatal("third failure should exhaust the retry budget")
	}
	if sched.Failures() != 3 {
		t.Fatalf("Failures() = %d, want 3", sched.Failures())
	}
}
