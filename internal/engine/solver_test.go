package engine

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestOptimizeSatisfiesHardConstraints(t *testing.T) {
	snap := testSnapshot(t, 8, 5)
	plan, res := Optimize(context.Background(), snap, Options{
		Seed:      42,
		TimeLimit: 300 * time.Millisecond,
	})
	if res.Degraded {
		t.Fatalf("unexpected degraded result: %+v", res)
	}
	if len(plan.Tasks) != 8*NumStages {
		t.Fatalf("task count: got %d, want %d", len(plan.Tasks), 8*NumStages)
	}
	if v := CheckInvariants(snap, plan); len(v) != 0 {
		t.Fatalf("invariant violations: %v", v)
	}
	switch res.Status {
	case StatusOptimal, StatusFeasible, StatusTimedOut:
	default:
		t.Fatalf("unexpected status %s", res.Status)
	}
	if res.Iterations == 0 {
		t.Fatal("search ran zero iterations")
	}
}

func TestOptimizeSingleWorkerRunsSequentially(t *testing.T) {
	snap := testSnapshot(t, 3, 1)
	plan, res := Optimize(context.Background(), snap, Options{
		Seed:      1,
		TimeLimit: 200 * time.Millisecond,
	})
	if res.Degraded {
		t.Fatalf("single worker fixture should fit the shift: %+v", res.Cost)
	}
	if v := CheckInvariants(snap, plan); len(v) != 0 {
		t.Fatalf("invariant violations: %v", v)
	}
	for _, task := range plan.Tasks {
		if task.WorkerID != "w1" {
			t.Fatalf("task assigned to %s with only one worker", task.WorkerID)
		}
	}
}

func TestOptimizeDeterministicForSeed(t *testing.T) {
	snap := testSnapshot(t, 6, 3)
	opts := Options{Seed: 7, IterationsLimit: 150, TimeLimit: time.Minute}
	p1, r1 := Optimize(context.Background(), snap, opts)
	p2, r2 := Optimize(context.Background(), snap, opts)
	if r1.BestObjective != r2.BestObjective {
		t.Fatalf("objective differs across runs: %f vs %f", r1.BestObjective, r2.BestObjective)
	}
	if !reflect.DeepEqual(p1.Tasks, p2.Tasks) {
		t.Fatal("plans differ for identical seed and iteration cap")
	}
}

func TestOptimizeSkillMatch(t *testing.T) {
	snap := testSnapshot(t, 4, 3)
	// Only w1 may pack.
	for i := range snap.Workers {
		snap.Workers[i].Skills = allSkills()
		if snap.Workers[i].ID != "w1" {
			delete(snap.Workers[i].Skills, StagePack.Skill())
		}
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("fixture invalid: %v", err)
	}
	plan, _ := Optimize(context.Background(), snap, Options{Seed: 3, TimeLimit: 200 * time.Millisecond})
	for _, task := range plan.Tasks {
		if task.Stage == StagePack && task.WorkerID != "w1" {
			t.Fatalf("pack assigned to unqualified worker %s", task.WorkerID)
		}
	}
}

func TestOptimizeUnderResourcedRelaxes(t *testing.T) {
	snap := testSnapshot(t, 12, 1)
	// A 90 minute shift with a sliver of overtime cannot hold twelve orders.
	snap.Workers[0].ShiftEndMin = 90
	snap.Workers[0].MaxMinutes = 90
	snap.Config.OvertimeAllowanceMin = 10

	plan, res := Optimize(context.Background(), snap, Options{Seed: 5, TimeLimit: 200 * time.Millisecond})
	if res.Status != StatusInfeasible {
		t.Fatalf("status: got %s, want %s", res.Status, StatusInfeasible)
	}
	if !res.Degraded || !plan.Degraded {
		t.Fatal("relaxed fallback must be flagged degraded")
	}
	if len(plan.Tasks) != 12*NumStages {
		t.Fatalf("degraded plan incomplete: %d tasks", len(plan.Tasks))
	}
}

func TestOptimizeCancellationKeepsIncumbent(t *testing.T) {
	snap := testSnapshot(t, 6, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan, res := Optimize(ctx, snap, Options{Seed: 9, TimeLimit: time.Minute})
	if !res.Cancelled {
		t.Fatal("result not marked cancelled")
	}
	if res.Status != StatusTimedOut {
		t.Fatalf("status: got %s, want %s", res.Status, StatusTimedOut)
	}
	if len(plan.Tasks) != 6*NumStages {
		t.Fatalf("incumbent plan incomplete: %d tasks", len(plan.Tasks))
	}
	if v := CheckInvariants(snap, plan); len(v) != 0 {
		t.Fatalf("incumbent violates invariants: %v", v)
	}
}

func TestOptimizeSingleWorkerReachesLowerBound(t *testing.T) {
	snap := testSnapshot(t, 2, 1)
	snap.Equipment = nil
	snap.Workers[0].Efficiency = 1.0
	for i := range snap.Orders {
		snap.Orders[i].Zone = "A" // no walking between picks
	}
	snap.DeriveDurations()

	_, res := Optimize(context.Background(), snap, Options{Seed: 11, TimeLimit: 200 * time.Millisecond})
	if res.Status != StatusOptimal {
		t.Fatalf("status: got %s (cost %.2f, bound %.2f)", res.Status, res.Cost.Total(), res.LowerBound)
	}
	if res.Cost.Total() > res.LowerBound+1e-6 {
		t.Fatalf("cost %.4f above bound %.4f", res.Cost.Total(), res.LowerBound)
	}
}

func TestOptimizeNoWorseThanBaseline(t *testing.T) {
	snap := testSnapshot(t, 6, 4)
	for i := range snap.Orders {
		snap.Orders[i].Items[0].PickMinutes = 3.0
		snap.Orders[i].Items[0].PackMinutes = 2.0
	}
	snap.DeriveDurations()

	base := BuildBaseline(snap)
	opt, res := Optimize(context.Background(), snap, Options{Seed: 13, TimeLimit: 300 * time.Millisecond})
	if res.Degraded {
		t.Fatalf("fixture should be feasible: %+v", res.Cost)
	}
	bm, om, _ := Compare(snap, base, opt)
	if om.TotalCost > bm.TotalCost+1e-6 {
		t.Fatalf("optimized cost %.2f above baseline %.2f", om.TotalCost, bm.TotalCost)
	}
}

func TestOptimizeCrossWaveMovesCountAgainstDisruption(t *testing.T) {
	snap := testSnapshot(t, 6, 3)
	for i := range snap.Orders {
		snap.Orders[i].WaveIndex = i % 2
	}
	base := BuildBaseline(snap)
	opt, res := Optimize(context.Background(), snap, Options{
		Seed: 17, TimeLimit: 300 * time.Millisecond, CrossWave: true,
	})
	if res.Degraded {
		t.Fatal("fixture should be feasible")
	}
	_, _, d := Compare(snap, base, opt)
	if d.OrderMovements < 0 || d.OrderMovements > len(snap.Orders) {
		t.Fatalf("order movements out of range: %d", d.OrderMovements)
	}
	for _, task := range opt.Tasks {
		if task.WaveIndex < 0 || task.WaveIndex > 1 {
			t.Fatalf("wave index out of range: %d", task.WaveIndex)
		}
	}
}
