package engine

import (
	"strings"
	"testing"
)

func singleWorkerSolution(snap *Snapshot) solution {
	n := len(snap.Orders)
	sol := solution{
		seq:    make([]int, n),
		assign: make([][NumStages]taskAssign, n),
		wave:   make([]int, n),
	}
	for i := range sol.seq {
		sol.seq[i] = i
		for st := Stage(0); st < NumStages; st++ {
			sol.assign[i][st] = taskAssign{worker: 0, equip: -1}
		}
	}
	return sol
}

func TestDecodeShiftWindowEnforcement(t *testing.T) {
	snap := testSnapshot(t, 2, 1)
	snap.Equipment = nil
	snap.Workers[0].ShiftEndMin = 10
	snap.Config.OvertimeAllowanceMin = 0

	sol := singleWorkerSolution(snap)
	if sc := decode(snap, sol, false); sc.feasible {
		t.Fatal("strict decode accepted work beyond the shift window")
	}
	sc := decode(snap, sol, true)
	if !sc.feasible {
		t.Fatal("relaxed decode must always produce a timetable")
	}
	if len(sc.tasks) != 2*NumStages {
		t.Fatalf("relaxed timetable incomplete: %d tasks", len(sc.tasks))
	}
	if sc.overtimeCost <= 0 {
		t.Fatal("work beyond the shift must be priced as overtime")
	}
}

func TestDecodeSequentialOnOneWorker(t *testing.T) {
	snap := testSnapshot(t, 3, 1)
	snap.Equipment = nil
	sc := decode(snap, singleWorkerSolution(snap), false)
	if !sc.feasible {
		t.Fatal("fixture should fit the shift")
	}
	prevEnd := 0
	for _, task := range sc.tasks {
		if task.StartMin < prevEnd {
			t.Fatalf("task starts %d before previous ends %d", task.StartMin, prevEnd)
		}
		prevEnd = task.EndMin()
	}
}

func TestCheckInvariantsFlagsBaselineOverlap(t *testing.T) {
	// One worker per stage and enough orders force the legacy round-robin
	// baseline to double-book.
	snap := testSnapshot(t, 10, 1)
	p := BuildBaseline(snap)
	v := CheckInvariants(snap, p)
	if len(v) == 0 {
		t.Fatal("expected overlap violations in the baseline")
	}
	found := false
	for _, msg := range v {
		if strings.Contains(msg, "overlap") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no overlap violation in: %v", v)
	}
}

func TestCheckInvariantsCleanPlan(t *testing.T) {
	snap := testSnapshot(t, 2, 2)
	snap.Equipment = nil
	sc := decode(snap, singleWorkerSolution(snap), false)
	if !sc.feasible {
		t.Fatal("fixture should be feasible")
	}
	if v := CheckInvariants(snap, sc.plan(false)); len(v) != 0 {
		t.Fatalf("unexpected violations: %v", v)
	}
}
