package engine

import (
	"reflect"
	"testing"
	"time"
)

func TestPoolIndex(t *testing.T) {
	o := Order{Seq: 3, Priority: 2}
	if got := PoolIndex(o, 4); got != 1 {
		t.Fatalf("PoolIndex: got %d, want 1", got)
	}
	if got := PoolIndex(o, 1); got != 0 {
		t.Fatalf("PoolIndex pool of one: got %d, want 0", got)
	}
	if got := PoolIndex(o, 0); got != 0 {
		t.Fatalf("PoolIndex empty pool: got %d, want 0", got)
	}
}

func TestBuildBaselineDeterministic(t *testing.T) {
	snap := testSnapshot(t, 10, 4)
	p1 := BuildBaseline(snap)
	p2 := BuildBaseline(snap)
	if !reflect.DeepEqual(p1, p2) {
		t.Fatal("baseline is not deterministic for an identical snapshot")
	}
	if len(p1.Tasks) != 10*NumStages {
		t.Fatalf("task count: got %d, want %d", len(p1.Tasks), 10*NumStages)
	}
}

func TestBaselineStagePrecedence(t *testing.T) {
	snap := testSnapshot(t, 8, 3)
	p := BuildBaseline(snap)
	byOrder := p.tasksByOrder()
	for seq, row := range byOrder {
		for st := Stage(1); st < NumStages; st++ {
			if row[st] == nil || row[st-1] == nil {
				t.Fatalf("order %d missing stage task", seq)
			}
			if row[st].StartMin < row[st-1].EndMin() {
				t.Fatalf("order %d: %s starts %d before %s ends %d",
					seq, st, row[st].StartMin, st-1, row[st-1].EndMin())
			}
		}
	}
}

func TestBaselineRoundRobinAssignment(t *testing.T) {
	snap := testSnapshot(t, 6, 4)
	p := BuildBaseline(snap)
	pool := snap.workerPool(StagePick)
	for _, task := range p.Tasks {
		if task.Stage != StagePick {
			continue
		}
		o := snap.Orders[task.OrderSeq]
		want := snap.Workers[pool[PoolIndex(o, len(pool))]].ID
		if task.WorkerID != want {
			t.Fatalf("order %s pick worker: got %s, want %s", o.ID, task.WorkerID, want)
		}
	}
}

func TestBaselineExpediteHandling(t *testing.T) {
	snap := testSnapshot(t, 2, 2)
	snap.Orders[0].Priority = 1
	snap.Orders[1].Priority = 5
	snap.Orders[0].Items = snap.Orders[1].Items
	snap.DeriveDurations()

	p := BuildBaseline(snap)
	byOrder := p.tasksByOrder()
	urgent, slow := byOrder[0], byOrder[1]
	for st := Stage(0); st < NumStages; st++ {
		if urgent[st].DurationMin > slow[st].DurationMin {
			t.Fatalf("%s: urgent order slower than routine (%d > %d)",
				st, urgent[st].DurationMin, slow[st].DurationMin)
		}
		if urgent[st].WaitMin > slow[st].WaitMin {
			t.Fatalf("%s: urgent order waits longer (%d > %d)",
				st, urgent[st].WaitMin, slow[st].WaitMin)
		}
	}
}

func TestBaselineCongestionInflatesWaits(t *testing.T) {
	small := testSnapshot(t, 5, 4)
	big := testSnapshot(t, small.Config.QueueThreshold+5, 4)

	ps := BuildBaseline(small)
	pb := BuildBaseline(big)

	// Same priority, same stage: the congested wave waits longer.
	waitFor := func(p Plan, snap *Snapshot) int {
		for _, task := range p.Tasks {
			if task.Stage == StageConsolidate && snap.Orders[task.OrderSeq].Priority == 3 {
				return task.WaitMin
			}
		}
		t.Fatal("no priority-3 consolidate task found")
		return 0
	}
	if ws, wb := waitFor(ps, small), waitFor(pb, big); wb <= ws {
		t.Fatalf("congested wait %d not above quiet wait %d", wb, ws)
	}
}

func TestBaselineHeavyOrderSlowdown(t *testing.T) {
	snap := testSnapshot(t, 2, 2)
	snap.Orders[0].Priority = 3
	snap.Orders[1].Priority = 3
	snap.Orders[1].Items = []LineItem{
		{SKU: "anvil", Quantity: 2, PickMinutes: 1.5, PackMinutes: 1.0, WeightKg: 15},
	}
	snap.Orders[0].Items = []LineItem{
		{SKU: "pillow", Quantity: 2, PickMinutes: 1.5, PackMinutes: 1.0, WeightKg: 0.5},
	}
	snap.DeriveDurations()
	if snap.Orders[1].WeightKg <= snap.Config.HeavyOrderKg {
		t.Fatalf("fixture: order not heavy (%.1fkg)", snap.Orders[1].WeightKg)
	}

	p := BuildBaseline(snap)
	byOrder := p.tasksByOrder()
	if byOrder[1][StagePick].DurationMin <= byOrder[0][StagePick].DurationMin {
		t.Fatal("heavy order should pick slower than light order")
	}
}

func TestBaselineIgnoresWallClock(t *testing.T) {
	snap := testSnapshot(t, 4, 2)
	p1 := BuildBaseline(snap)
	time.Sleep(5 * time.Millisecond)
	p2 := BuildBaseline(snap)
	if !reflect.DeepEqual(p1, p2) {
		t.Fatal("baseline output changed between calls")
	}
}
