package engine

import (
	"math"
	"sort"

	"waveopt/internal/config"
)

// BuildBaseline reproduces how the legacy WMS would have scheduled the wave.
// It is pure and deterministic: the same snapshot always yields the same
// plan, with no wall-clock or random dependence. The caller must have run
// Validate; the baseline shares the optimizer's snapshot requirements.
//
// The plan satisfies stage precedence by construction but deliberately does
// NOT avoid worker or equipment overlap: the legacy heuristic assigned by
// round-robin with no calendar, and the comparator reports the resulting
// contention instead of rejecting it.
func BuildBaseline(snap *Snapshot) Plan {
	cfg := snap.Config

	var pools [NumStages][]int
	var epools [NumStages][]int
	for st := Stage(0); st < NumStages; st++ {
		pools[st] = snap.workerPool(st)
		epools[st] = snap.equipmentPool(st)
	}

	seq := baselineSequence(snap.Orders)
	congested := len(snap.Orders) > cfg.QueueThreshold

	tasks := make([]Task, 0, len(snap.Orders)*NumStages)
	for rank, oi := range seq {
		o := snap.Orders[oi]
		prevEnd := 0
		for st := Stage(0); st < NumStages; st++ {
			pool := pools[st]
			w := snap.Workers[pool[PoolIndex(o, len(pool))]]
			equipID := ""
			if ep := epools[st]; len(ep) > 0 {
				equipID = snap.Equipment[ep[PoolIndex(o, len(ep))]].ID
			}
			dur := baselineDuration(cfg, o, st)
			wait := baselineWait(cfg, o, st, congested)
			start := prevEnd + wait
			tasks = append(tasks, Task{
				OrderID:       o.ID,
				OrderSeq:      o.Seq,
				Stage:         st,
				WorkerID:      w.ID,
				EquipmentID:   equipID,
				StartMin:      start,
				DurationMin:   dur,
				WaitMin:       wait,
				SequenceOrder: rank,
				WaveIndex:     o.WaveIndex,
			})
			prevEnd = start + dur
		}
	}
	return Plan{Kind: PlanBaseline, Tasks: tasks}
}

// PoolIndex is the legacy round-robin bucketing: (seq + priority) mod pool
// size. It spreads load repeatably but performs no overlap avoidance.
func PoolIndex(o Order, poolSize int) int {
	if poolSize <= 0 {
		return 0
	}
	return (o.Seq + o.Priority) % poolSize
}

// baselineSequence orders the wave by priority, then deadline proximity.
// The result is an ordering hint for display and rank only; feasibility
// never depends on it.
func baselineSequence(orders []Order) []int {
	idx := make([]int, len(orders))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		oa, ob := orders[idx[a]], orders[idx[b]]
		if oa.Priority != ob.Priority {
			return oa.Priority < ob.Priority
		}
		if oa.DeadlineMin != ob.DeadlineMin {
			return oa.DeadlineMin < ob.DeadlineMin
		}
		return oa.Seq < ob.Seq
	})
	return idx
}

// baselineDuration applies the legacy degradation multipliers: no route
// planning for PICK, no station matching for PACK, and so on. Worker and
// equipment efficiency are ignored, as the legacy system ignored them.
func baselineDuration(cfg config.Engine, o Order, st Stage) int {
	d := float64(o.BaseMinutes[st])
	if m, ok := cfg.StageDegradation[st.String()]; ok {
		d *= m
	}
	if o.Priority <= 2 {
		d *= 0.95 // expedite lanes got marginally faster handling
	}
	if o.WeightKg > cfg.HeavyOrderKg || o.Units > cfg.HighVolumeUnits {
		d *= 1.10
	}
	n := int(math.Ceil(d))
	if n < 1 {
		n = 1
	}
	return n
}

// baselineWait is the fixed per-stage queue wait, inflated under congestion
// and discounted for urgent orders.
func baselineWait(cfg config.Engine, o Order, st Stage, congested bool) int {
	w := float64(cfg.StageWaitMinutes[st.String()])
	if congested {
		w *= 1.5
	}
	if o.Priority <= 2 {
		w *= 0.5
	}
	return int(math.Round(w))
}
