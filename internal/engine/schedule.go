package engine

import (
	"math"
	"sort"
)

// taskAssign picks the resources for one (order, stage) task.
type taskAssign struct {
	worker int // index into Snapshot.Workers
	equip  int // index into Snapshot.Equipment, -1 when the stage uses none
}

// solution is the optimizer's decision vector: a dispatch order plus a
// resource assignment per task, and (in cross-wave mode) a wave index per
// order. Schedules are derived, never stored.
type solution struct {
	seq    []int                  // order indices in dispatch order
	assign [][NumStages]taskAssign // indexed by order Seq
	wave   []int                  // indexed by order Seq
	cost   float64
}

func (s solution) clone() solution {
	out := solution{cost: s.cost}
	out.seq = append([]int(nil), s.seq...)
	out.assign = append([][NumStages]taskAssign(nil), s.assign...)
	out.wave = append([]int(nil), s.wave...)
	return out
}

// schedule is the decoded timetable for a solution.
type schedule struct {
	tasks       []Task
	latenessMin []int // per order Seq
	overtimeMin []int // per worker index
	workerBusy  []int // per worker index, assigned minutes
	equipBusy   []int // per equipment index, busy minutes
	makespan    int
	waitTotal   int
	feasible    bool

	laborCost    float64
	equipCost    float64
	overtimeCost float64
}

// decode turns a solution into a concrete timetable using list scheduling:
// each task starts at the earliest minute satisfying stage precedence, its
// worker's availability and shift window, and an equipment capacity slot.
// By construction the result honors the no-overlap, capacity, skill, and
// precedence invariants. With relaxWindows the shift containment check is
// skipped (the excess is priced as overtime instead); that path backs the
// degraded fallback for under-resourced snapshots.
func decode(snap *Snapshot, sol solution, relaxWindows bool) schedule {
	cfg := snap.Config
	n := len(snap.Orders)
	sc := schedule{
		tasks:       make([]Task, 0, n*NumStages),
		latenessMin: make([]int, n),
		overtimeMin: make([]int, len(snap.Workers)),
		workerBusy:  make([]int, len(snap.Workers)),
		equipBusy:   make([]int, len(snap.Equipment)),
		feasible:    true,
	}

	workerFree := make([]int, len(snap.Workers))
	workerZone := make([]string, len(snap.Workers))
	for i, w := range snap.Workers {
		workerFree[i] = w.ShiftStartMin
	}
	// Equipment capacity is modeled as one availability cursor per slot.
	slots := make([][]int, len(snap.Equipment))
	for i, e := range snap.Equipment {
		slots[i] = make([]int, e.Capacity)
	}

	for rank, oi := range sol.seq {
		o := snap.Orders[oi]
		prevEnd := 0
		for st := Stage(0); st < NumStages; st++ {
			a := sol.assign[o.Seq][st]
			w := snap.Workers[a.worker]

			dur := float64(o.BaseMinutes[st]) / w.Efficiency
			var eq *Equipment
			slot := -1
			if a.equip >= 0 {
				eq = &snap.Equipment[a.equip]
				if eq.Efficiency > 0 {
					dur /= eq.Efficiency
				}
			}
			walk := 0
			if st == StagePick {
				walk = snap.Walk.Minutes(workerZone[a.worker], o.Zone)
			}
			d := int(math.Ceil(dur)) + walk
			if d < 1 {
				d = 1
			}

			start := prevEnd
			if workerFree[a.worker] > start {
				start = workerFree[a.worker]
			}
			if w.ShiftStartMin > start {
				start = w.ShiftStartMin
			}
			if eq != nil {
				// Earliest-free capacity slot.
				best := 0
				for k := 1; k < len(slots[a.equip]); k++ {
					if slots[a.equip][k] < slots[a.equip][best] {
						best = k
					}
				}
				slot = best
				if slots[a.equip][slot] > start {
					start = slots[a.equip][slot]
				}
			}
			end := start + d

			limit := w.ShiftEndMin + cfg.OvertimeAllowanceMin
			if end > limit && !relaxWindows {
				sc.feasible = false
				return sc
			}
			ot := 0
			if end > w.ShiftEndMin {
				ot = end - w.ShiftEndMin
			}
			if over := sc.workerBusy[a.worker] + d - w.MaxMinutes; w.MaxMinutes > 0 && over > ot {
				ot = over
			}
			if ot > d {
				ot = d
			}

			equipID := ""
			if eq != nil {
				equipID = eq.ID
				slots[a.equip][slot] = end
				sc.equipBusy[a.equip] += d
			}
			wait := start - prevEnd
			sc.tasks = append(sc.tasks, Task{
				OrderID:       o.ID,
				OrderSeq:      o.Seq,
				Stage:         st,
				WorkerID:      w.ID,
				EquipmentID:   equipID,
				StartMin:      start,
				DurationMin:   d,
				WaitMin:       wait,
				SequenceOrder: rank,
				Overtime:      ot > 0,
				WaveIndex:     sol.wave[o.Seq],
			})
			sc.waitTotal += wait
			sc.overtimeMin[a.worker] += ot
			sc.workerBusy[a.worker] += d
			sc.laborCost += float64(d) / 60.0 * w.HourlyRate
			if eq != nil {
				sc.equipCost += float64(d) / 60.0 * eq.HourlyCost
			}
			sc.overtimeCost += float64(ot) / 60.0 * w.HourlyRate * cfg.OvertimeMultiplier
			workerFree[a.worker] = end
			if st == StagePick {
				workerZone[a.worker] = o.Zone
			}
			prevEnd = end
			if end > sc.makespan {
				sc.makespan = end
			}
		}
		if late := prevEnd - o.DeadlineMin; late > 0 {
			sc.latenessMin[o.Seq] = late
		}
	}
	return sc
}

// plan converts a decoded schedule into an exported Plan.
func (sc schedule) plan(degraded bool) Plan {
	return Plan{Kind: PlanOptimized, Tasks: append([]Task(nil), sc.tasks...), Degraded: degraded}
}

// CheckInvariants verifies a plan against the hard scheduling invariants
// and returns a human-readable violation list. The baseline plan is
// expected to produce violations for overlap and capacity; the optimized
// plan must produce none.
func CheckInvariants(snap *Snapshot, p Plan) []string {
	var out []string
	byOrder := p.tasksByOrder()
	for seq, row := range byOrder {
		for st := Stage(0); st < NumStages; st++ {
			if row[st] == nil {
				out = append(out, snap.Orders[seq].ID+": missing stage "+st.String())
				continue
			}
			if st > 0 && row[st-1] != nil && row[st].StartMin < row[st-1].EndMin() {
				out = append(out, snap.Orders[seq].ID+": "+st.String()+" starts before "+(st-1).String()+" ends")
			}
		}
	}
	workers := make(map[string]Worker, len(snap.Workers))
	for _, w := range snap.Workers {
		workers[w.ID] = w
	}
	byWorker := map[string][]Task{}
	for _, t := range p.Tasks {
		byWorker[t.WorkerID] = append(byWorker[t.WorkerID], t)
		if w, ok := workers[t.WorkerID]; !ok {
			out = append(out, t.OrderID+": unknown worker "+t.WorkerID)
		} else if !w.Qualified(t.Stage) {
			out = append(out, t.OrderID+": worker "+t.WorkerID+" lacks skill "+t.Stage.Skill())
		}
	}
	for id, ts := range byWorker {
		sort.Slice(ts, func(a, b int) bool { return ts[a].StartMin < ts[b].StartMin })
		for i := 1; i < len(ts); i++ {
			if ts[i].StartMin < ts[i-1].EndMin() {
				out = append(out, "worker "+id+": overlapping tasks "+ts[i-1].OrderID+"/"+ts[i].OrderID)
			}
		}
	}
	for _, e := range snap.Equipment {
		var ts []Task
		for _, t := range p.Tasks {
			if t.EquipmentID == e.ID {
				ts = append(ts, t)
			}
		}
		if maxConcurrent(ts) > e.Capacity {
			out = append(out, "equipment "+e.ID+": concurrency exceeds capacity")
		}
	}
	return out
}

// maxConcurrent sweeps task intervals and returns the peak overlap count.
func maxConcurrent(ts []Task) int {
	type ev struct{ at, delta int }
	var evs []ev
	for _, t := range ts {
		evs = append(evs, ev{t.StartMin, 1}, ev{t.EndMin(), -1})
	}
	sort.Slice(evs, func(a, b int) bool {
		if evs[a].at != evs[b].at {
			return evs[a].at < evs[b].at
		}
		return evs[a].delta < evs[b].delta // ends before starts at the same minute
	})
	cur, peak := 0, 0
	for _, e := range evs {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}
