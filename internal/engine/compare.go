package engine

import (
	"math"
	"sort"

	"waveopt/internal/model"
)

// Summarize prices one plan and derives its utilization, punctuality, and
// contention figures. It works from the task list alone, so it applies
// equally to the baseline (which may double-book resources) and the
// optimized plan (which must not). Contention minutes are a reported
// quantity here, not a validation failure.
func Summarize(snap *Snapshot, p Plan) model.PlanMetrics {
	cfg := snap.Config
	var m model.PlanMetrics

	workerByID := make(map[string]*Worker, len(snap.Workers))
	for i := range snap.Workers {
		workerByID[snap.Workers[i].ID] = &snap.Workers[i]
	}
	equipByID := make(map[string]*Equipment, len(snap.Equipment))
	for i := range snap.Equipment {
		equipByID[snap.Equipment[i].ID] = &snap.Equipment[i]
	}

	workerMin := make(map[string]int)
	equipMin := make(map[string]int)
	shipEnd := make(map[int]int)
	for _, t := range p.Tasks {
		m.ProcessingMinutes += t.DurationMin
		m.WaitingMinutes += t.WaitMin
		if end := t.EndMin(); end > m.MakespanMinutes {
			m.MakespanMinutes = end
		}
		workerMin[t.WorkerID] += t.DurationMin
		if t.EquipmentID != "" {
			equipMin[t.EquipmentID] += t.DurationMin
		}
		if w, ok := workerByID[t.WorkerID]; ok {
			m.LaborCost += float64(t.DurationMin) / 60.0 * w.HourlyRate
			// Same overtime definition as the schedule decoder: shift excess
			// or minutes beyond the worker cap, whichever is larger, capped
			// at the task duration.
			ot := 0
			if v := t.EndMin() - w.ShiftEndMin; v > 0 {
				ot = v
			}
			if over := workerMin[t.WorkerID] - w.MaxMinutes; w.MaxMinutes > 0 && over > ot {
				ot = over
			}
			if ot > t.DurationMin {
				ot = t.DurationMin
			}
			if ot > 0 {
				m.OvertimeCost += float64(ot) / 60.0 * w.HourlyRate * cfg.OvertimeMultiplier
			}
		}
		if e, ok := equipByID[t.EquipmentID]; ok {
			m.EquipmentCost += float64(t.DurationMin) / 60.0 * e.HourlyCost
		}
		if t.Stage == StageShip {
			if end := t.EndMin(); end > shipEnd[t.OrderSeq] {
				shipEnd[t.OrderSeq] = end
			}
		}
	}

	for _, o := range snap.Orders {
		if shipEnd[o.Seq] > o.DeadlineMin {
			m.LateOrders++
			late := shipEnd[o.Seq] - o.DeadlineMin
			m.DeadlinePenalty += float64(late) / 60.0 * cfg.DeadlinePenaltyPerHour
		}
	}
	if n := len(snap.Orders); n > 0 {
		m.OnTimePct = round1(float64(n-m.LateOrders) / float64(n) * 100)
	}
	m.TotalCost = m.LaborCost + m.EquipmentCost + m.DeadlinePenalty + m.OvertimeCost

	shift := cfg.ShiftMinutes()
	if avail := len(snap.Workers) * shift; avail > 0 {
		busy := 0
		for _, v := range workerMin {
			busy += v
		}
		m.WorkerUtilizationPct = round1(float64(busy) / float64(avail) * 100)
	}
	slotCap := 0
	for _, e := range snap.Equipment {
		slotCap += e.Capacity * shift
	}
	if slotCap > 0 {
		busy := 0
		for _, v := range equipMin {
			busy += v
		}
		m.EquipmentUtilizationPct = round1(float64(busy) / float64(slotCap) * 100)
	}

	m.ContentionMinutes = contentionMinutes(snap, p)
	m.LaborCost = round2(m.LaborCost)
	m.EquipmentCost = round2(m.EquipmentCost)
	m.DeadlinePenalty = round2(m.DeadlinePenalty)
	m.OvertimeCost = round2(m.OvertimeCost)
	m.TotalCost = round2(m.TotalCost)
	return m
}

// contentionMinutes totals worker double-booking and equipment capacity
// overflow. For each worker it sums pairwise interval overlap; for each
// equipment unit it sums the minutes during which concurrent tasks exceed
// capacity, weighted by the excess.
func contentionMinutes(snap *Snapshot, p Plan) int {
	byWorker := make(map[string][][2]int)
	byEquip := make(map[string][][2]int)
	for _, t := range p.Tasks {
		iv := [2]int{t.StartMin, t.EndMin()}
		byWorker[t.WorkerID] = append(byWorker[t.WorkerID], iv)
		if t.EquipmentID != "" {
			byEquip[t.EquipmentID] = append(byEquip[t.EquipmentID], iv)
		}
	}

	total := 0
	for _, ivs := range byWorker {
		total += overlapMinutes(ivs, 1)
	}
	for id, ivs := range byEquip {
		limit := 1
		for i := range snap.Equipment {
			if snap.Equipment[i].ID == id {
				limit = snap.Equipment[i].Capacity
			}
		}
		total += overlapMinutes(ivs, limit)
	}
	return total
}

// overlapMinutes sweeps the intervals and accumulates the minutes during
// which concurrency exceeds the allowed limit, weighted by the excess.
func overlapMinutes(ivs [][2]int, limit int) int {
	type ev struct{ at, d int }
	events := make([]ev, 0, 2*len(ivs))
	for _, iv := range ivs {
		events = append(events, ev{iv[0], 1}, ev{iv[1], -1})
	}
	sort.Slice(events, func(a, b int) bool {
		if events[a].at != events[b].at {
			return events[a].at < events[b].at
		}
		return events[a].d < events[b].d
	})
	total, depth, prev := 0, 0, 0
	for _, e := range events {
		if depth > limit {
			total += (e.at - prev) * (depth - limit)
		}
		prev = e.at
		depth += e.d
	}
	return total
}

// Compare builds the savings delta between the legacy baseline and the
// optimized plan.
func Compare(snap *Snapshot, baseline, optimized Plan) (model.PlanMetrics, model.PlanMetrics, model.Delta) {
	bm := Summarize(snap, baseline)
	om := Summarize(snap, optimized)

	d := model.Delta{
		TimeSavingsMinutes: bm.MakespanMinutes - om.MakespanMinutes,
		CostSavings:        round2(bm.TotalCost - om.TotalCost),
	}
	if bm.TotalCost > 0 {
		d.EfficiencyGainPct = round1((bm.TotalCost - om.TotalCost) / bm.TotalCost * 100)
	}

	type key struct {
		seq int
		st  Stage
	}
	baseWorker := make(map[key]string, len(baseline.Tasks))
	baseWave := make(map[int]int)
	for _, t := range baseline.Tasks {
		baseWorker[key{t.OrderSeq, t.Stage}] = t.WorkerID
		baseWave[t.OrderSeq] = t.WaveIndex
	}
	moved := make(map[int]bool)
	reassigned := make(map[int]bool)
	for _, t := range optimized.Tasks {
		if w, ok := baseWorker[key{t.OrderSeq, t.Stage}]; ok && w != t.WorkerID {
			reassigned[t.OrderSeq] = true
		}
		if bw, ok := baseWave[t.OrderSeq]; ok && bw != t.WaveIndex {
			moved[t.OrderSeq] = true
		}
	}
	d.WorkerReassignments = len(reassigned)
	d.OrderMovements = len(moved)
	return bm, om, d
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
