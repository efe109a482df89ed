package engine

import "math"

// Cost is the monetary breakdown of a decoded schedule.
type Cost struct {
	Labor           float64 `json:"labor"`
	Equipment       float64 `json:"equipment"`
	DeadlinePenalty float64 `json:"deadlinePenalty"`
	Overtime        float64 `json:"overtime"`
}

// Total sums the four cost components.
func (c Cost) Total() float64 {
	return c.Labor + c.Equipment + c.DeadlinePenalty + c.Overtime
}

// costOf prices a decoded schedule against the engine config.
func costOf(snap *Snapshot, sc schedule) Cost {
	c := Cost{
		Labor:     sc.laborCost,
		Equipment: sc.equipCost,
		Overtime:  sc.overtimeCost,
	}
	for _, late := range sc.latenessMin {
		c.DeadlinePenalty += float64(late) / 60.0 * snap.Config.DeadlinePenaltyPerHour
	}
	return c
}

// priorityWeight maps priority 1 (urgent) to the largest weight.
func priorityWeight(p int) float64 { return float64(6 - p) }

// objective scores a solution for the search. Deadline lateness is
// amplified so it dominates the monetary terms, wave moves are charged
// their disruption cost, and a tiny completion-time term steers ties
// toward finishing urgent orders first.
func objective(snap *Snapshot, sol solution, sc schedule) float64 {
	cfg := snap.Config
	c := costOf(snap, sc)
	obj := c.Labor + c.Equipment + c.Overtime + cfg.DeadlineObjectiveWeight*c.DeadlinePenalty
	for _, o := range snap.Orders {
		if sol.wave[o.Seq] != o.WaveIndex {
			obj += cfg.WaveDisruptionCost
		}
	}
	const tieEps = 1e-4
	for seq, end := range scOrderEnds(sc) {
		obj += tieEps * float64(end) * priorityWeight(snap.Orders[seq].Priority) / float64(len(snap.Orders)+1)
	}
	return obj
}

// scOrderEnds returns ship completion minutes keyed by order Seq.
func scOrderEnds(sc schedule) map[int]int {
	ends := make(map[int]int)
	for _, t := range sc.tasks {
		if t.Stage == StageShip {
			ends[t.OrderSeq] = t.EndMin()
		}
	}
	return ends
}

// lowerBound is an additive relaxation of the schedule cost: every task
// priced at its cheapest qualified worker and equipment pairing, with no
// waiting, lateness, or overtime. A plan whose total matches the bound
// cannot be improved.
func lowerBound(snap *Snapshot) float64 {
	var sum float64
	for _, o := range snap.Orders {
		for st := Stage(0); st < NumStages; st++ {
			best := math.Inf(1)
			for wi := range snap.Workers {
				w := &snap.Workers[wi]
				if !w.Qualified(st) {
					continue
				}
				wd := float64(o.BaseMinutes[st]) / w.Efficiency
				if !snap.stageUsesEquipment(st) {
					d := math.Max(1, math.Ceil(wd))
					if c := d / 60.0 * w.HourlyRate; c < best {
						best = c
					}
					continue
				}
				for ei := range snap.Equipment {
					e := &snap.Equipment[ei]
					if !e.Serves(st) {
						continue
					}
					ed := wd
					if e.Efficiency > 0 {
						ed /= e.Efficiency
					}
					d := math.Max(1, math.Ceil(ed))
					if c := d / 60.0 * (w.HourlyRate + e.HourlyCost); c < best {
						best = c
					}
				}
			}
			if !math.IsInf(best, 1) {
				sum += best
			}
		}
	}
	return sum
}
