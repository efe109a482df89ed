package engine

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"
)

// Status reports how a solve run ended.
type Status string

const (
	StatusOptimal    Status = "OPTIMAL"
	StatusFeasible   Status = "FEASIBLE"
	StatusInfeasible Status = "INFEASIBLE"
	StatusTimedOut   Status = "TIMED_OUT"
)

// Options tune the search. Zero values fall back to defaults.
type Options struct {
	TimeLimit               time.Duration
	Seed                    int64
	IterationsLimit         int
	InitialTemp             float64
	Cooling                 float64
	InitialRemovalWeights   []float64 // [random, related]
	InitialInsertionWeights []float64 // [greedy, regret2]
	CrossWave               bool
	WaveCount               int
}

// Result carries the solve outcome and search telemetry.
type Result struct {
	Status         Status
	Degraded       bool
	Cancelled      bool
	Iterations     int
	Improvements   int
	AcceptedWorse  int
	RemovalSelects [2]int // random, related
	InsertSelects  [2]int // greedy, regret2
	BestObjective  float64
	Cost           Cost
	LowerBound     float64
	SolveTime      time.Duration

	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	Snapshots             []WeightSnapshot
}

// WeightSnapshot records adaptive operator weights at an iteration.
type WeightSnapshot struct {
	Iteration int        `json:"iteration"`
	Removal   [2]float64 `json:"removal"`
	Insertion [2]float64 `json:"insertion"`
}

// problem bundles a snapshot with the per-stage resource pools so the
// operators never consider an unqualified worker or wrong equipment.
type problem struct {
	snap      *Snapshot
	workers   [NumStages][]int
	equips    [NumStages][]int
	relax     bool
	crossWave bool
	waveCount int
}

// Optimize runs an adaptive large-neighborhood search over order
// sequencing and resource assignment: roulette-wheel operator selection,
// simulated-annealing acceptance, and adaptive operator weights. The
// returned plan always satisfies the hard constraints unless the snapshot
// admits no schedule inside the shift windows, in which case the best
// window-relaxed plan is returned with Degraded set and status INFEASIBLE.
// Cancellation via ctx keeps the incumbent and reports TIMED_OUT.
func Optimize(ctx context.Context, snap *Snapshot, opts Options) (Plan, Result) {
	started := time.Now()
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	budget := opts.TimeLimit
	if budget <= 0 {
		budget = time.Duration(snap.Config.DefaultTimeLimitSeconds) * time.Second
	}

	pr := &problem{snap: snap, crossWave: opts.CrossWave, waveCount: opts.WaveCount}
	if pr.crossWave && pr.waveCount < 1 {
		pr.waveCount = 1
		for _, o := range snap.Orders {
			if o.WaveIndex+1 > pr.waveCount {
				pr.waveCount = o.WaveIndex + 1
			}
		}
	}
	for st := Stage(0); st < NumStages; st++ {
		pr.workers[st] = snap.workerPool(st)
		pr.equips[st] = snap.equipmentPool(st)
	}

	curr := greedySeedSolution(pr)
	currSc := decode(snap, curr, false)
	if !currSc.feasible {
		// Under-resourced snapshot. Relax the shift containment check,
		// price the excess as overtime, and keep searching.
		pr.relax = true
		currSc = decode(snap, curr, true)
	}
	curr.cost = objective(snap, curr, currSc)
	best := curr.clone()
	bestSc := currSc

	remW := [2]float64{1, 1}
	insW := [2]float64{1, 1}
	if len(opts.InitialRemovalWeights) == 2 {
		remW = [2]float64{opts.InitialRemovalWeights[0], opts.InitialRemovalWeights[1]}
	}
	if len(opts.InitialInsertionWeights) == 2 {
		insW = [2]float64{opts.InitialInsertionWeights[0], opts.InitialInsertionWeights[1]}
	}
	temp := 1.0
	if opts.InitialTemp > 0 {
		temp = opts.InitialTemp
	}
	cool := 0.995
	if opts.Cooling > 0 && opts.Cooling < 1 {
		cool = opts.Cooling
	}

	res := Result{BestObjective: best.cost, LowerBound: lowerBound(snap)}
	deadline := started.Add(budget)
	const snapshotEvery = 50
	const stallLimit = 400
	stall := 0
	timedOut := false

	for {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		if !time.Now().Before(deadline) {
			timedOut = true
			break
		}
		if opts.IterationsLimit > 0 && res.Iterations >= opts.IterationsLimit {
			break
		}
		if stall >= stallLimit && res.Iterations >= 2*stallLimit {
			break
		}
		res.Iterations++

		k := 1 + rng.Intn(3)
		op := selectOp(remW[:], rng)
		res.RemovalSelects[op]++
		ip := selectOp(insW[:], rng)
		res.InsertSelects[ip]++

		cand := curr.clone()
		var removed []int
		switch op {
		case 0:
			removed = pickRandomOrders(&cand, k, rng)
		case 1:
			removed = relatedRemoval(pr, &cand, k, rng)
		}
		switch ip {
		case 0:
			greedyReinsert(pr, &cand, removed, rng)
		case 1:
			regretReinsert(pr, &cand, removed, rng)
		}
		reassignImprove(pr, &cand, rng)
		if pr.crossWave {
			waveShake(pr, &cand, rng)
		}

		sc := decode(snap, cand, pr.relax)
		if !sc.feasible {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			temp *= cool
			continue
		}
		cand.cost = objective(snap, cand, sc)

		delta := cand.cost - best.cost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			if cand.cost < best.cost {
				best = cand.clone()
				bestSc = sc
				remW[op] += 0.1
				insW[ip] += 0.1
				res.Improvements++
				res.BestObjective = best.cost
				stall = 0
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				res.AcceptedWorse++
				stall++
			}
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			stall++
		}
		temp *= cool
		if res.Iterations%snapshotEvery == 0 {
			res.Snapshots = append(res.Snapshots, WeightSnapshot{Iteration: res.Iterations, Removal: remW, Insertion: insW})
		}
	}

	res.Cost = costOf(snap, bestSc)
	res.SolveTime = time.Since(started)
	res.FinalRemovalWeights = remW
	res.FinalInsertionWeights = insW
	res.Degraded = pr.relax

	switch {
	case pr.relax:
		res.Status = StatusInfeasible
	case res.Cost.Total() <= res.LowerBound+1e-6:
		res.Status = StatusOptimal
	case timedOut || res.Cancelled:
		res.Status = StatusTimedOut
	default:
		res.Status = StatusFeasible
	}
	return bestSc.plan(pr.relax), res
}

// greedySeedSolution dispatches orders by deadline then priority and
// hands each task to the least-committed qualified worker, balancing
// equipment by projected load per capacity slot.
func greedySeedSolution(pr *problem) solution {
	snap := pr.snap
	n := len(snap.Orders)
	sol := solution{
		seq:    make([]int, n),
		assign: make([][NumStages]taskAssign, n),
		wave:   make([]int, n),
	}
	for i := range sol.seq {
		sol.seq[i] = i
	}
	sort.SliceStable(sol.seq, func(a, b int) bool {
		oa, ob := snap.Orders[sol.seq[a]], snap.Orders[sol.seq[b]]
		if oa.DeadlineMin != ob.DeadlineMin {
			return oa.DeadlineMin < ob.DeadlineMin
		}
		if oa.Priority != ob.Priority {
			return oa.Priority < ob.Priority
		}
		return oa.Seq < ob.Seq
	})

	wload := make([]float64, len(snap.Workers))
	eload := make([]float64, len(snap.Equipment))
	for _, oi := range sol.seq {
		o := snap.Orders[oi]
		sol.wave[o.Seq] = o.WaveIndex
		for st := Stage(0); st < NumStages; st++ {
			bw, bscore := -1, math.MaxFloat64
			for _, wi := range pr.workers[st] {
				w := snap.Workers[wi]
				d := float64(o.BaseMinutes[st]) / w.Efficiency
				if s := wload[wi] + d; s < bscore {
					bscore = s
					bw = wi
				}
			}
			a := taskAssign{worker: bw, equip: -1}
			wload[bw] += float64(o.BaseMinutes[st]) / snap.Workers[bw].Efficiency
			if pool := pr.equips[st]; len(pool) > 0 {
				be, bs := pool[0], math.MaxFloat64
				for _, ei := range pool {
					e := snap.Equipment[ei]
					if s := eload[ei] / float64(e.Capacity); s < bs {
						bs = s
						be = ei
					}
				}
				a.equip = be
				eload[be] += float64(o.BaseMinutes[st])
			}
			sol.assign[o.Seq][st] = a
		}
	}
	return sol
}

// pickRandomOrders removes k random orders from the dispatch sequence
// and returns their indices.
func pickRandomOrders(sol *solution, k int, rng *rand.Rand) []int {
	if len(sol.seq) == 0 {
		return nil
	}
	removed := make([]int, 0, k)
	for i := 0; i < k && len(sol.seq) > 0; i++ {
		j := rng.Intn(len(sol.seq))
		removed = append(removed, sol.seq[j])
		sol.seq = append(sol.seq[:j], sol.seq[j+1:]...)
	}
	return removed
}

// relatedRemoval picks a random seed order and removes the orders most
// related to it: close deadlines, same zone, similar priority. Moving a
// related cluster together gives the insertion operators room to resolve
// their contention at once.
func relatedRemoval(pr *problem, sol *solution, k int, rng *rand.Rand) []int {
	if len(sol.seq) == 0 {
		return nil
	}
	snap := pr.snap
	seedPos := rng.Intn(len(sol.seq))
	seedIdx := sol.seq[seedPos]
	so := snap.Orders[seedIdx]

	type pair struct {
		idx   int
		score float64
	}
	rel := make([]pair, 0, len(sol.seq)-1)
	for _, idx := range sol.seq {
		if idx == seedIdx {
			continue
		}
		o := snap.Orders[idx]
		score := math.Abs(float64(o.DeadlineMin - so.DeadlineMin))
		if o.Zone != so.Zone {
			score += 60
		}
		score += 15 * math.Abs(float64(o.Priority-so.Priority))
		rel = append(rel, pair{idx: idx, score: score})
	}
	sort.Slice(rel, func(a, b int) bool { return rel[a].score < rel[b].score })

	removed := []int{seedIdx}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].idx)
	}
	rm := make(map[int]bool, len(removed))
	for _, idx := range removed {
		rm[idx] = true
	}
	kept := sol.seq[:0]
	for _, idx := range sol.seq {
		if !rm[idx] {
			kept = append(kept, idx)
		}
	}
	sol.seq = kept
	return removed
}

// candidatePositions samples insertion points for an order: the front,
// the back, the deadline-ordered position, and a few random spots.
func candidatePositions(pr *problem, sol *solution, idx int, rng *rand.Rand) []int {
	snap := pr.snap
	n := len(sol.seq)
	dl := snap.Orders[idx].DeadlineMin
	byDeadline := sort.Search(n, func(i int) bool {
		return snap.Orders[sol.seq[i]].DeadlineMin >= dl
	})
	cands := []int{0, n, byDeadline}
	for i := 0; i < 3 && n > 0; i++ {
		cands = append(cands, rng.Intn(n+1))
	}
	seen := make(map[int]bool, len(cands))
	out := cands[:0]
	for _, p := range cands {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// assignmentVariants proposes resource mixes for one order: the current
// one, cheapest hourly rates, fastest workers, and a random draw.
func assignmentVariants(pr *problem, sol *solution, idx int, rng *rand.Rand) [][NumStages]taskAssign {
	snap := pr.snap
	variants := make([][NumStages]taskAssign, 0, 4)
	variants = append(variants, sol.assign[idx])

	var cheapest, fastest, random [NumStages]taskAssign
	for st := Stage(0); st < NumStages; st++ {
		pool := pr.workers[st]
		cw, fw := pool[0], pool[0]
		for _, wi := range pool {
			if snap.Workers[wi].HourlyRate < snap.Workers[cw].HourlyRate {
				cw = wi
			}
			if snap.Workers[wi].Efficiency > snap.Workers[fw].Efficiency {
				fw = wi
			}
		}
		eq := -1
		if epool := pr.equips[st]; len(epool) > 0 {
			eq = epool[rng.Intn(len(epool))]
		}
		cheapest[st] = taskAssign{worker: cw, equip: eq}
		fastest[st] = taskAssign{worker: fw, equip: eq}
		random[st] = taskAssign{worker: pool[rng.Intn(len(pool))], equip: eq}
	}
	return append(variants, cheapest, fastest, random)
}

// tryInsert evaluates one (position, assignment) candidate by full decode
// and returns its objective, or +Inf when strict decoding fails.
func tryInsert(pr *problem, sol *solution, idx, pos int, a [NumStages]taskAssign) float64 {
	trial := sol.clone()
	trial.seq = insertAt(trial.seq, pos, idx)
	trial.assign[idx] = a
	sc := decode(pr.snap, trial, pr.relax)
	if !sc.feasible {
		return math.Inf(1)
	}
	return objective(pr.snap, trial, sc)
}

func insertAt(seq []int, pos, v int) []int {
	if pos >= len(seq) {
		return append(seq, v)
	}
	seq = append(seq[:pos+1], seq[pos:]...)
	seq[pos] = v
	return seq
}

// greedyReinsert places removed orders back one at a time, earliest
// deadline first, at the cheapest sampled position and assignment.
func greedyReinsert(pr *problem, sol *solution, removed []int, rng *rand.Rand) {
	snap := pr.snap
	sort.Slice(removed, func(a, b int) bool {
		return snap.Orders[removed[a]].DeadlineMin < snap.Orders[removed[b]].DeadlineMin
	})
	for _, idx := range removed {
		bestPos, bestCost := len(sol.seq), math.Inf(1)
		var bestAssign [NumStages]taskAssign
		for _, pos := range candidatePositions(pr, sol, idx, rng) {
			for _, a := range assignmentVariants(pr, sol, idx, rng) {
				if c := tryInsert(pr, sol, idx, pos, a); c < bestCost {
					bestCost = c
					bestPos = pos
					bestAssign = a
				}
			}
		}
		if math.IsInf(bestCost, 1) {
			bestAssign = sol.assign[idx]
		}
		sol.seq = insertAt(sol.seq, bestPos, idx)
		sol.assign[idx] = bestAssign
	}
}

// regretReinsert inserts the order with the largest regret first: the one
// that loses the most if it cannot take its best position.
func regretReinsert(pr *problem, sol *solution, removed []int, rng *rand.Rand) {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		bestNi := 0
		bestRegret := -1.0
		var bestPos int
		var bestAssign [NumStages]taskAssign
		haveAny := false
		for ni, idx := range pending {
			b1, b2 := math.Inf(1), math.Inf(1)
			pos1 := len(sol.seq)
			var a1 [NumStages]taskAssign
			for _, pos := range candidatePositions(pr, sol, idx, rng) {
				for _, a := range assignmentVariants(pr, sol, idx, rng) {
					c := tryInsert(pr, sol, idx, pos, a)
					if c < b1 {
						b2 = b1
						b1 = c
						pos1 = pos
						a1 = a
					} else if c < b2 {
						b2 = c
					}
				}
			}
			if math.IsInf(b1, 1) {
				continue
			}
			regret := b2 - b1
			if math.IsInf(b2, 1) {
				regret = b1
			}
			if !haveAny || regret > bestRegret {
				haveAny = true
				bestRegret = regret
				bestNi = ni
				bestPos = pos1
				bestAssign = a1
			}
		}
		if !haveAny {
			// No strict-feasible spot; append with current assignment.
			idx := pending[0]
			sol.seq = append(sol.seq, idx)
			pending = pending[1:]
			continue
		}
		idx := pending[bestNi]
		sol.seq = insertAt(sol.seq, bestPos, idx)
		sol.assign[idx] = bestAssign
		pending = append(pending[:bestNi], pending[bestNi+1:]...)
	}
}

// reassignImprove tries alternate workers for a handful of random tasks
// and keeps first improvements.
func reassignImprove(pr *problem, sol *solution, rng *rand.Rand) {
	snap := pr.snap
	if len(sol.seq) == 0 {
		return
	}
	sc := decode(snap, *sol, pr.relax)
	if !sc.feasible {
		return
	}
	base := objective(snap, *sol, sc)
	tries := 8
	for t := 0; t < tries; t++ {
		oi := sol.seq[rng.Intn(len(sol.seq))]
		st := Stage(rng.Intn(int(NumStages)))
		pool := pr.workers[st]
		if len(pool) < 2 {
			continue
		}
		alt := pool[rng.Intn(len(pool))]
		if alt == sol.assign[oi][st].worker {
			continue
		}
		trial := sol.clone()
		trial.assign[oi][st].worker = alt
		if epool := pr.equips[st]; len(epool) > 1 && rng.Intn(2) == 0 {
			trial.assign[oi][st].equip = epool[rng.Intn(len(epool))]
		}
		tsc := decode(snap, trial, pr.relax)
		if !tsc.feasible {
			continue
		}
		if c := objective(snap, trial, tsc); c+1e-9 < base {
			*sol = trial
			base = c
		}
	}
}

// waveShake nudges a random order to an adjacent wave when the saved
// schedule cost outweighs the disruption charge.
func waveShake(pr *problem, sol *solution, rng *rand.Rand) {
	if pr.waveCount < 2 || len(sol.seq) == 0 {
		return
	}
	snap := pr.snap
	sc := decode(snap, *sol, pr.relax)
	if !sc.feasible {
		return
	}
	base := objective(snap, *sol, sc)
	oi := sol.seq[rng.Intn(len(sol.seq))]
	dir := 1
	if rng.Intn(2) == 0 {
		dir = -1
	}
	w := sol.wave[oi] + dir
	if w < 0 || w >= pr.waveCount {
		return
	}
	trial := sol.clone()
	trial.wave[oi] = w
	tsc := decode(snap, trial, pr.relax)
	if !tsc.feasible {
		return
	}
	if objective(snap, trial, tsc)+1e-9 < base {
		*sol = trial
	}
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
