// Package runner drives one optimization run end to end: snapshot the
// warehouse, build the legacy-compatible baseline, run the constrained
// search, compare the two plans and persist everything.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"waveopt/internal/config"
	"waveopt/internal/engine"
	"waveopt/internal/metrics"
	"waveopt/internal/model"
	"waveopt/internal/store"
)

// Run controller states.
const (
	StatePending       = "PENDING"
	StateSnapshotting  = "SNAPSHOTTING"
	StateBaselineBuilt = "BASELINE_BUILT"
	StateOptimizing    = "OPTIMIZING"
	StateComparing     = "COMPARING"
	StateDone          = "DONE"
	StateFailed        = "FAILED"
)

// ErrRunInFlight means the warehouse already has an active run.
var ErrRunInFlight = errors.New("optimization run already in flight for warehouse")

// Notifier receives run lifecycle events. The API layer plugs in its SSE
// broker and webhook publisher here.
type Notifier interface {
	RunEvent(warehouseID, runID, eventType string, data map[string]any)
}

// Controller owns run execution. Solves are CPU bound, so at most
// MaxConcurrent runs execute at once; extra runs queue on the semaphore
// in their PENDING state.
type Controller struct {
	Store  store.Store
	Config config.Engine
	Notify Notifier

	sem      chan struct{}
	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

func New(s store.Store, cfg config.Engine) *Controller {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return &Controller{
		Store:    s,
		Config:   cfg,
		sem:      make(chan struct{}, n),
		inFlight: map[string]context.CancelFunc{},
	}
}

// Start registers a new run and launches it in the background. It fails
// with ErrRunInFlight if the warehouse already has one active.
func (c *Controller) Start(ctx context.Context, req model.OptimizeRequest) (model.RunRecord, error) {
	c.mu.Lock()
	if _, busy := c.inFlight[req.WarehouseID]; busy {
		c.mu.Unlock()
		return model.RunRecord{}, ErrRunInFlight
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.inFlight[req.WarehouseID] = cancel
	c.mu.Unlock()

	run := model.RunRecord{
		RunID:       "run_" + uuid.New().String(),
		WarehouseID: req.WarehouseID,
		State:       StatePending,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.Store.CreateRun(ctx, run); err != nil {
		c.release(req.WarehouseID, cancel)
		return model.RunRecord{}, err
	}
	go c.execute(runCtx, run, req)
	return run, nil
}

// Cancel stops the warehouse's active run, if any. The solver keeps its
// incumbent plan, so the run still finishes with partial results.
func (c *Controller) Cancel(warehouseID string) bool {
	c.mu.Lock()
	cancel, ok := c.inFlight[warehouseID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (c *Controller) release(warehouseID string, cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	delete(c.inFlight, warehouseID)
	c.mu.Unlock()
}

func (c *Controller) execute(ctx context.Context, run model.RunRecord, req model.OptimizeRequest) {
	defer func() {
		c.mu.Lock()
		cancel := c.inFlight[run.WarehouseID]
		delete(c.inFlight, run.WarehouseID)
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if r := recover(); r != nil {
			c.fail(run, fmt.Sprintf("panic: %v", r))
		}
	}()

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		c.fail(run, "cancelled while queued")
		return
	}

	bg := context.Background()

	run.State = StateSnapshotting
	_ = c.Store.UpdateRun(bg, run)
	c.emit(run, "run.state", map[string]any{"state": run.State})

	cfg := c.Config
	if over, err := c.Store.GetEngineConfig(bg, run.WarehouseID); err == nil && over != nil {
		cfg = cfg.Merge(over)
	}
	snap, err := c.Store.LoadSnapshot(bg, run.WarehouseID, req.OrderLimit, cfg)
	if err != nil {
		c.fail(run, "load snapshot: "+err.Error())
		return
	}
	snap.DeriveDurations()
	if err := snap.Validate(); err != nil {
		c.fail(run, err.Error())
		return
	}
	run.OrderCount = len(snap.Orders)

	baseline := engine.BuildBaseline(snap)
	if err := c.Store.SavePlan(bg, run.RunID, string(engine.PlanBaseline), planRows(baseline)); err != nil {
		c.fail(run, "save baseline plan: "+err.Error())
		return
	}
	run.State = StateBaselineBuilt
	_ = c.Store.UpdateRun(bg, run)
	c.emit(run, "run.state", map[string]any{"state": run.State})

	run.State = StateOptimizing
	_ = c.Store.UpdateRun(bg, run)
	c.emit(run, "run.state", map[string]any{"state": run.State})

	optimized, res := engine.Optimize(ctx, snap, solverOptions(snap, req))

	run.State = StateComparing
	run.Status = string(res.Status)
	run.Degraded = res.Degraded
	run.Iterations = res.Iterations
	run.SolveTimeSeconds = res.SolveTime.Seconds()
	_ = c.Store.UpdateRun(bg, run)
	c.emit(run, "run.state", map[string]any{"state": run.State})

	bm, om, delta := engine.Compare(snap, baseline, optimized)
	if err := c.Store.SavePlan(bg, run.RunID, string(engine.PlanOptimized), planRows(optimized)); err != nil {
		c.fail(run, "save optimized plan: "+err.Error())
		return
	}

	run.State = StateDone
	run.Baseline = &bm
	run.Optimized = &om
	run.Delta = &delta
	_ = c.Store.UpdateRun(bg, run)

	engine.RecordSearchMetrics(run.WarehouseID, run.RunID, res)
	metrics.RunsTotal.WithLabelValues(run.Status).Inc()
	metrics.SolveDuration.Observe(run.SolveTimeSeconds)
	metrics.CostSavings.WithLabelValues(run.WarehouseID).Set(delta.CostSavings)

	c.emit(run, "run.completed", map[string]any{
		"status":           run.Status,
		"degraded":         run.Degraded,
		"orderCount":       run.OrderCount,
		"delta":            delta,
		"solveTimeSeconds": run.SolveTimeSeconds,
	})
}

func (c *Controller) fail(run model.RunRecord, reason string) {
	run.State = StateFailed
	run.Error = reason
	_ = c.Store.UpdateRun(context.Background(), run)
	metrics.RunsTotal.WithLabelValues("FAILED").Inc()
	c.emit(run, "run.failed", map[string]any{"error": reason})
}

func (c *Controller) emit(run model.RunRecord, eventType string, data map[string]any) {
	if c.Notify == nil {
		return
	}
	c.Notify.RunEvent(run.WarehouseID, run.RunID, eventType, data)
}

// solverOptions maps the request onto engine options, deriving the wave
// count from the snapshot for cross-wave moves.
func solverOptions(snap *engine.Snapshot, req model.OptimizeRequest) engine.Options {
	waves := 1
	for _, o := range snap.Orders {
		if o.WaveIndex+1 > waves {
			waves = o.WaveIndex + 1
		}
	}
	return engine.Options{
		TimeLimit:               time.Duration(req.TimeLimitSeconds * float64(time.Second)),
		Seed:                    req.Seed,
		IterationsLimit:         req.MaxIterations,
		InitialTemp:             req.InitTemp,
		Cooling:                 req.Cooling,
		InitialRemovalWeights:   req.RemovalWeights,
		InitialInsertionWeights: req.InsertionWeights,
		CrossWave:               req.CrossWave,
		WaveCount:               waves,
	}
}

// planRows converts a plan into its persistence shape.
func planRows(p engine.Plan) []model.TaskRow {
	rows := make([]model.TaskRow, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		rows = append(rows, model.TaskRow{
			OrderID:          t.OrderID,
			Stage:            t.Stage.String(),
			WorkerID:         t.WorkerID,
			EquipmentID:      t.EquipmentID,
			StartTimeMinutes: t.StartMin,
			DurationMinutes:  t.DurationMin,
			WaitMinutes:      t.WaitMin,
			SequenceOrder:    t.SequenceOrder,
			Overtime:         t.Overtime,
			WaveIndex:        t.WaveIndex,
		})
	}
	return rows
}
