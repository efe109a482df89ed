// Package engine implements the wave scheduling core: the deterministic
// baseline planner, the ALNS-style optimizer, and the plan comparator.
package engine

import (
	"fmt"
	"math"
	"time"

	"waveopt/internal/config"
)

// Stage is one of the six sequential fulfillment steps. The integer order
// defines precedence: stage i of an order cannot start before stage i-1 ends.
type Stage int

const (
	StagePick Stage = iota
	StageConsolidate
	StagePack
	StageLabel
	StageStage
	StageShip

	NumStages = 6
)

var stageNames = [NumStages]string{"PICK", "CONSOLIDATE", "PACK", "LABEL", "STAGE", "SHIP"}

func (s Stage) String() string {
	if s < 0 || int(s) >= NumStages {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage maps a stage name back to its Stage value.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// Skill names per stage, matching the worker skill taxonomy.
var stageSkills = [NumStages]string{"picking", "consolidation", "packing", "labeling", "staging", "shipping"}

// Skill returns the worker skill required for the stage.
func (s Stage) Skill() string { return stageSkills[s] }

// equipmentTypeStages maps an equipment type to the stages it serves.
var equipmentTypeStages = map[string][]Stage{
	"pick_cart":       {StagePick},
	"conveyor":        {StageConsolidate},
	"packing_station": {StagePack},
	"label_printer":   {StageLabel},
	"staging_rack":    {StageStage},
	"dock_door":       {StageShip},
	"forklift":        {StageStage, StageShip},
}

// StagesForEquipmentType resolves an equipment type; unknown types serve no
// stage and are ignored by both planners.
func StagesForEquipmentType(typ string) []Stage { return equipmentTypeStages[typ] }

type LineItem struct {
	SKU         string
	Quantity    int
	PickMinutes float64 // per unit
	PackMinutes float64 // per unit
	WeightKg    float64 // per unit
}

type Order struct {
	ID       string
	Seq      int // stable 0-based position within the snapshot
	Priority int // 1 = most urgent .. 5
	Deadline time.Time
	// DeadlineMin is the deadline in minutes from the horizon start. It may
	// be negative when the deadline has already passed at run time.
	DeadlineMin int
	Zone        string
	WaveIndex   int // published wave this order currently belongs to
	Items       []LineItem
	WeightKg    float64
	Units       int
	// BaseMinutes holds the derived, un-degraded per-stage work content.
	BaseMinutes [NumStages]int
}

type Worker struct {
	ID            string
	Name          string
	HourlyRate    float64
	Efficiency    float64 // >1 = faster
	Skills        map[string]bool
	MaxMinutes    int // regular minutes per day before overtime applies
	ShiftStartMin int
	ShiftEndMin   int
}

// Qualified reports whether the worker holds the skill for the stage.
func (w Worker) Qualified(s Stage) bool { return w.Skills[s.Skill()] }

type Equipment struct {
	ID         string
	Type       string
	Capacity   int // simultaneous tasks
	HourlyCost float64
	Efficiency float64
	Stages     []Stage
}

// Serves reports whether the unit can be used for the stage.
func (e Equipment) Serves(s Stage) bool {
	for _, st := range e.Stages {
		if st == s {
			return true
		}
	}
	return false
}

// WalkMatrix is a precomputed zone-to-zone walking time lookup in minutes.
// It is an input to the engine, never computed here.
type WalkMatrix map[string]map[string]int

// Minutes returns the walking time between two zones, zero when unknown.
func (m WalkMatrix) Minutes(from, to string) int {
	if from == "" || to == "" || from == to {
		return 0
	}
	if row, ok := m[from]; ok {
		return row[to]
	}
	return 0
}

// Snapshot is a consistent, immutable read of one warehouse for a single
// optimization horizon. The engine holds no state beyond it.
type Snapshot struct {
	WarehouseID  string
	HorizonStart time.Time
	Orders       []Order
	Workers      []Worker
	Equipment    []Equipment
	Walk         WalkMatrix
	Config       config.Engine
}

// SnapshotError marks inconsistent input data. It fails the run before
// either planner starts and is surfaced with the offending entity id.
type SnapshotError struct {
	Entity string
	ID     string
	Reason string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot: %s %q: %s", e.Entity, e.ID, e.Reason)
}

// stageUsesEquipment reports whether the snapshot carries any unit serving
// the stage; stages with no matching equipment run without one.
func (s *Snapshot) stageUsesEquipment(st Stage) bool {
	for _, e := range s.Equipment {
		if e.Serves(st) {
			return true
		}
	}
	return false
}

// DeriveDurations fills each order's per-stage base minutes from its line
// items and the configured standard times. Must run before Validate.
func (s *Snapshot) DeriveDurations() {
	for i := range s.Orders {
		o := &s.Orders[i]
		o.Units = 0
		o.WeightKg = 0
		var pick, pack float64
		for _, it := range o.Items {
			q := float64(it.Quantity)
			pick += it.PickMinutes * q
			pack += it.PackMinutes * q
			o.WeightKg += it.WeightKg * q
			o.Units += it.Quantity
		}
		for st := Stage(0); st < NumStages; st++ {
			std := float64(s.Config.StageStdMinutes[st.String()])
			var base float64
			switch st {
			case StagePick:
				base = std + pick
			case StagePack:
				base = std + pack
			default:
				// Handling stages scale gently with order size.
				base = std + 0.25*float64(o.Units)
			}
			o.BaseMinutes[st] = int(math.Ceil(base))
		}
		o.DeadlineMin = int(o.Deadline.Sub(s.HorizonStart) / time.Minute)
	}
}

// Validate checks the snapshot invariants shared by both planners.
func (s *Snapshot) Validate() error {
	if len(s.Orders) == 0 {
		return &SnapshotError{Entity: "warehouse", ID: s.WarehouseID, Reason: "no orders in horizon"}
	}
	for _, o := range s.Orders {
		if o.Priority < 1 || o.Priority > 5 {
			return &SnapshotError{Entity: "order", ID: o.ID, Reason: fmt.Sprintf("priority %d outside 1..5", o.Priority)}
		}
		if len(o.Items) == 0 {
			return &SnapshotError{Entity: "order", ID: o.ID, Reason: "no line items"}
		}
		for _, it := range o.Items {
			if it.Quantity <= 0 {
				return &SnapshotError{Entity: "sku", ID: it.SKU, Reason: "non-positive quantity"}
			}
			if it.PickMinutes <= 0 {
				return &SnapshotError{Entity: "sku", ID: it.SKU, Reason: "missing pick time"}
			}
		}
		if o.Deadline.IsZero() {
			return &SnapshotError{Entity: "order", ID: o.ID, Reason: "missing deadline"}
		}
	}
	for _, w := range s.Workers {
		if w.Efficiency <= 0 {
			return &SnapshotError{Entity: "worker", ID: w.ID, Reason: "non-positive efficiency"}
		}
		if w.ShiftEndMin <= w.ShiftStartMin {
			return &SnapshotError{Entity: "worker", ID: w.ID, Reason: "empty shift window"}
		}
	}
	for _, e := range s.Equipment {
		if e.Capacity <= 0 {
			return &SnapshotError{Entity: "equipment", ID: e.ID, Reason: "non-positive capacity"}
		}
	}
	// Every stage needs at least one qualified worker; an empty pool can
	// never yield a complete plan.
	for st := Stage(0); st < NumStages; st++ {
		if len(s.workerPool(st)) == 0 {
			return &SnapshotError{Entity: "skill", ID: st.Skill(), Reason: "no qualified workers"}
		}
	}
	return nil
}

// workerPool returns indices of workers qualified for the stage, in input
// order (stable across runs for a given snapshot).
func (s *Snapshot) workerPool(st Stage) []int {
	var pool []int
	for i, w := range s.Workers {
		if w.Qualified(st) {
			pool = append(pool, i)
		}
	}
	return pool
}

// equipmentPool returns indices of units serving the stage.
func (s *Snapshot) equipmentPool(st Stage) []int {
	var pool []int
	for i, e := range s.Equipment {
		if e.Serves(st) {
			pool = append(pool, i)
		}
	}
	return pool
}
