package engine

// PlanKind tags which planner produced a plan.
type PlanKind string

const (
	PlanBaseline  PlanKind = "baseline"
	PlanOptimized PlanKind = "optimized"
)

// Task is the atomic scheduled unit: one (order, stage) pair with an
// assigned worker, optional equipment, start time and duration. All times
// are minutes from the snapshot horizon start.
type Task struct {
	OrderID       string
	OrderSeq      int
	Stage         Stage
	WorkerID      string
	EquipmentID   string
	StartMin      int
	DurationMin   int
	WaitMin       int
	SequenceOrder int
	Overtime      bool
	WaveIndex     int
}

// EndMin is the task's exclusive end minute.
func (t Task) EndMin() int { return t.StartMin + t.DurationMin }

// Plan is a complete assignment: exactly one Task per (order, stage).
type Plan struct {
	Kind     PlanKind
	Tasks    []Task
	Degraded bool
}

// ShipEnd returns the completion minute of the order's SHIP stage, or
// (0, false) if the order has no ship task.
func (p Plan) ShipEnd(orderSeq int) (int, bool) {
	for _, t := range p.Tasks {
		if t.OrderSeq == orderSeq && t.Stage == StageShip {
			return t.EndMin(), true
		}
	}
	return 0, false
}

// tasksByOrder groups task indices per order sequence number, stage-ordered.
func (p Plan) tasksByOrder() map[int][NumStages]*Task {
	out := make(map[int][NumStages]*Task)
	for i := range p.Tasks {
		t := &p.Tasks[i]
		row := out[t.OrderSeq]
		row[t.Stage] = t
		out[t.OrderSeq] = row
	}
	return out
}
