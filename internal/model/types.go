package model

// Wire types shared by the API layer, the run controller, and the store.

type LineItemIn struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type OrderIn struct {
	ExternalRef string         `json:"externalRef,omitempty"`
	Priority    int            `json:"priority"` // 1 = most urgent .. 5
	Deadline    string         `json:"deadline"` // RFC3339
	Zone        string         `json:"zone,omitempty"`
	Items       []LineItemIn   `json:"items"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

type OrderOut struct {
	ID          string `json:"id"`
	WarehouseID string `json:"warehouseId"`
	ExternalRef string `json:"externalRef,omitempty"`
	Priority    int    `json:"priority"`
	Deadline    string `json:"deadline"`
	Status      string `json:"status"`
}

// OptimizeRequest triggers one wave scheduling run.
type OptimizeRequest struct {
	WarehouseID      string    `json:"warehouseId"`
	OrderLimit       int       `json:"orderLimit,omitempty"`
	TimeLimitSeconds float64   `json:"timeLimitSeconds,omitempty"`
	CrossWave        bool      `json:"crossWave,omitempty"`
	Seed             int64     `json:"seed,omitempty"`
	MaxIterations    int       `json:"maxIterations,omitempty"`
	InitTemp         float64   `json:"initTemp,omitempty"`
	Cooling          float64   `json:"cooling,omitempty"`
	RemovalWeights   []float64 `json:"removalWeights,omitempty"`
	InsertionWeights []float64 `json:"insertionWeights,omitempty"`
}

// PlanMetrics summarizes one plan for persistence and API responses.
type PlanMetrics struct {
	WorkerUtilizationPct    float64 `json:"workerUtilizationPct"`
	EquipmentUtilizationPct float64 `json:"equipmentUtilizationPct"`
	OnTimePct               float64 `json:"onTimePct"`
	LateOrders              int     `json:"lateOrders"`
	LaborCost               float64 `json:"laborCost"`
	EquipmentCost           float64 `json:"equipmentCost"`
	DeadlinePenalty         float64 `json:"deadlinePenalty"`
	OvertimeCost            float64 `json:"overtimeCost"`
	TotalCost               float64 `json:"totalCost"`
	MakespanMinutes         int     `json:"makespanMinutes"`
	ProcessingMinutes       int     `json:"processingMinutes"`
	WaitingMinutes          int     `json:"waitingMinutes"`
	ContentionMinutes       int     `json:"contentionMinutes"`
}

// Delta is the baseline-vs-optimized savings report.
type Delta struct {
	TimeSavingsMinutes  int     `json:"timeSavingsMinutes"`
	CostSavings         float64 `json:"costSavings"`
	EfficiencyGainPct   float64 `json:"efficiencyGainPct"`
	WorkerReassignments int     `json:"workerReassignments"`
	OrderMovements      int     `json:"orderMovements"`
}

// TaskRow is the persistence shape for one planned (order, stage) task.
type TaskRow struct {
	OrderID          string `json:"orderId"`
	Stage            string `json:"stage"`
	WorkerID         string `json:"workerId"`
	EquipmentID      string `json:"equipmentId,omitempty"`
	StartTimeMinutes int    `json:"startTimeMinutes"`
	DurationMinutes  int    `json:"durationMinutes"`
	WaitMinutes      int    `json:"waitMinutes"`
	SequenceOrder    int    `json:"sequenceOrder"`
	Overtime         bool   `json:"overtime,omitempty"`
	WaveIndex        int    `json:"waveIndex,omitempty"`
}

// RunRecord is the immutable result of one optimization run.
type RunRecord struct {
	RunID            string       `json:"runId"`
	WarehouseID      string       `json:"warehouseId"`
	State            string       `json:"state"`  // run controller state
	Status           string       `json:"status"` // solver status
	Degraded         bool         `json:"degraded"`
	OrderCount       int          `json:"orderCount"`
	Baseline         *PlanMetrics `json:"baselineMetrics,omitempty"`
	Optimized        *PlanMetrics `json:"optimizedMetrics,omitempty"`
	Delta            *Delta       `json:"delta,omitempty"`
	SolveTimeSeconds float64      `json:"solveTimeSeconds"`
	Iterations       int          `json:"iterations,omitempty"`
	Error            string       `json:"error,omitempty"`
	CreatedAt        string       `json:"createdAt"`
}

type SubscriptionRequest struct {
	WarehouseID string   `json:"warehouseId"`
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Secret      string   `json:"secret"`
}

type Subscription struct {
	ID          string   `json:"id"`
	WarehouseID string   `json:"warehouseId"`
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Secret      string   `json:"secret,omitempty"`
}
