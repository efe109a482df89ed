package engine

import "sync"

type metricsKey struct {
	Warehouse string
	RunID     string
}

var (
	metricsMu    sync.Mutex
	metricsStore = map[metricsKey]Result{}
)

// RecordSearchMetrics keeps the solve telemetry for later inspection.
func RecordSearchMetrics(warehouse, runID string, r Result) {
	metricsMu.Lock()
	metricsStore[metricsKey{Warehouse: warehouse, RunID: runID}] = r
	metricsMu.Unlock()
}

// SearchMetrics returns the recorded telemetry for a warehouse keyed by
// run ID.
func SearchMetrics(warehouse string) map[string]Result {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := map[string]Result{}
	for k, v := range metricsStore {
		if k.Warehouse == warehouse {
			out[k.RunID] = v
		}
	}
	return out
}
