package api

import (
	"fmt"

	"waveopt/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.OrderLimit < 0 {
		return fmt.Errorf("orderLimit must be >= 0")
	}
	if req.TimeLimitSeconds < 0 {
		return fmt.Errorf("timeLimitSeconds must be >= 0")
	}
	if req.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	if req.InitTemp < 0 {
		return fmt.Errorf("initTemp must be >= 0")
	}
	if req.Cooling != 0 && (req.Cooling <= 0 || req.Cooling >= 1) {
		return fmt.Errorf("cooling must be in (0,1)")
	}
	if len(req.RemovalWeights) > 0 && len(req.RemovalWeights) != 2 {
		return fmt.Errorf("removalWeights must have length 2")
	}
	if len(req.InsertionWeights) > 0 && len(req.InsertionWeights) != 2 {
		return fmt.Errorf("insertionWeights must have length 2")
	}
	for _, ws := range [][]float64{req.RemovalWeights, req.InsertionWeights} {
		for _, w := range ws {
			if w < 0 {
				return fmt.Errorf("operator weights must be >= 0")
			}
		}
	}
	return nil
}

func validateOrders(orders []model.OrderIn) error {
	if len(orders) == 0 {
		return fmt.Errorf("orders must not be empty")
	}
	for i, o := range orders {
		if o.Priority != 0 && (o.Priority < 1 || o.Priority > 5) {
			return fmt.Errorf("orders[%d]: priority must be in 1..5", i)
		}
		if o.Deadline == "" {
			return fmt.Errorf("orders[%d]: deadline required", i)
		}
	}
	return nil
}
