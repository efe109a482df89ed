package api

import (
	"testing"

	"waveopt/internal/model"
)

func TestValidateOptimizeRequest(t *testing.T) {
	cases := []struct {
		name string
		req  model.OptimizeRequest
		ok   bool
	}{
		{"empty", model.OptimizeRequest{}, true},
		{"full", model.OptimizeRequest{TimeLimitSeconds: 5, MaxIterations: 100, Cooling: 0.99, RemovalWeights: []float64{1, 2}, InsertionWeights: []float64{1, 1}}, true},
		{"negative time", model.OptimizeRequest{TimeLimitSeconds: -1}, false},
		{"negative iterations", model.OptimizeRequest{MaxIterations: -5}, false},
		{"cooling too high", model.OptimizeRequest{Cooling: 1.0}, false},
		{"short weights", model.OptimizeRequest{RemovalWeights: []float64{1}}, false},
		{"negative weight", model.OptimizeRequest{InsertionWeights: []float64{1, -1}}, false},
		{"negative order limit", model.OptimizeRequest{OrderLimit: -1}, false},
	}
	for _, tc := range cases {
		err := validateOptimizeRequest(&tc.req)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestValidateOrders(t *testing.T) {
	if err := validateOrders(nil); err == nil {
		t.Fatal("empty batch should fail")
	}
	good := []model.OrderIn{{Priority: 2, Deadline: "2025-03-10T14:00:00Z"}}
	if err := validateOrders(good); err != nil {
		t.Fatalf("valid batch: %v", err)
	}
	if err := validateOrders([]model.OrderIn{{Priority: 6, Deadline: "2025-03-10T14:00:00Z"}}); err == nil {
		t.Fatal("priority 6 should fail")
	}
	if err := validateOrders([]model.OrderIn{{Priority: 2}}); err == nil {
		t.Fatal("missing deadline should fail")
	}
}
