package engine

import (
	"fmt"
	"testing"
	"time"

	"waveopt/internal/config"
)

var horizon = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func allSkills() map[string]bool {
	m := make(map[string]bool, NumStages)
	for st := Stage(0); st < NumStages; st++ {
		m[st.Skill()] = true
	}
	return m
}

// testSnapshot builds a small validated warehouse: cross-trained workers on
// an eight hour shift, one equipment unit per stage family, and orders with
// staggered deadlines across two zones.
func testSnapshot(t *testing.T, nOrders, nWorkers int) *Snapshot {
	t.Helper()
	snap := &Snapshot{
		WarehouseID:  "wh_test",
		HorizonStart: horizon,
		Config:       config.Default(),
		Walk:         WalkMatrix{"A": {"B": 3}, "B": {"A": 3}},
	}
	for i := 0; i < nWorkers; i++ {
		snap.Workers = append(snap.Workers, Worker{
			ID:            fmt.Sprintf("w%d", i+1),
			Name:          fmt.Sprintf("Worker %d", i+1),
			HourlyRate:    18 + float64(i),
			Efficiency:    1.0 + 0.1*float64(i%3),
			Skills:        allSkills(),
			MaxMinutes:    480,
			ShiftStartMin: 0,
			ShiftEndMin:   480,
		})
	}
	snap.Equipment = []Equipment{
		{ID: "cart1", Type: "pick_cart", Capacity: 2, HourlyCost: 2, Efficiency: 1.0, Stages: StagesForEquipmentType("pick_cart")},
		{ID: "conv1", Type: "conveyor", Capacity: 4, HourlyCost: 3, Efficiency: 1.0, Stages: StagesForEquipmentType("conveyor")},
		{ID: "pack1", Type: "packing_station", Capacity: 2, HourlyCost: 2.5, Efficiency: 1.0, Stages: StagesForEquipmentType("packing_station")},
		{ID: "lbl1", Type: "label_printer", Capacity: 2, HourlyCost: 1, Efficiency: 1.0, Stages: StagesForEquipmentType("label_printer")},
		{ID: "rack1", Type: "staging_rack", Capacity: 4, HourlyCost: 0.5, Efficiency: 1.0, Stages: StagesForEquipmentType("staging_rack")},
		{ID: "dock1", Type: "dock_door", Capacity: 2, HourlyCost: 4, Efficiency: 1.0, Stages: StagesForEquipmentType("dock_door")},
	}
	zones := []string{"A", "B"}
	for i := 0; i < nOrders; i++ {
		snap.Orders = append(snap.Orders, Order{
			ID:       fmt.Sprintf("ord_%03d", i+1),
			Seq:      i,
			Priority: i%5 + 1,
			Deadline: horizon.Add(5*time.Hour + time.Duration(i)*15*time.Minute),
			Zone:     zones[i%2],
			Items: []LineItem{
				{SKU: fmt.Sprintf("sku_%d", i), Quantity: 1 + i%3, PickMinutes: 1.5, PackMinutes: 1.0, WeightKg: 2},
			},
		})
	}
	snap.DeriveDurations()
	if err := snap.Validate(); err != nil {
		t.Fatalf("fixture snapshot invalid: %v", err)
	}
	return snap
}
