package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"waveopt/internal/config"
	"waveopt/internal/engine"
	"waveopt/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// Each warehouse gets a seeded worker roster, equipment fleet, walking
// matrix, and SKU catalog the first time it is touched, so the engine can
// run end to end without a database.
type Memory struct {
	mu        sync.Mutex
	orders    map[string]*memOrder
	byWh      map[string][]string
	rosters   map[string]*memRoster
	skus      map[string]skuInfo
	runs      map[string]model.RunRecord
	runsByWh  map[string][]string
	plans     map[string][]model.TaskRow // runID|kind
	subs      map[string][]model.Subscription
	engineCfg map[string]map[string]any

	deliveries     map[string]*memDelivery
	deliveriesByWh map[string][]string
}

type memOrder struct {
	model.OrderOut
	Zone      string
	WaveIndex int
	Items     []model.LineItemIn
}

type memRoster struct {
	workers   []engine.Worker
	equipment []engine.Equipment
	walk      engine.WalkMatrix
}

type skuInfo struct {
	PickMinutes float64
	PackMinutes float64
	WeightKg    float64
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orders:         map[string]*memOrder{},
		byWh:           map[string][]string{},
		rosters:        map[string]*memRoster{},
		skus:           map[string]skuInfo{},
		runs:           map[string]model.RunRecord{},
		runsByWh:       map[string][]string{},
		plans:          map[string][]model.TaskRow{},
		subs:           map[string][]model.Subscription{},
		engineCfg:      map[string]map[string]any{},
		deliveries:     map[string]*memDelivery{},
		deliveriesByWh: map[string][]string{},
	}
}

// roster returns the warehouse roster, seeding a default one on first use.
// Callers must hold m.mu.
func (m *Memory) roster(warehouseID string) *memRoster {
	if r, ok := m.rosters[warehouseID]; ok {
		return r
	}
	skills := func(names ...string) map[string]bool {
		s := map[string]bool{}
		for _, n := range names {
			s[n] = true
		}
		return s
	}
	all := []string{"picking", "consolidation", "packing", "labeling", "staging", "shipping"}
	r := &memRoster{
		workers: []engine.Worker{
			{ID: "w_ada", Name: "Ada", HourlyRate: 19.50, Efficiency: 1.15, Skills: skills(all...), MaxMinutes: 480, ShiftEndMin: 480},
			{ID: "w_bo", Name: "Bo", HourlyRate: 17.25, Efficiency: 0.95, Skills: skills(all...), MaxMinutes: 480, ShiftEndMin: 480},
			{ID: "w_cy", Name: "Cy", HourlyRate: 18.50, Efficiency: 1.05, Skills: skills(all...), MaxMinutes: 480, ShiftEndMin: 480},
			{ID: "w_dee", Name: "Dee", HourlyRate: 21.00, Efficiency: 1.25, Skills: skills("picking", "consolidation"), MaxMinutes: 480, ShiftEndMin: 480},
			{ID: "w_eli", Name: "Eli", HourlyRate: 16.75, Efficiency: 1.00, Skills: skills("packing", "labeling"), MaxMinutes: 480, ShiftEndMin: 480},
			{ID: "w_fay", Name: "Fay", HourlyRate: 20.25, Efficiency: 1.10, Skills: skills("staging", "shipping"), MaxMinutes: 480, ShiftEndMin: 480},
		},
		equipment: []engine.Equipment{
			{ID: "cart_1", Type: "pick_cart", Capacity: 2, HourlyCost: 1.50, Efficiency: 1.0, Stages: engine.StagesForEquipmentType("pick_cart")},
			{ID: "conv_1", Type: "conveyor", Capacity: 6, HourlyCost: 3.00, Efficiency: 1.1, Stages: engine.StagesForEquipmentType("conveyor")},
			{ID: "pack_1", Type: "packing_station", Capacity: 2, HourlyCost: 2.00, Efficiency: 1.0, Stages: engine.StagesForEquipmentType("packing_station")},
			{ID: "pack_2", Type: "packing_station", Capacity: 2, HourlyCost: 2.00, Efficiency: 1.05, Stages: engine.StagesForEquipmentType("packing_station")},
			{ID: "lbl_1", Type: "label_printer", Capacity: 3, HourlyCost: 0.75, Efficiency: 1.0, Stages: engine.StagesForEquipmentType("label_printer")},
			{ID: "rack_1", Type: "staging_rack", Capacity: 8, HourlyCost: 0.25, Efficiency: 1.0, Stages: engine.StagesForEquipmentType("staging_rack")},
			{ID: "dock_1", Type: "dock_door", Capacity: 2, HourlyCost: 4.50, Efficiency: 1.0, Stages: engine.StagesForEquipmentType("dock_door")},
			{ID: "fork_1", Type: "forklift", Capacity: 1, HourlyCost: 6.00, Efficiency: 1.2, Stages: engine.StagesForEquipmentType("forklift")},
		},
		walk: engine.WalkMatrix{
			"A": {"B": 2, "C": 4},
			"B": {"A": 2, "C": 3},
			"C": {"A": 4, "B": 3},
		},
	}
	m.rosters[warehouseID] = r
	return r
}

// sku returns catalog timing data, registering defaults for new SKUs.
// Callers must hold m.mu.
func (m *Memory) sku(id string) skuInfo {
	if s, ok := m.skus[id]; ok {
		return s
	}
	s := skuInfo{PickMinutes: 1.5, PackMinutes: 1.0, WeightKg: 2.0}
	m.skus[id] = s
	return s
}

// SetSKU overrides catalog data for one SKU.
func (m *Memory) SetSKU(id string, pickMin, packMin, weightKg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skus[id] = skuInfo{PickMinutes: pickMin, PackMinutes: packMin, WeightKg: weightKg}
}

func (m *Memory) CreateOrders(ctx context.Context, warehouseID string, orders []model.OrderIn) (string, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster(warehouseID)
	created, skipped := 0, 0
	for _, in := range orders {
		if len(in.Items) == 0 {
			skipped++
			continue
		}
		if _, err := time.Parse(time.RFC3339, in.Deadline); err != nil {
			skipped++
			continue
		}
		id := uuid.New().String()
		o := &memOrder{
			OrderOut: model.OrderOut{
				ID:          id,
				WarehouseID: warehouseID,
				ExternalRef: in.ExternalRef,
				Priority:    in.Priority,
				Deadline:    in.Deadline,
				Status:      "pending",
			},
			Zone:  in.Zone,
			Items: in.Items,
		}
		if o.Zone == "" {
			o.Zone = "A"
		}
		if wv, ok := in.Attributes["waveIndex"]; ok {
			if f, ok := wv.(float64); ok {
				o.WaveIndex = int(f)
			}
		}
		for _, it := range in.Items {
			m.sku(it.SKU)
		}
		m.orders[id] = o
		m.byWh[warehouseID] = append(m.byWh[warehouseID], id)
		created++
	}
	return "imp_mem", created, skipped, nil
}

func (m *Memory) ListOrders(ctx context.Context, warehouseID, status, cursor string, limit int) ([]model.OrderOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byWh[warehouseID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.OrderOut{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		o := m.orders[ids[i]]
		if status == "" || o.Status == status {
			out = append(out, o.OrderOut)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) LoadSnapshot(ctx context.Context, warehouseID string, orderLimit int, cfg config.Engine) (*engine.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.roster(warehouseID)
	now := time.Now().UTC()
	horizon := time.Date(now.Year(), now.Month(), now.Day(), cfg.ShiftStartHour, 0, 0, 0, time.UTC)

	snap := &engine.Snapshot{
		WarehouseID:  warehouseID,
		HorizonStart: horizon,
		Workers:      append([]engine.Worker(nil), r.workers...),
		Equipment:    append([]engine.Equipment(nil), r.equipment...),
		Walk:         r.walk,
		Config:       cfg,
	}
	for i := range snap.Workers {
		if snap.Workers[i].ShiftEndMin == 0 {
			snap.Workers[i].ShiftEndMin = cfg.ShiftMinutes()
		}
	}

	var pending []*memOrder
	for _, id := range m.byWh[warehouseID] {
		if o := m.orders[id]; o.Status == "pending" {
			pending = append(pending, o)
		}
	}
	sort.SliceStable(pending, func(a, b int) bool {
		if pending[a].Deadline != pending[b].Deadline {
			return pending[a].Deadline < pending[b].Deadline
		}
		return pending[a].ID < pending[b].ID
	})
	if orderLimit > 0 && len(pending) > orderLimit {
		pending = pending[:orderLimit]
	}
	for seq, o := range pending {
		deadline, err := time.Parse(time.RFC3339, o.Deadline)
		if err != nil {
			return nil, fmt.Errorf("order %s: bad deadline %q: %w", o.ID, o.Deadline, err)
		}
		eo := engine.Order{
			ID:        o.ID,
			Seq:       seq,
			Priority:  o.Priority,
			Deadline:  deadline,
			Zone:      o.Zone,
			WaveIndex: o.WaveIndex,
		}
		for _, it := range o.Items {
			s := m.sku(it.SKU)
			eo.Items = append(eo.Items, engine.LineItem{
				SKU:         it.SKU,
				Quantity:    it.Quantity,
				PickMinutes: s.PickMinutes,
				PackMinutes: s.PackMinutes,
				WeightKg:    s.WeightKg,
			})
		}
		snap.Orders = append(snap.Orders, eo)
	}
	return snap, nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	m.runsByWh[run.WarehouseID] = append(m.runsByWh[run.WarehouseID], run.RunID)
	return nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.RunID]; !ok {
		return ErrNotFound
	}
	m.runs[run.RunID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, warehouseID, runID string) (model.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || (warehouseID != "" && run.WarehouseID != warehouseID) {
		return model.RunRecord{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(ctx context.Context, warehouseID, cursor string, limit int) ([]model.RunRecord, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.runsByWh[warehouseID]
	// Newest first.
	rev := make([]string, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		rev = append(rev, ids[i])
	}
	start := 0
	if cursor != "" {
		for i, id := range rev {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 50
	}
	out := []model.RunRecord{}
	next := ""
	for i := start; i < len(rev) && len(out) < limit; i++ {
		out = append(out, m.runs[rev[i]])
		next = rev[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) SavePlan(ctx context.Context, runID, kind string, tasks []model.TaskRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[runID+"|"+kind] = append([]model.TaskRow(nil), tasks...)
	return nil
}

func (m *Memory) ListPlanTasks(ctx context.Context, runID, kind string) ([]model.TaskRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.plans[runID+"|"+kind]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]model.TaskRow(nil), rows...), nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), WarehouseID: req.WarehouseID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.WarehouseID] = append(m.subs[req.WarehouseID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, warehouseID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[warehouseID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, warehouseID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[warehouseID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, warehouseID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[warehouseID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[warehouseID] = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, warehouseID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{
		ID: id, WarehouseID: warehouseID, SubscriptionID: subscriptionID,
		EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending",
	}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByWh[warehouseID] = append(m.deliveriesByWh[warehouseID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, ids := range m.deliveriesByWh {
		for _, id := range ids {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, warehouseID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByWh[warehouseID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, warehouseID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil && d.WarehouseID == warehouseID {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}

func (m *Memory) GetEngineConfig(ctx context.Context, warehouseID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.engineCfg[warehouseID]; ok {
		return cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveEngineConfig(ctx context.Context, warehouseID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engineCfg[warehouseID] = cfg
	return nil
}
