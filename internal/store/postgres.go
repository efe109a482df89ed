package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"waveopt/internal/config"
	"waveopt/internal/engine"
	"waveopt/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

// CreateOrders inserts orders and their line items. Dedup by
// (warehouse_id, external_ref).
func (p *Postgres) CreateOrders(ctx context.Context, warehouseID string, orders []model.OrderIn) (string, int, int, error) {
	importID := fmt.Sprintf("imp_%d", time.Now().UnixNano())
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created, skipped := 0, 0
	for _, o := range orders {
		if o.ExternalRef != "" {
			var existsID string
			err = tx.QueryRowContext(ctx, `SELECT id::text FROM orders WHERE warehouse_id=$1 AND external_ref=$2`, warehouseID, o.ExternalRef).Scan(&existsID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return "", 0, 0, err
			}
		}
		oid := uuid.New()
		waveIndex := 0
		if wv, ok := o.Attributes["waveIndex"].(float64); ok {
			waveIndex = int(wv)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO orders (id, warehouse_id, external_ref, priority, deadline, zone, wave_index, status, attrs)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			oid, warehouseID, nullIfEmpty(o.ExternalRef), o.Priority, o.Deadline, nullIfEmpty(o.Zone), waveIndex, "pending", toJSON(o.Attributes))
		if err != nil {
			return "", 0, 0, err
		}
		for _, it := range o.Items {
			_, err = tx.ExecContext(ctx, `INSERT INTO order_items (id, order_id, sku, quantity) VALUES ($1,$2,$3,$4)`,
				uuid.New(), oid, it.SKU, it.Quantity)
			if err != nil {
				return "", 0, 0, err
			}
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return "", 0, 0, err
	}
	return importID, created, skipped, nil
}

func (p *Postgres) ListOrders(ctx context.Context, warehouseID, status, cursor string, limit int) ([]model.OrderOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, COALESCE(external_ref,''), priority, deadline, status FROM orders WHERE warehouse_id=$1`
	args := []any{warehouseID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.OrderOut{}
	var last string
	for rows.Next() {
		var o model.OrderOut
		var deadline time.Time
		if err := rows.Scan(&o.ID, &o.ExternalRef, &o.Priority, &deadline, &o.Status); err != nil {
			return nil, "", err
		}
		o.WarehouseID = warehouseID
		o.Deadline = deadline.UTC().Format(time.RFC3339)
		out = append(out, o)
		last = o.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) LoadSnapshot(ctx context.Context, warehouseID string, orderLimit int, cfg config.Engine) (*engine.Snapshot, error) {
	now := time.Now().UTC()
	snap := &engine.Snapshot{
		WarehouseID:  warehouseID,
		HorizonStart: time.Date(now.Year(), now.Month(), now.Day(), cfg.ShiftStartHour, 0, 0, 0, time.UTC),
		Walk:         engine.WalkMatrix{},
		Config:       cfg,
	}

	// Workers and their skills.
	wrows, err := p.db.QueryContext(ctx, `SELECT id::text, name, hourly_rate, efficiency, max_minutes, shift_start_min, shift_end_min
		FROM workers WHERE warehouse_id=$1 AND active ORDER BY id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer wrows.Close()
	idx := map[string]int{}
	for wrows.Next() {
		var w engine.Worker
		if err := wrows.Scan(&w.ID, &w.Name, &w.HourlyRate, &w.Efficiency, &w.MaxMinutes, &w.ShiftStartMin, &w.ShiftEndMin); err != nil {
			return nil, err
		}
		w.Skills = map[string]bool{}
		idx[w.ID] = len(snap.Workers)
		snap.Workers = append(snap.Workers, w)
	}
	if err := wrows.Err(); err != nil {
		return nil, err
	}
	srows, err := p.db.QueryContext(ctx, `SELECT ws.worker_id::text, ws.skill FROM worker_skills ws
		JOIN workers w ON w.id = ws.worker_id WHERE w.warehouse_id=$1`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var wid, skill string
		if err := srows.Scan(&wid, &skill); err != nil {
			return nil, err
		}
		if i, ok := idx[wid]; ok {
			snap.Workers[i].Skills[skill] = true
		}
	}
	if err := srows.Err(); err != nil {
		return nil, err
	}

	// Equipment fleet.
	erows, err := p.db.QueryContext(ctx, `SELECT id::text, type, capacity, hourly_cost, efficiency
		FROM equipment WHERE warehouse_id=$1 AND active ORDER BY id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var e engine.Equipment
		if err := erows.Scan(&e.ID, &e.Type, &e.Capacity, &e.HourlyCost, &e.Efficiency); err != nil {
			return nil, err
		}
		e.Stages = engine.StagesForEquipmentType(e.Type)
		snap.Equipment = append(snap.Equipment, e)
	}
	if err := erows.Err(); err != nil {
		return nil, err
	}

	// Walking time matrix.
	krows, err := p.db.QueryContext(ctx, `SELECT from_zone, to_zone, minutes FROM walking_times WHERE warehouse_id=$1`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer krows.Close()
	for krows.Next() {
		var from, to string
		var min int
		if err := krows.Scan(&from, &to, &min); err != nil {
			return nil, err
		}
		if snap.Walk[from] == nil {
			snap.Walk[from] = map[string]int{}
		}
		snap.Walk[from][to] = min
	}
	if err := krows.Err(); err != nil {
		return nil, err
	}

	// Pending orders with items joined to the SKU catalog, earliest
	// deadline first so an order limit keeps the most urgent work.
	q := `SELECT id::text, priority, deadline, COALESCE(zone,''), wave_index FROM orders
		WHERE warehouse_id=$1 AND status='pending' ORDER BY deadline, id`
	args := []any{warehouseID}
	if orderLimit > 0 {
		args = append(args, orderLimit)
		q += " LIMIT $2"
	}
	orows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer orows.Close()
	oindex := map[string]int{}
	for orows.Next() {
		var o engine.Order
		if err := orows.Scan(&o.ID, &o.Priority, &o.Deadline, &o.Zone, &o.WaveIndex); err != nil {
			return nil, err
		}
		o.Seq = len(snap.Orders)
		oindex[o.ID] = o.Seq
		snap.Orders = append(snap.Orders, o)
	}
	if err := orows.Err(); err != nil {
		return nil, err
	}
	if len(snap.Orders) == 0 {
		return snap, nil
	}

	irows, err := p.db.QueryContext(ctx, `SELECT oi.order_id::text, oi.sku, oi.quantity,
			COALESCE(s.pick_minutes, 0), COALESCE(s.pack_minutes, 0), COALESCE(s.weight_kg, 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN skus s ON s.id = oi.sku
		WHERE o.warehouse_id=$1 AND o.status='pending'`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer irows.Close()
	for irows.Next() {
		var oid string
		var it engine.LineItem
		if err := irows.Scan(&oid, &it.SKU, &it.Quantity, &it.PickMinutes, &it.PackMinutes, &it.WeightKg); err != nil {
			return nil, err
		}
		if i, ok := oindex[oid]; ok {
			snap.Orders[i].Items = append(snap.Orders[i].Items, it)
		}
	}
	return snap, irows.Err()
}

func (p *Postgres) CreateRun(ctx context.Context, run model.RunRecord) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO optimization_runs
		(id, warehouse_id, state, status, degraded, order_count, baseline_metrics, optimized_metrics, delta, solve_time_seconds, iterations, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())`,
		run.RunID, run.WarehouseID, run.State, nullIfEmpty(run.Status), run.Degraded, run.OrderCount,
		toJSON(run.Baseline), toJSON(run.Optimized), toJSON(run.Delta), run.SolveTimeSeconds, run.Iterations, nullIfEmpty(run.Error))
	return err
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.RunRecord) error {
	res, err := p.db.ExecContext(ctx, `UPDATE optimization_runs SET
		state=$2, status=$3, degraded=$4, order_count=$5, baseline_metrics=$6, optimized_metrics=$7, delta=$8,
		solve_time_seconds=$9, iterations=$10, error=$11 WHERE id=$1`,
		run.RunID, run.State, nullIfEmpty(run.Status), run.Degraded, run.OrderCount,
		toJSON(run.Baseline), toJSON(run.Optimized), toJSON(run.Delta), run.SolveTimeSeconds, run.Iterations, nullIfEmpty(run.Error))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanRun(row interface{ Scan(...any) error }) (model.RunRecord, error) {
	var run model.RunRecord
	var status, errMsg sql.NullString
	var baseline, optimized, delta []byte
	var created time.Time
	err := row.Scan(&run.RunID, &run.WarehouseID, &run.State, &status, &run.Degraded, &run.OrderCount,
		&baseline, &optimized, &delta, &run.SolveTimeSeconds, &run.Iterations, &errMsg, &created)
	if err != nil {
		return model.RunRecord{}, err
	}
	run.Status = status.String
	run.Error = errMsg.String
	run.CreatedAt = created.UTC().Format(time.RFC3339)
	fromJSON(baseline, &run.Baseline)
	fromJSON(optimized, &run.Optimized)
	fromJSON(delta, &run.Delta)
	return run, nil
}

const runColumns = `id::text, warehouse_id, state, status, degraded, order_count,
	baseline_metrics, optimized_metrics, delta, solve_time_seconds, iterations, error, created_at`

func (p *Postgres) GetRun(ctx context.Context, warehouseID, runID string) (model.RunRecord, error) {
	run, err := p.scanRun(p.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM optimization_runs WHERE id=$1 AND ($2='' OR warehouse_id=$2)`, runID, warehouseID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, ErrNotFound
	}
	return run, err
}

func (p *Postgres) ListRuns(ctx context.Context, warehouseID, cursor string, limit int) ([]model.RunRecord, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + runColumns + ` FROM optimization_runs WHERE warehouse_id=$1`
	args := []any{warehouseID}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text < $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.RunRecord{}
	var last string
	for rows.Next() {
		run, err := p.scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, run)
		last = run.RunID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) SavePlan(ctx context.Context, runID, kind string, tasks []model.TaskRow) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM optimization_plan_tasks WHERE run_id=$1 AND kind=$2`, runID, kind); err != nil {
		return err
	}
	for _, t := range tasks {
		_, err := tx.ExecContext(ctx, `INSERT INTO optimization_plan_tasks
			(id, run_id, kind, order_id, stage, worker_id, equipment_id, start_time_minutes, duration_minutes, wait_minutes, sequence_order, overtime, wave_index)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			uuid.New(), runID, kind, t.OrderID, t.Stage, t.WorkerID, nullIfEmpty(t.EquipmentID),
			t.StartTimeMinutes, t.DurationMinutes, t.WaitMinutes, t.SequenceOrder, t.Overtime, t.WaveIndex)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListPlanTasks(ctx context.Context, runID, kind string) ([]model.TaskRow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT order_id, stage, worker_id, COALESCE(equipment_id,''),
			start_time_minutes, duration_minutes, wait_minutes, sequence_order, overtime, wave_index
		FROM optimization_plan_tasks WHERE run_id=$1 AND kind=$2
		ORDER BY sequence_order, stage`, runID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TaskRow{}
	for rows.Next() {
		var t model.TaskRow
		if err := rows.Scan(&t.OrderID, &t.Stage, &t.WorkerID, &t.EquipmentID,
			&t.StartTimeMinutes, &t.DurationMinutes, &t.WaitMinutes, &t.SequenceOrder, &t.Overtime, &t.WaveIndex); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), WarehouseID: req.WarehouseID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, warehouse_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.WarehouseID, s.URL, toJSON(s.Events), s.Secret)
	return s, err
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, warehouseID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, warehouse_id, url, events, secret FROM subscriptions
		WHERE warehouse_id=$1 AND events @> $2`, warehouseID, toJSON([]string{eventType}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, warehouseID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	q := `SELECT id::text, warehouse_id, url, events, secret FROM subscriptions WHERE warehouse_id=$1`
	args := []any{warehouseID}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func scanSubscription(row interface{ Scan(...any) error }) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := row.Scan(&s.ID, &s.WarehouseID, &s.URL, &events, &s.Secret); err != nil {
		return model.Subscription{}, err
	}
	_ = json.Unmarshal(events, &s.Events)
	return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, warehouseID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE warehouse_id=$1 AND id=$2`, warehouseID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, warehouseID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries
		(id, warehouse_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, warehouseID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, warehouse_id, subscription_id::text, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.WarehouseID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1,
			delivered_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1,
		next_attempt_at=$2, last_error=$3, response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, next, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1,
		last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`, id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, warehouseID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT id::text, event_type, status, attempts, url, COALESCE(last_error,'') FROM webhook_deliveries WHERE warehouse_id=$1`
	args := []any{warehouseID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, et, st, url, lastErr string
		var attempts int
		if err := rows.Scan(&id, &et, &st, &attempts, &url, &lastErr); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": et, "status": st, "attempts": attempts, "url": url}
		if lastErr != "" {
			item["lastError"] = lastErr
		}
		out = append(out, item)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, warehouseID, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now()
		WHERE warehouse_id=$1 AND id=$2`, warehouseID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetEngineConfig(ctx context.Context, warehouseID string) (map[string]any, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT config FROM engine_config WHERE warehouse_id=$1`, warehouseID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) SaveEngineConfig(ctx context.Context, warehouseID string, cfg map[string]any) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO engine_config (warehouse_id, config, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (warehouse_id) DO UPDATE SET config=EXCLUDED.config, updated_at=now()`,
		warehouseID, toJSON(cfg))
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toJSON(v any) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

func fromJSON[T any](raw []byte, dst **T) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = &v
	}
}
