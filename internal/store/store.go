package store

import (
	"context"
	"errors"
	"time"

	"waveopt/internal/config"
	"waveopt/internal/engine"
	"waveopt/internal/model"
)

// Store is the persistence interface used by the API server and the run
// controller.
type Store interface {
	// Orders
	CreateOrders(ctx context.Context, warehouseID string, orders []model.OrderIn) (importID string, created, skipped int, err error)
	ListOrders(ctx context.Context, warehouseID, status, cursor string, limit int) (items []model.OrderOut, nextCursor string, err error)

	// LoadSnapshot reads a consistent view of one warehouse: pending orders
	// (deadline order, capped at orderLimit when positive), the worker
	// roster, the equipment fleet, and the walking time matrix. The caller
	// derives durations and validates.
	LoadSnapshot(ctx context.Context, warehouseID string, orderLimit int, cfg config.Engine) (*engine.Snapshot, error)

	// Runs and plans
	CreateRun(ctx context.Context, run model.RunRecord) error
	UpdateRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, warehouseID, runID string) (model.RunRecord, error)
	ListRuns(ctx context.Context, warehouseID, cursor string, limit int) ([]model.RunRecord, string, error)
	SavePlan(ctx context.Context, runID, kind string, tasks []model.TaskRow) error
	ListPlanTasks(ctx context.Context, runID, kind string) ([]model.TaskRow, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, warehouseID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, warehouseID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, warehouseID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, warehouseID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, warehouseID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, warehouseID, id string) error

	// Engine config overrides per warehouse
	GetEngineConfig(ctx context.Context, warehouseID string) (map[string]any, error)
	SaveEngineConfig(ctx context.Context, warehouseID string, cfg map[string]any) error
}

var ErrNotFound = errors.New("not found")

// WebhookDelivery is one queued outbound event delivery.
type WebhookDelivery struct {
	ID             string
	WarehouseID    string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}
