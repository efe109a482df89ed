package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"waveopt/internal/store"
)

// Publisher fans an event out to every matching subscription by enqueueing
// one delivery per subscriber. The background Worker drains the queue.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues the event for all subscriptions of the warehouse that
// listen for eventType (run.completed, run.failed).
func (p *Publisher) Emit(ctx context.Context, warehouseID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, warehouseID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":          fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":        eventType,
		"warehouseId": warehouseID,
		"ts":          time.Now().UTC().Format(time.RFC3339),
		"data":        data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, warehouseID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
