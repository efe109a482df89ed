package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	runID := "run_1"
	ch := b.Subscribe(runID)

	evt := SSEEvent{Type: "run.state", Data: map[string]any{"state": "OPTIMIZING"}}
	b.Publish(runID, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["state"].(string) != "OPTIMIZING" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(runID, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerIsolatesRuns(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("run_1")
	ch2 := b.Subscribe("run_2")
	defer b.Unsubscribe("run_1", ch1)
	defer b.Unsubscribe("run_2", ch2)

	b.Publish("run_1", SSEEvent{Type: "run.completed"})
	select {
	case <-ch1:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("subscriber for run_1 missed its event")
	}
	select {
	case evt := <-ch2:
		t.Fatalf("run_2 subscriber received %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("run_1")
	defer b.Unsubscribe("run_1", ch)
	// Fill the buffer past capacity; publishes must not block.
	for i := 0; i < 32; i++ {
		b.Publish("run_1", SSEEvent{Type: "run.state"})
	}
}
