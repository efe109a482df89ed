package api

import (
	"context"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"waveopt/internal/auth"
	"waveopt/internal/config"
	"waveopt/internal/runner"
	"waveopt/internal/store"
	"waveopt/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Cfg    config.Engine
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	AMQP   *AMQPPublisher
	Runs   *runner.Controller

	optimizeLimiter *rate.Limiter
}

// NewServer wires the service from the environment. Without DATABASE_URL
// it runs on the in-memory store; without REDIS_URL events stay in
// process; without AMQP_URL no messages are published to the exchange.
func NewServer() (*Server, error) {
	cfg, err := config.Load(os.Getenv("WAVE_CONFIG"))
	if err != nil {
		return nil, err
	}

	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	var amqpPub *AMQPPublisher
	if os.Getenv("AMQP_URL") != "" {
		if ap, err := NewAMQPPublisher(os.Getenv("AMQP_URL")); err == nil {
			amqpPub = ap
		}
	}

	srv := &Server{
		Store:  s,
		Cfg:    cfg,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifierFromEnv(),
		Broker: broker,
		AMQP:   amqpPub,

		// Solves monopolize a core each; shed request bursts early.
		optimizeLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}
	srv.Runs = runner.New(s, cfg)
	srv.Runs.Notify = srv
	return srv, nil
}

// RunEvent fans a run lifecycle event out to the SSE broker, the message
// exchange, and (for terminal events) the webhook queue.
func (s *Server) RunEvent(warehouseID, runID, eventType string, data map[string]any) {
	payload := map[string]any{"runId": runID, "warehouseId": warehouseID}
	for k, v := range data {
		payload[k] = v
	}
	s.Broker.Publish(runID, SSEEvent{Type: eventType, Data: payload})
	if s.AMQP != nil {
		s.AMQP.Publish(warehouseID, eventType, payload)
	}
	if eventType == "run.completed" || eventType == "run.failed" {
		s.Pub.Emit(context.Background(), warehouseID, eventType, payload)
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
