package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"waveopt/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func postJSON(t *testing.T, h http.HandlerFunc, path, warehouse string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Warehouse-Id", warehouse)
	h(rr, req)
	return rr
}

func seedOrdersHTTP(t *testing.T, s *Server, warehouse string, n int) {
	t.Helper()
	var orders []model.OrderIn
	deadline := time.Now().UTC().Add(6 * time.Hour)
	for i := 0; i < n; i++ {
		orders = append(orders, model.OrderIn{
			Priority: 1 + i%5,
			Deadline: deadline.Add(time.Duration(i) * 5 * time.Minute).Format(time.RFC3339),
			Items:    []model.LineItemIn{{SKU: fmt.Sprintf("sku_%d", i%3), Quantity: 1 + i%2}},
		})
	}
	rr := postJSON(t, s.OrdersHandler, "/v1/orders", warehouse, map[string]any{"warehouseId": warehouse, "orders": orders})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("seed orders: %d %s", rr.Code, rr.Body.String())
	}
}

func waitForRun(t *testing.T, s *Server, warehouse, runID string) model.RunRecord {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		run, err := s.Store.GetRun(context.Background(), warehouse, runID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.State == "DONE" || run.State == "FAILED" {
			return run
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return model.RunRecord{}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestOrdersCreateList(t *testing.T) {
	s := newTestServer(t)
	seedOrdersHTTP(t, s, "wh_test", 3)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/orders?limit=5", nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.OrdersHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("orders list: got %d", rr.Code)
	}
	var res struct {
		Items []model.OrderOut `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("listed %d orders, want 3", len(res.Items))
	}
	for _, o := range res.Items {
		if o.Status != "pending" {
			t.Fatalf("order %s status %q", o.ID, o.Status)
		}
	}
}

func TestOrdersRejectsInvalid(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.OrdersHandler, "/v1/orders", "wh_test", map[string]any{"orders": []model.OrderIn{}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty orders: got %d", rr.Code)
	}
	rr = postJSON(t, s.OrdersHandler, "/v1/orders", "wh_test", map[string]any{
		"orders": []model.OrderIn{{Priority: 9, Deadline: time.Now().Format(time.RFC3339)}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad priority: got %d", rr.Code)
	}
}

func TestOptimizeValidation(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", "wh_test", map[string]any{"cooling": 1.5})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad cooling: got %d %s", rr.Code, rr.Body.String())
	}
	rr = postJSON(t, s.OptimizeHandler, "/v1/optimize", "wh_test", map[string]any{"removalWeights": []float64{1}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad weights: got %d", rr.Code)
	}
}

func TestOptimizeRunLifecycle(t *testing.T) {
	s := newTestServer(t)
	seedOrdersHTTP(t, s, "wh_test", 4)

	rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", "wh_test", model.OptimizeRequest{Seed: 21, MaxIterations: 200})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var run model.RunRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	final := waitForRun(t, s, "wh_test", run.RunID)
	if final.State != "DONE" {
		t.Fatalf("state=%s error=%q", final.State, final.Error)
	}

	// GET /v1/runs/{id}
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.RunID, nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.RunByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("get run: %d", rr.Code)
	}

	// Both plans are fetchable.
	for _, kind := range []string{"baseline", "optimized"} {
		rr = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.RunID+"/plan?kind="+kind, nil)
		req.Header.Set("X-Warehouse-Id", "wh_test")
		s.RunByIDHandler(rr, req)
		if rr.Code != 200 {
			t.Fatalf("plan %s: %d %s", kind, rr.Code, rr.Body.String())
		}
		var plan struct {
			Tasks []model.TaskRow `json:"tasks"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
			t.Fatalf("decode plan: %v", err)
		}
		if len(plan.Tasks) != 4*6 {
			t.Fatalf("%s plan has %d tasks, want 24", kind, len(plan.Tasks))
		}
	}

	// Listed in /v1/runs.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.RunsHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("list runs: %d", rr.Code)
	}
	var list struct {
		Items []model.RunRecord `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].RunID != run.RunID {
		t.Fatalf("runs list: %+v", list.Items)
	}
}

func TestOptimizeConflictAndCancel(t *testing.T) {
	s := newTestServer(t)
	seedOrdersHTTP(t, s, "wh_test", 30)

	rr := postJSON(t, s.OptimizeHandler, "/v1/optimize", "wh_test", model.OptimizeRequest{Seed: 9, TimeLimitSeconds: 30})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("optimize: %d", rr.Code)
	}
	var run model.RunRecord
	_ = json.Unmarshal(rr.Body.Bytes(), &run)

	rr = postJSON(t, s.OptimizeHandler, "/v1/optimize", "wh_test", model.OptimizeRequest{})
	if rr.Code != http.StatusConflict {
		t.Fatalf("second optimize: got %d, want 409", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs/"+run.RunID+"/cancel", nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.RunByIDHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("cancel: %d %s", rr.Code, rr.Body.String())
	}
	final := waitForRun(t, s, "wh_test", run.RunID)
	if final.State != "DONE" || final.Status != "TIMED_OUT" {
		t.Fatalf("state=%s status=%s", final.State, final.Status)
	}
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run_missing", nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.RunByIDHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestEngineConfigRoundTrip(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/engine/config", bytes.NewReader([]byte(`{"overrides":{"overtimeMultiplier":2.0}}`)))
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.AdminEngineConfigHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("put config: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/engine/config", nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.EngineConfigHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("get config: %d", rr.Code)
	}
	var res struct {
		Config struct {
			OvertimeMultiplier float64 `json:"overtimeMultiplier"`
		} `json:"config"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if res.Config.OvertimeMultiplier != 2.0 {
		t.Fatalf("override not applied: %+v", res)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	for name, h := range map[string]http.HandlerFunc{
		"config":         s.AdminEngineConfigHandler,
		"deliveries":     s.WebhookDeliveriesHandler,
		"search-metrics": s.SearchMetricsHandler,
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/engine/config", nil)
		if name == "deliveries" {
			req = httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries", nil)
		}
		if name == "search-metrics" {
			req = httptest.NewRequest(http.MethodGet, "/v1/admin/search-metrics", nil)
		}
		req.Header.Set("X-Warehouse-Id", "wh_test")
		req.Header.Set("X-Role", "viewer")
		h(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: got %d, want 403", name, rr.Code)
		}
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", "wh_test", model.SubscriptionRequest{
		URL: "https://example.com/hook", Events: []string{"run.completed"}, Secret: "s1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.SubscriptionsHandler(rr, req)
	var list struct {
		Items []model.Subscription `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 1 {
		t.Fatalf("list: %+v", list.Items)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
	req.Header.Set("X-Warehouse-Id", "wh_test")
	s.SubscriptionByIDHandler(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
	mu   sync.Mutex
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}
func (r *sseRecorder) Flush() {}
func (r *sseRecorder) contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Contains(r.buf.Bytes(), []byte(sub))
}

func TestRunEventsSSE(t *testing.T) {
	s := newTestServer(t)
	runID := "run_sse_test"

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID+"/events/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)
	sseReq.Header.Set("X-Warehouse-Id", "wh_test")

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.RunByIDHandler(rec, sseReq)
		close(done)
	}()

	// Give the handler time to subscribe and send the heartbeat.
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(runID, SSEEvent{Type: "run.state", Data: map[string]any{"runId": runID, "state": "OPTIMIZING"}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if rec.contains("event: run.state") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !rec.contains("event: run.state") {
		t.Fatalf("SSE missing event")
	}
	if !rec.contains("event: heartbeat") {
		t.Fatalf("SSE missing heartbeat")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}
