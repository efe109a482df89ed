package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type  string         `json:"type"`
	RunID string         `json:"runId,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// RunEventsWSHandler streams run events over WebSocket at /v1/ws.
// Protocol: the client sends {"type":"subscribe","runId":...} and
// {"type":"unsubscribe","runId":...}; the server forwards broker events
// as {"type":<event>,"runId":...,"data":{...}} and pings every 20s.
func (s *Server) RunEventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write(wsMessage{Type: "ping"}); err != nil {
					return
				}
			}
		}
	}()

	subs := map[string]chan SSEEvent{}
	defer func() {
		for runID, ch := range subs {
			s.Broker.Unsubscribe(runID, ch)
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.RunID == "" || subs[msg.RunID] != nil {
				continue
			}
			ch := s.Broker.Subscribe(msg.RunID)
			subs[msg.RunID] = ch
			go func(runID string, ch chan SSEEvent) {
				for {
					select {
					case <-done:
						return
					case evt, ok := <-ch:
						if !ok {
							return
						}
						if err := write(wsMessage{Type: evt.Type, RunID: runID, Data: evt.Data}); err != nil {
							return
						}
					}
				}
			}(msg.RunID, ch)
		case "unsubscribe":
			if ch := subs[msg.RunID]; ch != nil {
				s.Broker.Unsubscribe(msg.RunID, ch)
				delete(subs, msg.RunID)
			}
		}
	}
}
