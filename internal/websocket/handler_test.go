package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
)

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, query string) *ws.Conn {
	t.Helper()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func waitForClients(t *testing.T, ctx context.Context, hub *Hub, n int) {
	t.Helper()
	for hub.ClientCount() < n {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func read(t *testing.T, ctx context.Context, conn *ws.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestHandleWebSocketStreamsChoreEvents(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(HandleWebSocket(hub, nil, slog.Default()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv, "?assigned_to=2")
	waitForClients(t, ctx, hub, 1)

	// Not bob's: filtered out, so the next read sees chore 8
	hub.ChoreChanged(ctx, executedEvent(7, ptr(1), ptr(3)))
	hub.ChoreChanged(ctx, executedEvent(8, ptr(1), ptr(2)))

	if got := read(t, ctx, conn); got.ChoreID != 8 || got.Type != "chore_executed" {
		t.Fatalf("got %s for chore %d, want chore_executed for 8", got.Type, got.ChoreID)
	}

	// Widen the watch to every chore
	if err := conn.Write(ctx, ws.MessageText, []byte(`{"assigned_to":0}`)); err != nil {
		t.Fatalf("write watch: %v", err)
	}
	for watching(hub) != 0 {
		select {
		case <-ctx.Done():
			t.Fatal("watch change never applied")
		case <-time.After(5 * time.Millisecond):
		}
	}
	hub.ChoreChanged(ctx, executedEvent(9, nil, nil))
	if got := read(t, ctx, conn); got.ChoreID != 9 {
		t.Fatalf("chore = %d, want 9", got.ChoreID)
	}
}

// watching returns the filter of the hub's single client.
func watching(hub *Hub) int64 {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.clients {
		return c.watch.Load()
	}
	return -1
}

func TestHandleWebSocketRejectsBadFilter(t *testing.T) {
	hub := NewHub(slog.Default())
	rec := httptest.NewRecorder()
	HandleWebSocket(hub, nil, slog.Default())(rec, httptest.NewRequest("GET", "/ws?assigned_to=bob", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
