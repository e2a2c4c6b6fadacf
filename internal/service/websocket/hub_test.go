package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"emotionserver/internal/logger"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*HubService, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHubService(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !hub.Register(conn) {
			conn.Close()
			return
		}
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)
	return hub, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.GetClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubService_Broadcast(t *testing.T) {
	hub, srv, _ := startHub(t)

	first := dial(t, srv)
	second := dial(t, srv)
	waitForClients(t, hub, 2)

	if !hub.Broadcast([]byte(`{"emotion":"happy"}`)) {
		t.Fatal("broadcast dropped")
	}

	for i, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read failed: %v", i, err)
		}
		if string(msg) != `{"emotion":"happy"}` {
			t.Errorf("client %d got %s", i, msg)
		}
	}
}

func TestHubService_Unregister(t *testing.T) {
	hub, srv, _ := startHub(t)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubService_StopClosesClients(t *testing.T) {
	hub, srv, cancel := startHub(t)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	cancel()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
	if hub.Register(nil) {
		t.Error("Register succeeded on a stopped hub")
	}
}

func TestHubService_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHubService(logger.NewNop())

	// No Run loop: the queue fills and further frames are dropped.
	dropped := false
	for i := 0; i < 100; i++ {
		if !hub.Broadcast([]byte("frame")) {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Error("expected frames to be dropped once the queue is full")
	}
}
