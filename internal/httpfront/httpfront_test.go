package httpfront

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"roomcoordinator/internal/coordinator"
	"roomcoordinator/internal/keepalive"
	"roomcoordinator/internal/roomreg"
	"roomcoordinator/internal/storage"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("httpfront-test")
}

func newTestFront(t *testing.T) *Front {
	t.Helper()
	store := storage.NewMemoryStore()
	rooms := roomreg.New(store, coordinator.NewRoomFactory([]string{"worldApps"}, 64, testLogger()))
	coord := coordinator.New(rooms, testLogger(), 0)
	return New(coord, testLogger(), keepalive.DefaultConfig())
}

func TestCreateRoomReturnsUnguessableID(t *testing.T) {
	front := newTestFront(t)
	srv := httptest.NewServer(front.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/room", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	name := strings.TrimSpace(string(body))
	if len(name) == 0 {
		t.Fatal("expected a non-empty room id")
	}

	resp2, err := http.Post(srv.URL+"/api/room", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp2.Body.Close()
	body2, _ := io.ReadAll(resp2.Body)
	if strings.TrimSpace(string(body2)) == name {
		t.Fatal("two room creations returned the same id")
	}
}

func TestWebsocketRouteRejectsOverlongRoomName(t *testing.T) {
	front := newTestFront(t)
	srv := httptest.NewServer(front.Handler())
	defer srv.Close()

	longName := strings.Repeat("a", maxRoomNameBytes+1)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/room/" + longName + "/websocket"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for an overlong room name")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		status := -1
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestWebsocketRouteUpgradesAndAttaches(t *testing.T) {
	front := newTestFront(t)
	srv := httptest.NewServer(front.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/room/r1/websocket?playerId=a"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("expected a snapshot frame after attach, got error: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	front := newTestFront(t)
	srv := httptest.NewServer(front.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
