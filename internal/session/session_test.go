package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roomcoordinator/internal/wire"
)

var upgrader = websocket.Upgrader{}

func startEchoServer(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := New(conn)
		f, err := s.ReadFrame()
		if err != nil {
			return
		}
		s.Send(f)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestSendReadFrameRoundTrip(t *testing.T) {
	url := startEchoServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	f, err := wire.New(wire.Chat, "hi")
	if err != nil {
		t.Fatalf("wire.New: %v", err)
	}
	raw, err := wire.Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	decoded, err := wire.Decode(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Method != wire.Chat {
		t.Errorf("method = %d, want Chat", decoded.Method)
	}
}

// fakePeers records every session a Send was attempted on: the test
// sessions have no conn, so an attempted Send panics, and Each recovers
// that panic separately for each session.
type fakePeers struct {
	sessions []*Session
	sent     []*Session
}

func (p *fakePeers) Each(fn func(*Session)) {
	for _, s := range p.sessions {
		func() {
			defer func() {
				if recover() != nil {
					p.sent = append(p.sent, s)
				}
			}()
			fn(s)
		}()
	}
}

func TestProxyToPeersExcludesOrigin(t *testing.T) {
	a, b := &Session{}, &Session{}
	f, err := wire.New(wire.Chat, "hi")
	if err != nil {
		t.Fatalf("wire.New: %v", err)
	}

	peers := &fakePeers{sessions: []*Session{a, b}}
	ProxyToPeers(peers, a, f)
	sent := peers.sent

	if len(sent) != 1 || sent[0] != b {
		t.Errorf("sent = %v, want only b", sent)
	}
}
