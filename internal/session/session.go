// Package session wraps one attached client's websocket connection as a
// thread-safe frame writer, and provides the three broadcast primitives a
// room uses to reply to a frame: respond to the originator alone, proxy to
// every other peer, or reflect to the originator and every peer.
package session

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"roomcoordinator/internal/keepalive"
	"roomcoordinator/internal/wire"
)

// ErrNonBinaryFrame is returned by ReadFrame when the client sent a text
// frame. Per spec.md §7 this is a protocol violation reported to the
// sender; it must not terminate the session.
var ErrNonBinaryFrame = errors.New("session: non-binary frame")

// Session is one attached client. Send is safe for concurrent use;
// everything else is expected to be driven from the owning room's single
// actor goroutine.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex

	// PlayerID is the opaque identity threaded in from the connection
	// URL at attach time (spec.md §3); may be empty (§9's open question:
	// such sessions route traffic but never own dead-hands or locks).
	PlayerID string

	closed bool

	deadHandsMu sync.Mutex
	deadHands   map[string]struct{}

	keepalive *keepalive.Monitor
}

// New wraps an established websocket connection as a Session.
func New(conn *websocket.Conn) *Session {
	return &Session{conn: conn, deadHands: make(map[string]struct{})}
}

// StartKeepalive attaches a ping/pong liveness monitor to this session
// and starts it. Idempotent no-op if already started. The monitor only
// detects staleness; the read loop's blocking ReadMessage is what
// actually terminates a dead session once the underlying conn reports
// an error.
func (s *Session) StartKeepalive(cfg keepalive.Config, logger logging.LeveledLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.keepalive != nil {
		return
	}
	s.keepalive = keepalive.NewMonitor(s.conn, logger, cfg)
	s.keepalive.Start()
}

// AddDeadHand records that this session now exclusively owns key.
func (s *Session) AddDeadHand(key string) {
	s.deadHandsMu.Lock()
	defer s.deadHandsMu.Unlock()
	s.deadHands[key] = struct{}{}
}

// RemoveDeadHand records that this session no longer owns key.
func (s *Session) RemoveDeadHand(key string) {
	s.deadHandsMu.Lock()
	defer s.deadHandsMu.Unlock()
	delete(s.deadHands, key)
}

// DeadHandKeys returns every key this session currently owns, used to
// drive cleanup on disconnect (spec.md §4.2).
func (s *Session) DeadHandKeys() []string {
	s.deadHandsMu.Lock()
	defer s.deadHandsMu.Unlock()
	keys := make([]string, 0, len(s.deadHands))
	for k := range s.deadHands {
		keys = append(keys, k)
	}
	return keys
}

// Send writes one frame to this session's connection. Safe to call from
// any goroutine.
func (s *Session) Send(f wire.Frame) error {
	raw, err := wire.Encode(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, raw)
}

// Close marks the session closed and closes the underlying connection.
// Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.keepalive != nil {
		s.keepalive.Stop()
	}
	return s.conn.Close()
}

// ReadFrame blocks for the next inbound binary message and decodes it as a
// Frame. Not safe for concurrent use (the gorilla/websocket read side is
// single-reader by design; only the session's own read loop calls this).
func (s *Session) ReadFrame() (wire.Frame, error) {
	mt, raw, err := s.conn.ReadMessage()
	if err != nil {
		return wire.Frame{}, err
	}
	if mt != websocket.BinaryMessage {
		return wire.Frame{}, ErrNonBinaryFrame
	}
	return wire.Decode(raw)
}

// Peers is the set of sessions attached to a room at the moment a
// broadcast primitive is invoked. Room owns the authoritative set; these
// functions only need read access to it.
type Peers interface {
	// Each invokes fn for every currently attached session.
	Each(fn func(*Session))
}

// RespondToSelf sends f to origin only.
func RespondToSelf(origin *Session, f wire.Frame) error {
	return origin.Send(f)
}

// ProxyToPeers sends f to every attached session except origin.
func ProxyToPeers(peers Peers, origin *Session, f wire.Frame) {
	peers.Each(func(s *Session) {
		if s == origin {
			return
		}
		s.Send(f)
	})
}

// ReflectToPeers sends f to origin and to every other attached session.
func ReflectToPeers(peers Peers, origin *Session, f wire.Frame) {
	peers.Each(func(s *Session) {
		s.Send(f)
	})
}
