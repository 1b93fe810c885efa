package coordinator

import (
	"context"
	"errors"

	"roomcoordinator/internal/datamodel"
	"roomcoordinator/internal/metrics"
	"roomcoordinator/internal/room"
	"roomcoordinator/internal/session"
	"roomcoordinator/internal/wire"
)

// Attach runs the full attach sequence from spec.md §4.1 and then blocks,
// running the steady-state dispatcher, until sess's transport closes or
// errors. It returns only once the session has fully detached and all
// cleanup has run.
func (c *Coordinator) Attach(ctx context.Context, roomName string, sess *session.Session, playerID string) error {
	// Step 1: begin buffering inbound frames before the snapshot sequence
	// runs, so nothing dispatches ahead of it (spec.md §5's "snapshot
	// before live" ordering guarantee).
	frames := make(chan wire.Frame, 64)
	readDone := make(chan struct{})
	go c.readLoop(sess, frames, readDone)

	// Step 2: obtain (or create) the shared room-state instances.
	r, err := c.rooms.GetOrCreate(ctx, roomName)
	if err != nil {
		// spec.md §7: a storage failure during init is surfaced to the
		// client as an error frame, then the transport is closed.
		sendProtocolError(sess, err.Error())
		sess.Close()
		close(readDone)
		return err
	}

	unsubscribe := c.join(r, sess, playerID)

	defer func() {
		close(readDone)
		c.detach(r, sess, unsubscribe)
	}()

	// Step 7: replay buffered frames (and everything after) through the
	// steady-state dispatcher, serialized one at a time by room.Do.
	for f := range frames {
		c.dispatch(r, sess, f)
	}
	return nil
}

// join performs steps 3-6 of the attach sequence atomically inside the
// room's actor goroutine, so no concurrent attach or frame can observe a
// partially-joined session.
func (c *Coordinator) join(r *room.Room, sess *session.Session, playerID string) (unsubscribe func()) {
	r.Do(func(s *room.State) {
		dataFrame, err := s.Data.ExportFrame()
		if err == nil {
			sess.Send(dataFrame)
		}
		docFrame, err := s.Doc.ExportFrame()
		if err == nil {
			sess.Send(docFrame)
		}

		ids := make([]string, 0, len(s.Sessions))
		for other := range s.Sessions {
			if other.PlayerID != "" {
				ids = append(ids, other.PlayerID)
			}
		}
		if initFrame, err := wire.New(wire.InitPlayers, ids); err == nil {
			sess.Send(initFrame)
		}

		if playerID != "" {
			unsubscribe = s.Data.Subscribe(datamodel.Subscription{
				PlayerID:   playerID,
				OnDeadHand: func(keys []string) { addDeadHands(sess, keys) },
				OnLiveHand: func(keys []string) { removeDeadHands(sess, keys) },
			})
		}

		sess.PlayerID = playerID
		s.Sessions[sess] = struct{}{}
		metrics.IncSession()
		metrics.RoomPeers.WithLabelValues(r.Name()).Set(float64(len(s.Sessions)))

		if playerID != "" {
			s.Data.NotifyJoin(playerID)
			if joinFrame, err := wire.New(wire.Join, playerID); err == nil {
				session.ProxyToPeers(s, sess, joinFrame)
			}
		}
	})
	return unsubscribe
}

func addDeadHands(sess *session.Session, keys []string) {
	for _, k := range keys {
		sess.AddDeadHand(k)
	}
}

func removeDeadHands(sess *session.Session, keys []string) {
	for _, k := range keys {
		sess.RemoveDeadHand(k)
	}
}

// readLoop continuously reads frames off sess and forwards them to
// frames, closing frames when the transport errors or readDone closes.
// A non-binary frame or malformed frame is a protocol violation (spec.md
// §7): it is reported to the sender and the loop continues.
func (c *Coordinator) readLoop(sess *session.Session, frames chan<- wire.Frame, readDone <-chan struct{}) {
	defer close(frames)
	for {
		f, err := sess.ReadFrame()
		if err != nil {
			if errors.Is(err, session.ErrNonBinaryFrame) || errors.Is(err, wire.ErrMalformedFrame) {
				sendProtocolError(sess, err.Error())
				continue
			}
			return
		}
		select {
		case frames <- f:
		case <-readDone:
			return
		}
	}
}

func sendProtocolError(sess *session.Session, reason string) {
	f, err := wire.New(wire.Error, errorFrame{Error: reason})
	if err != nil {
		return
	}
	sess.Send(f)
}
