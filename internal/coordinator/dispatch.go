package coordinator

import (
	"errors"
	"fmt"
	"time"

	"roomcoordinator/internal/lock"
	"roomcoordinator/internal/metrics"
	"roomcoordinator/internal/room"
	"roomcoordinator/internal/session"
	"roomcoordinator/internal/wire"
)

// dispatch routes one inbound frame per spec.md §4.1's steady-state
// dispatch table, running entirely inside the room's actor goroutine so
// it is serialized against every other frame and attach/detach for this
// room. A panic while routing the frame is recovered and reported to sess
// as an error frame; the session stays attached.
func (c *Coordinator) dispatch(r *room.Room, sess *session.Session, f wire.Frame) {
	r.Do(func(s *room.State) {
		defer func() {
			if p := recover(); p != nil {
				c.logger.Errorf("room %q: panic dispatching method %d: %v", s.Name, f.Method, p)
				sendProtocolError(sess, fmt.Sprint(p))
			}
		}()
		c.route(r, s, sess, f)
	})
}

func (c *Coordinator) route(r *room.Room, s *room.State, sess *session.Session, f wire.Frame) {
	dispatched := false

	if wire.IsData(f.Method) {
		dispatched = true
		c.routeData(s, sess, f)
	}
	if wire.IsDocument(f.Method) {
		dispatched = true
		c.routeDocument(s, sess, f)
	}
	if wire.IsLock(f.Method) {
		dispatched = true
		c.routeLock(r, s, sess, f)
	}
	if wire.IsIRC(f.Method) {
		dispatched = true
		metrics.FramesRouted.WithLabelValues("irc", "reflected").Inc()
		session.ReflectToPeers(s, sess, f)
	}
	if wire.IsAudioVideo(f.Method) {
		dispatched = true
		metrics.FramesRouted.WithLabelValues("audiovideo", "proxied").Inc()
		session.ProxyToPeers(s, sess, f)
	}

	if !dispatched {
		metrics.FramesRouted.WithLabelValues("unknown", "dropped").Inc()
	}
}

func (c *Coordinator) routeData(s *room.State, sess *session.Session, f wire.Frame) {
	rollback, changed, err := s.Data.Apply(f, sess.PlayerID)
	if err != nil {
		metrics.FramesRouted.WithLabelValues("data", "rejected").Inc()
		sendProtocolError(sess, err.Error())
		return
	}
	if rollback != nil {
		metrics.FramesRouted.WithLabelValues("data", "rollback").Inc()
		session.RespondToSelf(sess, *rollback)
		return
	}
	if changed {
		metrics.FramesRouted.WithLabelValues("data", "applied").Inc()
		session.ProxyToPeers(s, sess, f)
	}
}

func (c *Coordinator) routeDocument(s *room.State, sess *session.Session, f wire.Frame) {
	if _, err := s.Doc.Apply(f); err != nil {
		metrics.FramesRouted.WithLabelValues("doc", "rejected").Inc()
		sendProtocolError(sess, err.Error())
		return
	}
	metrics.FramesRouted.WithLabelValues("doc", "applied").Inc()
	session.ProxyToPeers(s, sess, f)
}

func (c *Coordinator) routeLock(r *room.Room, s *room.State, sess *session.Session, f wire.Frame) {
	g, granted, err := s.Locks.Apply(f, sess.PlayerID)
	if errors.Is(err, lock.ErrUnknownLockMethod) {
		metrics.FramesRouted.WithLabelValues("lock", "unknown").Inc()
		c.logger.Warnf("room %q: unknown lock method %d from player %q, ignoring", s.Name, f.Method, sess.PlayerID)
		return
	}
	if err != nil {
		metrics.FramesRouted.WithLabelValues("lock", "rejected").Inc()
		sendProtocolError(sess, err.Error())
		return
	}
	if !granted {
		metrics.FramesRouted.WithLabelValues("lock", "queued").Inc()
		if f.Method == wire.LockRequest && c.lockTimeout > 0 {
			var lockName string
			if f.Arg(0, &lockName) == nil {
				c.scheduleLockWaitTimeout(r, lockName, sess)
			}
		}
		return
	}
	if g.To == "" {
		metrics.FramesRouted.WithLabelValues("lock", "released").Inc()
		return
	}
	resp, err := lock.ResponseFrame(g)
	if err != nil {
		return
	}
	metrics.LockGrants.WithLabelValues(g.LockName).Inc()
	metrics.FramesRouted.WithLabelValues("lock", "granted").Inc()
	session.ReflectToPeers(s, sess, resp)
}

// scheduleLockWaitTimeout arranges for sess to receive a LockTimeout notice
// if its just-queued request on lockName is still unresolved once
// config.Config.LockTimeout elapses. The check re-enters the room actor so
// it sees the up-to-date queue, not a stale snapshot from when the timer
// was armed; a grant, a release, or sess disconnecting in the meantime
// all make the fired timer a no-op.
func (c *Coordinator) scheduleLockWaitTimeout(r *room.Room, lockName string, sess *session.Session) {
	time.AfterFunc(c.lockTimeout, func() {
		r.Do(func(s *room.State) {
			if _, attached := s.Sessions[sess]; !attached {
				return
			}
			if !s.Locks.IsQueued(lockName, sess.PlayerID) {
				return
			}
			notice, err := wire.New(wire.LockTimeout, lockName)
			if err != nil {
				return
			}
			metrics.FramesRouted.WithLabelValues("lock", "timeout-notice").Inc()
			session.RespondToSelf(sess, notice)
		})
	})
}
