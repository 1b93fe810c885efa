package coordinator

import (
	"roomcoordinator/internal/datamodel"
	"roomcoordinator/internal/lock"
	"roomcoordinator/internal/metrics"
	"roomcoordinator/internal/room"
	"roomcoordinator/internal/session"
	"roomcoordinator/internal/wire"
)

// detach removes sess from the room and runs dead-hand cleanup (§4.2)
// and lock cleanup (§4.4), in that order, exactly once. unsubscribe may
// be nil if sess never named a playerId.
func (c *Coordinator) detach(r *room.Room, sess *session.Session, unsubscribe func()) {
	if unsubscribe != nil {
		unsubscribe()
	}

	r.Do(func(s *room.State) {
		if _, ok := s.Sessions[sess]; !ok {
			return
		}
		delete(s.Sessions, sess)
		metrics.DecSession()
		metrics.RoomPeers.WithLabelValues(r.Name()).Set(float64(len(s.Sessions)))

		releaseDeadHands(s, sess)
		releaseLocks(s, sess)
	})
}

func releaseDeadHands(s *room.State, sess *session.Session) {
	for _, key := range sess.DeadHandKeys() {
		arrayID, indexID, arrayScope, err := datamodel.ParseKey(key)
		if err != nil {
			continue
		}
		if arrayScope {
			for _, idxID := range s.Data.MapIndexIDs(arrayID) {
				proxyRemove(s, sess, arrayID, idxID)
			}
			continue
		}
		if s.Data.HasMap(arrayID, indexID) {
			proxyRemove(s, sess, arrayID, indexID)
		}
	}
}

func proxyRemove(s *room.State, sess *session.Session, arrayID, indexID string) {
	f, err := wire.New(wire.DataRemoveMap, arrayID, indexID)
	if err != nil {
		return
	}
	metrics.FramesRouted.WithLabelValues("data", "deadhand-cleanup").Inc()
	session.ProxyToPeers(s, sess, f)
}

func releaseLocks(s *room.State, sess *session.Session) {
	if sess.PlayerID == "" {
		return
	}
	for _, g := range s.Locks.ReleaseAllForPlayer(sess.PlayerID) {
		if g.To == "" {
			continue
		}
		resp, err := lock.ResponseFrame(g)
		if err != nil {
			continue
		}
		metrics.LockGrants.WithLabelValues(g.LockName).Inc()
		session.ReflectToPeers(s, sess, resp)
	}
}
