// Package room implements the per-room actor: a single goroutine that
// serializes every attach, inbound frame, and detach event for one room,
// matching spec's single-threaded cooperative dispatch model so the
// map-of-maps CRDT and lock state machine never see concurrent mutation.
package room

import (
	"github.com/pion/logging"

	"roomcoordinator/internal/datamodel"
	"roomcoordinator/internal/doccrdt"
	"roomcoordinator/internal/lock"
	"roomcoordinator/internal/session"
)

// State is the mutable state owned by one room, visible only from inside
// the actor goroutine (via Do).
type State struct {
	Name     string
	Data     *datamodel.Client
	Doc      *doccrdt.Client
	Locks    *lock.Client
	Sessions map[*session.Session]struct{}
}

// Each implements session.Peers: fn is invoked once per currently
// attached session, in map iteration order.
func (s *State) Each(fn func(*session.Session)) {
	for sess := range s.Sessions {
		fn(sess)
	}
}

// Room is the per-room actor: state is mutated exclusively by functions
// run through Do, which are themselves executed one at a time by run().
type Room struct {
	state  *State
	jobs   chan func(*State)
	logger logging.LeveledLogger
}

// New constructs a Room and starts its actor goroutine. queueSize bounds
// how many pending jobs (attach/frame/detach) may be queued before a
// caller blocks submitting another.
func New(name string, data *datamodel.Client, doc *doccrdt.Client, locks *lock.Client, logger logging.LeveledLogger, queueSize int) *Room {
	r := &Room{
		state: &State{
			Name:     name,
			Data:     data,
			Doc:      doc,
			Locks:    locks,
			Sessions: make(map[*session.Session]struct{}),
		},
		jobs:   make(chan func(*State), queueSize),
		logger: logger,
	}
	go r.run()
	return r
}

func (r *Room) run() {
	for job := range r.jobs {
		job(r.state)
	}
}

// Do submits fn to run inside the actor goroutine and blocks until it
// completes, serializing fn against every other Do/frame call for this
// room.
func (r *Room) Do(fn func(*State)) {
	done := make(chan struct{})
	r.jobs <- func(s *State) {
		fn(s)
		close(done)
	}
	<-done
}

// Name returns the room's name.
func (r *Room) Name() string {
	return r.state.Name
}

// PeerCount returns the current number of attached sessions. Safe to call
// from any goroutine; it hops through the actor loop like any other read.
func (r *Room) PeerCount() int {
	n := 0
	r.Do(func(s *State) { n = len(s.Sessions) })
	return n
}

// Close stops the actor goroutine. No further Do calls may be submitted
// afterward.
func (r *Room) Close() {
	close(r.jobs)
}
