// Package lock implements the distributed lock collaborator: a set of
// named mutexes, each either free or held by one playerId with a FIFO
// queue of waiters, released automatically when the holding session
// disconnects (spec.md §5's lock-service traffic class).
package lock

import (
	"errors"
	"sync"

	"roomcoordinator/internal/wire"
)

// ErrUnknownLockMethod is returned by Apply for a lock-class frame that is
// neither LockRequest nor LockRelease (e.g. a client erroneously sending
// LockResponse). spec.md §4.1 calls for this to be logged and ignored,
// not folded into the queued-request path or rejected to the sender.
var ErrUnknownLockMethod = errors.New("lock: unknown method")

type entry struct {
	holder string
	queue  []string // playerIds waiting, FIFO
}

// Client is one room's lock table. It is designed to be driven exclusively
// from the room actor goroutine; the mutex exists for metrics/export reads
// from other goroutines.
type Client struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New constructs an empty lock table.
func New() *Client {
	return &Client{locks: make(map[string]*entry)}
}

// Grant is a lock-state transition the caller must notify: to, the player
// who now holds lockName, or "" if lockName became free with no waiters.
type Grant struct {
	LockName string
	To       string
}

// Request attempts to acquire lockName for playerID. If the lock is free
// it is granted immediately. If held, playerID is appended to the FIFO
// queue (unless already the holder or already queued) and no Grant is
// returned; the caller is notified only once the lock is later granted.
func (c *Client) Request(lockName, playerID string) (granted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.locks[lockName]
	if !ok {
		e = &entry{}
		c.locks[lockName] = e
	}

	if e.holder == "" {
		e.holder = playerID
		return true
	}
	if e.holder == playerID {
		return true
	}
	for _, q := range e.queue {
		if q == playerID {
			return false
		}
	}
	e.queue = append(e.queue, playerID)
	return false
}

// Release releases lockName if held by playerID, promoting the next FIFO
// waiter if any. It returns the Grant describing the new state, or a zero
// Grant with ok=false if playerID did not hold the lock (a no-op, matching
// the permissive mismatched-release-ignore policy used elsewhere in this
// coordinator).
func (c *Client) Release(lockName, playerID string) (g Grant, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.locks[lockName]
	if !exists || e.holder != playerID {
		return Grant{}, false
	}

	if len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.holder = next
		return Grant{LockName: lockName, To: next}, true
	}

	e.holder = ""
	delete(c.locks, lockName)
	return Grant{LockName: lockName, To: ""}, true
}

// ReleaseAllForPlayer releases every lock held by playerID and drops them
// from every queue they were waiting in, used by session-scoped cleanup on
// disconnect (spec.md §4.2). It returns one Grant per lock whose holder
// changed as a result.
func (c *Client) ReleaseAllForPlayer(playerID string) []Grant {
	c.mu.Lock()
	names := make([]string, 0, len(c.locks))
	for name, e := range c.locks {
		held := e.holder == playerID
		filtered := e.queue[:0:0]
		for _, q := range e.queue {
			if q != playerID {
				filtered = append(filtered, q)
			}
		}
		e.queue = filtered
		if held {
			names = append(names, name)
		}
	}
	c.mu.Unlock()

	var grants []Grant
	for _, name := range names {
		if g, ok := c.Release(name, playerID); ok {
			grants = append(grants, g)
		}
	}
	return grants
}

// IsQueued reports whether playerID is currently waiting (not holding)
// for lockName. Used to decide, once a lock-wait timer fires, whether the
// wait is still live or was already resolved by a grant or a disconnect.
func (c *Client) IsQueued(lockName, playerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.locks[lockName]
	if !ok {
		return false
	}
	for _, q := range e.queue {
		if q == playerID {
			return true
		}
	}
	return false
}

// Apply dispatches an inbound lock-class frame, returning the Grant to
// broadcast and granted=true when the lock state changed (a grant, or a
// release by the holder). granted is false for a request that queued and
// for a release by a non-holder; neither produces a response.
func (c *Client) Apply(f wire.Frame, actingPlayerID string) (g Grant, granted bool, err error) {
	var lockName string
	if err := f.Arg(0, &lockName); err != nil {
		return Grant{}, false, err
	}

	switch f.Method {
	case wire.LockRequest:
		if c.Request(lockName, actingPlayerID) {
			return Grant{LockName: lockName, To: actingPlayerID}, true, nil
		}
		return Grant{}, false, nil
	case wire.LockRelease:
		grant, ok := c.Release(lockName, actingPlayerID)
		return grant, ok, nil
	default:
		return Grant{}, false, ErrUnknownLockMethod
	}
}

// ResponseFrame builds the LockResponse frame announcing a Grant.
func ResponseFrame(g Grant) (wire.Frame, error) {
	return wire.New(wire.LockResponse, g.LockName, g.To)
}
