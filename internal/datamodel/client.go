// Package datamodel implements the replicated "map-of-maps" CRDT: named
// arrays of maps of last-writer-wins fields, with per-map and per-array
// ownership ("dead hand") tracking and deadhand/livehand event delivery.
package datamodel

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Field is a single last-writer-wins value inside a map.
type Field struct {
	Timestamp int64           `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// mapState is one map inside a named array.
type mapState struct {
	owner  string // playerId, "" if unclaimed
	fields map[string]Field
}

// arrayState is a named array: an unordered set of maps, plus an optional
// whole-array owner.
type arrayState struct {
	owner string // playerId, "" if unclaimed
	maps  map[string]*mapState
}

// Subscription filters deadhand/livehand delivery to a single playerId, per
// the attach sequence in spec.md §4.1 step 4.
type Subscription struct {
	PlayerID   string
	OnDeadHand func(keys []string)
	OnLiveHand func(keys []string)
}

// Client is one room's replica of the map-of-maps CRDT. It is designed to
// be driven exclusively from a single goroutine (the room actor); the
// mutex guards only the snapshot/export path against concurrent metrics
// reads.
type Client struct {
	mu     sync.Mutex
	schema map[string]bool
	arrays map[string]*arrayState

	subMu   sync.Mutex
	subs    map[int]Subscription
	nextSub int
}

// New constructs an empty client for the given fixed schema array names
// (spec.md §3: initially the singleton "worldApps").
func New(schemaArrays []string) *Client {
	schema := make(map[string]bool, len(schemaArrays))
	arrays := make(map[string]*arrayState, len(schemaArrays))
	for _, id := range schemaArrays {
		schema[id] = true
		arrays[id] = &arrayState{maps: make(map[string]*mapState)}
	}
	return &Client{
		schema: schema,
		arrays: arrays,
		subs:   make(map[int]Subscription),
	}
}

// ErrUnknownArray is a protocol violation: the frame referenced an array id
// outside the fixed schema.
type ErrUnknownArray struct{ ArrayID string }

func (e ErrUnknownArray) Error() string {
	return fmt.Sprintf("datamodel: unknown array %q", e.ArrayID)
}

// ErrMalformedKey is a protocol violation: a dead-hand composite key did not
// parse per the "<arrayId>.<arrayIndexId>" / "<arrayId>" grammar.
type ErrMalformedKey struct{ Key string }

func (e ErrMalformedKey) Error() string {
	return fmt.Sprintf("datamodel: malformed key %q", e.Key)
}

// Key builds the composite dead-hand key for an array (arrayIndexID=="")
// or a single map.
func Key(arrayID, arrayIndexID string) string {
	if arrayIndexID == "" {
		return arrayID
	}
	return arrayID + "." + arrayIndexID
}

// ParseKey parses a composite dead-hand key. arrayScope is true when the
// key names an entire array rather than one map.
func ParseKey(key string) (arrayID, arrayIndexID string, arrayScope bool, err error) {
	if key == "" {
		return "", "", false, ErrMalformedKey{Key: key}
	}
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 1 {
		return parts[0], "", true, nil
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", false, ErrMalformedKey{Key: key}
	}
	return parts[0], parts[1], false, nil
}

// NotifyJoin informs the data client that playerID has joined the room
// (spec.md §4.1 step 6: "emit it locally into the data client so it sees
// the membership change"). The current schema has no player-membership
// field for the data client to update; this is an extension point for a
// future schema array that models presence.
func (c *Client) NotifyJoin(playerID string) {}

func (c *Client) ensureArray(arrayID string) (*arrayState, error) {
	if !c.schema[arrayID] {
		return nil, ErrUnknownArray{ArrayID: arrayID}
	}
	a, ok := c.arrays[arrayID]
	if !ok {
		a = &arrayState{maps: make(map[string]*mapState)}
		c.arrays[arrayID] = a
	}
	return a, nil
}

// Subscribe registers a filtered deadhand/livehand observer and returns an
// unsubscribe closure. Per spec.md §9 this must be called on session close
// to avoid leaking listeners across reconnects.
func (c *Client) Subscribe(sub Subscription) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) emitDeadHand(playerID string, keys []string) {
	if playerID == "" || len(keys) == 0 {
		return
	}
	c.subMu.Lock()
	var hit func([]string)
	for _, s := range c.subs {
		if s.PlayerID == playerID && s.OnDeadHand != nil {
			hit = s.OnDeadHand
			break
		}
	}
	c.subMu.Unlock()
	if hit != nil {
		hit(keys)
	}
}

func (c *Client) emitLiveHand(playerID string, keys []string) {
	if playerID == "" || len(keys) == 0 {
		return
	}
	c.subMu.Lock()
	var hit func([]string)
	for _, s := range c.subs {
		if s.PlayerID == playerID && s.OnLiveHand != nil {
			hit = s.OnLiveHand
			break
		}
	}
	c.subMu.Unlock()
	if hit != nil {
		hit(keys)
	}
}
