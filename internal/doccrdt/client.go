// Package doccrdt implements the document CRDT collaborator: an opaque,
// append-only log of update blobs persisted under a single storage key
// ("crdt"), forwarded verbatim between sessions without the coordinator
// ever interpreting the payload (spec.md §5's "opaque forwarding" rule).
package doccrdt

import (
	"encoding/json"
	"sync"

	"roomcoordinator/internal/wire"
)

// Update is one opaque update blob plus the monotonic sequence number the
// client assigns it, used only for ordering on replay.
type Update struct {
	Seq     int64           `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one room's replica of the document CRDT. Unlike the
// map-of-maps client, it never inspects Payload: it only appends, orders
// by Seq, and replays the full log to newly attached sessions.
type Client struct {
	mu      sync.Mutex
	updates []Update
	nextSeq int64

	subMu sync.Mutex
	subs  map[int]func(Update)
}

// New constructs an empty document client.
func New() *Client {
	return &Client{subs: make(map[int]func(Update))}
}

// Apply appends an inbound DocUpdate frame's payload to the log, assigning
// it the next sequence number, and returns a DocUpdate frame carrying the
// stored Update with its assigned Seq. The coordinator proxies the
// original inbound frame to peers, not this one.
func (c *Client) Apply(f wire.Frame) (out wire.Frame, err error) {
	var payload json.RawMessage
	if err := f.Arg(0, &payload); err != nil {
		return wire.Frame{}, err
	}

	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	u := Update{Seq: seq, Payload: payload}
	c.updates = append(c.updates, u)
	c.mu.Unlock()

	c.emit(u)

	return wire.New(wire.DocUpdate, u)
}

// Subscribe registers an observer invoked synchronously for every applied
// update (the room factory uses it to persist the document to storage
// after every update). Returns an unsubscribe closure.
func (c *Client) Subscribe(fn func(Update)) (unsubscribe func()) {
	c.subMu.Lock()
	id := len(c.subs)
	for _, ok := c.subs[id]; ok; _, ok = c.subs[id] {
		id++
	}
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) emit(u Update) {
	c.subMu.Lock()
	fns := make([]func(Update), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

// Snapshot is the durable-storage and attach-time wire representation of
// the full update log.
type Snapshot struct {
	Updates []Update `json:"updates"`
	NextSeq int64    `json:"nextSeq"`
}

// Load seeds the client from durable storage at room-state init time. Per
// spec.md §3, a missing "crdt" key defaults to an empty log.
func (c *Client) Load(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append([]Update(nil), snap.Updates...)
	c.nextSeq = snap.NextSeq
}

// Export returns the full update log for durable persistence or for
// replay to a newly attached session (spec.md §4.1 step 3).
func (c *Client) Export() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Updates: append([]Update(nil), c.updates...),
		NextSeq: c.nextSeq,
	}
}

// ExportFrame wraps Export as the DocInit frame sent to a newly attached
// session.
func (c *Client) ExportFrame() (wire.Frame, error) {
	return wire.New(wire.DocInit, c.Export())
}
