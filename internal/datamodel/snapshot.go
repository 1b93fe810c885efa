package datamodel

import (
	"encoding/json"

	"roomcoordinator/internal/wire"
)

// MapSnapshot is the durable-storage and wire representation of one map.
type MapSnapshot struct {
	Owner  string           `json:"owner,omitempty"`
	Fields map[string]Field `json:"fields"`
}

// ArraySnapshot is the durable-storage and wire representation of one
// named array.
type ArraySnapshot struct {
	Owner string                 `json:"owner,omitempty"`
	Maps  map[string]MapSnapshot `json:"maps"`
}

// Snapshot is the full replica state sent to a newly attached session and
// reconstructed from durable storage at room-state init time.
type Snapshot struct {
	Arrays map[string]ArraySnapshot `json:"arrays"`
}

// LoadArray seeds one schema array from durable storage without emitting
// any deadhand/livehand events (there are no live sessions yet at
// room-state init time). Per spec.md §3, a missing persisted map defaults
// to (timestamp 0, {}).
func (c *Client) LoadArray(arrayID string, maps map[string]MapSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := &arrayState{maps: make(map[string]*mapState, len(maps))}
	for indexID, snap := range maps {
		fields := snap.Fields
		if fields == nil {
			fields = make(map[string]Field)
		}
		a.maps[indexID] = &mapState{owner: snap.Owner, fields: fields}
	}
	c.arrays[arrayID] = a
}

// Export returns the full replica state as a Snapshot.
func (c *Client) Export() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Snapshot{Arrays: make(map[string]ArraySnapshot, len(c.arrays))}
	for arrayID, a := range c.arrays {
		maps := make(map[string]MapSnapshot, len(a.maps))
		for indexID, m := range a.maps {
			fields := make(map[string]Field, len(m.fields))
			for k, v := range m.fields {
				fields[k] = v
			}
			maps[indexID] = MapSnapshot{Owner: m.owner, Fields: fields}
		}
		out.Arrays[arrayID] = ArraySnapshot{Owner: a.owner, Maps: maps}
	}
	return out
}

// ExportFrame builds the DataImport snapshot frame sent to a newly
// attached session (spec.md §4.1 step 3).
func (c *Client) ExportFrame() (wire.Frame, error) {
	snap := c.Export()
	raw, err := json.Marshal(snap)
	if err != nil {
		return wire.Frame{}, err
	}
	return wire.New(wire.DataImport, json.RawMessage(raw))
}
