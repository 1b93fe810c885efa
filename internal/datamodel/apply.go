package datamodel

import (
	"roomcoordinator/internal/wire"
)

// Apply applies an inbound data-class frame on behalf of actingPlayerID (the
// empty string for a playerId-less session, per spec.md §9's open question).
//
// A non-nil rollback means the frame was rejected (e.g. stale LWW
// timestamp); it must be sent only to the originating session. changed is
// true when the frame was applied and the original bytes should be proxied
// to peers, driving this client's own deadhand/livehand side effects first.
func (c *Client) Apply(f wire.Frame, actingPlayerID string) (rollback *wire.Frame, changed bool, err error) {
	switch f.Method {
	case wire.SetPlayerData:
		return c.applySetField(f)
	case wire.DataCreateMap:
		return c.applyCreateMap(f, actingPlayerID)
	case wire.DataReleaseHand:
		return c.applyReleaseHand(f, actingPlayerID)
	case wire.DataRemoveMap:
		return c.applyRemoveMap(f)
	default:
		return nil, false, nil
	}
}

func (c *Client) applySetField(f wire.Frame) (*wire.Frame, bool, error) {
	var arrayID, arrayIndexID, field string
	var timestamp int64
	if err := f.Arg(0, &arrayID); err != nil {
		return nil, false, err
	}
	if err := f.Arg(1, &arrayIndexID); err != nil {
		return nil, false, err
	}
	if err := f.Arg(2, &field); err != nil {
		return nil, false, err
	}
	var value []byte
	if err := f.Arg(3, &value); err != nil {
		return nil, false, err
	}
	if err := f.Arg(4, &timestamp); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	array, err := c.ensureArray(arrayID)
	if err != nil {
		return nil, false, err
	}
	m, ok := array.maps[arrayIndexID]
	if !ok {
		m = &mapState{fields: make(map[string]Field)}
		array.maps[arrayIndexID] = m
	}

	current, exists := m.fields[field]
	if exists && timestamp <= current.Timestamp {
		rb, err := wire.New(wire.DataRollback, arrayID, arrayIndexID, field, []byte(current.Value), current.Timestamp)
		if err != nil {
			return nil, false, err
		}
		return &rb, false, nil
	}

	m.fields[field] = Field{Timestamp: timestamp, Value: value}
	return nil, true, nil
}

func (c *Client) applyCreateMap(f wire.Frame, actingPlayerID string) (*wire.Frame, bool, error) {
	var arrayID, arrayIndexID string
	if err := f.Arg(0, &arrayID); err != nil {
		return nil, false, err
	}
	if err := f.Arg(1, &arrayIndexID); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	array, err := c.ensureArray(arrayID)
	if err != nil {
		c.mu.Unlock()
		return nil, false, err
	}

	var key, priorOwner string
	if arrayIndexID == "" {
		priorOwner = array.owner
		array.owner = actingPlayerID
		key = Key(arrayID, "")
	} else {
		m, ok := array.maps[arrayIndexID]
		if !ok {
			m = &mapState{fields: make(map[string]Field)}
			array.maps[arrayIndexID] = m
		}
		priorOwner = m.owner
		m.owner = actingPlayerID
		key = Key(arrayID, arrayIndexID)
	}
	c.mu.Unlock()

	// A claim on an already-owned key displaces the prior owner: they must
	// see it leave their dead-hand table (livehand) before the new claimant
	// sees it enter theirs (deadhand), or invariant 3 ("a key appears in at
	// most one session's dead-hand table") breaks.
	if priorOwner != "" && priorOwner != actingPlayerID {
		c.emitLiveHand(priorOwner, []string{key})
	}
	c.emitDeadHand(actingPlayerID, []string{key})
	return nil, true, nil
}

func (c *Client) applyReleaseHand(f wire.Frame, actingPlayerID string) (*wire.Frame, bool, error) {
	var arrayID, arrayIndexID string
	if err := f.Arg(0, &arrayID); err != nil {
		return nil, false, err
	}
	if err := f.Arg(1, &arrayIndexID); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	array, err := c.ensureArray(arrayID)
	if err != nil {
		c.mu.Unlock()
		return nil, false, err
	}

	var releasedOwner, key string
	if arrayIndexID == "" {
		if array.owner == actingPlayerID {
			releasedOwner = array.owner
			array.owner = ""
		}
		key = Key(arrayID, "")
	} else if m, ok := array.maps[arrayIndexID]; ok && m.owner == actingPlayerID {
		releasedOwner = m.owner
		m.owner = ""
		key = Key(arrayID, arrayIndexID)
	}
	c.mu.Unlock()

	if releasedOwner != "" {
		c.emitLiveHand(releasedOwner, []string{key})
	}
	return nil, true, nil
}

func (c *Client) applyRemoveMap(f wire.Frame) (*wire.Frame, bool, error) {
	var arrayID, arrayIndexID string
	if err := f.Arg(0, &arrayID); err != nil {
		return nil, false, err
	}
	if err := f.Arg(1, &arrayIndexID); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	array, err := c.ensureArray(arrayID)
	if err != nil {
		return nil, false, err
	}

	if arrayIndexID == "" {
		array.maps = make(map[string]*mapState)
		array.owner = ""
	} else {
		delete(array.maps, arrayIndexID)
	}
	return nil, true, nil
}

// HasMap reports whether arrayIndexID is currently present in arrayID,
// used by dead-hand cleanup (spec.md §4.2) to decide whether a map-scope
// remove is still needed.
func (c *Client) HasMap(arrayID, arrayIndexID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.arrays[arrayID]
	if !ok {
		return false
	}
	_, ok = a.maps[arrayIndexID]
	return ok
}

// MapIndexIDs returns the arrayIndexIds currently present in arrayID, used
// by array-scope dead-hand cleanup to enumerate every map to remove.
func (c *Client) MapIndexIDs(arrayID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.arrays[arrayID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(a.maps))
	for id := range a.maps {
		ids = append(ids, id)
	}
	return ids
}
