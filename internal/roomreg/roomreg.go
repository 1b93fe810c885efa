// Package roomreg is the top-level room registry: it maps room names to
// lazily-initialized room state, guaranteeing that concurrent first
// attaches to the same room name trigger exactly one durable-storage load
// (spec.md's single-flight invariant on room-state init).
package roomreg

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"roomcoordinator/internal/metrics"
	"roomcoordinator/internal/room"
	"roomcoordinator/internal/storage"
)

// Factory builds a room's state from durable storage the first time a
// room name is attached to. It is called at most once per room name while
// that room stays registered; after Remove, the next GetOrCreate for the
// name calls it again.
type Factory func(ctx context.Context, roomName string, store storage.KV) (*room.Room, error)

// Manager owns every live room in the process.
type Manager struct {
	store   storage.KV
	factory Factory

	sf singleflight.Group

	mu    sync.Mutex
	rooms map[string]*room.Room
}

// New constructs a Manager. store backs every room's durable state;
// factory constructs a *room.Room from it on first attach.
func New(store storage.KV, factory Factory) *Manager {
	return &Manager{
		store:   store,
		factory: factory,
		rooms:   make(map[string]*room.Room),
	}
}

// GetOrCreate returns the room named roomName, creating and loading it
// from durable storage if no room of that name is currently registered.
// Concurrent callers for the same never-yet-created roomName block behind
// a single in-flight factory call.
func (m *Manager) GetOrCreate(ctx context.Context, roomName string) (*room.Room, error) {
	if r := m.lookup(roomName); r != nil {
		return r, nil
	}

	v, err, _ := m.sf.Do(roomName, func() (interface{}, error) {
		if r := m.lookup(roomName); r != nil {
			return r, nil
		}
		r, err := m.factory(ctx, roomName, m.store)
		if err != nil {
			return nil, err
		}
		m.set(roomName, r)
		metrics.ActiveRooms.Inc()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*room.Room), nil
}

func (m *Manager) lookup(roomName string) *room.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomName]
}

func (m *Manager) set(roomName string, r *room.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomName] = r
}

// Remove drops roomName from the registry, e.g. once its actor exits
// after the last session detaches. A later attach to the same name will
// reload from durable storage and run the factory again.
func (m *Manager) Remove(roomName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomName]; ok {
		delete(m.rooms, roomName)
		metrics.ActiveRooms.Dec()
	}
}

// Count returns the number of currently live rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
