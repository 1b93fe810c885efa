package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pion/logging"

	"roomcoordinator/internal/datamodel"
	"roomcoordinator/internal/doccrdt"
	"roomcoordinator/internal/lock"
	"roomcoordinator/internal/room"
	"roomcoordinator/internal/roomreg"
	"roomcoordinator/internal/storage"
)

const crdtStorageKey = "crdt"

func roomStorageKey(roomName, key string) string {
	return roomName + ":" + key
}

// NewRoomFactory builds a roomreg.Factory that performs spec.md §4.1's
// lazy room-state initialization: one storage read per schema array, one
// further read per discovered arrayIndexId, and one read of the "crdt"
// key, wiring the resulting clients into a fresh room.Room with the
// document-CRDT's persist-on-update handler attached (§4.3).
func NewRoomFactory(schemaArrays []string, dispatchQueue int, logger logging.LeveledLogger) roomreg.Factory {
	return func(ctx context.Context, roomName string, store storage.KV) (*room.Room, error) {
		data := datamodel.New(schemaArrays)

		for _, arrayID := range schemaArrays {
			indexIDs, err := loadIndexIDs(ctx, store, roomName, arrayID)
			if err != nil {
				return nil, StorageFailure{Room: roomName, Err: err}
			}

			maps := make(map[string]datamodel.MapSnapshot, len(indexIDs))
			for _, indexID := range indexIDs {
				snap, err := loadMapSnapshot(ctx, store, roomName, indexID)
				if err != nil {
					return nil, StorageFailure{Room: roomName, Err: err}
				}
				maps[indexID] = snap
			}
			data.LoadArray(arrayID, maps)
		}

		doc := doccrdt.New()
		docRaw, err := store.Get(ctx, roomStorageKey(roomName, crdtStorageKey))
		if err != nil {
			return nil, StorageFailure{Room: roomName, Err: err}
		}
		if docRaw != nil {
			var snap doccrdt.Snapshot
			if err := json.Unmarshal(docRaw, &snap); err == nil {
				doc.Load(snap)
			}
		}

		r := room.New(roomName, data, doc, lock.New(), logger, dispatchQueue)

		doc.Subscribe(func(doccrdt.Update) {
			persistDocument(doc, store, roomName, logger)
		})

		return r, nil
	}
}

func loadIndexIDs(ctx context.Context, store storage.KV, roomName, arrayID string) ([]string, error) {
	raw, err := store.Get(ctx, roomStorageKey(roomName, arrayID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func loadMapSnapshot(ctx context.Context, store storage.KV, roomName, indexID string) (datamodel.MapSnapshot, error) {
	raw, err := store.Get(ctx, roomStorageKey(roomName, indexID))
	if err != nil {
		return datamodel.MapSnapshot{}, err
	}
	if raw == nil {
		return datamodel.MapSnapshot{Fields: map[string]datamodel.Field{}}, nil
	}
	var snap datamodel.MapSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return datamodel.MapSnapshot{}, err
	}
	if snap.Fields == nil {
		snap.Fields = map[string]datamodel.Field{}
	}
	return snap, nil
}

// persistDocument writes the document CRDT's full current state-as-update
// to storage under the "crdt" key (spec.md §4.3 and invariant 6). It runs
// synchronously on the caller's goroutine — the doc-update subscriber
// fires from inside the room's actor loop (room.Do), so this call is one
// of §5's named suspension points of that single-threaded loop: the room
// is blocked for the duration of the write, which is exactly what
// guarantees successive persists complete in apply order instead of
// racing each other over the network.
func persistDocument(doc *doccrdt.Client, store storage.KV, roomName string, logger logging.LeveledLogger) {
	snap := doc.Export()
	raw, err := json.Marshal(snap)
	if err != nil {
		logger.Errorf("room %q: marshal document snapshot: %v", roomName, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Put(ctx, roomStorageKey(roomName, crdtStorageKey), raw); err != nil {
		logger.Errorf("room %q: persist document snapshot: %v", roomName, err)
	}
}
