package roomreg

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pion/logging"

	"roomcoordinator/internal/datamodel"
	"roomcoordinator/internal/doccrdt"
	"roomcoordinator/internal/lock"
	"roomcoordinator/internal/room"
	"roomcoordinator/internal/storage"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("roomreg-test")
}

// countingStore wraps a storage.KV and counts Get calls, used to pin
// invariant 1 ("at most one read of each schema array key ... across the
// room's lifetime") under concurrent first attaches.
type countingStore struct {
	storage.KV
	gets int32
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt32(&c.gets, 1)
	return c.KV.Get(ctx, key)
}

func newTestRoom(roomName string) *room.Room {
	return room.New(roomName, datamodel.New(nil), doccrdt.New(), lock.New(), testLogger(), 8)
}

func TestGetOrCreateIsSingleFlightedUnderConcurrency(t *testing.T) {
	store := &countingStore{KV: storage.NewMemoryStore()}
	var factoryCalls int32
	factory := func(ctx context.Context, roomName string, s storage.KV) (*room.Room, error) {
		atomic.AddInt32(&factoryCalls, 1)
		if _, err := s.Get(ctx, roomName); err != nil {
			return nil, err
		}
		return newTestRoom(roomName), nil
	}

	m := New(store, factory)

	const n = 50
	var wg sync.WaitGroup
	rooms := make([]*room.Room, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := m.GetOrCreate(context.Background(), "r1")
			rooms[i] = r
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreate[%d]: %v", i, err)
		}
		if rooms[i] != rooms[0] {
			t.Errorf("rooms[%d] is a different instance than rooms[0]", i)
		}
	}
	if got := atomic.LoadInt32(&factoryCalls); got != 1 {
		t.Errorf("factory calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&store.gets); got != 1 {
		t.Errorf("storage reads = %d, want 1", got)
	}
	if got := m.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestGetOrCreatePropagatesFactoryError(t *testing.T) {
	store := storage.NewMemoryStore()
	wantErr := errTest{}
	factory := func(ctx context.Context, roomName string, s storage.KV) (*room.Room, error) {
		return nil, wantErr
	}
	m := New(store, factory)

	if _, err := m.GetOrCreate(context.Background(), "r1"); err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if got := m.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0 after a failed create", got)
	}
}

type errTest struct{}

func (errTest) Error() string { return "factory failed" }

func TestRemoveAllowsReload(t *testing.T) {
	store := storage.NewMemoryStore()
	calls := 0
	factory := func(ctx context.Context, roomName string, s storage.KV) (*room.Room, error) {
		calls++
		return newTestRoom(roomName), nil
	}
	m := New(store, factory)

	r1, err := m.GetOrCreate(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	m.Remove("r1")

	r2, err := m.GetOrCreate(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetOrCreate after remove: %v", err)
	}
	if r1 == r2 {
		t.Error("expected a fresh room instance after Remove")
	}
	if calls != 2 {
		t.Errorf("factory calls = %d, want 2", calls)
	}
}
