package datamodel

import (
	"testing"

	"roomcoordinator/internal/wire"
)

func mustFrame(t *testing.T, method int, args ...interface{}) wire.Frame {
	t.Helper()
	f, err := wire.New(method, args...)
	if err != nil {
		t.Fatalf("wire.New: %v", err)
	}
	return f
}

func TestSetFieldLastWriterWins(t *testing.T) {
	c := New([]string{"worldApps"})

	f1 := mustFrame(t, wire.SetPlayerData, "worldApps", "x1", "hp", []byte(`10`), int64(1))
	if rb, changed, err := c.Apply(f1, "a"); err != nil || rb != nil || !changed {
		t.Fatalf("first apply: rb=%v changed=%v err=%v", rb, changed, err)
	}

	// Stale write: same or earlier timestamp must be rejected with a rollback.
	f2 := mustFrame(t, wire.SetPlayerData, "worldApps", "x1", "hp", []byte(`5`), int64(1))
	rb, changed, err := c.Apply(f2, "a")
	if err != nil {
		t.Fatalf("stale apply: %v", err)
	}
	if changed {
		t.Errorf("stale apply should not be changed")
	}
	if rb == nil {
		t.Fatalf("stale apply should yield a rollback")
	}
	var rolledBack []byte
	if err := rb.Arg(3, &rolledBack); err != nil {
		t.Fatalf("rollback arg: %v", err)
	}
	if string(rolledBack) != "10" {
		t.Errorf("rollback value = %s, want 10", rolledBack)
	}

	// Newer timestamp succeeds.
	f3 := mustFrame(t, wire.SetPlayerData, "worldApps", "x1", "hp", []byte(`20`), int64(2))
	if rb, changed, err := c.Apply(f3, "a"); err != nil || rb != nil || !changed {
		t.Fatalf("newer apply: rb=%v changed=%v err=%v", rb, changed, err)
	}
}

func TestUnknownArrayIsProtocolViolation(t *testing.T) {
	c := New([]string{"worldApps"})
	f := mustFrame(t, wire.SetPlayerData, "notSchema", "x1", "hp", []byte(`1`), int64(1))
	_, _, err := c.Apply(f, "a")
	if _, ok := err.(ErrUnknownArray); !ok {
		t.Fatalf("err = %v, want ErrUnknownArray", err)
	}
}

func TestCreateMapEmitsDeadHandFilteredByPlayer(t *testing.T) {
	c := New([]string{"worldApps"})

	var aKeys, bKeys []string
	c.Subscribe(Subscription{PlayerID: "a", OnDeadHand: func(k []string) { aKeys = k }})
	c.Subscribe(Subscription{PlayerID: "b", OnDeadHand: func(k []string) { bKeys = k }})

	f := mustFrame(t, wire.DataCreateMap, "worldApps", "x1")
	if _, changed, err := c.Apply(f, "a"); err != nil || !changed {
		t.Fatalf("create map: changed=%v err=%v", changed, err)
	}

	if len(aKeys) != 1 || aKeys[0] != "worldApps.x1" {
		t.Errorf("aKeys = %v, want [worldApps.x1]", aKeys)
	}
	if bKeys != nil {
		t.Errorf("bKeys = %v, want nil (not this player's event)", bKeys)
	}
}

func TestArrayScopeCreateAndMapEnumeration(t *testing.T) {
	c := New([]string{"worldApps"})

	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x1"), "a")
	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x2"), "a")
	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", ""), "a")

	ids := c.MapIndexIDs("worldApps")
	if len(ids) != 2 {
		t.Fatalf("MapIndexIDs = %v, want 2 entries", ids)
	}
}

func TestReleaseHandEmitsLiveHandForOwner(t *testing.T) {
	c := New([]string{"worldApps"})

	var released []string
	c.Subscribe(Subscription{PlayerID: "a", OnLiveHand: func(k []string) { released = k }})

	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x1"), "a")
	c.Apply(mustFrame(t, wire.DataReleaseHand, "worldApps", "x1"), "a")

	if len(released) != 1 || released[0] != "worldApps.x1" {
		t.Errorf("released = %v, want [worldApps.x1]", released)
	}
}

func TestClaimOfOwnedMapEmitsLiveHandToPriorOwner(t *testing.T) {
	c := New([]string{"worldApps"})

	var aDead, aLive, bDead []string
	c.Subscribe(Subscription{PlayerID: "a", OnDeadHand: func(k []string) { aDead = append(aDead, k...) }, OnLiveHand: func(k []string) { aLive = k }})
	c.Subscribe(Subscription{PlayerID: "b", OnDeadHand: func(k []string) { bDead = k }})

	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x1"), "a")
	if len(aDead) != 1 || aDead[0] != "worldApps.x1" {
		t.Fatalf("a's initial deadhand = %v, want [worldApps.x1]", aDead)
	}

	// B claims the same map while A still owns it.
	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x1"), "b")

	if len(aLive) != 1 || aLive[0] != "worldApps.x1" {
		t.Fatalf("a should see livehand for the displaced key, got %v", aLive)
	}
	if len(bDead) != 1 || bDead[0] != "worldApps.x1" {
		t.Fatalf("b should see deadhand for the claimed key, got %v", bDead)
	}
	if !c.HasMap("worldApps", "x1") {
		t.Fatalf("map should still exist after the claim")
	}
}

func TestReleaseHandByNonOwnerIsNoop(t *testing.T) {
	c := New([]string{"worldApps"})

	var released []string
	c.Subscribe(Subscription{PlayerID: "a", OnLiveHand: func(k []string) { released = k }})

	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x1"), "a")
	c.Apply(mustFrame(t, wire.DataReleaseHand, "worldApps", "x1"), "b")

	if released != nil {
		t.Errorf("released = %v, want nil (b does not own x1)", released)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := New([]string{"worldApps"})

	calls := 0
	unsub := c.Subscribe(Subscription{PlayerID: "a", OnDeadHand: func(k []string) { calls++ }})
	unsub()

	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x1"), "a")
	if calls != 0 {
		t.Errorf("calls = %d, want 0 after unsubscribe", calls)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	c := New([]string{"worldApps"})
	c.Apply(mustFrame(t, wire.DataCreateMap, "worldApps", "x1"), "a")
	c.Apply(mustFrame(t, wire.SetPlayerData, "worldApps", "x1", "hp", []byte(`10`), int64(1)), "a")

	snap := c.Export()
	c2 := New([]string{"worldApps"})
	for arrayID, a := range snap.Arrays {
		c2.LoadArray(arrayID, a.Maps)
	}

	if !c2.HasMap("worldApps", "x1") {
		t.Fatalf("loaded client missing x1")
	}

	frame, err := c2.ExportFrame()
	if err != nil {
		t.Fatalf("ExportFrame: %v", err)
	}
	if frame.Method != wire.DataImport {
		t.Errorf("ExportFrame method = %d, want DataImport", frame.Method)
	}
}
