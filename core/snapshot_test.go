package core

import (
	"testing"
	"time"
)

func TestSnapshotRoundTrip(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	u, err := CreateUnit(100, StratumT2, []CommunityID{"b", "a"}, []PurposeID{"z", "y"}, WalletID("alice"), ProvenanceMinted, nil, "", newTxID(), now)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}

	snap := &Snapshot{
		Version:   SnapshotVersion,
		Timestamp: timeToMillis(now),
		Pool:      CommonsPoolSnapshot{TotalMinted: 100, CurrentSupply: 100},
		Units:     []UnitView{newUnitView(u)},
	}

	blob, err := snap.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := UnmarshalSnapshot(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if restored.Pool.CurrentSupply != snap.Pool.CurrentSupply {
		t.Fatalf("pool mismatch after round-trip: %v != %v", restored.Pool.CurrentSupply, snap.Pool.CurrentSupply)
	}
	if len(restored.Units) != 1 {
		t.Fatalf("unit count = %d, want 1", len(restored.Units))
	}
	restoredUnit := restored.Units[0].toUnit()
	if !restoredUnit.Localities.equal(u.Localities) {
		t.Fatalf("localities mismatch: %v != %v", restoredUnit.Localities, u.Localities)
	}
	if !restoredUnit.Purposes.equal(u.Purposes) {
		t.Fatalf("purposes mismatch: %v != %v", restoredUnit.Purposes, u.Purposes)
	}
	// Sorted-sequence rendering is lexicographic regardless of insertion
	// order: implementations must not rely on insertion order.
	if restored.Units[0].Localities[0] != "a" || restored.Units[0].Localities[1] != "b" {
		t.Fatalf("localities not rendered in lexicographic order: %v", restored.Units[0].Localities)
	}
}

func TestSnapshotUnsupportedVersion(t *testing.T) {
	snap := &Snapshot{Version: 3}
	blob, err := snap.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := UnmarshalSnapshot(blob); err == nil {
		t.Fatal("version 3 should raise UnsupportedVersion")
	}
}

func TestSnapshotV1MissingDividendPool(t *testing.T) {
	snap := &Snapshot{Version: 1, DividendPool: nil}
	blob, err := snap.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := UnmarshalSnapshot(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.DividendPool != nil {
		t.Fatal("v1 snapshot should have no dividend_pool field")
	}
}

func TestContentStorePinUnpin(t *testing.T) {
	store, err := NewFileContentStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Pin(Address("bafymissing")); err == nil {
		t.Fatal("pinning an absent address should raise UnknownCid")
	}

	addr, err := store.Store([]byte("pinned blob"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Pin(addr); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if !store.IsPinned(addr) {
		t.Fatal("address should be pinned")
	}
	if err := store.Unpin(addr); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	if store.IsPinned(addr) {
		t.Fatal("address should no longer be pinned")
	}
}

func TestContentStoreAddressingIsDeterministic(t *testing.T) {
	store, err := NewFileContentStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	blob := []byte(`{"hello":"world"}`)

	addr1, err := store.Store(blob)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	addr2, err := store.Store(blob)
	if err != nil {
		t.Fatalf("store again: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("storing identical bytes twice should yield identical addresses: %v != %v", addr1, addr2)
	}

	got, ok, err := store.Retrieve(addr1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !ok {
		t.Fatal("expected blob to be found")
	}
	if string(got) != string(blob) {
		t.Fatalf("retrieved blob differs: %q != %q", got, blob)
	}
}
