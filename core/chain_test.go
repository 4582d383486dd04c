package core

import (
	"testing"
	"time"
)

func storeBlob(t *testing.T, store ContentStore, body string) Address {
	t.Helper()
	addr, err := store.Store([]byte(body))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return addr
}

// storeSnapshot persists a minimal valid snapshot whose supply doubles as a
// distinguishing payload, so each stored snapshot gets a distinct address.
func storeSnapshot(t *testing.T, store ContentStore, supply float64) Address {
	t.Helper()
	snap := &Snapshot{
		Version: SnapshotVersion,
		Pool:    CommonsPoolSnapshot{TotalMinted: supply, CurrentSupply: supply},
	}
	blob, err := snap.Marshal()
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return storeBlob(t, store, string(blob))
}

func TestChainAppendWalk(t *testing.T) {
	store, err := NewFileContentStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	chain := NewChain(store)
	now := time.Unix(0, 0).UTC()

	s1 := storeBlob(t, store, "s1")
	s2 := storeBlob(t, store, "s2")
	s3 := storeBlob(t, store, "s3")

	if _, err := chain.Append(s1, now, ""); err != nil {
		t.Fatalf("append s1: %v", err)
	}
	if _, err := chain.Append(s2, now, ""); err != nil {
		t.Fatalf("append s2: %v", err)
	}
	head, err := chain.Append(s3, now, "")
	if err != nil {
		t.Fatalf("append s3: %v", err)
	}

	if chain.Height() != 3 {
		t.Fatalf("height = %d, want 3", chain.Height())
	}

	addrs, pointers, err := chain.Walk(&head, 0, nil)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(addrs) != 3 {
		t.Fatalf("walk length = %d, want 3 (resolving previous h-1 times reaches nil)", len(addrs))
	}
	if pointers[len(pointers)-1].Previous != nil {
		t.Fatal("oldest pointer reached by walk should have Previous = nil")
	}
}

func TestCompareEqualIsReflexive(t *testing.T) {
	store, err := NewFileContentStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	chain := NewChain(store)
	now := time.Unix(0, 0).UTC()
	s1 := storeBlob(t, store, "s1")
	head, err := chain.Append(s1, now, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	status, missing, err := chain.Compare(&head, &head)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if status != StatusEqual {
		t.Fatalf("compare(x, x) = %v, want equal", status)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %v, want empty", missing)
	}
}

// TestChainBehindFastForward: node A publishes three snapshots; node B
// starts empty on the same content store and syncs.
func TestChainBehindFastForward(t *testing.T) {
	store, err := NewFileContentStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Unix(0, 0).UTC()

	a := NewChain(store)
	for _, supply := range []float64{100, 200, 300} {
		addr := storeSnapshot(t, store, supply)
		if _, err := a.Append(addr, now, ""); err != nil {
			t.Fatalf("append supply=%v: %v", supply, err)
		}
	}
	headA := *a.Head()

	b := NewChain(store)
	status, missing, err := b.Compare(nil, &headA)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if status != StatusBehind {
		t.Fatalf("status = %v, want behind", status)
	}
	if len(missing) != 3 {
		t.Fatalf("missing count = %d, want 3", len(missing))
	}

	applied := 0
	result, err := b.SyncFrom(headA, func(s *Snapshot) error { applied++; return nil })
	if err != nil {
		t.Fatalf("sync_from: %v", err)
	}
	if result.StatesApplied != 3 {
		t.Fatalf("states applied = %d, want 3", result.StatesApplied)
	}
	if b.Height() != 3 {
		t.Fatalf("b height = %d, want 3 (matching a)", b.Height())
	}
	if *b.Head() != headA {
		t.Fatal("b's head should equal a's head after a full fast-forward sync")
	}
}

// TestChainDiverged: A and B publish independent histories sharing no
// common ancestor.
func TestChainDiverged(t *testing.T) {
	store, err := NewFileContentStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Unix(0, 0).UTC()

	a := NewChain(store)
	for _, body := range []string{"a-s1", "a-s2"} {
		addr := storeBlob(t, store, body)
		if _, err := a.Append(addr, now, ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	headA := *a.Head()

	b := NewChain(store)
	for _, body := range []string{"b-s1", "b-s2"} {
		addr := storeBlob(t, store, body)
		if _, err := b.Append(addr, now, ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	status, missing, err := b.Compare(b.Head(), &headA)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if status != StatusDiverged {
		t.Fatalf("status = %v, want diverged", status)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %v, want empty on divergence", missing)
	}

	if _, err := b.SyncFrom(headA, func(*Snapshot) error { return nil }); err == nil {
		t.Fatal("sync_from should fail with Diverged")
	}
}

func TestSyncFromAlreadyAhead(t *testing.T) {
	store, err := NewFileContentStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Unix(0, 0).UTC()

	a := NewChain(store)
	s1 := storeBlob(t, store, "s1")
	if _, err := a.Append(s1, now, ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	s2 := storeBlob(t, store, "s2")
	headA, err := a.Append(s2, now, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	remote := NewChain(store)
	if _, err := remote.Append(s1, now, ""); err != nil {
		t.Fatalf("append remote: %v", err)
	}
	remoteHead := *remote.Head()

	if _, err := a.SyncFrom(remoteHead, func(*Snapshot) error { return nil }); err == nil {
		t.Fatal("sync_from should fail with AlreadyAhead when local is ahead of remote")
	}
	_ = headA
}
