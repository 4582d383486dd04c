package core

// chain.go – the state-pointer chain over a ContentStore: a singly-linked
// append log of content-addressed pointers, each referencing its
// predecessor, used for chain comparison and sync rather than an
// in-process block list.

import (
	"encoding/json"
	"time"
)

// StatePointer links a snapshot address to its predecessor and records a
// monotonic height.
type StatePointer struct {
	Snapshot  Address  `json:"snapshot"`
	Height    uint64   `json:"height"`
	Previous  *Address `json:"previous,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Origin    string   `json:"origin,omitempty"`
}

func (p *StatePointer) marshal() ([]byte, error) { return json.Marshal(p) }

func unmarshalPointer(blob []byte) (*StatePointer, error) {
	var p StatePointer
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, wrapErr(ErrIoFailure, "decode state pointer", err)
	}
	return &p, nil
}

// Chain wires append/walk/compare/sync over a ContentStore. Height 0 means
// no state.
type Chain struct {
	store  ContentStore
	head   *Address
	height uint64
}

func NewChain(store ContentStore) *Chain {
	return &Chain{store: store}
}

// Head returns the current head address, or nil at genesis.
func (c *Chain) Head() *Address { return c.head }

// Height returns the current chain height.
func (c *Chain) Height() uint64 { return c.height }

// SetHead forcibly repositions the chain (used when loading from a known
// head address rather than growing the chain locally).
func (c *Chain) SetHead(head *Address, height uint64) {
	c.head = head
	c.height = height
}

// Append stores a snapshot address behind a new pointer referencing the
// current head, advances the head, and returns the pointer's address.
func (c *Chain) Append(snapshotAddr Address, now time.Time, origin string) (Address, error) {
	p := &StatePointer{
		Snapshot:  snapshotAddr,
		Height:    c.height + 1,
		Previous:  c.head,
		Timestamp: timeToMillis(now),
		Origin:    origin,
	}
	blob, err := p.marshal()
	if err != nil {
		return "", wrapErr(ErrIoFailure, "marshal state pointer", err)
	}
	addr, err := c.store.Store(blob)
	if err != nil {
		return "", err
	}
	c.head = &addr
	c.height = p.Height
	return addr, nil
}

func (c *Chain) resolve(addr Address) (*StatePointer, error) {
	blob, ok, err := c.store.Retrieve(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newErr(ErrUnknownCid, string(addr))
	}
	return unmarshalPointer(blob)
}

// Walk yields pointers newest-first starting at start, resolving previous
// links until nil, limit pointers have been yielded (0 = unlimited), or the
// current address equals stop.
func (c *Chain) Walk(start *Address, limit int, stop *Address) ([]Address, []*StatePointer, error) {
	var addrs []Address
	var pointers []*StatePointer

	cur := start
	for cur != nil {
		if stop != nil && *cur == *stop {
			break
		}
		p, err := c.resolve(*cur)
		if err != nil {
			return nil, nil, err
		}
		addrs = append(addrs, *cur)
		pointers = append(pointers, p)
		if limit > 0 && len(addrs) >= limit {
			break
		}
		cur = p.Previous
	}
	return addrs, pointers, nil
}

// Compare implements the sync state machine: missing is returned
// oldest-first relative to localHead (i.e. in the order SyncFrom should
// apply them), even though Walk itself yields newest-first.
func (c *Chain) Compare(localHead, remoteHead *Address) (ChainStatus, []Address, error) {
	if addrEqual(localHead, remoteHead) {
		return StatusEqual, nil, nil
	}
	if localHead == nil {
		addrs, _, err := c.Walk(remoteHead, 0, nil)
		if err != nil {
			return "", nil, err
		}
		return StatusBehind, reverseAddrs(addrs), nil
	}

	remoteAddrs, _, err := c.Walk(remoteHead, 0, nil)
	if err != nil {
		return "", nil, err
	}
	localAddrs, _, err := c.Walk(localHead, 0, nil)
	if err != nil {
		return "", nil, err
	}
	localSet := make(map[Address]struct{}, len(localAddrs))
	for _, a := range localAddrs {
		localSet[a] = struct{}{}
	}

	var ancestor *Address
	for _, a := range remoteAddrs {
		if _, ok := localSet[a]; ok {
			addr := a
			ancestor = &addr
			break
		}
	}

	if ancestor == nil {
		return StatusDiverged, nil, nil
	}
	if *ancestor == *localHead {
		addrs, _, err := c.Walk(remoteHead, 0, localHead)
		if err != nil {
			return "", nil, err
		}
		return StatusBehind, reverseAddrs(addrs), nil
	}
	if *ancestor == *remoteHead {
		return StatusAhead, nil, nil
	}
	return StatusDiverged, nil, nil
}

func addrEqual(a, b *Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func reverseAddrs(addrs []Address) []Address {
	out := make([]Address, len(addrs))
	for i, a := range addrs {
		out[len(addrs)-1-i] = a
	}
	return out
}

// SyncResult reports the outcome of SyncFrom.
type SyncResult struct {
	Status        ChainStatus
	StatesApplied int
}

// SyncFrom resolves remoteHead, compares it to the chain's current head,
// and — if behind — retrieves missing pointers oldest-first, applying each
// referenced snapshot via applySnapshot. Failure mid-apply leaves the local
// head untouched: it only advances once every retrieved snapshot has been
// applied successfully.
func (c *Chain) SyncFrom(remoteHead Address, applySnapshot func(*Snapshot) error) (SyncResult, error) {
	if !c.store.Has(remoteHead) {
		return SyncResult{}, newErr(ErrUnknownCid, string(remoteHead))
	}

	status, missing, err := c.Compare(c.head, &remoteHead)
	if err != nil {
		return SyncResult{}, err
	}

	switch status {
	case StatusEqual:
		return SyncResult{Status: StatusEqual}, nil
	case StatusAhead:
		return SyncResult{Status: StatusAhead}, newErr(ErrAlreadyAhead, "local chain already ahead of remote")
	case StatusDiverged:
		return SyncResult{Status: StatusDiverged}, newErr(ErrDiverged, "no common ancestor between local and remote chains")
	}

	applied := 0
	var lastHeight uint64
	for _, addr := range missing {
		p, err := c.resolve(addr)
		if err != nil {
			return SyncResult{Status: status, StatesApplied: applied}, err
		}
		blob, ok, err := c.store.Retrieve(p.Snapshot)
		if err != nil {
			return SyncResult{Status: status, StatesApplied: applied}, err
		}
		if !ok {
			return SyncResult{Status: status, StatesApplied: applied}, newErr(ErrUnknownCid, string(p.Snapshot))
		}
		snap, err := UnmarshalSnapshot(blob)
		if err != nil {
			return SyncResult{Status: status, StatesApplied: applied}, err
		}
		if err := applySnapshot(snap); err != nil {
			return SyncResult{Status: status, StatesApplied: applied}, wrapErr(ErrIoFailure, "apply snapshot", err)
		}
		applied++
		lastHeight = p.Height
	}

	c.head = &remoteHead
	c.height = lastHeight
	return SyncResult{Status: status, StatesApplied: applied}, nil
}
