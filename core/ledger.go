package core

// ledger.go – the ledger façade: composes C1-C7 into coherent, serialized
// transactions. A single mutex-guarded aggregate owning every subsystem,
// exposing mint/transfer-shaped methods that validate, mutate, and log.
// Every exported method takes the lock for its whole duration.

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config bundles the deployment-level choices the façade needs at
// construction time: persisted state layout, and the seed for the
// simulated clock (the clock itself is part of ledger state).
type Config struct {
	// BlocksDir backs the content store (snapshots + state pointers).
	BlocksDir string
	// DataDir backs the key-value datastore holding the persisted head
	// pointer. Empty means the head is kept in memory only.
	DataDir string
	// SeedUnixMillis seeds the simulated clock at construction; 0 means
	// "leave at the mock's zero value", matching NewSimClock's contract.
	SeedUnixMillis int64
	// DefaultBoundaryFee and DefaultConversionDiscount are the fallback
	// rates the conversion engine charges when a removed community or
	// purpose has no registry entry. 0 means the built-in 0.03 default.
	DefaultBoundaryFee        float64
	DefaultConversionDiscount float64
}

// Ledger is the façade composing every subsystem.
type Ledger struct {
	mu sync.Mutex

	pool        *CommonsPool
	dividend    *DividendPool
	wallets     *WalletRegistry
	communities *CommunityRegistry
	purposes    *PurposeRegistry
	conversion  *ConversionEngine

	units map[UnitID]*Unit

	store ContentStore
	chain *Chain
	heads *HeadStore

	history []TransactionRecord

	logger *logrus.Logger
}

// NewLedger wires a fresh Ledger from cfg. A nil store argument falls back
// to a filesystem content store rooted at cfg.BlocksDir.
func NewLedger(cfg Config, store ContentStore) (*Ledger, error) {
	if store == nil {
		fs, err := NewFileContentStore(cfg.BlocksDir, nil)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	var heads *HeadStore
	if cfg.DataDir != "" {
		hs, err := NewHeadStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		heads = hs
	}

	clk := NewSimClock(cfg.SeedUnixMillis)
	wallets := NewWalletRegistry()
	communities := NewCommunityRegistry()
	purposes := NewPurposeRegistry()

	conversion := NewConversionEngine(communities, purposes)
	if cfg.DefaultBoundaryFee > 0 {
		conversion.FallbackBoundaryFee = cfg.DefaultBoundaryFee
	}
	if cfg.DefaultConversionDiscount > 0 {
		conversion.FallbackConversionDiscount = cfg.DefaultConversionDiscount
	}

	l := &Ledger{
		pool:        NewCommonsPool(clk),
		dividend:    NewDividendPool(),
		wallets:     wallets,
		communities: communities,
		purposes:    purposes,
		conversion:  conversion,
		units:       make(map[UnitID]*Unit),
		store:       store,
		chain:       NewChain(store),
		heads:       heads,
		logger:      logrus.StandardLogger(),
	}
	return l, nil
}

func (l *Ledger) now() time.Time { return l.pool.GetTime() }

func (l *Ledger) record(kind TxKind, txID TransactionID, inputs, outputs []UnitID, fees float64, description string) {
	l.history = append(l.history, TransactionRecord{
		ID:          txID,
		Kind:        kind,
		Timestamp:   timeToMillis(l.now()),
		InputUnits:  inputs,
		OutputUnits: outputs,
		Fees:        fees,
		Description: description,
	})
}

//------------------------------------------------------------------------
// Registry passthroughs
//------------------------------------------------------------------------

func (l *Ledger) CreateWallet(name string) (*Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallets.Create(name, l.now())
}

func (l *Ledger) CreateCommunity(name, description string, boundaryFee float64) (*Community, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.communities.Create(name, description, boundaryFee, l.now())
}

func (l *Ledger) CreatePurpose(name, description string, conversionDiscount float64) (*PurposeChannel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purposes.Create(name, description, conversionDiscount, l.now())
}

//------------------------------------------------------------------------
// Mint / transfer / convert
//------------------------------------------------------------------------

// Mint originates a fresh T0 unit owned by wallet. Errors: WalletUnknown,
// Positive.
func (l *Ledger) Mint(amount float64, wallet WalletID, note string) (*Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.wallets.Get(wallet); err != nil {
		return nil, err
	}
	txID := newTxID()
	u, err := l.pool.Mint(amount, wallet, note, txID)
	if err != nil {
		return nil, err
	}
	l.units[u.ID] = u
	l.record(TxMint, txID, nil, []UnitID{u.ID}, 0, note)
	return u, nil
}

// Transfer moves unitID (in full, or a split-off amount) to toWallet. If
// amount is provided and less than the unit's magnitude, the unit is split
// first and only the split-off piece moves. Destination-side provenance is
// tagged earned when note is non-empty, gifted otherwise. Errors:
// UnitUnknown, WalletUnknown, Locked, Amount.
func (l *Ledger) Transfer(unitID UnitID, toWallet WalletID, amount *float64, note string) (*Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.units[unitID]
	if !ok {
		return nil, newErr(ErrUnitUnknown, string(unitID))
	}
	if _, err := l.wallets.Get(toWallet); err != nil {
		return nil, err
	}
	now := l.now()
	if IsLocked(u, now) {
		return nil, newErr(ErrLocked, string(unitID))
	}
	if amount != nil && !(*amount > 0 && *amount <= u.Magnitude) {
		return nil, newErr(ErrAmount, "transfer amount must satisfy 0 < a <= magnitude")
	}

	// Purpose colouring restricts recipients: a purpose channel with a
	// non-empty recipient set only admits transfers to registered wallets.
	for _, p := range u.SortedPurposes() {
		channel, err := l.purposes.Get(p)
		if err != nil {
			continue
		}
		if len(channel.Recipients) > 0 && !channel.Recipients.has(string(toWallet)) {
			return nil, newErr(ErrRecipientRestricted, string(p))
		}
	}

	txID := newTxID()
	kind := ProvenanceGifted
	if note != "" {
		kind = ProvenanceEarned
	}
	from := u.Owner

	moved := u
	inputs := []UnitID{unitID}
	outputs := []UnitID{}

	if amount != nil && *amount < u.Magnitude {
		remainder, piece, err := Split(u, *amount, now, txID)
		if err != nil {
			return nil, err
		}
		l.units[remainder.ID] = remainder
		moved = piece
		outputs = append(outputs, remainder.ID)
	}

	moved.Owner = toWallet
	if err := moved.AddProvenance(ProvenanceEntry{
		Timestamp: now, Kind: kind, From: &from, To: &toWallet, Magnitude: moved.Magnitude, Note: note, TxID: txID,
	}); err != nil {
		return nil, err
	}
	l.units[moved.ID] = moved
	outputs = append(outputs, moved.ID)

	l.record(TxTransfer, txID, inputs, outputs, 0, note)
	return moved, nil
}

// Convert applies req to unitID via the conversion engine, replacing the
// original unit with the converted result and routing fees to the Dividend
// Pool. Lockup does not gate conversion — it restricts spend/transfer only,
// and the temporal fee table is exactly the price of leaving a stratum
// before its window elapses.
func (l *Ledger) Convert(unitID UnitID, req ConversionRequest) (*Unit, Fees, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.units[unitID]
	if !ok {
		return nil, Fees{}, newErr(ErrUnitUnknown, string(unitID))
	}
	now := l.now()

	txID := newTxID()
	out, fees, err := l.conversion.Convert(u, req, now, txID)
	if err != nil {
		return nil, Fees{}, err
	}

	// Fees move from the unit into the Dividend Pool; current_supply is
	// untouched because dividend.balance is itself part of supply — this
	// is a transfer within supply, not a burn.
	if fees.Total > 0 {
		if err := l.dividend.Deposit(fees.Total); err != nil {
			return nil, Fees{}, err
		}
	}

	delete(l.units, unitID)
	l.units[out.ID] = out
	l.record(TxConvert, txID, []UnitID{unitID}, []UnitID{out.ID}, fees.Total, "convert")
	return out, fees, nil
}

// PreviewConvert returns the magnitude and fee breakdown req would produce
// for unitID, without mutating anything.
func (l *Ledger) PreviewConvert(unitID UnitID, req ConversionRequest) (float64, Fees, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[unitID]
	if !ok {
		return 0, Fees{}, newErr(ErrUnitUnknown, string(unitID))
	}
	return l.conversion.Preview(u, req)
}

// ValidateConvert reports whether req is applicable to unitID, without
// mutating anything.
func (l *Ledger) ValidateConvert(unitID UnitID, req ConversionRequest) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[unitID]
	if !ok {
		return false, newErr(ErrUnitUnknown, string(unitID))
	}
	return l.conversion.Validate(u, req)
}

//------------------------------------------------------------------------
// Split / merge (exposed directly for callers that need them without
// going through convert)
//------------------------------------------------------------------------

func (l *Ledger) Split(unitID UnitID, amount float64) (*Unit, *Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.units[unitID]
	if !ok {
		return nil, nil, newErr(ErrUnitUnknown, string(unitID))
	}
	txID := newTxID()
	remainder, piece, err := Split(u, amount, l.now(), txID)
	if err != nil {
		return nil, nil, err
	}
	delete(l.units, unitID)
	l.units[remainder.ID] = remainder
	l.units[piece.ID] = piece
	l.record(TxSplit, txID, []UnitID{unitID}, []UnitID{remainder.ID, piece.ID}, 0, "split")
	return remainder, piece, nil
}

func (l *Ledger) Merge(unitIDs []UnitID) (*Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	units := make([]*Unit, 0, len(unitIDs))
	for _, id := range unitIDs {
		u, ok := l.units[id]
		if !ok {
			return nil, newErr(ErrUnitUnknown, string(id))
		}
		units = append(units, u)
	}
	txID := newTxID()
	merged, err := Merge(units, l.now(), txID)
	if err != nil {
		return nil, err
	}
	for _, id := range unitIDs {
		delete(l.units, id)
	}
	l.units[merged.ID] = merged
	l.record(TxMerge, txID, unitIDs, []UnitID{merged.ID}, 0, "merge")
	return merged, nil
}

//------------------------------------------------------------------------
// Tick
//------------------------------------------------------------------------

// Tick advances the simulated clock by days and applies demurrage/dividend
// accrual to every unit.
func (l *Ledger) Tick(days float64) (TickResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delta := time.Duration(days * 24 * float64(time.Hour))
	if err := l.pool.AdvanceTime(delta); err != nil {
		return TickResult{}, err
	}
	now := l.now()

	all := make([]*Unit, 0, len(l.units))
	for _, u := range l.units {
		all = append(all, u)
	}
	result, err := Tick(all, l.dividend, now)
	if err != nil {
		return TickResult{}, err
	}
	l.logger.Infof("ledger: tick advanced %.4f days, updated %d units (demurrage %.6f, dividend %.6f)",
		days, result.Updated, result.TotalDemurrage, result.TotalDividend)
	return result, nil
}

//------------------------------------------------------------------------
// Save / load
//------------------------------------------------------------------------

// Save captures the current state as a Snapshot, stores it, appends a
// state pointer to the chain, and returns the pointer's address.
func (l *Ledger) Save() (Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.exportSnapshot()
	blob, err := snap.Marshal()
	if err != nil {
		return "", wrapErr(ErrIoFailure, "marshal snapshot", err)
	}
	snapAddr, err := l.store.Store(blob)
	if err != nil {
		return "", err
	}
	ptrAddr, err := l.chain.Append(snapAddr, l.now(), "")
	if err != nil {
		return "", err
	}
	// Pin what the chain now references, so a store that garbage-collects
	// never drops a reachable snapshot or pointer.
	if err := l.store.Pin(snapAddr); err != nil {
		return "", err
	}
	if err := l.store.Pin(ptrAddr); err != nil {
		return "", err
	}
	if l.heads != nil {
		if err := l.heads.SaveHead(ptrAddr); err != nil {
			return "", err
		}
	}
	l.logger.Infof("ledger: saved snapshot %s at height %d", snapAddr, l.chain.Height())
	return ptrAddr, nil
}

// Load restores ledger state from headAddr (or the chain's current head if
// nil), returning false if there is nothing to load.
func (l *Ledger) Load(headAddr *Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := headAddr
	if target == nil {
		target = l.chain.Head()
	}
	if target == nil && l.heads != nil {
		persisted, err := l.heads.LoadHead()
		if err != nil {
			return false, err
		}
		target = persisted
	}
	if target == nil {
		return false, nil
	}

	blob, ok, err := l.store.Retrieve(*target)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, newErr(ErrUnknownCid, string(*target))
	}
	p, err := unmarshalPointer(blob)
	if err != nil {
		return false, err
	}
	snapBlob, ok, err := l.store.Retrieve(p.Snapshot)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, newErr(ErrUnknownCid, string(p.Snapshot))
	}
	snap, err := UnmarshalSnapshot(snapBlob)
	if err != nil {
		return false, err
	}
	l.importSnapshot(snap)
	l.chain.SetHead(target, p.Height)
	if l.heads != nil {
		if err := l.heads.SaveHead(*target); err != nil {
			return true, err
		}
	}
	return true, nil
}

// SyncFrom drives the sync protocol against remoteHead, applying any
// missing snapshots via importSnapshot. The pre-sync state is the only
// committed state until the whole fetch succeeds: a failure mid-apply
// rolls the in-memory ledger back and leaves the head untouched.
func (l *Ledger) SyncFrom(remoteHead Address) (SyncResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pre := l.exportSnapshot()
	result, err := l.chain.SyncFrom(remoteHead, func(s *Snapshot) error {
		l.importSnapshot(s)
		return nil
	})
	if err != nil {
		if result.StatesApplied > 0 {
			l.importSnapshot(pre)
		}
		return result, err
	}
	if l.heads != nil && result.StatesApplied > 0 {
		if err := l.heads.SaveHead(remoteHead); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ArchiveResult reports the outcome of Archive.
type ArchiveResult struct {
	Archived int
	Retained uint64
}

// archiveEntry is the gzip-archived record for one retired (pointer,
// snapshot) pair.
type archiveEntry struct {
	Pointer  StatePointer    `json:"pointer"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// Archive bounds the chain's working size by gzip-archiving every state
// pointer older than the last retain heights to archivePath (one JSON
// object per line, newest-archived-last) and purging their backing blobs
// from the content store. Archive first, then evict, never the reverse. A
// no-op if the chain has retain or fewer heights.
func (l *Ledger) Archive(retain uint64, archivePath string) (ArchiveResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chain.Height() <= retain {
		return ArchiveResult{Retained: l.chain.Height()}, nil
	}

	fileStore, ok := l.store.(*FileContentStore)
	if !ok {
		return ArchiveResult{}, newErr(ErrIoFailure, "archive requires a *FileContentStore")
	}

	addrs, pointers, err := l.chain.Walk(l.chain.Head(), 0, nil)
	if err != nil {
		return ArchiveResult{}, err
	}

	// Content addressing dedups identical snapshots across heights, so a
	// retired pointer may share its snapshot blob with a retained one.
	// Those blobs must survive the purge.
	height := l.chain.Height()
	retainedSnaps := make(map[Address]struct{})
	for _, p := range pointers {
		if p.Height > height-retain {
			retainedSnaps[p.Snapshot] = struct{}{}
		}
	}

	f, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return ArchiveResult{}, wrapErr(ErrIoFailure, "open archive file", err)
	}
	gz := gzip.NewWriter(f)

	archived := 0
	for i := len(addrs) - 1; i >= 0; i-- {
		if pointers[i].Height > height-retain {
			continue
		}
		snapBlob, ok, err := l.store.Retrieve(pointers[i].Snapshot)
		if err != nil {
			gz.Close()
			f.Close()
			return ArchiveResult{Archived: archived}, err
		}
		if !ok {
			continue
		}
		entry := archiveEntry{Pointer: *pointers[i], Snapshot: snapBlob}
		data, err := json.Marshal(entry)
		if err != nil {
			gz.Close()
			f.Close()
			return ArchiveResult{Archived: archived}, wrapErr(ErrIoFailure, "marshal archive entry", err)
		}
		if _, err := gz.Write(append(data, '\n')); err != nil {
			gz.Close()
			f.Close()
			return ArchiveResult{Archived: archived}, wrapErr(ErrIoFailure, "write archive entry", err)
		}
		if _, keep := retainedSnaps[pointers[i].Snapshot]; !keep {
			if err := fileStore.Purge(pointers[i].Snapshot); err != nil {
				gz.Close()
				f.Close()
				return ArchiveResult{Archived: archived}, err
			}
		}
		if err := fileStore.Purge(addrs[i]); err != nil {
			gz.Close()
			f.Close()
			return ArchiveResult{Archived: archived}, err
		}
		archived++
	}

	if err := gz.Close(); err != nil {
		f.Close()
		return ArchiveResult{Archived: archived}, wrapErr(ErrIoFailure, "close archive gzip writer", err)
	}
	if err := f.Close(); err != nil {
		return ArchiveResult{Archived: archived}, wrapErr(ErrIoFailure, "close archive file", err)
	}

	l.logger.Infof("ledger: archived %d retired state(s) to %s, retaining %d", archived, archivePath, retain)
	return ArchiveResult{Archived: archived, Retained: retain}, nil
}

func (l *Ledger) exportSnapshot() *Snapshot {
	units := make([]UnitView, 0, len(l.units))
	for _, u := range l.units {
		units = append(units, newUnitView(u))
	}
	sortUnits(units)

	wallets := make([]WalletView, 0)
	for _, w := range l.wallets.List() {
		wallets = append(wallets, newWalletView(w))
	}
	sortWallets(wallets)

	communities := make([]CommunityView, 0)
	for _, c := range l.communities.List() {
		communities = append(communities, newCommunityView(c))
	}
	sortCommunities(communities)

	purposes := make([]PurposeView, 0)
	for _, p := range l.purposes.List() {
		purposes = append(purposes, newPurposeView(p))
	}
	sortPurposes(purposes)

	dividendSnap := l.dividend.Export()

	return &Snapshot{
		Version:      SnapshotVersion,
		Timestamp:    timeToMillis(l.now()),
		Pool:         l.pool.Export(),
		DividendPool: &dividendSnap,
		Units:        units,
		Wallets:      wallets,
		Communities:  communities,
		Purposes:     purposes,
	}
}

func (l *Ledger) importSnapshot(snap *Snapshot) {
	l.pool.Import(snap.Pool)
	if snap.DividendPool != nil {
		l.dividend.Import(*snap.DividendPool)
	} else {
		l.dividend.Import(DividendPoolSnapshot{})
	}

	l.units = make(map[UnitID]*Unit, len(snap.Units))
	for _, v := range snap.Units {
		l.units[v.ID] = v.toUnit()
	}

	l.wallets = NewWalletRegistry()
	for _, v := range snap.Wallets {
		l.wallets.restore(v.toWallet())
	}

	l.communities = NewCommunityRegistry()
	for _, v := range snap.Communities {
		l.communities.restore(v.toCommunity())
	}

	l.purposes = NewPurposeRegistry()
	for _, v := range snap.Purposes {
		l.purposes.restore(v.toPurposeChannel())
	}

	fallbackFee := l.conversion.FallbackBoundaryFee
	fallbackDiscount := l.conversion.FallbackConversionDiscount
	l.conversion = NewConversionEngine(l.communities, l.purposes)
	l.conversion.FallbackBoundaryFee = fallbackFee
	l.conversion.FallbackConversionDiscount = fallbackDiscount
}

//------------------------------------------------------------------------
// Status queries
//------------------------------------------------------------------------

func (l *Ledger) GetUnit(id UnitID) (*Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[id]
	if !ok {
		return nil, newErr(ErrUnitUnknown, string(id))
	}
	return u, nil
}

// BalanceBreakdown is the balance-by-dimension view of get_balance.
type BalanceBreakdown struct {
	Total      float64
	ByStratum  map[Stratum]float64
	ByLocality map[CommunityID]float64
	ByPurpose  map[PurposeID]float64
}

// GetBalance sums every unit owned by wallet, broken down by stratum and
// by locality/purpose membership (a unit with multiple localities or
// purposes contributes its full magnitude to each).
func (l *Ledger) GetBalance(wallet WalletID) BalanceBreakdown {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := BalanceBreakdown{
		ByStratum:  make(map[Stratum]float64),
		ByLocality: make(map[CommunityID]float64),
		ByPurpose:  make(map[PurposeID]float64),
	}
	for _, u := range l.units {
		if u.Owner != wallet {
			continue
		}
		b.Total += u.Magnitude
		b.ByStratum[u.Stratum] += u.Magnitude
		for _, c := range u.SortedLocalities() {
			b.ByLocality[c] += u.Magnitude
		}
		for _, p := range u.SortedPurposes() {
			b.ByPurpose[p] += u.Magnitude
		}
	}
	return b
}

func (l *Ledger) ListWallets() []*Wallet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallets.List()
}

func (l *Ledger) ListCommunities() []*Community {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.communities.List()
}

func (l *Ledger) ListPurposes() []*PurposeChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purposes.List()
}

func (l *Ledger) Head() *Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain.Head()
}

func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain.Height()
}

// History returns the in-memory transaction log accumulated so far. It is
// not part of the content-addressed snapshot: these are not part of the
// durable state.
func (l *Ledger) History() []TransactionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TransactionRecord, len(l.history))
	copy(out, l.history)
	return out
}
