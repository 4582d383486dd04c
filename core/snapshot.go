package core

// snapshot.go – canonical state serialization: every sequence field is
// rendered in lexicographic order so two deployments serialize identically
// byte-for-byte, which content addressing depends on.

import (
	"encoding/json"
	"sort"
)

const SnapshotVersion = 2

// UnitView, WalletView, CommunityView, PurposeView are the wire-stable
// projections of their in-memory counterparts: units and wallets render
// their sets as sorted sequences.
type UnitView struct {
	ID         UnitID            `json:"id"`
	Magnitude  float64           `json:"magnitude"`
	Stratum    Stratum           `json:"stratum"`
	Localities []CommunityID     `json:"localities"`
	Purposes   []PurposeID       `json:"purposes"`
	Owner      WalletID          `json:"owner"`
	CreatedAt  int64             `json:"created_at"`
	LastTickAt int64             `json:"last_tick_at"`
	Provenance []ProvenanceEntry `json:"provenance"`
}

type WalletView struct {
	ID          WalletID      `json:"id"`
	Name        string        `json:"name"`
	CreatedAt   int64         `json:"created_at"`
	Communities []CommunityID `json:"communities"`
	Purposes    []PurposeID   `json:"purposes"`
}

type CommunityView struct {
	ID          CommunityID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	BoundaryFee float64     `json:"boundary_fee"`
	CreatedAt   int64       `json:"created_at"`
	MemberCount uint64      `json:"member_count"`
}

type PurposeView struct {
	ID                 PurposeID  `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Recipients         []WalletID `json:"recipients"`
	ConversionDiscount float64    `json:"conversion_discount"`
	CreatedAt          int64      `json:"created_at"`
}

// Snapshot is a canonical, content-addressable capture of all ledger state.
type Snapshot struct {
	Version      int                   `json:"version"`
	Timestamp    int64                 `json:"timestamp"`
	Pool         CommonsPoolSnapshot   `json:"pool"`
	DividendPool *DividendPoolSnapshot `json:"dividend_pool,omitempty"`
	Units        []UnitView            `json:"units"`
	Wallets      []WalletView          `json:"wallets"`
	Communities  []CommunityView       `json:"communities"`
	Purposes     []PurposeView         `json:"purposes"`
}

// Marshal renders the snapshot as canonical JSON: struct field order is
// fixed by declaration, and every set-valued field has already been sorted
// by the view constructors below, so json.Marshal's output is deterministic
// byte-for-byte across processes.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot parses blob and validates its version: a version other
// than 1 or 2 is rejected with ErrUnsupportedVersion.
func UnmarshalSnapshot(blob []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, wrapErr(ErrIoFailure, "decode snapshot", err)
	}
	if s.Version != 1 && s.Version != 2 {
		return nil, newErr(ErrUnsupportedVersion, "version must be 1 or 2")
	}
	return &s, nil
}

func newUnitView(u *Unit) UnitView {
	return UnitView{
		ID:         u.ID,
		Magnitude:  u.Magnitude,
		Stratum:    u.Stratum,
		Localities: u.SortedLocalities(),
		Purposes:   u.SortedPurposes(),
		Owner:      u.Owner,
		CreatedAt:  timeToMillis(u.CreatedAt),
		LastTickAt: timeToMillis(u.LastTickAt),
		Provenance: u.Provenance,
	}
}

func (v UnitView) toUnit() *Unit {
	return &Unit{
		ID:         v.ID,
		Magnitude:  v.Magnitude,
		Stratum:    v.Stratum,
		Localities: localitySet(v.Localities),
		Purposes:   purposeSet(v.Purposes),
		Owner:      v.Owner,
		CreatedAt:  millisToTime(v.CreatedAt),
		LastTickAt: millisToTime(v.LastTickAt),
		Provenance: v.Provenance,
	}
}

func newWalletView(w *Wallet) WalletView {
	comms := make([]CommunityID, 0, len(w.Communities))
	for _, c := range w.Communities.sorted() {
		comms = append(comms, CommunityID(c))
	}
	purps := make([]PurposeID, 0, len(w.Purposes))
	for _, p := range w.Purposes.sorted() {
		purps = append(purps, PurposeID(p))
	}
	return WalletView{
		ID:          w.ID,
		Name:        w.Name,
		CreatedAt:   timeToMillis(w.CreatedAt),
		Communities: comms,
		Purposes:    purps,
	}
}

func (v WalletView) toWallet() *Wallet {
	return &Wallet{
		ID:          v.ID,
		Name:        v.Name,
		CreatedAt:   millisToTime(v.CreatedAt),
		Communities: localitySet(v.Communities),
		Purposes:    purposeSet(v.Purposes),
	}
}

func newCommunityView(c *Community) CommunityView {
	return CommunityView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		BoundaryFee: c.BoundaryFee,
		CreatedAt:   timeToMillis(c.CreatedAt),
		MemberCount: c.MemberCount,
	}
}

func (v CommunityView) toCommunity() *Community {
	return &Community{
		ID:          v.ID,
		Name:        v.Name,
		Description: v.Description,
		BoundaryFee: v.BoundaryFee,
		CreatedAt:   millisToTime(v.CreatedAt),
		MemberCount: v.MemberCount,
	}
}

func newPurposeView(p *PurposeChannel) PurposeView {
	recipients := make([]WalletID, 0, len(p.Recipients))
	for _, r := range p.Recipients.sorted() {
		recipients = append(recipients, WalletID(r))
	}
	return PurposeView{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		Recipients:         recipients,
		ConversionDiscount: p.ConversionDiscount,
		CreatedAt:          timeToMillis(p.CreatedAt),
	}
}

func (v PurposeView) toPurposeChannel() *PurposeChannel {
	recipients := make([]string, len(v.Recipients))
	for i, r := range v.Recipients {
		recipients[i] = string(r)
	}
	return &PurposeChannel{
		ID:                 v.ID,
		Name:               v.Name,
		Description:        v.Description,
		Recipients:         newStringSet(recipients...),
		ConversionDiscount: v.ConversionDiscount,
		CreatedAt:          millisToTime(v.CreatedAt),
	}
}

// sortUnits/sortWallets/sortCommunities/sortPurposes order views by id so
// the snapshot's sequence fields are themselves deterministic, not just
// each view's internal sets.
func sortUnits(vs []UnitView)     { sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID }) }
func sortWallets(vs []WalletView) { sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID }) }
func sortCommunities(vs []CommunityView) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
}
func sortPurposes(vs []PurposeView) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
}
