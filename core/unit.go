package core

// unit.go – the unit algebra (C1): construct, split, merge, tag, and
// summarize dimensional units. Deliberately import-light: this file depends
// only on stdlib, github.com/google/uuid for fresh ids, and the package's
// shared id/clock/error helpers, so the rest of the package can treat a
// Unit as a pure value with no ledger dependency.

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

func newUnitID() UnitID { return UnitID(uuid.NewString()) }

// ProvenanceEntry is one immutable event in a unit's history.
type ProvenanceEntry struct {
	Timestamp time.Time
	Kind      ProvenanceKind
	From      *WalletID
	To        *WalletID
	Magnitude float64
	Note      string
	TxID      TransactionID
}

// Unit is the quantum Ω = (id, m, T, L, P, R, created_at, last_tick_at,
// owner).
type Unit struct {
	ID         UnitID
	Magnitude  float64
	Stratum    Stratum
	Localities stringSet
	Purposes   stringSet
	Provenance []ProvenanceEntry
	CreatedAt  time.Time
	LastTickAt time.Time
	Owner      WalletID
}

// SortedLocalities and SortedPurposes return the lexicographically ordered
// sequence view required for deterministic serialization.
func (u *Unit) SortedLocalities() []CommunityID {
	return toCommunityIDs(u.Localities.sorted())
}

func (u *Unit) SortedPurposes() []PurposeID {
	return toPurposeIDs(u.Purposes.sorted())
}

func toCommunityIDs(ss []string) []CommunityID {
	out := make([]CommunityID, len(ss))
	for i, s := range ss {
		out[i] = CommunityID(s)
	}
	return out
}

func toPurposeIDs(ss []string) []PurposeID {
	out := make([]PurposeID, len(ss))
	for i, s := range ss {
		out[i] = PurposeID(s)
	}
	return out
}

func localitySet(ids []CommunityID) stringSet {
	items := make([]string, len(ids))
	for i, id := range ids {
		items[i] = string(id)
	}
	return newStringSet(items...)
}

func purposeSet(ids []PurposeID) stringSet {
	items := make([]string, len(ids))
	for i, id := range ids {
		items[i] = string(id)
	}
	return newStringSet(items...)
}

// CreateUnit constructs a fresh Ω with one initial provenance entry. Both
// created_at and last_tick_at are anchored to the supplied clock sample.
func CreateUnit(magnitude float64, stratum Stratum, localities []CommunityID, purposes []PurposeID, owner WalletID, kind ProvenanceKind, from *WalletID, note string, txID TransactionID, now time.Time) (*Unit, error) {
	if !ValidStratum(stratum) {
		return nil, newErr(ErrAmount, "unknown stratum")
	}
	u := &Unit{
		ID:         newUnitID(),
		Magnitude:  magnitude,
		Stratum:    stratum,
		Localities: localitySet(localities),
		Purposes:   purposeSet(purposes),
		CreatedAt:  now,
		LastTickAt: now,
		Owner:      owner,
	}
	u.Provenance = []ProvenanceEntry{{
		Timestamp: now,
		Kind:      kind,
		From:      from,
		Magnitude: magnitude,
		Note:      note,
		TxID:      txID,
	}}
	return u, nil
}

// AddProvenance appends a new entry, preserving the time-ordering invariant.
func (u *Unit) AddProvenance(entry ProvenanceEntry) error {
	if len(u.Provenance) > 0 {
		last := u.Provenance[len(u.Provenance)-1].Timestamp
		if entry.Timestamp.Before(last) {
			return newErr(ErrAmount, "provenance entry precedes chain tail")
		}
	}
	u.Provenance = append(u.Provenance, entry)
	return nil
}

func (u *Unit) clone() *Unit {
	c := *u
	c.Localities = u.Localities.clone()
	c.Purposes = u.Purposes.clone()
	c.Provenance = append([]ProvenanceEntry(nil), u.Provenance...)
	return &c
}

// Split requires 0 < a < u.Magnitude. It returns the remainder (retaining
// u's id) and the newly split piece.
func Split(u *Unit, a float64, now time.Time, txID TransactionID) (remainder *Unit, piece *Unit, err error) {
	if !(a > 0 && a < u.Magnitude) {
		return nil, nil, newErr(ErrAmount, "split amount must satisfy 0 < a < magnitude")
	}

	remainder = u.clone()
	remainder.Magnitude = u.Magnitude - a
	remainder.LastTickAt = now
	if err := remainder.AddProvenance(ProvenanceEntry{
		Timestamp: now, Kind: ProvenanceSplit, Magnitude: remainder.Magnitude, TxID: txID,
	}); err != nil {
		return nil, nil, err
	}

	piece = u.clone()
	piece.ID = newUnitID()
	piece.Magnitude = a
	piece.LastTickAt = now
	if err := piece.AddProvenance(ProvenanceEntry{
		Timestamp: now, Kind: ProvenanceSplit, Magnitude: a, TxID: txID,
	}); err != nil {
		return nil, nil, err
	}

	return remainder, piece, nil
}

// Merge requires at least two units sharing stratum, locality set, and
// purpose set, per the merge precondition. The result takes the first
// unit's owner.
func Merge(units []*Unit, now time.Time, txID TransactionID) (*Unit, error) {
	if len(units) < 2 {
		return nil, newErr(ErrMergeIncompatible, "merge requires at least two units")
	}
	first := units[0]
	for _, u := range units[1:] {
		if u.Stratum != first.Stratum ||
			!u.Localities.equal(first.Localities) || !u.Purposes.equal(first.Purposes) {
			return nil, newErr(ErrMergeIncompatible, "units differ in stratum, locality, or purpose")
		}
	}

	var total float64
	all := make([]ProvenanceEntry, 0)
	for _, u := range units {
		total += u.Magnitude
		all = append(all, u.Provenance...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	merged := &Unit{
		ID:         newUnitID(),
		Magnitude:  total,
		Stratum:    first.Stratum,
		Localities: first.Localities.clone(),
		Purposes:   first.Purposes.clone(),
		Owner:      first.Owner,
		CreatedAt:  now,
		LastTickAt: now,
		Provenance: all,
	}
	if err := merged.AddProvenance(ProvenanceEntry{
		Timestamp: now, Kind: ProvenanceMerged, Magnitude: total, TxID: txID,
	}); err != nil {
		return nil, err
	}
	return merged, nil
}

// IsLocked reports whether u is spend/transfer-locked at instant now.
// Lockup applies to spend/transfer authorization only, never to accrual.
func IsLocked(u *Unit, now time.Time) bool {
	switch u.Stratum {
	case StratumT0:
		return false
	case StratumT1:
		return now.Before(u.CreatedAt.Add(time.Duration(LockupT1Millis) * time.Millisecond))
	case StratumT2:
		return now.Before(u.CreatedAt.Add(time.Duration(LockupT2Millis) * time.Millisecond))
	case StratumTInf:
		return true
	default:
		return true
	}
}

// UnitSummary is a read-only projection of a unit for status queries.
type UnitSummary struct {
	ID         UnitID
	Magnitude  float64
	Stratum    Stratum
	Localities []CommunityID
	Purposes   []PurposeID
	Owner      WalletID
	CreatedAt  time.Time
	LastTickAt time.Time
	Locked     bool
	Reputation float64
	EventCount int
}

// Summary produces a UnitSummary as of now.
func Summary(u *Unit, now time.Time) UnitSummary {
	return UnitSummary{
		ID:         u.ID,
		Magnitude:  u.Magnitude,
		Stratum:    u.Stratum,
		Localities: u.SortedLocalities(),
		Purposes:   u.SortedPurposes(),
		Owner:      u.Owner,
		CreatedAt:  u.CreatedAt,
		LastTickAt: u.LastTickAt,
		Locked:     IsLocked(u, now),
		Reputation: ReputationScore(u),
		EventCount: len(u.Provenance),
	}
}

// ReputationScore computes the [0,1] reputation heuristic:
// min(types/5, 0.3) + min(log10(len+1)/3, 0.3) + (earned_count/len)*0.4,
// capped at 1.
func ReputationScore(u *Unit) float64 {
	n := len(u.Provenance)
	if n == 0 {
		return 0
	}
	kinds := make(map[ProvenanceKind]struct{})
	earned := 0
	for _, p := range u.Provenance {
		kinds[p.Kind] = struct{}{}
		if p.Kind == ProvenanceEarned {
			earned++
		}
	}
	typesTerm := math.Min(float64(len(kinds))/5.0, 0.3)
	depthTerm := math.Min(math.Log10(float64(n)+1)/3.0, 0.3)
	earnedTerm := (float64(earned) / float64(n)) * 0.4
	score := typesTerm + depthTerm + earnedTerm
	return math.Min(score, 1.0)
}
