package core

// conversion.go – the conversion engine (C5): Ω′ = Ω·f(ΔT)·f(ΔL)·f(ΔP)·f(ΔR),
// evaluated deterministically in four fixed-order phases, each phase's fee
// tracked separately.

import "time"

// ConversionRequest describes a requested dimensional transform.
type ConversionRequest struct {
	TargetT         *Stratum
	AddL            []CommunityID
	RemoveL         []CommunityID
	AddP            []PurposeID
	RemoveP         []PurposeID
	StripReputation bool
}

// Fees is the per-phase fee breakdown of a conversion.
type Fees struct {
	Temporal   float64
	Locality   float64
	Purpose    float64
	Reputation float64
	Total      float64
}

// ConversionEngine evaluates ConversionRequests against the registries
// needed to resolve boundary fees and conversion discounts. The fallback
// rates apply when a removed community/purpose has no registry entry to
// price the removal from.
type ConversionEngine struct {
	Communities *CommunityRegistry
	Purposes    *PurposeRegistry

	FallbackBoundaryFee        float64
	FallbackConversionDiscount float64
}

func NewConversionEngine(communities *CommunityRegistry, purposes *PurposeRegistry) *ConversionEngine {
	return &ConversionEngine{
		Communities:                communities,
		Purposes:                   purposes,
		FallbackBoundaryFee:        defaultBoundaryFee,
		FallbackConversionDiscount: defaultConversionDiscount,
	}
}

// temporalFeeRate implements the 4x4 fee table. Moving "up" in stratum rank
// (towards T∞) is always free; only moving down charges a fee.
func temporalFeeRate(from, to Stratum) float64 {
	if stratumRank(to) >= stratumRank(from) {
		return 0
	}
	switch {
	case from == StratumT1 && to == StratumT0:
		return 0.02
	case from == StratumT2 && to == StratumT0:
		return 0.05
	case from == StratumT2 && to == StratumT1:
		return 0.03
	case from == StratumTInf && to == StratumT0:
		return 0.10
	case from == StratumTInf && to == StratumT1:
		return 0.08
	case from == StratumTInf && to == StratumT2:
		return 0.05
	default:
		return 0
	}
}

// compute runs the four-phase calculus against a working copy of u's
// dimensional state, returning the resulting magnitude, fee breakdown, and
// new stratum/locality/purpose sets. It never touches u itself — both
// Preview and Convert call this helper.
func (e *ConversionEngine) compute(u *Unit, req ConversionRequest) (newMagnitude float64, fees Fees, newStratum Stratum, newL stringSet, newP stringSet, err error) {
	m := u.Magnitude
	newStratum = u.Stratum
	newL = u.Localities.clone()
	newP = u.Purposes.clone()

	// Phase 1: temporal.
	if req.TargetT != nil && *req.TargetT != u.Stratum {
		if !ValidStratum(*req.TargetT) {
			return 0, Fees{}, "", nil, nil, newErr(ErrAmount, "unknown target stratum")
		}
		rate := temporalFeeRate(u.Stratum, *req.TargetT)
		fees.Temporal = m * rate
		m -= fees.Temporal
		newStratum = *req.TargetT
	}

	// Phase 2: locality.
	for _, c := range req.AddL {
		if _, err := e.Communities.Get(c); err != nil {
			return 0, Fees{}, "", nil, nil, newErr(ErrCommunityUnknown, string(c))
		}
		if !newL.has(string(c)) {
			fee := m * 0.01
			fees.Locality += fee
			m -= fee
			newL[string(c)] = struct{}{}
		}
	}
	for _, c := range req.RemoveL {
		rate := e.FallbackBoundaryFee
		if comm, err := e.Communities.Get(c); err == nil {
			rate = comm.BoundaryFee
		}
		fee := m * rate
		fees.Locality += fee
		m -= fee
		delete(newL, string(c))
	}

	// Phase 3: purpose. Adding is free; removing costs the channel's
	// conversion-discount (or the 0.03 default) and is deducted immediately.
	for _, p := range req.AddP {
		if _, err := e.Purposes.Get(p); err != nil {
			return 0, Fees{}, "", nil, nil, newErr(ErrPurposeUnknown, string(p))
		}
		newP[string(p)] = struct{}{}
	}
	for _, p := range req.RemoveP {
		rate := e.FallbackConversionDiscount
		if channel, err := e.Purposes.Get(p); err == nil {
			rate = channel.ConversionDiscount
		}
		fee := m * rate
		fees.Purpose += fee
		m -= fee
		delete(newP, string(p))
	}

	// Phase 4: reputation strip.
	if req.StripReputation {
		fee := m * 0.05
		fees.Reputation = fee
		m -= fee
	}

	fees.Total = fees.Temporal + fees.Locality + fees.Purpose + fees.Reputation

	if m <= 0 {
		return 0, Fees{}, "", nil, nil, newErr(ErrFeesExceedValue, "fees reduce magnitude to zero or below")
	}
	return m, fees, newStratum, newL, newP, nil
}

// Preview returns the resulting magnitude and fee breakdown without
// mutating anything.
func (e *ConversionEngine) Preview(u *Unit, req ConversionRequest) (float64, Fees, error) {
	m, fees, _, _, _, err := e.compute(u, req)
	if err != nil {
		return 0, Fees{}, err
	}
	return m, fees, nil
}

// Validate reports whether req is applicable to u without mutating
// anything.
func (e *ConversionEngine) Validate(u *Unit, req ConversionRequest) (bool, error) {
	_, _, _, _, _, err := e.compute(u, req)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Convert produces Ω′ from Ω and req. The lockup clock restarts on temporal
// change (created_at and last_tick_at are reset to now), owner is
// preserved, and the provenance chain is either retained-plus-one-entry or,
// if stripped, replaced by a single converted entry.
func (e *ConversionEngine) Convert(u *Unit, req ConversionRequest, now time.Time, txID TransactionID) (*Unit, Fees, error) {
	m, fees, newStratum, newL, newP, err := e.compute(u, req)
	if err != nil {
		return nil, Fees{}, err
	}

	out := &Unit{
		ID:         newUnitID(),
		Magnitude:  m,
		Stratum:    newStratum,
		Localities: newL,
		Purposes:   newP,
		Owner:      u.Owner,
		CreatedAt:  now,
		LastTickAt: now,
	}

	if req.StripReputation {
		out.Provenance = []ProvenanceEntry{{
			Timestamp: now, Kind: ProvenanceConverted, Magnitude: m, TxID: txID,
			Note: "reputation stripped",
		}}
	} else {
		out.Provenance = append([]ProvenanceEntry(nil), u.Provenance...)
		if err := out.AddProvenance(ProvenanceEntry{
			Timestamp: now, Kind: ProvenanceConverted, Magnitude: m, TxID: txID,
		}); err != nil {
			return nil, Fees{}, err
		}
	}

	return out, fees, nil
}
