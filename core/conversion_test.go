package core

import (
	"math"
	"testing"
	"time"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// TestConversionCalculusS2 reproduces the worked example verbatim: a T2
// unit converting to T0, joining community "v" (boundary fee 0.03),
// joining purpose "edu", and stripping reputation.
func TestConversionCalculusS2(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	communities := NewCommunityRegistry()
	purposes := NewPurposeRegistry()
	v, err := communities.Create("v", "", 0.03, now)
	if err != nil {
		t.Fatalf("create community: %v", err)
	}
	edu, err := purposes.Create("edu", "", 0.03, now)
	if err != nil {
		t.Fatalf("create purpose: %v", err)
	}

	u, err := CreateUnit(100, StratumT2, nil, nil, WalletID("alice"), ProvenanceMinted, nil, "", newTxID(), now)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}

	engine := NewConversionEngine(communities, purposes)
	target := StratumT0
	req := ConversionRequest{
		TargetT:         &target,
		AddL:            []CommunityID{v.ID},
		AddP:            []PurposeID{edu.ID},
		StripReputation: true,
	}

	out, fees, err := engine.Convert(u, req, now, newTxID())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	const tol = 1e-9
	if !approxEqual(fees.Temporal, 5, tol) {
		t.Errorf("temporal fee = %v, want 5", fees.Temporal)
	}
	if !approxEqual(fees.Locality, 0.95, tol) {
		t.Errorf("locality fee = %v, want 0.95", fees.Locality)
	}
	if !approxEqual(fees.Purpose, 0, tol) {
		t.Errorf("purpose fee = %v, want 0 (adding is free)", fees.Purpose)
	}
	if !approxEqual(fees.Reputation, 4.7025, 1e-4) {
		t.Errorf("reputation fee = %v, want ≈4.7025", fees.Reputation)
	}
	if !approxEqual(out.Magnitude, 89.3475, 1e-4) {
		t.Errorf("final magnitude = %v, want ≈89.3475", out.Magnitude)
	}
	if !approxEqual(fees.Total, 10.6525, 1e-4) {
		t.Errorf("total fees = %v, want ≈10.6525", fees.Total)
	}
	if out.Stratum != StratumT0 {
		t.Errorf("stratum = %v, want T0", out.Stratum)
	}
	if !out.Localities.equal(newStringSet(string(v.ID))) {
		t.Errorf("localities = %v, want {%v}", out.Localities, v.ID)
	}
	if !out.Purposes.equal(newStringSet(string(edu.ID))) {
		t.Errorf("purposes = %v, want {%v}", out.Purposes, edu.ID)
	}
	if len(out.Provenance) != 1 || out.Provenance[0].Kind != ProvenanceConverted {
		t.Errorf("reputation-stripped unit should have a single converted provenance entry, got %v", out.Provenance)
	}
}

func TestConversionFeesInvariant(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	communities := NewCommunityRegistry()
	purposes := NewPurposeRegistry()
	engine := NewConversionEngine(communities, purposes)

	u, err := CreateUnit(50, StratumTInf, nil, nil, WalletID("bob"), ProvenanceMinted, nil, "", newTxID(), now)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}

	target := StratumT0
	req := ConversionRequest{TargetT: &target}
	out, fees, err := engine.Convert(u, req, now, newTxID())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if !approxEqual(out.Magnitude, u.Magnitude-fees.Total, 1e-9) {
		t.Fatalf("new.magnitude = %v, want old.magnitude - fees.total = %v", out.Magnitude, u.Magnitude-fees.Total)
	}
	sum := fees.Temporal + fees.Locality + fees.Purpose + fees.Reputation
	if !approxEqual(fees.Total, sum, 1e-9) {
		t.Fatalf("fees.total = %v, want sum of phases = %v", fees.Total, sum)
	}
}

func TestConversionMovingUpIsFree(t *testing.T) {
	if rate := temporalFeeRate(StratumT0, StratumT1); rate != 0 {
		t.Fatalf("moving up (T0->T1) should be free, got rate %v", rate)
	}
	if rate := temporalFeeRate(StratumT0, StratumTInf); rate != 0 {
		t.Fatalf("moving up (T0->T∞) should be free, got rate %v", rate)
	}
}

func TestPreviewNeverMutates(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	communities := NewCommunityRegistry()
	purposes := NewPurposeRegistry()
	engine := NewConversionEngine(communities, purposes)

	u, err := CreateUnit(100, StratumT2, nil, nil, WalletID("alice"), ProvenanceMinted, nil, "", newTxID(), now)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}

	target := StratumT0
	req := ConversionRequest{TargetT: &target}
	previewM, previewFees, err := engine.Preview(u, req)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if u.Magnitude != 100 || u.Stratum != StratumT2 {
		t.Fatal("preview must not mutate the unit")
	}

	out, fees, err := engine.Convert(u, req, now, newTxID())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.Magnitude != previewM || fees != previewFees {
		t.Fatalf("preview (%v, %+v) disagrees with convert (%v, %+v)", previewM, previewFees, out.Magnitude, fees)
	}

	if ok, err := engine.Validate(u, req); !ok || err != nil {
		t.Fatalf("validate should accept the same request: ok=%v err=%v", ok, err)
	}
}

func TestConversionFeesExceedingValueFails(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	communities := NewCommunityRegistry()
	purposes := NewPurposeRegistry()
	engine := NewConversionEngine(communities, purposes)

	// A boundary fee of exactly 1 is accepted at community-creation time,
	// but removing a unit from such a community charges its full
	// remaining magnitude, which must trip FeesExceedValue.
	confiscatory, err := communities.Create("confiscatory", "", 1, now)
	if err != nil {
		t.Fatalf("create community: %v", err)
	}

	u, err := CreateUnit(10, StratumT0, []CommunityID{confiscatory.ID}, nil, WalletID("carol"), ProvenanceMinted, nil, "", newTxID(), now)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	req := ConversionRequest{RemoveL: []CommunityID{confiscatory.ID}}
	if _, _, err := engine.Convert(u, req, now, newTxID()); err == nil {
		t.Fatal("fees reducing magnitude to <= 0 should raise FeesExceedValue")
	}
}
