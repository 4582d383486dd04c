package core

// clock.go – the ledger's simulated clock. The clock is part of ledger
// state, not wall time: clock.Clock lets the façade seed from wall time in
// production (clock.New()) while tests drive a clock.Mock deterministically
// through scripted Tick/AdvanceTime calls (see commons_pool.go, temporal.go).

import (
	"time"

	"github.com/benbjohnson/clock"
)

// YearLengthMillis is the fixed "year length" constant needed for
// deterministic continuous-compounding accrual: 365 days of 86,400,000 ms.
const YearLengthMillis int64 = 365 * 86400 * 1000

// LockupT1Millis and LockupT2Millis are the T1/T2 lockup windows.
const (
	LockupT1Millis = 365 * 86400 * 1000
	LockupT2Millis = 20 * 365 * 86400 * 1000
)

// NewSimClock returns a mock clock seeded at the given unix-millis instant,
// suitable for both production (seeded once from wall time at startup) and
// tests (advanced deterministically).
func NewSimClock(seedUnixMillis int64) *clock.Mock {
	m := clock.NewMock()
	if seedUnixMillis != 0 {
		m.Set(millisToTime(seedUnixMillis))
	}
	return m
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func timeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// yearsBetween returns the elapsed time between from and to expressed as a
// fraction of YearLengthMillis, the fixed year-length constant accrual uses.
func yearsBetween(from, to time.Time) float64 {
	deltaMs := to.Sub(from).Milliseconds()
	return float64(deltaMs) / float64(YearLengthMillis)
}
