package core

// temporal.go – the temporal engine (C6): lazy, per-unit demurrage/dividend
// accrual driven by clock advance, using the continuous-compounding formula
// m' = m * exp((dividend - demurrage) * dt). The engine's sign is
// per-stratum: demurrage debits a unit and credits the Dividend Pool,
// dividend does the reverse, net of the Dividend Pool's own available
// balance.

import (
	"math"
	"time"
)

// ratesFor returns the annual demurrage and dividend rates for a stratum.
// Each stratum accrues on at most one side: T0 alone demurrs, T2 and T∞
// alone pay dividends, T1 is inert.
func ratesFor(s Stratum) (demurrage, dividend float64) {
	switch s {
	case StratumT0:
		return 0.02, 0
	case StratumT1:
		return 0, 0
	case StratumT2:
		return 0, 0.03
	case StratumTInf:
		return 0, 0.015
	default:
		return 0, 0
	}
}

// TickResult summarizes one clock-advance pass over the unit population.
type TickResult struct {
	Updated        int
	TotalDemurrage float64
	TotalDividend  float64
}

// Tick applies continuous-compounding demurrage/dividend accrual to every
// unit in units as of now, routing the net movement through dividend.
// Units are mutated in place; last_tick_at is advanced to now regardless of
// whether Δt is zero, so repeated ticks at the same instant are idempotent
// no-ops.
func Tick(units []*Unit, dividend *DividendPool, now time.Time) (TickResult, error) {
	var result TickResult

	for _, u := range units {
		if now.Before(u.LastTickAt) {
			return result, newErr(ErrAmount, "clock moved backwards relative to unit's last tick")
		}
		dt := yearsBetween(u.LastTickAt, now)
		if dt == 0 {
			u.LastTickAt = now
			continue
		}

		demurrage, divRate := ratesFor(u.Stratum)
		rate := divRate - demurrage
		if rate == 0 {
			u.LastTickAt = now
			continue
		}

		mPrime := u.Magnitude * math.Exp(rate*dt)
		delta := mPrime - u.Magnitude

		switch {
		case delta > 0:
			paid, err := dividend.Withdraw(delta)
			if err != nil {
				return result, err
			}
			u.Magnitude += paid
			result.TotalDividend += paid
		case delta < 0:
			amount := -delta
			if err := dividend.Deposit(amount); err != nil {
				return result, err
			}
			u.Magnitude -= amount
			result.TotalDemurrage += amount
		}

		u.LastTickAt = now
		result.Updated++
	}

	return result, nil
}
