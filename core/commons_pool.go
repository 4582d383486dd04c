package core

// commons_pool.go – the Commons Pool (C2): the single authoritative counter
// of minted and burned amounts, holding the simulated clock. The Commons
// Pool has no supply cap — minting is caller-authorized — and owns the
// simulated clock instead of delegating to one.

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CommonsPool is the authoritative mint/burn ledger and simulated clock.
type CommonsPool struct {
	mu sync.Mutex

	totalMinted   float64
	totalBurned   float64
	currentSupply float64

	clock clock.Clock

	logger *logrus.Logger
}

// NewCommonsPool wires a CommonsPool against the given clock. A nil clock
// defaults to a mock seeded at the Unix epoch — the clock is part of
// ledger state, not wall time.
func NewCommonsPool(clk clock.Clock) *CommonsPool {
	if clk == nil {
		clk = clock.NewMock()
	}
	return &CommonsPool{clock: clk, logger: logrus.StandardLogger()}
}

// CommonsPoolSnapshot is the serializable view of pool state.
type CommonsPoolSnapshot struct {
	TotalMinted   float64 `json:"total_minted"`
	TotalBurned   float64 `json:"total_burned"`
	CurrentSupply float64 `json:"current_supply"`
	CurrentTime   int64   `json:"current_time"`
}

// Export returns a point-in-time snapshot of pool state.
func (c *CommonsPool) Export() CommonsPoolSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CommonsPoolSnapshot{
		TotalMinted:   c.totalMinted,
		TotalBurned:   c.totalBurned,
		CurrentSupply: c.currentSupply,
		CurrentTime:   timeToMillis(c.clock.Now()),
	}
}

// Import restores pool state (and the clock) from a snapshot.
func (c *CommonsPool) Import(s CommonsPoolSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalMinted = s.TotalMinted
	c.totalBurned = s.TotalBurned
	c.currentSupply = s.CurrentSupply
	if m, ok := c.clock.(*clock.Mock); ok {
		m.Set(millisToTime(s.CurrentTime))
	}
}

// Mint originates a fresh T0 unit with empty locality/purpose sets.
// It fails with ErrPositive when amount <= 0, and refuses to overflow the
// mint counter to +Inf (mint(1e300) succeeds, but minting beyond float64
// range does not).
func (c *CommonsPool) Mint(amount float64, wallet WalletID, note string, txID TransactionID) (*Unit, error) {
	if !(amount > 0) {
		return nil, newErr(ErrPositive, "mint amount must be positive")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, newErr(ErrPositive, "mint amount must be finite")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	newTotal := c.totalMinted + amount
	if math.IsInf(newTotal, 0) {
		return nil, newErr(ErrPositive, "mint would overflow total supply")
	}

	now := c.clock.Now()
	u, err := CreateUnit(amount, StratumT0, nil, nil, wallet, ProvenanceMinted, nil, note, txID, now)
	if err != nil {
		return nil, err
	}

	c.totalMinted = newTotal
	c.currentSupply += amount
	c.logger.Infof("commons: minted %.6f to wallet %s (unit %s); supply now %.6f", amount, wallet, u.ID, c.currentSupply)
	return u, nil
}

// Burn removes a unit from circulation: total_burned and the supply
// decrease by the unit's magnitude.
func (c *CommonsPool) Burn(u *Unit, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalBurned += u.Magnitude
	c.currentSupply -= u.Magnitude
	c.logger.Infof("commons: burned %.6f (unit %s); supply now %.6f", u.Magnitude, u.ID, c.currentSupply)
	return nil
}

// CollectFee returns a reduced clone of u with magnitude (u.m - f) and
// records f as burned — a supply sink. The caller (the conversion engine,
// via the façade) decides whether to route an equal credit to the Dividend
// Pool.
func (c *CommonsPool) CollectFee(u *Unit, f float64) (*Unit, error) {
	if !(f > 0 && f < u.Magnitude) {
		return nil, newErr(ErrAmount, "fee must satisfy 0 < f < magnitude")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	reduced := u.clone()
	reduced.Magnitude = u.Magnitude - f

	c.totalBurned += f
	c.currentSupply -= f
	c.logger.Infof("commons: collected fee %.6f from unit %s", f, u.ID)
	return reduced, nil
}

// AdvanceTime moves the simulated clock forward by delta. It requires the
// pool's clock to be a *clock.Mock (the production deployment seeds once
// from wall time and never calls AdvanceTime).
func (c *CommonsPool) AdvanceTime(delta time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.clock.(*clock.Mock)
	if !ok {
		return newErr(ErrIoFailure, "clock is not a simulated mock")
	}
	m.Add(delta)
	return nil
}

// SetTime pins the simulated clock to an absolute instant.
func (c *CommonsPool) SetTime(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.clock.(*clock.Mock)
	if !ok {
		return newErr(ErrIoFailure, "clock is not a simulated mock")
	}
	m.Set(t)
	return nil
}

// GetTime returns the pool's current simulated time.
func (c *CommonsPool) GetTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Now()
}

// CurrentSupply returns current_supply = total_minted − total_burned.
func (c *CommonsPool) CurrentSupply() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSupply
}

func newTxID() TransactionID { return TransactionID(uuid.NewString()) }
