package core

// dividend_pool.go – the Dividend Pool (C3): a single balance that absorbs
// demurrage and pays dividends, decoupling the temporal engine from the
// Commons Pool's supply counter.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DividendPool holds balance, total_collected, total_distributed,
// total_requested, deposit_count and withdrawal_count.
type DividendPool struct {
	mu sync.Mutex

	balance          float64
	totalCollected   float64
	totalDistributed float64
	totalRequested   float64
	depositCount     uint64
	withdrawalCount  uint64

	logger *logrus.Logger
}

// NewDividendPool constructs an empty Dividend Pool.
func NewDividendPool() *DividendPool {
	return &DividendPool{logger: logrus.StandardLogger()}
}

// Deposit increases the pool balance. Requires a >= 0.
func (d *DividendPool) Deposit(a float64) error {
	if a < 0 {
		return newErr(ErrPositive, "deposit amount must be non-negative")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balance += a
	d.totalCollected += a
	d.depositCount++
	d.logger.Infof("dividend: deposited %.6f; balance now %.6f", a, d.balance)
	return nil
}

// Withdraw disburses min(a, balance) from the pool. Any shortfall is
// recorded in total_requested but not paid. Requires a >= 0.
func (d *DividendPool) Withdraw(a float64) (float64, error) {
	if a < 0 {
		return 0, newErr(ErrPositive, "withdraw amount must be non-negative")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalRequested += a
	disbursed := a
	if disbursed > d.balance {
		disbursed = d.balance
	}
	d.balance -= disbursed
	d.totalDistributed += disbursed
	d.withdrawalCount++
	d.logger.Infof("dividend: withdrew %.6f of %.6f requested; balance now %.6f", disbursed, a, d.balance)
	return disbursed, nil
}

// Balance returns the current pool balance. Invariant:
// balance = total_collected − total_distributed >= 0.
func (d *DividendPool) Balance() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balance
}

// DividendPoolSnapshot is the serializable view of pool state. Absent from
// a v1 snapshot; the loader substitutes zeroes.
type DividendPoolSnapshot struct {
	Balance          float64 `json:"balance"`
	TotalCollected   float64 `json:"total_collected"`
	TotalDistributed float64 `json:"total_distributed"`
	TotalRequested   float64 `json:"total_requested"`
	DepositCount     uint64  `json:"deposit_count"`
	WithdrawalCount  uint64  `json:"withdrawal_count"`
}

// Export returns a point-in-time snapshot of pool state.
func (d *DividendPool) Export() DividendPoolSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DividendPoolSnapshot{
		Balance:          d.balance,
		TotalCollected:   d.totalCollected,
		TotalDistributed: d.totalDistributed,
		TotalRequested:   d.totalRequested,
		DepositCount:     d.depositCount,
		WithdrawalCount:  d.withdrawalCount,
	}
}

// Import restores pool state from a snapshot.
func (d *DividendPool) Import(s DividendPoolSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balance = s.Balance
	d.totalCollected = s.TotalCollected
	d.totalDistributed = s.TotalDistributed
	d.totalRequested = s.TotalRequested
	d.depositCount = s.DepositCount
	d.withdrawalCount = s.WithdrawalCount
}
