package core

// errors.go – the ledger's error kinds. Every kind is a package-level
// sentinel that callers can compare with errors.Is; LedgerError (built via
// newErr/wrapErr below) is used throughout the package to add context
// without hiding the sentinel.

import "fmt"

var (
	// ErrPositive is returned when an amount that must be strictly positive
	// is zero or negative (e.g. mint).
	ErrPositive = fmt.Errorf("amount must be positive")

	// ErrAmount is returned when a split/transfer amount is out of the
	// required open interval.
	ErrAmount = fmt.Errorf("amount out of range")

	// ErrWalletUnknown is returned when a referenced wallet does not exist.
	ErrWalletUnknown = fmt.Errorf("wallet unknown")

	// ErrCommunityUnknown is returned when a referenced community does not
	// exist.
	ErrCommunityUnknown = fmt.Errorf("community unknown")

	// ErrPurposeUnknown is returned when a referenced purpose channel does
	// not exist.
	ErrPurposeUnknown = fmt.Errorf("purpose unknown")

	// ErrUnitUnknown is returned when a referenced unit does not exist.
	ErrUnitUnknown = fmt.Errorf("unit unknown")

	// ErrLocked is returned when an operation violates temporal lockup.
	ErrLocked = fmt.Errorf("unit is locked")

	// ErrMergeIncompatible is returned when units proposed for a merge do
	// not share stratum, locality set, or purpose set.
	ErrMergeIncompatible = fmt.Errorf("units are not merge-compatible")

	// ErrFeesExceedValue is returned when a conversion's accumulated fees
	// would reduce a unit's magnitude to zero or below.
	ErrFeesExceedValue = fmt.Errorf("fees exceed unit value")

	// ErrUnsupportedVersion is returned when a snapshot's version field is
	// neither 1 nor 2.
	ErrUnsupportedVersion = fmt.Errorf("unsupported snapshot version")

	// ErrUnknownCid is returned when a content address cannot be resolved
	// from the content store.
	ErrUnknownCid = fmt.Errorf("unknown content address")

	// ErrDiverged is returned by sync when the local and remote chains
	// share no common ancestor reachable from the remote head, or share one
	// that is neither head (the chains forked after it).
	ErrDiverged = fmt.Errorf("chains have diverged")

	// ErrIoFailure wraps failures surfaced by the content store or
	// key/value datastore.
	ErrIoFailure = fmt.Errorf("io failure")

	// ErrAlreadyAhead is returned by sync when the local chain is already
	// ahead of the remote head. Equal heads are not an error.
	ErrAlreadyAhead = fmt.Errorf("local chain already ahead")

	// ErrRecipientRestricted is returned when a purpose-coloured unit is
	// transferred to a wallet outside the purpose channel's recipient set.
	ErrRecipientRestricted = fmt.Errorf("wallet is not a valid recipient for the unit's purpose")
)

// LedgerError carries one of the sentinels above plus a human message and,
// optionally, the underlying cause. It satisfies Unwrap so errors.Is still
// matches the sentinel kind after wrapping.
type LedgerError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *LedgerError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is reports whether target is e's sentinel kind, so errors.Is matches the
// kind even when Unwrap yields the underlying cause.
func (e *LedgerError) Is(target error) bool { return target == e.Kind }

func newErr(kind error, msg string) error {
	return &LedgerError{Kind: kind, Msg: msg}
}

func wrapErr(kind error, msg string, err error) error {
	return &LedgerError{Kind: kind, Msg: msg, Err: err}
}
