package bank

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrZeroAmount indicates an operation was requested with a nil or
	// non-positive amount.
	ErrZeroAmount = errors.New("bank: amount must be positive")
	// ErrNoPriceFeed indicates no oracle feed is registered for the asset.
	ErrNoPriceFeed = errors.New("bank: no price feed registered for asset")
	// ErrOracleCompromised indicates the oracle reported a non-positive price.
	ErrOracleCompromised = errors.New("bank: oracle reported non-positive price")
	// ErrStalePrice indicates the oracle observation exceeded the staleness
	// threshold at the time of use.
	ErrStalePrice = errors.New("bank: oracle observation is stale")
	// ErrSwapFailed indicates the conversion venue reported zero output.
	ErrSwapFailed = errors.New("bank: swap produced zero output")
	// ErrPaused indicates deposits and withdrawals are currently gated off.
	ErrPaused = errors.New("bank: operations are paused")
	// ErrReentrantCall indicates an entry point was invoked while another
	// operation still held the bank guard.
	ErrReentrantCall = errors.New("bank: reentrant call rejected")
	// ErrUnauthorized indicates the caller lacks the role the operation
	// requires.
	ErrUnauthorized = errors.New("bank: caller lacks required role")
)

// InsufficientBalanceError conveys a rejected debit together with the amounts a
// caller needs to diagnose the failure without re-deriving state.
type InsufficientBalanceError struct {
	Owner     Owner
	Asset     AssetID
	Requested *big.Int
	Available *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("bank: insufficient balance: requested %s, available %s", formatBig(e.Requested), formatBig(e.Available))
}

// DepositLimitError conveys an admission rejection: admitting the deposit would
// push the aggregate past the configured cap.
type DepositLimitError struct {
	RequestedTotal *big.Int
	Cap            *big.Int
}

func (e *DepositLimitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("bank: deposit limit reached: requested total %s exceeds cap %s", formatBig(e.RequestedTotal), formatBig(e.Cap))
}

// WithdrawBoundsError conveys a native withdrawal outside the configured
// inclusive [Min, Max] range.
type WithdrawBoundsError struct {
	Requested *big.Int
	Min       *big.Int
	Max       *big.Int
}

func (e *WithdrawBoundsError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("bank: withdrawal %s outside allowed range [%s, %s]", formatBig(e.Requested), formatBig(e.Min), formatBig(e.Max))
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
