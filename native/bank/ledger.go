package bank

import (
	"fmt"
	"math/big"

	"vaultbank/core/events"
)

// Storage abstracts the subset of state manager functionality required by the
// balance ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger owns the per-owner, per-asset balance table and the bank-wide
// aggregate record. All mutations go through Credit and Debit; no other
// component writes these keys.
type Ledger struct {
	store     Storage
	oracle    *OracleAdapter
	canonical AssetID
	emitter   events.Emitter
}

// NewLedger constructs a ledger bound to the provided storage backend and
// oracle adapter. A nil emitter discards events.
func NewLedger(store Storage, oracle *OracleAdapter, canonical AssetID, emitter events.Emitter) *Ledger {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{store: store, oracle: oracle, canonical: canonical, emitter: emitter}
}

// DebitReceipt captures the exact prior state touched by a debit so the whole
// operation can be rolled back when a downstream external transfer fails.
type DebitReceipt struct {
	owner        Owner
	asset        AssetID
	amount       *big.Int
	priorBalance storedBalance
	priorState   storedBankState
	hadBalance   bool
	hadState     bool
}

// BalanceOf returns the current balance for the owner/asset pair; absent
// entries read as zero.
func (l *Ledger) BalanceOf(owner Owner, asset AssetID) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("bank: ledger not initialised")
	}
	var stored storedBalance
	ok, err := l.store.KVGet(balanceKey(owner, asset), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return ParseAmount(stored.Amount)
}

// State returns a copy of the bank aggregate record. A bank that has never
// been written starts with zero totals and a zero cap, and a zero cap rejects
// every priced deposit, so SetCap must run before the bank admits anything.
func (l *Ledger) State() (*BankState, error) {
	if l == nil {
		return nil, fmt.Errorf("bank: ledger not initialised")
	}
	stored, _, err := l.loadState()
	if err != nil {
		return nil, err
	}
	return storedToBankState(stored)
}

// SetCap replaces the aggregate cap and emits a cap-changed event carrying the
// previous and new values.
func (l *Ledger) SetCap(newCap *big.Int) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not initialised")
	}
	if newCap == nil || newCap.Sign() < 0 {
		return fmt.Errorf("bank: cap must be non-negative")
	}
	stored, _, err := l.loadState()
	if err != nil {
		return err
	}
	oldCap, err := ParseAmount(stored.Cap)
	if err != nil {
		return err
	}
	stored.Cap = newCap.String()
	if err := l.store.KVPut(bankStateKey, stored); err != nil {
		return err
	}
	l.emitter.Emit(events.BankCapUpdated{OldCap: oldCap, NewCap: new(big.Int).Set(newCap)})
	return nil
}

// Credit increases the owner's balance for the asset, increments the deposit
// counter and adds the asset's canonical-unit value to the aggregate total.
// Assets without a registered feed contribute zero to the total (documented
// approximation); the balance itself is always credited in full. Emits a
// deposit event on success.
func (l *Ledger) Credit(owner Owner, asset AssetID, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	valuation, err := l.oracle.ValueOf(asset, amount)
	if err != nil {
		return err
	}
	balance, err := l.BalanceOf(owner, asset)
	if err != nil {
		return err
	}
	stored, _, err := l.loadState()
	if err != nil {
		return err
	}
	total, err := ParseAmount(stored.TotalValue)
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(balance, amount)
	if err := l.store.KVPut(balanceKey(owner, asset), storedBalance{Amount: updated.String()}); err != nil {
		return err
	}
	stored.DepositCount++
	stored.TotalValue = new(big.Int).Add(total, valuation.Value).String()
	if err := l.store.KVPut(bankStateKey, stored); err != nil {
		return err
	}
	l.emitter.Emit(events.BankDeposit{Owner: owner, Asset: asset, Amount: new(big.Int).Set(amount)})
	return nil
}

// Debit decreases the owner's balance for the asset, increments the withdrawal
// counter and subtracts the asset's canonical-unit value from the aggregate
// total, clamping at zero to absorb valuation drift. A debit that would
// underflow the balance fails with an insufficient-balance error and leaves
// all state unchanged.
//
// The withdrawal event is deliberately not emitted here: the orchestrator
// finalises the debit only after the external transfer succeeds, so an aborted
// operation emits nothing.
func (l *Ledger) Debit(owner Owner, asset AssetID, amount *big.Int) (*DebitReceipt, error) {
	if l == nil {
		return nil, fmt.Errorf("bank: ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	var priorBalance storedBalance
	hadBalance, err := l.store.KVGet(balanceKey(owner, asset), &priorBalance)
	if err != nil {
		return nil, err
	}
	balance := big.NewInt(0)
	if hadBalance {
		balance, err = ParseAmount(priorBalance.Amount)
		if err != nil {
			return nil, err
		}
	}
	if balance.Cmp(amount) < 0 {
		return nil, &InsufficientBalanceError{
			Owner:     owner,
			Asset:     asset,
			Requested: new(big.Int).Set(amount),
			Available: balance,
		}
	}
	valuation, err := l.oracle.ValueOf(asset, amount)
	if err != nil {
		return nil, err
	}
	stored, hadState, err := l.loadState()
	if err != nil {
		return nil, err
	}
	total, err := ParseAmount(stored.TotalValue)
	if err != nil {
		return nil, err
	}
	receipt := &DebitReceipt{
		owner:        owner,
		asset:        asset,
		amount:       new(big.Int).Set(amount),
		priorBalance: priorBalance,
		priorState:   stored,
		hadBalance:   hadBalance,
		hadState:     hadState,
	}
	updated := new(big.Int).Sub(balance, amount)
	if err := l.store.KVPut(balanceKey(owner, asset), storedBalance{Amount: updated.String()}); err != nil {
		return nil, err
	}
	next := stored
	next.WithdrawalCount++
	remaining := new(big.Int).Sub(total, valuation.Value)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	next.TotalValue = remaining.String()
	if err := l.store.KVPut(bankStateKey, next); err != nil {
		return nil, err
	}
	return receipt, nil
}

// FinalizeDebit emits the withdrawal event once the external transfer for the
// debited amount has completed.
func (l *Ledger) FinalizeDebit(receipt *DebitReceipt) {
	if l == nil || receipt == nil {
		return
	}
	l.emitter.Emit(events.BankWithdraw{Owner: receipt.owner, Asset: receipt.asset, Amount: new(big.Int).Set(receipt.amount)})
}

// Rollback restores the balance entry and the aggregate record exactly as they
// were before the debit described by the receipt.
func (l *Ledger) Rollback(receipt *DebitReceipt) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not initialised")
	}
	if receipt == nil {
		return fmt.Errorf("bank: debit receipt required")
	}
	if err := l.store.KVPut(balanceKey(receipt.owner, receipt.asset), receipt.priorBalance); err != nil {
		return err
	}
	return l.store.KVPut(bankStateKey, receipt.priorState)
}

func (l *Ledger) loadState() (storedBankState, bool, error) {
	var stored storedBankState
	ok, err := l.store.KVGet(bankStateKey, &stored)
	if err != nil {
		return storedBankState{}, false, err
	}
	if !ok {
		stored = storedBankState{TotalValue: "0", Cap: "0"}
	}
	return stored, ok, nil
}

func storedToBankState(stored storedBankState) (*BankState, error) {
	total, err := ParseAmount(stored.TotalValue)
	if err != nil {
		return nil, fmt.Errorf("bank: stored total: %w", err)
	}
	capLimit, err := ParseAmount(stored.Cap)
	if err != nil {
		return nil, fmt.Errorf("bank: stored cap: %w", err)
	}
	return &BankState{
		TotalValue:      total,
		Cap:             capLimit,
		DepositCount:    stored.DepositCount,
		WithdrawalCount: stored.WithdrawalCount,
	}, nil
}
