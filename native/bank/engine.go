package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"vaultbank/core/events"
)

// AssetTransferer is the custody interface consumed for registered tokens.
// TransferIn pulls pre-authorized funds from the caller into the bank;
// TransferOut releases funds back out. Implementations are untrusted and may
// attempt to reenter the bank before returning.
type AssetTransferer interface {
	TransferIn(ctx context.Context, from Owner, asset AssetID, amount *big.Int) error
	TransferOut(ctx context.Context, to Owner, asset AssetID, amount *big.Int) error
	Authorize(ctx context.Context, spender Owner, asset AssetID, amount *big.Int) error
}

// NativeTransferer releases native value-asset to a recipient.
type NativeTransferer interface {
	TransferOut(ctx context.Context, to Owner, amount *big.Int) error
}

// PauseController is the pause capability composed into the engine facade.
type PauseController interface {
	PauseState
	Pause()
	Unpause()
}

// EngineConfig carries the immutable parameters fixed at construction.
type EngineConfig struct {
	Canonical   AssetID
	WithdrawMin *big.Int
	WithdrawMax *big.Int
}

// Engine sequences deposits and withdrawals across the normalizer, admission
// controller and ledger. Every state-mutating entry point checks the pause
// gate, acquires the whole-operation guard and releases it on every exit path.
type Engine struct {
	ledger     *Ledger
	oracle     *OracleAdapter
	admission  *AdmissionController
	normalizer *Normalizer
	tokens     AssetTransferer
	native     NativeTransferer
	roles      AccessControl
	pause      PauseController
	emitter    events.Emitter
	guard      operationGuard

	canonical   AssetID
	withdrawMin *big.Int
	withdrawMax *big.Int
}

// NewEngine wires the orchestrator. The withdrawal bounds apply to native
// withdrawals only and are immutable after construction.
func NewEngine(cfg EngineConfig, ledger *Ledger, oracle *OracleAdapter, admission *AdmissionController, normalizer *Normalizer, tokens AssetTransferer, native NativeTransferer, roles AccessControl, pause PauseController, emitter events.Emitter) (*Engine, error) {
	if ledger == nil || oracle == nil || admission == nil || normalizer == nil {
		return nil, fmt.Errorf("bank: engine requires ledger, oracle, admission and normalizer")
	}
	if cfg.Canonical.IsNative() {
		return nil, fmt.Errorf("bank: canonical asset must be a registered token")
	}
	if cfg.WithdrawMin == nil || cfg.WithdrawMax == nil {
		return nil, fmt.Errorf("bank: native withdrawal bounds required")
	}
	if cfg.WithdrawMin.Sign() <= 0 || cfg.WithdrawMin.Cmp(cfg.WithdrawMax) > 0 {
		return nil, fmt.Errorf("bank: invalid native withdrawal bounds [%s, %s]", cfg.WithdrawMin, cfg.WithdrawMax)
	}
	if roles == nil {
		roles = NewRoleSet()
	}
	if pause == nil {
		pause = &PauseSwitch{}
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{
		ledger:      ledger,
		oracle:      oracle,
		admission:   admission,
		normalizer:  normalizer,
		tokens:      tokens,
		native:      native,
		roles:       roles,
		pause:       pause,
		emitter:     emitter,
		canonical:   cfg.Canonical,
		withdrawMin: new(big.Int).Set(cfg.WithdrawMin),
		withdrawMax: new(big.Int).Set(cfg.WithdrawMax),
	}, nil
}

// DepositNative accepts attached native value, converts it into the canonical
// unit via the venue and credits the caller with the actual amount received.
func (e *Engine) DepositNative(ctx context.Context, caller Owner, amount, minCanonicalOut *big.Int, deadline time.Time) (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("bank: engine not initialised")
	}
	if err := e.guard.enter(); err != nil {
		return nil, err
	}
	defer e.guard.exit()
	if e.pause.IsPaused() {
		return nil, ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	received, err := e.normalizer.Normalize(ctx, NativeAsset, amount, minCanonicalOut, deadline)
	if err != nil {
		return nil, err
	}
	if err := e.commitDeposit(ctx, caller, received); err != nil {
		// The venue already consumed the native value; the canonical proceeds
		// are what must go back.
		return nil, errors.Join(err, e.refund(ctx, caller, e.canonical, received))
	}
	e.emitter.Emit(events.BankSwapped{
		Owner:        caller,
		AssetIn:      NativeAsset,
		AmountIn:     new(big.Int).Set(amount),
		CanonicalOut: new(big.Int).Set(received),
	})
	return received, nil
}

// DepositToken pulls the pre-authorized asset from the caller into custody,
// normalizes it into the canonical unit when necessary and credits the caller
// with the actual amount received. Any failure returns the pulled custody to
// the caller as part of the same aborted operation.
func (e *Engine) DepositToken(ctx context.Context, caller Owner, asset AssetID, amount, minCanonicalOut *big.Int, deadline time.Time) error {
	if e == nil {
		return fmt.Errorf("bank: engine not initialised")
	}
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()
	if e.pause.IsPaused() {
		return ErrPaused
	}
	if asset.IsNative() {
		return fmt.Errorf("bank: native deposits must use the native entry point")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if e.tokens == nil {
		return fmt.Errorf("bank: asset transferer not configured")
	}
	if asset == e.canonical {
		if err := e.tokens.TransferIn(ctx, caller, asset, amount); err != nil {
			return fmt.Errorf("bank: pull deposit custody: %w", err)
		}
		if err := e.commitDeposit(ctx, caller, amount); err != nil {
			return errors.Join(err, e.refund(ctx, caller, asset, amount))
		}
		return nil
	}
	// Preflight against the estimate first so a conversion that can never be
	// admitted aborts before any custody changes hands.
	if _, err := e.normalizer.Preflight(ctx, asset, amount); err != nil {
		return err
	}
	if err := e.tokens.TransferIn(ctx, caller, asset, amount); err != nil {
		return fmt.Errorf("bank: pull deposit custody: %w", err)
	}
	received, err := e.normalizer.Execute(ctx, asset, amount, minCanonicalOut, deadline)
	if err != nil {
		return errors.Join(err, e.refund(ctx, caller, asset, amount))
	}
	if err := e.commitDeposit(ctx, caller, received); err != nil {
		// The venue already consumed the original asset; the canonical
		// proceeds are what must go back.
		return errors.Join(err, e.refund(ctx, caller, e.canonical, received))
	}
	e.emitter.Emit(events.BankSwapped{
		Owner:        caller,
		AssetIn:      asset,
		AmountIn:     new(big.Int).Set(amount),
		CanonicalOut: new(big.Int).Set(received),
	})
	return nil
}

// WithdrawNative debits the caller's native balance and releases the value
// externally. The amount must lie within the configured inclusive bounds. A
// failed transfer rolls the debit back atomically.
func (e *Engine) WithdrawNative(ctx context.Context, caller Owner, amount *big.Int) error {
	if e == nil {
		return fmt.Errorf("bank: engine not initialised")
	}
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()
	if e.pause.IsPaused() {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if amount.Cmp(e.withdrawMin) < 0 || amount.Cmp(e.withdrawMax) > 0 {
		return &WithdrawBoundsError{
			Requested: new(big.Int).Set(amount),
			Min:       new(big.Int).Set(e.withdrawMin),
			Max:       new(big.Int).Set(e.withdrawMax),
		}
	}
	if e.native == nil {
		return fmt.Errorf("bank: native transferer not configured")
	}
	receipt, err := e.ledger.Debit(caller, NativeAsset, amount)
	if err != nil {
		return err
	}
	if err := e.native.TransferOut(ctx, caller, amount); err != nil {
		if rollbackErr := e.ledger.Rollback(receipt); rollbackErr != nil {
			return errors.Join(fmt.Errorf("bank: native transfer failed: %w", err), rollbackErr)
		}
		return fmt.Errorf("bank: native transfer failed: %w", err)
	}
	e.ledger.FinalizeDebit(receipt)
	return nil
}

// WithdrawToken debits the caller's balance for the asset and releases the
// tokens externally. Token withdrawals carry no amount-range restriction. A
// failed transfer rolls the debit back atomically.
func (e *Engine) WithdrawToken(ctx context.Context, caller Owner, asset AssetID, amount *big.Int) error {
	if e == nil {
		return fmt.Errorf("bank: engine not initialised")
	}
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()
	if e.pause.IsPaused() {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if e.tokens == nil {
		return fmt.Errorf("bank: asset transferer not configured")
	}
	receipt, err := e.ledger.Debit(caller, asset, amount)
	if err != nil {
		return err
	}
	if err := e.tokens.TransferOut(ctx, caller, asset, amount); err != nil {
		if rollbackErr := e.ledger.Rollback(receipt); rollbackErr != nil {
			return errors.Join(fmt.Errorf("bank: token transfer failed: %w", err), rollbackErr)
		}
		return fmt.Errorf("bank: token transfer failed: %w", err)
	}
	e.ledger.FinalizeDebit(receipt)
	return nil
}

// SetPriceFeed registers the oracle feed for an asset. Admin role required.
func (e *Engine) SetPriceFeed(caller Owner, asset AssetID, feed OracleFeed) error {
	if e == nil {
		return fmt.Errorf("bank: engine not initialised")
	}
	if !e.roles.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	return e.oracle.SetFeed(asset, feed)
}

// SetBankCap replaces the aggregate cap. Admin role required; emits a
// cap-changed event with the old and new values.
func (e *Engine) SetBankCap(caller Owner, newCap *big.Int) error {
	if e == nil {
		return fmt.Errorf("bank: engine not initialised")
	}
	if !e.roles.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()
	return e.ledger.SetCap(newCap)
}

// Pause gates all deposit and withdrawal entry points. Pauser role required.
func (e *Engine) Pause(caller Owner) error {
	if e == nil {
		return fmt.Errorf("bank: engine not initialised")
	}
	if !e.roles.HasRole(RolePauser, caller) {
		return ErrUnauthorized
	}
	e.pause.Pause()
	return nil
}

// Unpause re-enables deposit and withdrawal entry points. Pauser role required.
func (e *Engine) Unpause(caller Owner) error {
	if e == nil {
		return fmt.Errorf("bank: engine not initialised")
	}
	if !e.roles.HasRole(RolePauser, caller) {
		return ErrUnauthorized
	}
	e.pause.Unpause()
	return nil
}

// GetBalance returns the current balance for the owner/asset pair.
func (e *Engine) GetBalance(owner Owner, asset AssetID) (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("bank: engine not initialised")
	}
	return e.ledger.BalanceOf(owner, asset)
}

// GetTokenPriceUSD returns the validated oracle quote for the asset.
func (e *Engine) GetTokenPriceUSD(asset AssetID) (PriceQuote, error) {
	if e == nil {
		return PriceQuote{}, fmt.Errorf("bank: engine not initialised")
	}
	return e.oracle.Quote(asset)
}

// GetValueInUSD returns the canonical-unit valuation of the asset amount.
func (e *Engine) GetValueInUSD(asset AssetID, amount *big.Int) (Valuation, error) {
	if e == nil {
		return Valuation{}, fmt.Errorf("bank: engine not initialised")
	}
	return e.oracle.ValueOf(asset, amount)
}

// GetTotalBankValueUSD returns the current aggregate approximation.
func (e *Engine) GetTotalBankValueUSD() (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("bank: engine not initialised")
	}
	state, err := e.ledger.State()
	if err != nil {
		return nil, err
	}
	return state.TotalValue, nil
}

// State exposes the bank aggregate record for read-only surfaces.
func (e *Engine) State() (*BankState, error) {
	if e == nil {
		return nil, fmt.Errorf("bank: engine not initialised")
	}
	return e.ledger.State()
}

// commitDeposit re-validates admission against the actual received amount and
// credits the canonical balance.
func (e *Engine) commitDeposit(_ context.Context, caller Owner, received *big.Int) error {
	if err := e.admission.CheckAdmission(received); err != nil {
		return err
	}
	return e.ledger.Credit(caller, e.canonical, received)
}

func (e *Engine) refund(ctx context.Context, caller Owner, asset AssetID, amount *big.Int) error {
	if e.tokens == nil {
		return fmt.Errorf("bank: asset transferer not configured")
	}
	if err := e.tokens.TransferOut(ctx, caller, asset, amount); err != nil {
		return fmt.Errorf("bank: refund custody: %w", err)
	}
	return nil
}
