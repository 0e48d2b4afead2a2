package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"vaultbank/core/events"
	"vaultbank/state"
	"vaultbank/storage"
)

type transferRecord struct {
	owner  Owner
	asset  AssetID
	amount *big.Int
}

type tokenStub struct {
	in      []transferRecord
	out     []transferRecord
	failIn  bool
	failOut bool
}

func (s *tokenStub) TransferIn(_ context.Context, from Owner, asset AssetID, amount *big.Int) error {
	if s.failIn {
		return errors.New("transfer in refused")
	}
	s.in = append(s.in, transferRecord{owner: from, asset: asset, amount: new(big.Int).Set(amount)})
	return nil
}

func (s *tokenStub) TransferOut(_ context.Context, to Owner, asset AssetID, amount *big.Int) error {
	if s.failOut {
		return errors.New("transfer out refused")
	}
	s.out = append(s.out, transferRecord{owner: to, asset: asset, amount: new(big.Int).Set(amount)})
	return nil
}

func (s *tokenStub) Authorize(context.Context, Owner, AssetID, *big.Int) error { return nil }

type nativeStub struct {
	out  []transferRecord
	fail bool
	hook func() error
}

func (s *nativeStub) TransferOut(_ context.Context, to Owner, amount *big.Int) error {
	if s.hook != nil {
		if err := s.hook(); err != nil {
			return err
		}
	}
	if s.fail {
		return errors.New("native transfer refused")
	}
	s.out = append(s.out, transferRecord{owner: to, amount: new(big.Int).Set(amount)})
	return nil
}

type bankFixture struct {
	engine  *Engine
	ledger  *Ledger
	oracle  *OracleAdapter
	venue   *venueStub
	tokens  *tokenStub
	native  *nativeStub
	emitter *captureEmitter
	admin   Owner
}

// newTestBank wires a full engine over an in-memory store with a 1:1 venue,
// cap capLimit and native withdrawal bounds [10, 1000].
func newTestBank(t *testing.T, capLimit int64) *bankFixture {
	t.Helper()
	canonical := testAsset(1)
	oracle := NewOracleAdapter(canonical)
	emitter := &captureEmitter{}
	ledger := NewLedger(state.NewManager(storage.NewMemDB()), oracle, canonical, emitter)
	if err := ledger.SetCap(big.NewInt(capLimit)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	admission := NewAdmissionController(ledger)
	venue := &venueStub{
		estimate: func(_ AssetID, amountIn *big.Int) (*big.Int, error) {
			return new(big.Int).Set(amountIn), nil
		},
		swapToken: func(_ AssetID, amountIn, _ *big.Int, _ time.Time) (*big.Int, error) {
			return new(big.Int).Set(amountIn), nil
		},
		swapNative: func(amountIn, _ *big.Int, _ time.Time) (*big.Int, error) {
			return new(big.Int).Set(amountIn), nil
		},
	}
	tokens := &tokenStub{}
	native := &nativeStub{}
	roles := NewRoleSet()
	admin := testOwner(1)
	roles.Grant(RoleAdmin, admin)
	roles.Grant(RolePauser, admin)
	engine, err := NewEngine(EngineConfig{
		Canonical:   canonical,
		WithdrawMin: big.NewInt(10),
		WithdrawMax: big.NewInt(1000),
	}, ledger, oracle, admission, NewNormalizer(venue, admission, canonical), tokens, native, roles, &PauseSwitch{}, emitter)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &bankFixture{
		engine:  engine,
		ledger:  ledger,
		oracle:  oracle,
		venue:   venue,
		tokens:  tokens,
		native:  native,
		emitter: emitter,
		admin:   admin,
	}
}

func (f *bankFixture) mustBalance(t *testing.T, owner Owner, asset AssetID) *big.Int {
	t.Helper()
	balance, err := f.ledger.BalanceOf(owner, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (f *bankFixture) mustState(t *testing.T) *BankState {
	t.Helper()
	bankState, err := f.ledger.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return bankState
}

func TestDepositCanonicalTokenCredits(t *testing.T) {
	f := newTestBank(t, 10)
	caller := testOwner(7)
	if err := f.engine.DepositToken(context.Background(), caller, testAsset(1), big.NewInt(1), nil, time.Time{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := f.mustBalance(t, caller, testAsset(1)); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected balance 1, got %s", got)
	}
	if f.venue.estimateCalls != 0 || f.venue.swapCalls != 0 {
		t.Fatalf("canonical deposit must not touch the venue")
	}
	if len(f.tokens.in) != 1 {
		t.Fatalf("expected one custody pull, got %d", len(f.tokens.in))
	}
	if got := f.emitter.ofType(events.TypeBankSwapped); len(got) != 0 {
		t.Fatalf("canonical deposit must not emit a conversion event")
	}
}

func TestDepositTokenProvisionalRejectionLeavesCustodyUntouched(t *testing.T) {
	f := newTestBank(t, 5)
	f.venue.estimate = func(AssetID, *big.Int) (*big.Int, error) { return big.NewInt(6), nil }
	err := f.engine.DepositToken(context.Background(), testOwner(7), testAsset(2), big.NewInt(3), nil, time.Now().Add(time.Minute))
	var limit *DepositLimitError
	if !errors.As(err, &limit) {
		t.Fatalf("expected DepositLimitError, got %v", err)
	}
	if len(f.tokens.in) != 0 || len(f.tokens.out) != 0 {
		t.Fatalf("no custody transfer may occur before admission")
	}
	if f.venue.swapCalls != 0 {
		t.Fatalf("swap must not run after provisional rejection")
	}
	if f.mustState(t).DepositCount != 0 {
		t.Fatalf("deposit count must stay zero")
	}
}

func TestDepositTokenSwapFailureRefundsCustody(t *testing.T) {
	f := newTestBank(t, 100)
	f.venue.swapToken = func(AssetID, *big.Int, *big.Int, time.Time) (*big.Int, error) {
		return big.NewInt(0), nil
	}
	caller := testOwner(7)
	token := testAsset(2)
	err := f.engine.DepositToken(context.Background(), caller, token, big.NewInt(40), nil, time.Now().Add(time.Minute))
	if !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed, got %v", err)
	}
	if len(f.tokens.out) != 1 || f.tokens.out[0].asset != token || f.tokens.out[0].amount.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("custody must be refunded in the original asset: %+v", f.tokens.out)
	}
	if got := f.mustBalance(t, caller, testAsset(1)); got.Sign() != 0 {
		t.Fatalf("failed deposit must not credit, got %s", got)
	}
	if f.mustState(t).DepositCount != 0 {
		t.Fatalf("deposit count must stay zero after rollback")
	}
}

func TestDepositTokenCreditsActualOutput(t *testing.T) {
	f := newTestBank(t, 100)
	f.venue.estimate = func(AssetID, *big.Int) (*big.Int, error) { return big.NewInt(10), nil }
	f.venue.swapToken = func(AssetID, *big.Int, *big.Int, time.Time) (*big.Int, error) { return big.NewInt(9), nil }
	caller := testOwner(7)
	if err := f.engine.DepositToken(context.Background(), caller, testAsset(2), big.NewInt(2), big.NewInt(8), time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := f.mustBalance(t, caller, testAsset(1)); got.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("credit must use the actual venue output, got %s", got)
	}
	swapped := f.emitter.ofType(events.TypeBankSwapped)
	if len(swapped) != 1 {
		t.Fatalf("expected one conversion event, got %d", len(swapped))
	}
	if got := swapped[0].Attributes()["canonicalOut"]; got != "9" {
		t.Fatalf("unexpected conversion attribute %q", got)
	}
}

func TestDepositTokenIgnoresStaleFeed(t *testing.T) {
	f := newTestBank(t, 100)
	token := testAsset(2)
	now := time.Now().UTC()
	f.oracle.SetClock(func() time.Time { return now })
	if err := f.oracle.SetFeed(token, NewManualFeed(big.NewInt(100), 8, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	// Valuation comes from the venue, not the oracle, so a stale feed must not
	// block the deposit.
	if err := f.engine.DepositToken(context.Background(), testOwner(7), token, big.NewInt(5), nil, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("deposit with stale feed must still succeed: %v", err)
	}
}

func TestDepositNativeReturnsReceived(t *testing.T) {
	f := newTestBank(t, 100)
	f.venue.estimate = func(AssetID, *big.Int) (*big.Int, error) { return big.NewInt(30), nil }
	f.venue.swapNative = func(*big.Int, *big.Int, time.Time) (*big.Int, error) { return big.NewInt(29), nil }
	caller := testOwner(7)
	received, err := f.engine.DepositNative(context.Background(), caller, big.NewInt(10), big.NewInt(25), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("deposit native: %v", err)
	}
	if received.Cmp(big.NewInt(29)) != 0 {
		t.Fatalf("expected received 29, got %s", received)
	}
	if got := f.mustBalance(t, caller, testAsset(1)); got.Cmp(big.NewInt(29)) != 0 {
		t.Fatalf("expected canonical balance 29, got %s", got)
	}
	swapped := f.emitter.ofType(events.TypeBankSwapped)
	if len(swapped) != 1 {
		t.Fatalf("expected one conversion event, got %d", len(swapped))
	}
}

func TestDepositNativeActualOverCapRefundsProceeds(t *testing.T) {
	f := newTestBank(t, 10)
	// The estimate clears the cap but the actual output does not; the venue has
	// already consumed the native value, so the canonical proceeds go back.
	f.venue.estimate = func(AssetID, *big.Int) (*big.Int, error) { return big.NewInt(5), nil }
	f.venue.swapNative = func(*big.Int, *big.Int, time.Time) (*big.Int, error) { return big.NewInt(11), nil }
	caller := testOwner(7)
	_, err := f.engine.DepositNative(context.Background(), caller, big.NewInt(5), nil, time.Now().Add(time.Minute))
	var limit *DepositLimitError
	if !errors.As(err, &limit) {
		t.Fatalf("expected DepositLimitError, got %v", err)
	}
	if len(f.tokens.out) != 1 || f.tokens.out[0].asset != testAsset(1) || f.tokens.out[0].amount.Cmp(big.NewInt(11)) != 0 {
		t.Fatalf("canonical proceeds must be refunded: %+v", f.tokens.out)
	}
	if got := f.mustBalance(t, caller, testAsset(1)); got.Sign() != 0 {
		t.Fatalf("failed deposit must not credit, got %s", got)
	}
	if f.mustState(t).DepositCount != 0 {
		t.Fatalf("deposit count must stay zero after abort")
	}
}

func TestDepositNativeZeroAmount(t *testing.T) {
	f := newTestBank(t, 100)
	if _, err := f.engine.DepositNative(context.Background(), testOwner(7), big.NewInt(0), nil, time.Time{}); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestWithdrawNativeBounds(t *testing.T) {
	f := newTestBank(t, 1_000_000)
	caller := testOwner(7)
	if err := f.ledger.Credit(caller, NativeAsset, big.NewInt(5000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := f.engine.WithdrawNative(context.Background(), caller, big.NewInt(10)); err != nil {
		t.Fatalf("withdrawal exactly at the minimum must succeed: %v", err)
	}
	if err := f.engine.WithdrawNative(context.Background(), caller, big.NewInt(1000)); err != nil {
		t.Fatalf("withdrawal exactly at the maximum must succeed: %v", err)
	}
	var bounds *WithdrawBoundsError
	if err := f.engine.WithdrawNative(context.Background(), caller, big.NewInt(9)); !errors.As(err, &bounds) {
		t.Fatalf("expected WithdrawBoundsError below minimum, got %v", err)
	}
	if err := f.engine.WithdrawNative(context.Background(), caller, big.NewInt(1001)); !errors.As(err, &bounds) {
		t.Fatalf("expected WithdrawBoundsError above maximum, got %v", err)
	}
	if bounds.Min.Cmp(big.NewInt(10)) != 0 || bounds.Max.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected bounds detail: %+v", bounds)
	}
}

func TestWithdrawNativeTransferFailureRollsBack(t *testing.T) {
	f := newTestBank(t, 1_000_000)
	caller := testOwner(7)
	if err := f.ledger.Credit(caller, NativeAsset, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	before := f.mustState(t)
	f.native.fail = true
	if err := f.engine.WithdrawNative(context.Background(), caller, big.NewInt(100)); err == nil {
		t.Fatalf("expected transfer failure to surface")
	}
	if got := f.mustBalance(t, caller, NativeAsset); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("failed withdrawal must restore the balance, got %s", got)
	}
	after := f.mustState(t)
	if after.WithdrawalCount != before.WithdrawalCount {
		t.Fatalf("withdrawal count must be rolled back: before=%d after=%d", before.WithdrawalCount, after.WithdrawalCount)
	}
	if got := f.emitter.ofType(events.TypeBankWithdraw); len(got) != 0 {
		t.Fatalf("no withdrawal event may survive a rollback, got %d", len(got))
	}
}

func TestWithdrawTokenInsufficientBalance(t *testing.T) {
	f := newTestBank(t, 100)
	caller := testOwner(7)
	if err := f.ledger.Credit(caller, testAsset(1), big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := f.engine.WithdrawToken(context.Background(), caller, testAsset(1), big.NewInt(10))
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if len(f.tokens.out) != 0 {
		t.Fatalf("no custody release may happen on a failed debit")
	}
}

func TestWithdrawTokenHasNoBounds(t *testing.T) {
	f := newTestBank(t, 100)
	caller := testOwner(7)
	if err := f.ledger.Credit(caller, testAsset(1), big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	// 1 is below the native minimum of 10; token withdrawals are unrestricted.
	if err := f.engine.WithdrawToken(context.Background(), caller, testAsset(1), big.NewInt(1)); err != nil {
		t.Fatalf("token withdrawal below the native minimum must succeed: %v", err)
	}
	if got := f.emitter.ofType(events.TypeBankWithdraw); len(got) != 1 {
		t.Fatalf("expected one withdrawal event, got %d", len(got))
	}
}

func TestReentrantDepositRejected(t *testing.T) {
	f := newTestBank(t, 1000)
	caller := testOwner(7)
	token := testAsset(2)
	var inner error
	f.venue.swapToken = func(AssetID, *big.Int, *big.Int, time.Time) (*big.Int, error) {
		inner = f.engine.DepositToken(context.Background(), caller, token, big.NewInt(1), nil, time.Time{})
		return nil, inner
	}
	err := f.engine.DepositToken(context.Background(), caller, token, big.NewInt(50), nil, time.Now().Add(time.Minute))
	if !errors.Is(inner, ErrReentrantCall) {
		t.Fatalf("nested call must be rejected, got %v", inner)
	}
	if !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("outer operation must fail, got %v", err)
	}
	if got := f.mustBalance(t, caller, testAsset(1)); got.Sign() != 0 {
		t.Fatalf("no credit may survive a reentrant attempt, got %s", got)
	}
	if len(f.tokens.out) != 1 || f.tokens.out[0].amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("pulled custody must be refunded: %+v", f.tokens.out)
	}
	if f.mustState(t).DepositCount != 0 {
		t.Fatalf("deposit count must stay zero")
	}
}

func TestReentrantWithdrawalRejected(t *testing.T) {
	f := newTestBank(t, 1_000_000)
	caller := testOwner(7)
	if err := f.ledger.Credit(caller, NativeAsset, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	var inner error
	f.native.hook = func() error {
		inner = f.engine.WithdrawNative(context.Background(), caller, big.NewInt(100))
		return inner
	}
	err := f.engine.WithdrawNative(context.Background(), caller, big.NewInt(100))
	if !errors.Is(inner, ErrReentrantCall) {
		t.Fatalf("nested withdrawal must be rejected, got %v", inner)
	}
	if err == nil {
		t.Fatalf("outer withdrawal must fail when its transfer reenters")
	}
	if got := f.mustBalance(t, caller, NativeAsset); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("debit must be rolled back, got %s", got)
	}
	if f.mustState(t).WithdrawalCount != 0 {
		t.Fatalf("withdrawal count must stay zero after rollback")
	}
	if got := f.emitter.ofType(events.TypeBankWithdraw); len(got) != 0 {
		t.Fatalf("no withdrawal event may survive the abort, got %d", len(got))
	}
}

func TestPauseGatesEntryPoints(t *testing.T) {
	f := newTestBank(t, 100)
	caller := testOwner(7)
	if err := f.engine.Pause(caller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("pause without the role must fail, got %v", err)
	}
	if err := f.engine.Pause(f.admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := f.engine.DepositToken(context.Background(), caller, testAsset(1), big.NewInt(1), nil, time.Time{}); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on deposit, got %v", err)
	}
	if err := f.engine.WithdrawNative(context.Background(), caller, big.NewInt(10)); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on withdrawal, got %v", err)
	}
	if err := f.engine.Unpause(f.admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := f.engine.DepositToken(context.Background(), caller, testAsset(1), big.NewInt(1), nil, time.Time{}); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestSetBankCapRequiresAdmin(t *testing.T) {
	f := newTestBank(t, 100)
	if err := f.engine.SetBankCap(testOwner(7), big.NewInt(50)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.SetBankCap(f.admin, big.NewInt(50)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	bankState := f.mustState(t)
	if bankState.Cap.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected cap 50, got %s", bankState.Cap)
	}
}

func TestSetPriceFeedRequiresAdmin(t *testing.T) {
	f := newTestBank(t, 100)
	feed := NewManualFeed(big.NewInt(100), 8, time.Now())
	if err := f.engine.SetPriceFeed(testOwner(7), testAsset(2), feed); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.SetPriceFeed(f.admin, testAsset(2), feed); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if _, err := f.engine.GetTokenPriceUSD(testAsset(2)); err != nil {
		t.Fatalf("quote after install: %v", err)
	}
}
