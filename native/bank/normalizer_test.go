package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

type venueStub struct {
	estimate   func(asset AssetID, amountIn *big.Int) (*big.Int, error)
	swapToken  func(asset AssetID, amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error)
	swapNative func(amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error)

	estimateCalls int
	swapCalls     int
}

func (v *venueStub) EstimateOutput(_ context.Context, asset AssetID, amountIn *big.Int) (*big.Int, error) {
	v.estimateCalls++
	return v.estimate(asset, amountIn)
}

func (v *venueStub) SwapTokenForCanonical(_ context.Context, asset AssetID, amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error) {
	v.swapCalls++
	return v.swapToken(asset, amountIn, minOut, deadline)
}

func (v *venueStub) SwapNativeForCanonical(_ context.Context, amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error) {
	v.swapCalls++
	return v.swapNative(amountIn, minOut, deadline)
}

func newTestNormalizer(t *testing.T, venue SwapVenue, capLimit int64) *Normalizer {
	t.Helper()
	ledger, _, _ := newTestLedger(t)
	if err := ledger.SetCap(big.NewInt(capLimit)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	return NewNormalizer(venue, NewAdmissionController(ledger), testAsset(1))
}

func TestNormalizeCanonicalPassThrough(t *testing.T) {
	venue := &venueStub{}
	normalizer := newTestNormalizer(t, venue, 100)
	out, err := normalizer.Normalize(context.Background(), testAsset(1), big.NewInt(42), big.NewInt(1), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("canonical asset must pass through unchanged, got %s", out)
	}
	if venue.estimateCalls != 0 || venue.swapCalls != 0 {
		t.Fatalf("canonical pass-through must not touch the venue")
	}
}

func TestNormalizeProvisionalRejectionSkipsSwap(t *testing.T) {
	venue := &venueStub{
		estimate: func(AssetID, *big.Int) (*big.Int, error) { return big.NewInt(6), nil },
		swapToken: func(AssetID, *big.Int, *big.Int, time.Time) (*big.Int, error) {
			t.Fatalf("swap must not be invoked when the estimate cannot be admitted")
			return nil, nil
		},
	}
	normalizer := newTestNormalizer(t, venue, 5)
	_, err := normalizer.Normalize(context.Background(), testAsset(2), big.NewInt(10), big.NewInt(1), time.Now().Add(time.Minute))
	var limit *DepositLimitError
	if !errors.As(err, &limit) {
		t.Fatalf("expected DepositLimitError, got %v", err)
	}
	if venue.estimateCalls != 1 || venue.swapCalls != 0 {
		t.Fatalf("expected estimate only, got estimate=%d swap=%d", venue.estimateCalls, venue.swapCalls)
	}
}

func TestNormalizeZeroOutputFails(t *testing.T) {
	venue := &venueStub{
		estimate:  func(AssetID, *big.Int) (*big.Int, error) { return big.NewInt(5), nil },
		swapToken: func(AssetID, *big.Int, *big.Int, time.Time) (*big.Int, error) { return big.NewInt(0), nil },
	}
	normalizer := newTestNormalizer(t, venue, 100)
	if _, err := normalizer.Normalize(context.Background(), testAsset(2), big.NewInt(10), big.NewInt(1), time.Now().Add(time.Minute)); !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed, got %v", err)
	}
}

func TestNormalizeReturnsActualOutput(t *testing.T) {
	venue := &venueStub{
		estimate:  func(AssetID, *big.Int) (*big.Int, error) { return big.NewInt(50), nil },
		swapToken: func(AssetID, *big.Int, *big.Int, time.Time) (*big.Int, error) { return big.NewInt(48), nil },
	}
	normalizer := newTestNormalizer(t, venue, 100)
	out, err := normalizer.Normalize(context.Background(), testAsset(2), big.NewInt(10), big.NewInt(45), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Cmp(big.NewInt(48)) != 0 {
		t.Fatalf("normalize must return the actual venue output, got %s", out)
	}
}

func TestNormalizeNativeEstimateThenSwap(t *testing.T) {
	venue := &venueStub{
		estimate:   func(asset AssetID, _ *big.Int) (*big.Int, error) { return big.NewInt(30), nil },
		swapNative: func(*big.Int, *big.Int, time.Time) (*big.Int, error) { return big.NewInt(29), nil },
	}
	normalizer := newTestNormalizer(t, venue, 100)
	out, err := normalizer.Normalize(context.Background(), NativeAsset, big.NewInt(10), big.NewInt(25), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("normalize native: %v", err)
	}
	if out.Cmp(big.NewInt(29)) != 0 {
		t.Fatalf("unexpected output %s", out)
	}
	if venue.estimateCalls != 1 || venue.swapCalls != 1 {
		t.Fatalf("expected one estimate and one swap, got %d/%d", venue.estimateCalls, venue.swapCalls)
	}
}
