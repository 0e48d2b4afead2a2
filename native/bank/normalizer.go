package bank

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// SwapVenue is the interface consumed from the external conversion venue. The
// venue is expected to either convert the full input amount and return at
// least minOut, or abort the entire request; deadline expiry is an ordinary
// venue rejection. Implementations are untrusted and may attempt to reenter
// the bank before returning. The native value-asset is addressed through its
// sentinel identifier.
type SwapVenue interface {
	EstimateOutput(ctx context.Context, asset AssetID, amountIn *big.Int) (*big.Int, error)
	SwapTokenForCanonical(ctx context.Context, asset AssetID, amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error)
	SwapNativeForCanonical(ctx context.Context, amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error)
}

// Normalizer converts incoming assets into the canonical accounting unit. It
// never credits the ledger itself; crediting happens only after normalization
// succeeds, using the actual received amount.
type Normalizer struct {
	venue     SwapVenue
	admission *AdmissionController
	canonical AssetID
}

// NewNormalizer constructs a normalizer over the supplied venue.
func NewNormalizer(venue SwapVenue, admission *AdmissionController, canonical AssetID) *Normalizer {
	return &Normalizer{venue: venue, admission: admission, canonical: canonical}
}

// Preflight obtains the pre-trade estimate for converting amount of the asset
// into the canonical unit and checks it against the cap, so a conversion that
// could never be admitted is aborted before any custody transfer or external
// swap is started. The estimate is returned for diagnostics.
func (n *Normalizer) Preflight(ctx context.Context, asset AssetID, amount *big.Int) (*big.Int, error) {
	if n == nil {
		return nil, fmt.Errorf("bank: normalizer not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	estimate, err := n.venue.EstimateOutput(ctx, asset, amount)
	if err != nil {
		return nil, fmt.Errorf("bank: estimate conversion output: %w", err)
	}
	if estimate == nil || estimate.Sign() == 0 {
		return nil, ErrSwapFailed
	}
	if err := n.admission.CheckAdmission(estimate); err != nil {
		return nil, err
	}
	return estimate, nil
}

// Execute invokes the venue with the caller-specified minimum acceptable
// output and deadline, dispatching to the native-in variant for the sentinel
// asset. A zero reported output fails with ErrSwapFailed even though the venue
// should itself reject below-minimum outcomes.
func (n *Normalizer) Execute(ctx context.Context, asset AssetID, amount, minOut *big.Int, deadline time.Time) (*big.Int, error) {
	if n == nil {
		return nil, fmt.Errorf("bank: normalizer not initialised")
	}
	var (
		received *big.Int
		err      error
	)
	if asset.IsNative() {
		received, err = n.venue.SwapNativeForCanonical(ctx, amount, minOut, deadline)
	} else {
		received, err = n.venue.SwapTokenForCanonical(ctx, asset, amount, minOut, deadline)
	}
	if err != nil {
		return nil, fmt.Errorf("bank: execute conversion: %w", err)
	}
	if received == nil || received.Sign() == 0 {
		return nil, ErrSwapFailed
	}
	return received, nil
}

// Normalize runs the full preflight-then-execute sequence. The canonical
// asset passes through unchanged with no external call.
func (n *Normalizer) Normalize(ctx context.Context, asset AssetID, amount, minOut *big.Int, deadline time.Time) (*big.Int, error) {
	if n == nil {
		return nil, fmt.Errorf("bank: normalizer not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if asset == n.canonical {
		return new(big.Int).Set(amount), nil
	}
	if _, err := n.Preflight(ctx, asset, amount); err != nil {
		return nil, err
	}
	return n.Execute(ctx, asset, amount, minOut, deadline)
}
