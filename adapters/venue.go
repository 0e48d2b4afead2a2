package adapters

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"vaultbank/native/bank"
)

// HTTPSwapVenue drives the external conversion venue over its JSON API.
type HTTPSwapVenue struct {
	client httpClient
}

// NewHTTPSwapVenue constructs a venue client. A nil http.Client selects a
// default with a 10 second timeout.
func NewHTTPSwapVenue(baseURL, authToken string, client *http.Client) *HTTPSwapVenue {
	return &HTTPSwapVenue{client: newHTTPClient(baseURL, authToken, client)}
}

type swapRequest struct {
	Asset    string `json:"asset,omitempty"`
	AmountIn string `json:"amountIn"`
	MinOut   string `json:"minOut,omitempty"`
	Deadline int64  `json:"deadline,omitempty"`
}

type swapResponse struct {
	AmountOut string `json:"amountOut"`
}

func (v *HTTPSwapVenue) call(ctx context.Context, path string, req swapRequest) (*big.Int, error) {
	var out swapResponse
	if err := v.client.postJSON(ctx, path, req, &out); err != nil {
		return nil, fmt.Errorf("adapters: venue %s: %w", path, err)
	}
	amount, err := bank.ParseAmount(out.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("adapters: parse venue output %q: %w", out.AmountOut, err)
	}
	return amount, nil
}

// EstimateOutput implements the swap venue interface.
func (v *HTTPSwapVenue) EstimateOutput(ctx context.Context, asset bank.AssetID, amountIn *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("adapters: venue not configured")
	}
	return v.call(ctx, "/v1/estimate", swapRequest{
		Asset:    hex.EncodeToString(asset[:]),
		AmountIn: amountIn.String(),
	})
}

// SwapTokenForCanonical implements the swap venue interface.
func (v *HTTPSwapVenue) SwapTokenForCanonical(ctx context.Context, asset bank.AssetID, amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("adapters: venue not configured")
	}
	return v.call(ctx, "/v1/swap/token", swapRequest{
		Asset:    hex.EncodeToString(asset[:]),
		AmountIn: amountIn.String(),
		MinOut:   formatOptional(minOut),
		Deadline: deadline.UTC().Unix(),
	})
}

// SwapNativeForCanonical implements the swap venue interface.
func (v *HTTPSwapVenue) SwapNativeForCanonical(ctx context.Context, amountIn, minOut *big.Int, deadline time.Time) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("adapters: venue not configured")
	}
	return v.call(ctx, "/v1/swap/native", swapRequest{
		AmountIn: amountIn.String(),
		MinOut:   formatOptional(minOut),
		Deadline: deadline.UTC().Unix(),
	})
}

func formatOptional(amount *big.Int) string {
	if amount == nil {
		return ""
	}
	return amount.String()
}
