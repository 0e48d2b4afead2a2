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

// HTTPOracleFeed reads price observations for a single asset from an external
// price service. Freshness and positivity are enforced by the oracle adapter,
// not here; the feed only reports what the service returned.
type HTTPOracleFeed struct {
	client httpClient
	asset  bank.AssetID
}

// NewHTTPOracleFeed constructs a feed bound to one asset. A nil http.Client
// selects a default with a 10 second timeout.
func NewHTTPOracleFeed(baseURL, authToken string, asset bank.AssetID, client *http.Client) *HTTPOracleFeed {
	return &HTTPOracleFeed{client: newHTTPClient(baseURL, authToken, client), asset: asset}
}

type priceResponse struct {
	Price     string `json:"price"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt int64  `json:"updatedAt"`
}

func (f *HTTPOracleFeed) fetch() (priceResponse, error) {
	var out priceResponse
	path := "/v1/price/" + hex.EncodeToString(f.asset[:])
	if err := f.client.getJSON(context.Background(), path, &out); err != nil {
		return out, fmt.Errorf("adapters: fetch price: %w", err)
	}
	return out, nil
}

// LatestObservation implements the oracle feed interface.
func (f *HTTPOracleFeed) LatestObservation() (*big.Int, time.Time, error) {
	if f == nil {
		return nil, time.Time{}, fmt.Errorf("adapters: oracle feed not configured")
	}
	out, err := f.fetch()
	if err != nil {
		return nil, time.Time{}, err
	}
	price, err := bank.ParseAmount(out.Price)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("adapters: parse price %q: %w", out.Price, err)
	}
	return price, time.Unix(out.UpdatedAt, 0).UTC(), nil
}

// Decimals implements the oracle feed interface.
func (f *HTTPOracleFeed) Decimals() (uint8, error) {
	if f == nil {
		return 0, fmt.Errorf("adapters: oracle feed not configured")
	}
	out, err := f.fetch()
	if err != nil {
		return 0, err
	}
	return out.Decimals, nil
}
