package adapters

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"

	"vaultbank/native/bank"
)

// HTTPCustodyClient moves assets between callers and the bank's custody
// accounts through the external custody service. It serves both the token and
// the native transfer interfaces.
type HTTPCustodyClient struct {
	client httpClient
}

// NewHTTPCustodyClient constructs a custody client. A nil http.Client selects
// a default with a 10 second timeout.
func NewHTTPCustodyClient(baseURL, authToken string, client *http.Client) *HTTPCustodyClient {
	return &HTTPCustodyClient{client: newHTTPClient(baseURL, authToken, client)}
}

type transferRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset,omitempty"`
	Amount  string `json:"amount"`
}

func (c *HTTPCustodyClient) post(ctx context.Context, path string, owner bank.Owner, asset string, amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("adapters: custody client not configured")
	}
	if amount == nil {
		return fmt.Errorf("adapters: custody transfer requires an amount")
	}
	err := c.client.postJSON(ctx, path, transferRequest{
		Account: hex.EncodeToString(owner[:]),
		Asset:   asset,
		Amount:  amount.String(),
	}, nil)
	if err != nil {
		return fmt.Errorf("adapters: custody %s: %w", path, err)
	}
	return nil
}

// TransferIn implements the asset transferer interface.
func (c *HTTPCustodyClient) TransferIn(ctx context.Context, from bank.Owner, asset bank.AssetID, amount *big.Int) error {
	return c.post(ctx, "/v1/transfer-in", from, hex.EncodeToString(asset[:]), amount)
}

// TransferOut implements the asset transferer interface.
func (c *HTTPCustodyClient) TransferOut(ctx context.Context, to bank.Owner, asset bank.AssetID, amount *big.Int) error {
	return c.post(ctx, "/v1/transfer-out", to, hex.EncodeToString(asset[:]), amount)
}

// Authorize implements the asset transferer interface.
func (c *HTTPCustodyClient) Authorize(ctx context.Context, spender bank.Owner, asset bank.AssetID, amount *big.Int) error {
	return c.post(ctx, "/v1/authorize", spender, hex.EncodeToString(asset[:]), amount)
}

// NativeClient narrows the custody client to native value releases.
type NativeClient struct {
	custody *HTTPCustodyClient
}

// Native returns the native-transfer view of the custody client.
func (c *HTTPCustodyClient) Native() *NativeClient {
	return &NativeClient{custody: c}
}

// TransferOut implements the native transferer interface.
func (n *NativeClient) TransferOut(ctx context.Context, to bank.Owner, amount *big.Int) error {
	if n == nil || n.custody == nil {
		return fmt.Errorf("adapters: custody client not configured")
	}
	return n.custody.post(ctx, "/v1/native/transfer-out", to, "", amount)
}
