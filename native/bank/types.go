package bank

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// AssetID identifies a fungible asset held by the bank. The zero value is the
// reserved sentinel for the platform's native value-asset; every registered
// token carries a non-zero identifier.
type AssetID [20]byte

// NativeAsset is the sentinel identifier for the native value-asset.
var NativeAsset = AssetID{}

// IsNative reports whether the identifier is the native-asset sentinel.
func (a AssetID) IsNative() bool {
	return a == NativeAsset
}

// String renders the identifier as lowercase hex.
func (a AssetID) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAssetID decodes a 20-byte asset identifier from a hex string with an
// optional 0x prefix.
func ParseAssetID(ref string) (AssetID, error) {
	var id AssetID
	raw, err := parseHex20(ref)
	if err != nil {
		return id, fmt.Errorf("bank: asset id: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

// Owner identifies a balance holder.
type Owner [20]byte

// String renders the owner as lowercase hex.
func (o Owner) String() string {
	return hex.EncodeToString(o[:])
}

// ParseOwner decodes a 20-byte owner identifier from a hex string with an
// optional 0x prefix.
func ParseOwner(ref string) (Owner, error) {
	var owner Owner
	raw, err := parseHex20(ref)
	if err != nil {
		return owner, fmt.Errorf("bank: owner: %w", err)
	}
	copy(owner[:], raw)
	return owner, nil
}

func parseHex20(ref string) ([]byte, error) {
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 40 {
		return nil, fmt.Errorf("must be 20 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// PriceQuote captures a single oracle observation for an asset: the reported
// price magnitude, the feed's decimal precision and the observation timestamp.
type PriceQuote struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Decimals: q.Decimals, UpdatedAt: q.UpdatedAt}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// Valuation is the canonical-unit value of an asset amount. Priced is false
// when no feed is registered for the asset; the value is then zero so callers
// of aggregate bookkeeping can distinguish "unknown treated as zero" from a
// genuinely zero market value.
type Valuation struct {
	Value  *big.Int
	Priced bool
}

// BankState is the bank-wide aggregate record. TotalValue is an approximation:
// it is adjusted incrementally with the value computed at each deposit or
// withdrawal and is never re-derived from live prices of held assets.
type BankState struct {
	TotalValue      *big.Int
	Cap             *big.Int
	DepositCount    uint64
	WithdrawalCount uint64
}

// Clone returns a deep copy to shield callers from accidental mutation.
func (s *BankState) Clone() *BankState {
	if s == nil {
		return nil
	}
	clone := &BankState{
		DepositCount:    s.DepositCount,
		WithdrawalCount: s.WithdrawalCount,
	}
	if s.TotalValue != nil {
		clone.TotalValue = new(big.Int).Set(s.TotalValue)
	}
	if s.Cap != nil {
		clone.Cap = new(big.Int).Set(s.Cap)
	}
	return clone
}

// ParseAmount converts a base-10 integer string (underscore separators
// permitted) into a non-negative big integer. Fractional values are rejected;
// amounts are always expressed in the asset's smallest denomination.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("bank: amount must not be negative")
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("bank: invalid amount %q", value)
	}
	return amount, nil
}

// Stored representations. Amounts are persisted as decimal strings so records
// stay canonical under RLP regardless of magnitude.

type storedBalance struct {
	Amount string
}

type storedBankState struct {
	TotalValue      string
	Cap             string
	DepositCount    uint64
	WithdrawalCount uint64
}
