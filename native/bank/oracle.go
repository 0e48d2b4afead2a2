package bank

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// DefaultMaxQuoteAge is the staleness threshold applied to oracle
// observations. An observation exactly at the threshold is still usable; one
// second past it is not.
const DefaultMaxQuoteAge = time.Hour

// OracleFeed is the interface consumed from an external price oracle for a
// single asset. Implementations are treated as untrusted: every observation is
// validated before use.
type OracleFeed interface {
	LatestObservation() (price *big.Int, updatedAt time.Time, err error)
	Decimals() (uint8, error)
}

// OracleAdapter owns the asset-to-feed registry and validates every quote it
// hands out. Feeds are registered only through the administrative path; reads
// are shared.
type OracleAdapter struct {
	mu        sync.RWMutex
	feeds     map[AssetID]OracleFeed
	canonical AssetID
	maxAge    time.Duration
	clock     func() time.Time
}

// NewOracleAdapter constructs an adapter for the given canonical accounting
// asset using the default staleness threshold.
func NewOracleAdapter(canonical AssetID) *OracleAdapter {
	return &OracleAdapter{
		feeds:     make(map[AssetID]OracleFeed),
		canonical: canonical,
		maxAge:    DefaultMaxQuoteAge,
		clock:     time.Now,
	}
}

// SetMaxAge overrides the staleness threshold. Non-positive values are ignored.
func (o *OracleAdapter) SetMaxAge(maxAge time.Duration) {
	if o == nil || maxAge <= 0 {
		return
	}
	o.mu.Lock()
	o.maxAge = maxAge
	o.mu.Unlock()
}

// SetClock overrides the time source, primarily for deterministic testing.
func (o *OracleAdapter) SetClock(clock func() time.Time) {
	if o == nil || clock == nil {
		return
	}
	o.mu.Lock()
	o.clock = clock
	o.mu.Unlock()
}

// SetFeed registers or replaces the oracle feed for an asset.
func (o *OracleAdapter) SetFeed(asset AssetID, feed OracleFeed) error {
	if o == nil {
		return fmt.Errorf("bank: oracle adapter not initialised")
	}
	if feed == nil {
		return fmt.Errorf("bank: oracle feed required")
	}
	o.mu.Lock()
	o.feeds[asset] = feed
	o.mu.Unlock()
	return nil
}

// Feed returns the registered feed for the asset, if any.
func (o *OracleAdapter) Feed(asset AssetID) (OracleFeed, bool) {
	if o == nil {
		return nil, false
	}
	o.mu.RLock()
	feed, ok := o.feeds[asset]
	o.mu.RUnlock()
	return feed, ok
}

// Quote fetches and validates the latest observation for the asset. It fails
// with ErrNoPriceFeed when the asset is unregistered, ErrOracleCompromised
// when the reported price is not strictly positive and ErrStalePrice when the
// observation age exceeds the staleness threshold.
func (o *OracleAdapter) Quote(asset AssetID) (PriceQuote, error) {
	if o == nil {
		return PriceQuote{}, fmt.Errorf("bank: oracle adapter not initialised")
	}
	o.mu.RLock()
	feed := o.feeds[asset]
	maxAge := o.maxAge
	clock := o.clock
	o.mu.RUnlock()
	if feed == nil {
		return PriceQuote{}, ErrNoPriceFeed
	}
	price, updatedAt, err := feed.LatestObservation()
	if err != nil {
		return PriceQuote{}, fmt.Errorf("bank: oracle observation: %w", err)
	}
	if price == nil || price.Sign() <= 0 {
		return PriceQuote{}, ErrOracleCompromised
	}
	decimals, err := feed.Decimals()
	if err != nil {
		return PriceQuote{}, fmt.Errorf("bank: oracle decimals: %w", err)
	}
	if clock().Sub(updatedAt) > maxAge {
		return PriceQuote{}, ErrStalePrice
	}
	return PriceQuote{Price: new(big.Int).Set(price), Decimals: decimals, UpdatedAt: updatedAt}, nil
}

// ValueOf computes the canonical-unit value of the given asset amount. The
// canonical asset is the identity. Unregistered assets return an unpriced
// valuation with a zero value rather than an error; any other validation
// failure (stale or compromised feed) propagates.
func (o *OracleAdapter) ValueOf(asset AssetID, amount *big.Int) (Valuation, error) {
	if o == nil {
		return Valuation{}, fmt.Errorf("bank: oracle adapter not initialised")
	}
	if amount == nil {
		return Valuation{}, ErrZeroAmount
	}
	if asset == o.canonical {
		return Valuation{Value: new(big.Int).Set(amount), Priced: true}, nil
	}
	if _, ok := o.Feed(asset); !ok {
		return Valuation{Value: big.NewInt(0), Priced: false}, nil
	}
	quote, err := o.Quote(asset)
	if err != nil {
		return Valuation{}, err
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quote.Decimals)), nil)
	value := new(big.Int).Mul(amount, quote.Price)
	value.Quo(value, scale)
	return Valuation{Value: value, Priced: true}, nil
}

// ManualFeed is an in-memory feed implementation used for tests and manual
// overrides during incident response.
type ManualFeed struct {
	mu        sync.RWMutex
	price     *big.Int
	decimals  uint8
	updatedAt time.Time
}

// NewManualFeed constructs a feed with the supplied observation.
func NewManualFeed(price *big.Int, decimals uint8, updatedAt time.Time) *ManualFeed {
	feed := &ManualFeed{decimals: decimals, updatedAt: updatedAt}
	if price != nil {
		feed.price = new(big.Int).Set(price)
	}
	return feed
}

// Set replaces the stored observation.
func (f *ManualFeed) Set(price *big.Int, decimals uint8, updatedAt time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	if price != nil {
		f.price = new(big.Int).Set(price)
	} else {
		f.price = nil
	}
	f.decimals = decimals
	f.updatedAt = updatedAt
	f.mu.Unlock()
}

// LatestObservation implements the OracleFeed interface.
func (f *ManualFeed) LatestObservation() (*big.Int, time.Time, error) {
	if f == nil {
		return nil, time.Time{}, fmt.Errorf("bank: manual feed not initialised")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var price *big.Int
	if f.price != nil {
		price = new(big.Int).Set(f.price)
	}
	return price, f.updatedAt, nil
}

// Decimals implements the OracleFeed interface.
func (f *ManualFeed) Decimals() (uint8, error) {
	if f == nil {
		return 0, fmt.Errorf("bank: manual feed not initialised")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.decimals, nil
}
