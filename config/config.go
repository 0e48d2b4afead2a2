package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vaultbank/native/bank"
)

// Config is the on-disk service configuration.
type Config struct {
	ListenAddress      string   `toml:"ListenAddress"`
	DataDir            string   `toml:"DataDir"`
	JournalPath        string   `toml:"JournalPath"`
	Environment        string   `toml:"Environment"`
	CanonicalAsset     string   `toml:"CanonicalAsset"`
	BankCapWei         string   `toml:"BankCapWei"`
	WithdrawMinWei     string   `toml:"WithdrawMinWei"`
	WithdrawMaxWei     string   `toml:"WithdrawMaxWei"`
	QuoteMaxAgeSeconds uint64   `toml:"QuoteMaxAgeSeconds"`
	AdminToken         string   `toml:"AdminToken"`
	AdminTokenEnv      string   `toml:"AdminTokenEnv"`
	SwapVenueURL       string   `toml:"SwapVenueURL"`
	OracleURL          string   `toml:"OracleURL"`
	CustodyURL         string   `toml:"CustodyURL"`
	AdminOwners        []string `toml:"AdminOwners"`
	PricedAssets       []string `toml:"PricedAssets"`
}

const (
	defaultListenAddress = "127.0.0.1:8645"
	defaultDataDir       = "./vaultbank-data"
	defaultEnvironment   = "local"
)

// Load reads the configuration at path, creating a commented default file when
// none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.JournalPath) == "" {
		c.JournalPath = filepath.Join(c.DataDir, "journal.db")
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = defaultEnvironment
	}
	if strings.TrimSpace(c.BankCapWei) == "" {
		c.BankCapWei = "0"
	}
	if strings.TrimSpace(c.WithdrawMinWei) == "" {
		c.WithdrawMinWei = "1"
	}
	if strings.TrimSpace(c.WithdrawMaxWei) == "" {
		c.WithdrawMaxWei = "1000000000000000000000"
	}
	if c.QuoteMaxAgeSeconds == 0 {
		c.QuoteMaxAgeSeconds = uint64(bank.DefaultMaxQuoteAge / time.Second)
	}
}

// Validate checks the parseable fields without touching the filesystem.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CanonicalAsset) == "" {
		return fmt.Errorf("config: CanonicalAsset is required")
	}
	asset, err := bank.ParseAssetID(c.CanonicalAsset)
	if err != nil {
		return fmt.Errorf("config: CanonicalAsset: %w", err)
	}
	if asset.IsNative() {
		return fmt.Errorf("config: CanonicalAsset must be a registered token")
	}
	if _, err := bank.ParseAmount(c.BankCapWei); err != nil {
		return fmt.Errorf("config: BankCapWei: %w", err)
	}
	minAmount, err := bank.ParseAmount(c.WithdrawMinWei)
	if err != nil {
		return fmt.Errorf("config: WithdrawMinWei: %w", err)
	}
	maxAmount, err := bank.ParseAmount(c.WithdrawMaxWei)
	if err != nil {
		return fmt.Errorf("config: WithdrawMaxWei: %w", err)
	}
	if minAmount.Sign() <= 0 || minAmount.Cmp(maxAmount) > 0 {
		return fmt.Errorf("config: withdrawal bounds [%s, %s] invalid", c.WithdrawMinWei, c.WithdrawMaxWei)
	}
	for _, owner := range c.AdminOwners {
		if _, err := bank.ParseOwner(owner); err != nil {
			return fmt.Errorf("config: AdminOwners %q: %w", owner, err)
		}
	}
	for _, tracked := range c.PricedAssets {
		if _, err := bank.ParseAssetID(tracked); err != nil {
			return fmt.Errorf("config: PricedAssets %q: %w", tracked, err)
		}
	}
	return nil
}

// Canonical returns the parsed canonical asset identifier.
func (c *Config) Canonical() (bank.AssetID, error) {
	return bank.ParseAssetID(c.CanonicalAsset)
}

// BankCap returns the parsed aggregate cap.
func (c *Config) BankCap() (*big.Int, error) {
	return bank.ParseAmount(c.BankCapWei)
}

// WithdrawBounds returns the parsed native withdrawal bounds.
func (c *Config) WithdrawBounds() (minAmount, maxAmount *big.Int, err error) {
	minAmount, err = bank.ParseAmount(c.WithdrawMinWei)
	if err != nil {
		return nil, nil, err
	}
	maxAmount, err = bank.ParseAmount(c.WithdrawMaxWei)
	if err != nil {
		return nil, nil, err
	}
	return minAmount, maxAmount, nil
}

// QuoteMaxAge returns the configured oracle staleness threshold.
func (c *Config) QuoteMaxAge() time.Duration {
	return time.Duration(c.QuoteMaxAgeSeconds) * time.Second
}

// ResolveAdminToken returns the bearer token guarding privileged RPC methods,
// preferring the environment variable named by AdminTokenEnv over the literal
// file value.
func (c *Config) ResolveAdminToken() string {
	if env := strings.TrimSpace(c.AdminTokenEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.AdminToken)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create directory for %s: %w", path, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create %s: %w", path, err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default: %w", err)
	}
	// The generated file still needs CanonicalAsset filled in before the
	// service will start, so surface the incomplete state to the caller.
	return cfg, nil
}
