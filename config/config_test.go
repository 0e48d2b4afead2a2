package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `
ListenAddress = "0.0.0.0:9000"
CanonicalAsset = "0x0000000000000000000000000000000000000001"
BankCapWei = "100_000"
WithdrawMinWei = "10"
WithdrawMaxWei = "1000"
QuoteMaxAgeSeconds = 120
AdminTokenEnv = "VAULTBANK_TEST_ADMIN_TOKEN"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.DataDir == "" || cfg.JournalPath == "" {
		t.Fatalf("expected data dir and journal path defaults, got %q / %q", cfg.DataDir, cfg.JournalPath)
	}
	capLimit, err := cfg.BankCap()
	if err != nil {
		t.Fatalf("bank cap: %v", err)
	}
	if capLimit.Cmp(big.NewInt(100000)) != 0 {
		t.Fatalf("expected cap 100000, got %s", capLimit)
	}
	minAmount, maxAmount, err := cfg.WithdrawBounds()
	if err != nil {
		t.Fatalf("withdraw bounds: %v", err)
	}
	if minAmount.Cmp(big.NewInt(10)) != 0 || maxAmount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected bounds [%s, %s]", minAmount, maxAmount)
	}
	if cfg.QuoteMaxAge().Seconds() != 120 {
		t.Fatalf("unexpected quote max age %s", cfg.QuoteMaxAge())
	}
}

func TestLoadRejectsInvalidBounds(t *testing.T) {
	body := strings.Replace(sampleConfig, `WithdrawMinWei = "10"`, `WithdrawMinWei = "2000"`, 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected bounds validation failure")
	}
}

func TestLoadRequiresCanonicalAsset(t *testing.T) {
	body := strings.Replace(sampleConfig, `CanonicalAsset = "0x0000000000000000000000000000000000000001"`, "", 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected missing canonical asset failure")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != defaultListenAddress {
		t.Fatalf("unexpected default listen address %q", cfg.ListenAddress)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file must be written: %v", err)
	}
}

func TestResolveAdminTokenPrefersEnvironment(t *testing.T) {
	cfg := &Config{AdminToken: "file-token", AdminTokenEnv: "VAULTBANK_TEST_ADMIN_TOKEN"}
	t.Setenv("VAULTBANK_TEST_ADMIN_TOKEN", "env-token")
	if got := cfg.ResolveAdminToken(); got != "env-token" {
		t.Fatalf("expected env token, got %q", got)
	}
	t.Setenv("VAULTBANK_TEST_ADMIN_TOKEN", "")
	if got := cfg.ResolveAdminToken(); got != "file-token" {
		t.Fatalf("expected file token fallback, got %q", got)
	}
}
