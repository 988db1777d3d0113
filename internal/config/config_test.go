package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PARADEX_L1_ADDRESS", "0xabc")
	t.Setenv("PARADEX_L2_PRIVATE_KEY", "0xkey")
	t.Setenv("PARADEX_MARKET", "ETH-USD-PERP")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Exchange.Env != "testnet" {
		t.Errorf("Env = %q, want testnet", cfg.Exchange.Env)
	}
	if cfg.Trading.MaxOpenBatches != 1 {
		t.Errorf("MaxOpenBatches = %d, want 1", cfg.Trading.MaxOpenBatches)
	}
	if cfg.Trading.OrderSizeCap != nil {
		t.Errorf("OrderSizeCap = %s, want nil", cfg.Trading.OrderSizeCap)
	}
	if !cfg.Trading.MinProfitUSD.Equal(dec(t, "1")) {
		t.Errorf("MinProfitUSD = %s, want 1", cfg.Trading.MinProfitUSD)
	}
	if cfg.Exchange.TokenTTL != 25*time.Minute {
		t.Errorf("TokenTTL = %s, want 25m", cfg.Exchange.TokenTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PARADEX_ENV", "prod")
	t.Setenv("PARADEX_ORDER_SIZE", "0.5")
	t.Setenv("PARADEX_MAKER_FEE_PCT", "-0.00005")
	t.Setenv("PARADEX_MAX_OPEN_ORDERS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Exchange.WSURL() != "wss://ws.api.prod.paradex.trade/v1" {
		t.Errorf("WSURL = %q", cfg.Exchange.WSURL())
	}
	if cfg.Exchange.RESTBaseURL() != "https://api.prod.paradex.trade/v1" {
		t.Errorf("RESTBaseURL = %q", cfg.Exchange.RESTBaseURL())
	}
	if cfg.Trading.OrderSizeCap == nil || !cfg.Trading.OrderSizeCap.Equal(dec(t, "0.5")) {
		t.Errorf("OrderSizeCap = %v, want 0.5", cfg.Trading.OrderSizeCap)
	}
	if cfg.Trading.MakerFeePct.Sign() >= 0 {
		t.Errorf("MakerFeePct = %s, want negative", cfg.Trading.MakerFeePct)
	}
	if cfg.Trading.MaxOpenBatches != 3 {
		t.Errorf("MaxOpenBatches = %d, want 3", cfg.Trading.MaxOpenBatches)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing l1 address", env: map[string]string{
			"PARADEX_L1_ADDRESS": "", "PARADEX_L2_PRIVATE_KEY": "k", "PARADEX_MARKET": "ETH-USD-PERP",
		}},
		{name: "missing keys", env: map[string]string{
			"PARADEX_L1_ADDRESS": "0xabc", "PARADEX_MARKET": "ETH-USD-PERP",
		}},
		{name: "missing market", env: map[string]string{
			"PARADEX_L1_ADDRESS": "0xabc", "PARADEX_L2_PRIVATE_KEY": "k",
		}},
		{name: "bad env", env: map[string]string{
			"PARADEX_L1_ADDRESS": "0xabc", "PARADEX_L2_PRIVATE_KEY": "k",
			"PARADEX_MARKET": "ETH-USD-PERP", "PARADEX_ENV": "staging",
		}},
		{name: "zero order size", env: map[string]string{
			"PARADEX_L1_ADDRESS": "0xabc", "PARADEX_L2_PRIVATE_KEY": "k",
			"PARADEX_MARKET": "ETH-USD-PERP", "PARADEX_ORDER_SIZE": "0",
		}},
		{name: "zero max batches", env: map[string]string{
			"PARADEX_L1_ADDRESS": "0xabc", "PARADEX_L2_PRIVATE_KEY": "k",
			"PARADEX_MARKET": "ETH-USD-PERP", "PARADEX_MAX_OPEN_ORDERS": "0",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{
				"PARADEX_L1_ADDRESS", "PARADEX_L1_PRIVATE_KEY", "PARADEX_L2_PRIVATE_KEY",
				"PARADEX_MARKET", "PARADEX_ENV", "PARADEX_ORDER_SIZE", "PARADEX_MAX_OPEN_ORDERS",
			} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("Load() succeeded, want error")
			}
		})
	}
}
