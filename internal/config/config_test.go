package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_USER", "festival")
	t.Setenv("DB_NAME", "festival")
	t.Setenv("CMS_BASE_URL", "https://cms.example.com/api/")
	t.Setenv("CMS_API_TOKEN", "token")
	t.Setenv("PAYMENT_SECRET_KEY", "sk_test_123")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_123")
}

func TestParseDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.Payment.Provider != "stripe" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CMS.BaseURL != "https://cms.example.com/api" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.CMS.BaseURL)
	}
	prices := cfg.Prices.PriceList()
	total, err := prices.Total("ciclistica", true, 3)
	if err != nil || total != 6100 {
		t.Fatalf("unexpected total %d, %v", total, err)
	}
}

func TestParseMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "")
	if _, err := Parse(); err == nil {
		t.Fatal("expected error for missing webhook secret")
	}
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 1 {
		t.Fatalf("capacity = %d, want 1", cfg.Capacity)
	}
	if cfg.TTL != 10*time.Second {
		t.Fatalf("ttl = %s, want 10s", cfg.TTL)
	}
}

func TestLoadCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	if !cfg.Methods["GET"] || !cfg.Methods["HEAD"] || cfg.Methods["POST"] {
		t.Fatalf("unexpected methods %v", cfg.Methods)
	}
}
