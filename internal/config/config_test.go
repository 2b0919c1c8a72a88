package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ACCESS_TOKEN_TTL_HOURS", "")
	t.Setenv("BUSINESS_NAME", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.AccessTokenTTLHours != 24 {
		t.Fatalf("expected default token TTL 24h, got %d", cfg.AccessTokenTTLHours)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.BusinessName != "Stock Ledger" {
		t.Fatalf("unexpected business name %q", cfg.BusinessName)
	}
}

func TestLoadRejectsBadTokenTTL(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_HOURS", "not-a-number")

	cfg := Load()
	if cfg.AccessTokenTTLHours != 24 {
		t.Fatalf("expected TTL fallback 24h, got %d", cfg.AccessTokenTTLHours)
	}
}
