package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadAppliesSaneDefaults(t *testing.T) {
	t.Setenv("ORDER_NUMBER_PREFIX", "")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.OrderNumberPrefix != "POS" {
		t.Fatalf("expected default order number prefix POS, got %q", cfg.OrderNumberPrefix)
	}
	if cfg.CatalogCacheTTLSeconds != 30 {
		t.Fatalf("expected catalog cache TTL fallback 30, got %d", cfg.CatalogCacheTTLSeconds)
	}
}
