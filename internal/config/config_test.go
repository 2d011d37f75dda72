package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"ledgerline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/api/v1" {
		t.Fatalf("base_path = %q, want /api/v1", cfg.Server.BasePath)
	}
	if cfg.Billing.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", cfg.Billing.Currency)
	}
}

func TestFromYAMLValidation(t *testing.T) {
	if _, err := config.FromYAML([]byte("server:\n  addr: \"\"\n")); err == nil {
		t.Fatal("expected missing addr to fail validation")
	}
	if _, err := config.FromYAML([]byte("{nope")); err == nil {
		t.Fatal("expected malformed yaml to fail")
	}

	cfg, err := config.FromYAML([]byte(`
server:
  addr: ":9090"
billing:
  currency: EUR
webhooks:
  - name: audit
    url: https://example.com/hooks
    events: [invoice.generated]
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Billing.Currency != "EUR" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Name != "audit" {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestWebhooksNeedNameAndURL(t *testing.T) {
	_, err := config.FromYAML([]byte(`
server:
  addr: ":8080"
billing:
  currency: USD
webhooks:
  - url: https://example.com
`))
	if err == nil {
		t.Fatal("expected unnamed webhook to fail validation")
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Load(dir); err == nil {
		t.Fatal("expected missing config to error")
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatal("optional load did not fall back to defaults")
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	raw := "server:\n  addr: \":7070\"\nbilling:\n  currency: GBP\n"
	if err := os.WriteFile(filepath.Join(dir, "ledgerline.yml"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7070" || cfg.Billing.Currency != "GBP" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
