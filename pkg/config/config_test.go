package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
exchange:
  base_url: https://api.example.com
vendor:
  base_url: https://quotes.example.com
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Store.Root != "./data" {
		t.Fatalf("expected default store root, got %q", cfg.Store.Root)
	}
	if cfg.Store.RawFormat != "parquet" {
		t.Fatalf("expected default raw format parquet, got %q", cfg.Store.RawFormat)
	}
	if cfg.Resolver.Workers != 4 {
		t.Fatalf("expected default 4 workers, got %d", cfg.Resolver.Workers)
	}
	if cfg.Resolver.AttemptTimeout != 10*time.Second {
		t.Fatalf("expected default 10s timeout, got %v", cfg.Resolver.AttemptTimeout)
	}
	if cfg.Exchange.Mode != "auto" {
		t.Fatalf("expected default auto mode, got %q", cfg.Exchange.Mode)
	}
	if cfg.Exchange.TokenPath != "/oauth2/tokenP" {
		t.Fatalf("expected default token path, got %q", cfg.Exchange.TokenPath)
	}
	if cfg.Kafka.Topic != "marketpull.final" {
		t.Fatalf("expected default kafka topic, got %q", cfg.Kafka.Topic)
	}
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	if _, err := Load(writeConfig(t, "environment: dev\n")); err == nil {
		t.Fatal("expected validation error for missing base URLs")
	}
}

func TestLoadRejectsBadRawFormat(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
store:
  raw_format: avro
`))
	if err == nil {
		t.Fatal("expected validation error for unsupported raw format")
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	_, err := Load(writeConfig(t, `
exchange:
  base_url: https://api.example.com
  mode: dryrun
vendor:
  base_url: https://quotes.example.com
`))
	if err == nil {
		t.Fatal("expected validation error for unknown mode")
	}
}

func TestLoadWithEnvOverridesCredentials(t *testing.T) {
	t.Setenv("EXCHANGE_APP_KEY", "env-key")
	t.Setenv("EXCHANGE_APP_SECRET", "env-secret")
	t.Setenv("STORE_ROOT", "/var/lib/marketpull")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Exchange.AppKey != "env-key" || cfg.Exchange.AppSecret != "env-secret" {
		t.Fatal("expected credentials from environment")
	}
	if cfg.Store.Root != "/var/lib/marketpull" {
		t.Fatalf("expected store root override, got %q", cfg.Store.Root)
	}
}
