package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "TokenLedger" || cfg.ContractAccount != "token.ledger" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.PrepaidTGas != 300 || cfg.GasTime != 100*time.Millisecond || cfg.CallerRateLimit != 30 {
		t.Fatalf("unexpected gas or limit defaults %+v", cfg)
	}
	if cfg.StorageBytePrice.String() != "10000000000000000000" {
		t.Fatalf("unexpected storage price %s", cfg.StorageBytePrice)
	}
	if cfg.DatabaseMaxConns != 10 {
		t.Fatalf("unexpected max conns %d", cfg.DatabaseMaxConns)
	}
	if cfg.AllowlistBackend != AllowlistAuto || cfg.Address() != ":8080" {
		t.Fatalf("unexpected backend %q or address %q", cfg.AllowlistBackend, cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90s")
	t.Setenv("OWNER_ACCOUNT", "owner.near")
	t.Setenv("TOTAL_SUPPLY", "1000000")
	t.Setenv("ALLOWLIST_BACKEND", "redis")
	t.Setenv("PREPAID_GAS_TGAS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second || cfg.IdempotencyTTL != 90*time.Second {
		t.Fatalf("unexpected durations %s %s", cfg.ShutdownPeriod, cfg.IdempotencyTTL)
	}
	if cfg.OwnerAccount != "owner.near" || cfg.TotalSupply.String() != "1000000" {
		t.Fatalf("unexpected token settings %+v", cfg)
	}
	if cfg.AllowlistBackend != AllowlistRedis || cfg.PrepaidTGas != 120 {
		t.Fatalf("unexpected backend settings %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"OWNER_ACCOUNT":      "Not.Valid",
		"TOTAL_SUPPLY":       "-5",
		"ALLOWLIST_BACKEND":  "etcd",
		"PREPAID_GAS_TGAS":   "lots",
		"DATABASE_MAX_CONNS": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadRequiresBackendsOutsideDev(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail in production")
	}
}
