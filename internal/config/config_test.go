package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Engine.Thresholds != domain.DefaultThresholds() {
		t.Errorf("expected default thresholds, got %+v", cfg.Engine.Thresholds)
	}
	if cfg.Engine.DefaultWeights != domain.DefaultWeights() {
		t.Errorf("expected default weights, got %+v", cfg.Engine.DefaultWeights)
	}
}

func TestLoadProTier(t *testing.T) {
	t.Setenv("KESTREL_TIER", "pro")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repository.Driver != "postgres" || cfg.Cache.Type != "redis" || cfg.EventBus.Type != "nats" {
		t.Errorf("expected pro stack, got %s/%s/%s", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "kestrel.yaml", `
server:
  port: 9090
engine:
  thresholds:
    foreign_flow: 750
  default_weights:
    foreign: 1.5
cache:
  decision_ttl: 30s
worker:
  tenant_ids: [alpha, beta]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Engine.Thresholds.ForeignFlow != 750 {
		t.Errorf("expected foreign flow 750, got %.0f", cfg.Engine.Thresholds.ForeignFlow)
	}
	if cfg.Engine.Thresholds.SmartMoneyHigh != 75 {
		t.Errorf("expected untouched threshold to keep default 75, got %.0f", cfg.Engine.Thresholds.SmartMoneyHigh)
	}
	if cfg.Engine.DefaultWeights.Foreign != 1.5 || cfg.Engine.DefaultWeights.Regime != 1.0 {
		t.Errorf("unexpected weights %+v", cfg.Engine.DefaultWeights)
	}
	if cfg.Cache.DecisionTTL != 30*time.Second {
		t.Errorf("expected decision ttl 30s, got %v", cfg.Cache.DecisionTTL)
	}
	if len(cfg.Worker.TenantIDs) != 2 {
		t.Errorf("expected 2 tenants, got %v", cfg.Worker.TenantIDs)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "kestrel.toml", `
tier = "community"

[server]
port = 7070

[engine.thresholds]
smart_money_high = 80.0
smart_money_low = 20.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Engine.Thresholds.SmartMoneyHigh != 80 || cfg.Engine.Thresholds.SmartMoneyLow != 20 {
		t.Errorf("unexpected smart money bounds %+v", cfg.Engine.Thresholds)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "kestrel.yaml", "server:\n  port: 9090\n")
	t.Setenv("KESTREL_PORT", "6060")
	t.Setenv("KESTREL_TENANTS", "alpha, beta ,,gamma")
	t.Setenv("KESTREL_DEBUG", "true")
	t.Setenv("KESTREL_ASYNC_WORKER", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("expected env port 6060, got %d", cfg.Server.Port)
	}
	want := []string{"alpha", "beta", "gamma"}
	if strings.Join(cfg.Worker.TenantIDs, ",") != strings.Join(want, ",") {
		t.Errorf("expected tenants %v, got %v", want, cfg.Worker.TenantIDs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if !cfg.Worker.Enabled {
		t.Error("expected worker enabled from env")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "server: [port")
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", `
engine:
  thresholds:
    smart_money_low: 80
    smart_money_high: 20
  default_weights:
    regime: 0
`)
		_, err := Load(path)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		msg := err.Error()
		if !strings.Contains(msg, "smart money low") || !strings.Contains(msg, "default weight regime") {
			t.Errorf("expected both problems reported, got %q", msg)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"tier", func(c *domain.Config) { c.Tier = "enterprise" }},
		{"port", func(c *domain.Config) { c.Server.Port = 70000 }},
		{"negative rate", func(c *domain.Config) { c.Server.RateLimitPerSecond = -1 }},
		{"negative weight", func(c *domain.Config) { c.Engine.DefaultWeights.Sector = -1 }},
		{"zero foreign flow", func(c *domain.Config) { c.Engine.Thresholds.ForeignFlow = 0 }},
		{"confidence above 100", func(c *domain.Config) { c.Engine.Thresholds.RegimeConfidenceOverride = 120 }},
		{"driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }},
		{"cache", func(c *domain.Config) { c.Cache.Type = "memcached" }},
		{"bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }},
	}

	if err := Validate(domain.DefaultConfig()); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
	if err := Validate(domain.ProConfig()); err != nil {
		t.Fatalf("expected pro config to validate, got %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
