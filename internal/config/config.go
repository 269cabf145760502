// Package config loads Kestrel configuration from a file and the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Load builds the configuration in three layers: tier defaults, the optional
// file at path (YAML, or TOML for a .toml extension), then KESTREL_* variables.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(getEnv("KESTREL_TIER", ""), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *domain.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *domain.Config) {
	cfg.Server.Host = getEnv("KESTREL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("KESTREL_PORT", cfg.Server.Port)
	cfg.Server.RateLimitPerSecond = getEnvFloat("KESTREL_RATE_LIMIT", cfg.Server.RateLimitPerSecond)
	cfg.Server.CORSOrigins = getEnvSlice("KESTREL_CORS_ORIGINS", cfg.Server.CORSOrigins)

	cfg.Repository.Driver = getEnv("KESTREL_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("KESTREL_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("KESTREL_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("KESTREL_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("KESTREL_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("KESTREL_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("KESTREL_POSTGRES_DB", cfg.Repository.PostgresDB)

	cfg.Cache.RedisAddr = getEnv("KESTREL_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("KESTREL_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.EventBus.NATSUrl = getEnv("KESTREL_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("KESTREL_NATS_TOKEN", cfg.EventBus.NATSToken)

	cfg.Worker.Enabled = getEnvBool("KESTREL_ASYNC_WORKER", cfg.Worker.Enabled)
	cfg.Worker.TenantIDs = getEnvSlice("KESTREL_TENANTS", cfg.Worker.TenantIDs)

	cfg.Logging.Level = getEnv("KESTREL_LOG_LEVEL", cfg.Logging.Level)
	if getEnvBool("KESTREL_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
}

// Validate reports every problem in cfg joined into one error.
func Validate(cfg *domain.Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		fail("unknown tier %q", cfg.Tier)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		fail("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.RateLimitPerSecond < 0 {
		fail("rate limit must not be negative")
	}

	w := cfg.Engine.DefaultWeights
	for name, v := range map[string]float64{
		"regime":      w.Regime,
		"smart_money": w.SmartMoney,
		"foreign":     w.Foreign,
		"sector":      w.Sector,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			fail("default weight %s must be a positive number, got %v", name, v)
		}
	}

	th := cfg.Engine.Thresholds
	if !(th.ForeignFlow > 0) {
		fail("foreign flow threshold must be positive, got %v", th.ForeignFlow)
	}
	if !(th.SmartMoneyLow < th.SmartMoneyHigh) {
		fail("smart money low %v must be below high %v", th.SmartMoneyLow, th.SmartMoneyHigh)
	}
	for name, v := range map[string]float64{
		"smart_money_high":           th.SmartMoneyHigh,
		"smart_money_low":            th.SmartMoneyLow,
		"regime_confidence_override": th.RegimeConfidenceOverride,
		"bank_defensive_confidence":  th.BankDefensiveConfidence,
		"sector_concentration":       th.SectorConcentration,
	} {
		if !(v >= 0 && v <= 100) {
			fail("threshold %s must be within 0-100, got %v", name, v)
		}
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		fail("unsupported repository driver %q", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		fail("unsupported cache type %q", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		fail("unsupported event bus type %q", cfg.EventBus.Type)
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
