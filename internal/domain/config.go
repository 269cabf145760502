package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier" toml:"tier"`

	// Engine holds the verdict engine constants
	Engine EngineConfig `json:"engine" yaml:"engine" toml:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository" toml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" toml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus" toml:"event_bus"`
	Worker     WorkerConfig     `json:"worker" yaml:"worker" toml:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing" toml:"tracing"`
}

// EngineConfig holds thresholds and the default weight vector.
// Both are copied into each engine; nothing mutates them at runtime.
type EngineConfig struct {
	Thresholds     Thresholds   `json:"thresholds" yaml:"thresholds" toml:"thresholds"`
	DefaultWeights WeightVector `json:"defaultWeights" yaml:"default_weights" toml:"default_weights"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host" toml:"host"`
	Port         int    `json:"port" yaml:"port" toml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout" toml:"read_timeout"`    // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout" toml:"write_timeout"` // seconds

	// Per-tenant token bucket; 0 disables limiting.
	RateLimitPerSecond float64 `json:"rateLimitPerSecond" yaml:"rate_limit_per_second" toml:"rate_limit_per_second"`
	RateLimitBurst     int     `json:"rateLimitBurst" yaml:"rate_limit_burst" toml:"rate_limit_burst"`

	CORSOrigins []string `json:"corsOrigins" yaml:"cors_origins" toml:"cors_origins"`
}

// WorkerConfig controls the async verdict worker.
type WorkerConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	TenantIDs []string `json:"tenantIds" yaml:"tenant_ids" toml:"tenant_ids"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" toml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"service_name" toml:"service_name"`
	ExporterType string `json:"exporterType" yaml:"exporter_type" toml:"exporter_type"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        30,
			WriteTimeout:       30,
			RateLimitPerSecond: 50,
			RateLimitBurst:     100,
			CORSOrigins:        []string{"*"},
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			Thresholds:     DefaultThresholds(),
			DefaultWeights: DefaultWeights(),
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			DecisionTTL:  time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		DecisionTTL:    time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
