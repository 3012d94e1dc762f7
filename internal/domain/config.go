package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" toml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" toml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" toml:"repository"`
	Cache      CacheConfig      `json:"cache" toml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" toml:"event_bus"`

	// Engine settings
	Scoring  ScoringConfig  `json:"scoring" toml:"scoring"`
	Income   IncomePolicy   `json:"income" toml:"income"`
	Rules    RulesConfig    `json:"rules" toml:"rules"`
	Velocity VelocityPolicy `json:"velocity" toml:"velocity"`
	Worker   WorkerConfig   `json:"worker" toml:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" toml:"logging"`
	Tracing TracingConfig `json:"tracing" toml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" toml:"host"`
	Port         int    `json:"port" toml:"port"`
	ReadTimeout  int    `json:"readTimeout" toml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" toml:"write_timeout"` // seconds

	// RateLimit caps requests per tenant per RateWindow; 0 disables it.
	RateLimit  int           `json:"rateLimit" toml:"rate_limit"`
	RateWindow time.Duration `json:"rateWindow" toml:"rate_window"`
}

// RulesConfig holds policy rule engine settings.
type RulesConfig struct {
	MaxWorkers int `json:"maxWorkers" toml:"max_workers"`

	// SeedDefaults stores the builtin policy set when no rules exist yet.
	SeedDefaults bool `json:"seedDefaults" toml:"seed_defaults"`
}

// Processing modes.
const (
	ModeSync  = "sync"  // score only on the HTTP request path
	ModeAsync = "async" // also consume submitted applications from the bus
)

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Mode      string   `json:"mode" toml:"mode"`
	TenantIDs []string `json:"tenantIds" toml:"tenant_ids"` // empty means the global subscription
	Count     int      `json:"count" toml:"count"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" toml:"level"`   // debug, info, warn, error
	Format string `json:"format" toml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" toml:"enabled"`
	ServiceName  string `json:"serviceName" toml:"service_name"`
	ExporterType string `json:"exporterType" toml:"exporter_type"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" toml:"endpoint"`
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
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			RateLimit:    100,
			RateWindow:   time.Minute,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  10000,
			LocalTTL:      5 * time.Minute,
			EvaluationTTL: 30 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: DefaultScoringConfig(),
		Income:  DefaultIncomePolicy(),
		Rules: RulesConfig{
			MaxWorkers:   10,
			SeedDefaults: true,
		},
		Velocity: VelocityPolicy{
			WindowSecs: 86400,
		},
		Worker: WorkerConfig{
			Mode:  ModeSync,
			Count: 5,
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
		EvaluationTTL:  30 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "kestrel-workers",
	}
	cfg.Worker.Mode = ModeAsync
	cfg.Tracing.Enabled = true
	return cfg
}
