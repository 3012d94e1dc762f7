// Package config loads Kestrel configuration from tier defaults, an optional
// TOML file and KESTREL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Environment variables read by the loader.
const (
	EnvConfig    = "KESTREL_CONFIG"
	EnvTier      = "KESTREL_TIER"
	EnvDebug     = "KESTREL_DEBUG"
	EnvPort      = "KESTREL_PORT"
	EnvDBPath    = "KESTREL_DB_PATH"
	EnvRedisAddr = "KESTREL_REDIS_ADDR"
	EnvNATSURL   = "KESTREL_NATS_URL"
	EnvMode      = "KESTREL_MODE"
	EnvTenants   = "KESTREL_TENANTS"
)

// Loader builds a validated configuration.
type Loader struct {
	path   string
	getenv func(string) string
}

// NewLoader creates a loader for the TOML file at path. An empty path
// skips the file.
func NewLoader(path string) *Loader {
	return &Loader{
		path:   path,
		getenv: os.Getenv,
	}
}

// FromEnv creates a loader for the file named by KESTREL_CONFIG.
func FromEnv() *Loader {
	return NewLoader(os.Getenv(EnvConfig))
}

// Load reads the configuration.
func (l *Loader) Load() (*domain.Config, error) {
	tier := domain.Tier(l.getenv(EnvTier))

	var raw []byte
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
		raw = data

		// The file's tier picks the defaults it overlays, unless the
		// environment already chose one.
		var head struct {
			Tier domain.Tier `toml:"tier"`
		}
		if _, err := toml.Decode(string(raw), &head); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
		if tier == "" {
			tier = head.Tier
		}
	}

	cfg := domain.DefaultConfig()
	if tier == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if raw != nil {
		md, err := toml.Decode(string(raw), cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys in %s: %s", l.path, strings.Join(keys, ", "))
		}
	}
	if tier != "" {
		cfg.Tier = tier
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) applyEnvOverrides(cfg *domain.Config) error {
	if v := l.getenv(EnvDebug); v == "true" {
		cfg.Logging.Level = "debug"
	}
	if v := l.getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Server.Port = port
	}
	if v := l.getenv(EnvDBPath); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := l.getenv(EnvRedisAddr); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := l.getenv(EnvNATSURL); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := l.getenv(EnvMode); v != "" {
		cfg.Worker.Mode = v
	}
	if v := l.getenv(EnvTenants); v != "" {
		var tenants []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tenants = append(tenants, t)
			}
		}
		cfg.Worker.TenantIDs = tenants
	}
	return nil
}

// Validate checks a configuration for values the service cannot run with.
// All problems are reported together.
func Validate(cfg *domain.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(cfg.Tier == domain.TierCommunity || cfg.Tier == domain.TierPro, "tier: unknown tier %q", cfg.Tier)
	check(cfg.Server.Port > 0 && cfg.Server.Port <= 65535, "server.port: %d out of range", cfg.Server.Port)
	check(cfg.Server.RateLimit >= 0, "server.rate_limit: must not be negative")
	check(cfg.Server.RateLimit == 0 || cfg.Server.RateWindow > 0, "server.rate_window: required when rate_limit is set")

	switch cfg.Repository.Driver {
	case "sqlite":
		check(cfg.Repository.SQLitePath != "", "repository.sqlite_path: required for sqlite")
	case "postgres":
		check(cfg.Repository.PostgresHost != "", "repository.postgres_host: required for postgres")
	default:
		errs = append(errs, fmt.Errorf("repository.driver: unsupported driver %q", cfg.Repository.Driver))
	}
	check(cfg.Cache.Type == "memory" || cfg.Cache.Type == "redis", "cache.type: unsupported type %q", cfg.Cache.Type)
	check(cfg.EventBus.Type == "channel" || cfg.EventBus.Type == "nats", "event_bus.type: unsupported type %q", cfg.EventBus.Type)

	pricing := cfg.Scoring.Pricing
	check(pricing.BaseRate >= 0 && pricing.MaxPremium >= 0, "scoring.pricing: rates must not be negative")
	check(pricing.DefaultTermMonths > 0, "scoring.pricing.default_term_months: must be positive")

	inc := cfg.Income
	check(inc.MinDataPoints >= 1, "income.min_data_points: must be at least 1")
	check(inc.AnomalyZ > 0 && inc.HighSeverityZ >= inc.AnomalyZ, "income: high_severity_z must be >= anomaly_z > 0")
	check(inc.ReviewAt <= inc.ApproveAt, "income: review_at must not exceed approve_at")
	check(inc.RoundNumberUnit > 0, "income.round_number_unit: must be positive")

	check(cfg.Rules.MaxWorkers > 0, "rules.max_workers: must be positive")
	check(cfg.Velocity.WindowSecs >= 0, "velocity.window_secs: must not be negative")
	check(cfg.Worker.Mode == domain.ModeSync || cfg.Worker.Mode == domain.ModeAsync, "worker.mode: unknown mode %q", cfg.Worker.Mode)

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	check(cfg.Logging.Format == "json" || cfg.Logging.Format == "text", "logging.format: unknown format %q", cfg.Logging.Format)

	return errors.Join(errs...)
}
