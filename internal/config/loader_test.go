package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kestrel.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newTestLoader(path string, env map[string]string) *Loader {
	l := NewLoader(path)
	l.getenv = func(k string) string { return env[k] }
	return l
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := newTestLoader("", nil).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Repository.Driver)
	}
	if cfg.Worker.Mode != domain.ModeSync {
		t.Errorf("expected sync mode, got %s", cfg.Worker.Mode)
	}
	if !cfg.Rules.SeedDefaults {
		t.Error("expected seed_defaults on by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
rate_limit = 20
rate_window = "30s"

[scoring.pricing]
base_rate = 6.0

[income]
approve_at = 75

[velocity]
window_secs = 3600
`)

	cfg, err := newTestLoader(path, nil).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.RateWindow != 30*time.Second {
		t.Errorf("expected 30s window, got %s", cfg.Server.RateWindow)
	}
	if cfg.Scoring.Pricing.BaseRate != 6.0 {
		t.Errorf("expected base rate 6.0, got %.2f", cfg.Scoring.Pricing.BaseRate)
	}
	// Keys absent from the file keep their defaults
	if cfg.Scoring.Pricing.MaxPremium != 15 {
		t.Errorf("expected default max premium, got %.2f", cfg.Scoring.Pricing.MaxPremium)
	}
	if cfg.Income.ApproveAt != 75 || cfg.Income.ReviewAt != 50 {
		t.Errorf("unexpected income thresholds: %d/%d", cfg.Income.ApproveAt, cfg.Income.ReviewAt)
	}
	if cfg.Velocity.WindowSecs != 3600 {
		t.Errorf("expected window 3600, got %d", cfg.Velocity.WindowSecs)
	}
}

func TestLoadProTierFromFile(t *testing.T) {
	path := writeConfig(t, `
tier = "pro"

[repository]
postgres_host = "db.internal"
`)

	cfg, err := newTestLoader(path, nil).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repository.Driver != "postgres" {
		t.Errorf("expected postgres driver from pro defaults, got %s", cfg.Repository.Driver)
	}
	if cfg.Repository.PostgresHost != "db.internal" {
		t.Errorf("expected overridden host, got %s", cfg.Repository.PostgresHost)
	}
	if cfg.Worker.Mode != domain.ModeAsync {
		t.Errorf("expected async mode, got %s", cfg.Worker.Mode)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvPort:    "7070",
		EnvDBPath:  "/data/kestrel.db",
		EnvMode:    "async",
		EnvTenants: "bank-a, bank-b,,",
		EnvDebug:   "true",
	}

	cfg, err := newTestLoader("", env).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Repository.SQLitePath != "/data/kestrel.db" {
		t.Errorf("unexpected sqlite path %s", cfg.Repository.SQLitePath)
	}
	if cfg.Worker.Mode != domain.ModeAsync {
		t.Errorf("expected async mode, got %s", cfg.Worker.Mode)
	}
	if len(cfg.Worker.TenantIDs) != 2 || cfg.Worker.TenantIDs[1] != "bank-b" {
		t.Errorf("unexpected tenants %v", cfg.Worker.TenantIDs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadEnvTierWinsOverFile(t *testing.T) {
	path := writeConfig(t, `tier = "pro"`)

	cfg, err := newTestLoader(path, map[string]string{EnvTier: "community"}).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierCommunity || cfg.Repository.Driver != "sqlite" {
		t.Errorf("expected community sqlite, got %s %s", cfg.Tier, cfg.Repository.Driver)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		env     map[string]string
		wantErr string
	}{
		{"BadPortEnv", "", map[string]string{EnvPort: "eighty"}, EnvPort},
		{"PortRange", "[server]\nport = 70000\n", nil, "server.port"},
		{"UnknownDriver", "[repository]\ndriver = \"mysql\"\n", nil, "repository.driver"},
		{"UnknownMode", "", map[string]string{EnvMode: "batch"}, "worker.mode"},
		{"UnknownKey", "[server]\nprot = 80\n", nil, "unknown config keys"},
		{"Malformed", "[server\n", nil, "parse config"},
		{"IncomeThresholds", "[income]\nreview_at = 90\n", nil, "review_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := newTestLoader(path, tt.env).Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := newTestLoader(filepath.Join(t.TempDir(), "absent.toml"), nil).Load(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Server.Port = 0
	cfg.Rules.MaxWorkers = 0
	cfg.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.port", "rules.max_workers", "logging.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
