package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/username/commissions/src/commission"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "9090")
	t.Setenv("QUOTE_CACHE_BACKEND", "Redis")
	t.Setenv("QUOTE_CACHE_TTL", "90s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("BATCH_CONCURRENCY", "0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MAX_BATCH_SIZE", "not-a-number")

	LoadConfig()

	if Cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", Cfg.Port)
	}
	if Cfg.QuoteCacheBackend != "redis" {
		t.Fatalf("expected redis backend, got %s", Cfg.QuoteCacheBackend)
	}
	if Cfg.QuoteCacheTTL != 90*time.Second {
		t.Fatalf("expected 90s ttl, got %s", Cfg.QuoteCacheTTL)
	}
	if Cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", Cfg.RateLimitRPS)
	}
	if Cfg.BatchConcurrency != 1 {
		t.Fatalf("expected batch concurrency clamped to 1, got %d", Cfg.BatchConcurrency)
	}
	if Cfg.MaxBatchSize != 500 {
		t.Fatalf("expected default batch size on bad input, got %d", Cfg.MaxBatchSize)
	}
	if len(Cfg.AllowedOrigins) != 2 || Cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", Cfg.AllowedOrigins)
	}
	if Cfg.MaxBodySizeBytes != 1<<20 {
		t.Fatalf("expected 1MiB body limit, got %d", Cfg.MaxBodySizeBytes)
	}
}

func TestLoadConfigUnknownCacheBackend(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("QUOTE_CACHE_BACKEND", "memcached")

	LoadConfig()

	if Cfg.QuoteCacheBackend != "memory" {
		t.Fatalf("expected fallback to memory, got %s", Cfg.QuoteCacheBackend)
	}
}

func TestLoadRateScheduleMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadRateSchedule(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SchemeRates[commission.SchemeReferral] != 0.15 || len(cfg.Tiers) != 3 {
		t.Fatalf("expected default schedule, got %+v", cfg)
	}
}

func TestLoadRateScheduleFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rates.yaml")
	doc := `
schemes:
  referral: 0.12
  enterprise: 0.05
tiers:
  - upper_bound: 50000
    rate: 0.08
  - upper_bound: .inf
    rate: 0.12
partners:
  acme: 0.22
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadRateSchedule(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SchemeRates[commission.SchemeReferral] != 0.12 {
		t.Fatalf("expected referral override, got %v", cfg.SchemeRates[commission.SchemeReferral])
	}
	if cfg.SchemeRates[commission.SchemeReseller] != 0.30 {
		t.Fatalf("expected reseller default kept, got %v", cfg.SchemeRates[commission.SchemeReseller])
	}
	if cfg.SchemeRates["enterprise"] != 0.05 {
		t.Fatalf("expected custom scheme, got %v", cfg.SchemeRates["enterprise"])
	}
	if len(cfg.Tiers) != 2 || !cfg.Tiers[1].Unbounded() {
		t.Fatalf("unexpected tiers: %+v", cfg.Tiers)
	}
	if cfg.PartnerRates["acme"] != 0.22 {
		t.Fatalf("expected acme partner rate, got %v", cfg.PartnerRates["acme"])
	}

	e, err := commission.New(cfg)
	if err != nil {
		t.Fatalf("engine from schedule: %v", err)
	}
	if got, _ := e.Tiered(60000); got != 520000 {
		t.Fatalf("expected 5200.00 under the loaded tiers, got %s", got)
	}
}

func TestParseRateScheduleRejectsInvalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseRateSchedule([]byte("tiers: [")); err == nil {
		t.Fatalf("expected yaml parse error")
	}

	bounded := "tiers:\n  - {upper_bound: 1000, rate: 0.1}\n"
	if _, err := ParseRateSchedule([]byte(bounded)); !errors.Is(err, commission.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}

	badRate := "partners:\n  acme: 1.7\n"
	if _, err := ParseRateSchedule([]byte(badRate)); !errors.Is(err, commission.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestShippedRateScheduleMatchesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadRateSchedule(filepath.Join("..", "..", "config", "rates.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want, _ := json.Marshal(commission.DefaultConfig())
	got, _ := json.Marshal(cfg)
	if string(got) != string(want) {
		t.Fatalf("config/rates.yaml drifted from the defaults:\n got %s\nwant %s", got, want)
	}
}
