package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 30m
progress:
  backend: redis
  ttl: 6h
scoring:
  baseURL: https://scoring.example.test
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected server/redis %+v %+v", cfg.Server, cfg.Redis)
	}
	if cfg.Progress.Backend != "redis" || TTLDuration(cfg.Progress.TTL, 0) != 6*time.Hour {
		t.Fatalf("unexpected progress %+v", cfg.Progress)
	}
	if cfg.Scoring.BaseURL != "https://scoring.example.test" {
		t.Fatalf("unexpected scoring %+v", cfg.Scoring)
	}
	if cfg.Guard.ReportField != "report-description" || cfg.Log.Level != "info" {
		t.Fatalf("expected defaults applied, got %+v %+v", cfg.Guard, cfg.Log)
	}
}

func TestLoadMissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("PROGRESS_BACKEND", "postgres")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Progress.Backend != "postgres" {
		t.Fatalf("expected env override, got %s", cfg.Progress.Backend)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.test" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("expected json log format, got %s", cfg.Log.Format)
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for bad input, got %s", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}
