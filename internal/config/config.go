package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		Instance       string   `yaml:"instance"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Progress struct {
		// Backend is memory, redis or postgres.
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
	} `yaml:"progress"`
	Payload struct {
		TTL string `yaml:"ttl"`
	} `yaml:"payload"`
	Scoring struct {
		BaseURL string `yaml:"baseURL"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"scoring"`
	Guard struct {
		ReportField string `yaml:"reportField"`
	} `yaml:"guard"`
}

// Load reads YAML config from path. A missing file yields defaults; environment
// variables override individual fields afterwards.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Postgres.URL, "POSTGRES_URL")
	setString(&cfg.Progress.Backend, "PROGRESS_BACKEND")
	setString(&cfg.Scoring.BaseURL, "SCORING_BASE_URL")
	setString(&cfg.Scoring.Token, "SCORING_TOKEN")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = parseOrigins(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Progress.Backend == "" {
		cfg.Progress.Backend = "memory"
	}
	if cfg.Guard.ReportField == "" {
		cfg.Guard.ReportField = "report-description"
	}
	if cfg.Server.Instance == "" {
		cfg.Server.Instance, _ = os.Hostname()
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// parseOrigins splits a comma-separated origins list.
func parseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
