package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the process-wide configuration. Every field has a sensible
// default; the YAML file and environment variables are both optional except
// for the database URL, which must come from one of them.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Redis     RedisConfig     `yaml:"redis"`
	Detection DetectionConfig `yaml:"detection"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	// PushRateLimit caps /collect requests per client IP per minute.
	PushRateLimit int `yaml:"push_rate_limit"`
}

type DatabaseConfig struct {
	URL              string   `yaml:"url"`
	OperationTimeout Duration `yaml:"operation_timeout"`
}

type IngestConfig struct {
	LogFiles []string `yaml:"log_files"`
}

type EnrichConfig struct {
	GeoIPDBPath string `yaml:"geoip_db_path"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type DetectionConfig struct {
	WhitelistCIDRs []string `yaml:"whitelist_cidrs"`
	KnownAdmins    []string `yaml:"known_admins"`
	CursorDir      string   `yaml:"cursor_dir"`
	ScanInterval   Duration `yaml:"scan_interval"`
}

// Duration is a time.Duration that YAML reads as either a Go duration string
// ("90s") or a bare number of seconds, matching the env override format.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8000", PushRateLimit: 600},
		Database: DatabaseConfig{OperationTimeout: Duration(10 * time.Second)},
		Ingest: IngestConfig{
			LogFiles: []string{"/var/log/auth.log", "/var/log/nginx/access.log"},
		},
		Redis: RedisConfig{Channel: "siem:alerts"},
		Detection: DetectionConfig{
			WhitelistCIDRs: []string{"10.0.0.0/8", "192.168.0.0/16"},
			KnownAdmins:    []string{"bob", "superuser"},
			CursorDir:      ".",
			ScanInterval:   Duration(40 * time.Second),
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty or missing), then environment overrides.
// Fails only when no database URL is configured anywhere.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case os.IsNotExist(err):
			// fine, env-only
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("PUSH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.PushRateLimit = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("GEOIP_DB_PATH"); v != "" {
		c.Enrich.GeoIPDBPath = v
	}
	if v := os.Getenv("LOG_FILES"); v != "" {
		c.Ingest.LogFiles = splitList(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("WHITELIST_CIDRS"); v != "" {
		c.Detection.WhitelistCIDRs = splitList(v)
	}
	if v := os.Getenv("KNOWN_ADMINS"); v != "" {
		c.Detection.KnownAdmins = splitList(v)
	}
	if v := os.Getenv("CURSOR_DIR"); v != "" {
		c.Detection.CursorDir = v
	}
	if d, ok := envDuration("SCAN_INTERVAL"); ok {
		c.Detection.ScanInterval = Duration(d)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	return 0, false
}

// WindowOverride returns the WINDOW_<RULE> env override for a rule slug like
// "BRUTE_FORCE", or def when unset or invalid. Bare numbers are read as
// seconds. ThresholdOverride and DedupeOverride do the same for
// THRESHOLD_<RULE> and DEDUPE_<RULE>.
func WindowOverride(slug string, def time.Duration) time.Duration {
	if d, ok := envDuration("WINDOW_" + slug); ok {
		return d
	}
	return def
}

func ThresholdOverride(slug string, def int) int {
	if v := os.Getenv("THRESHOLD_" + slug); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func DedupeOverride(slug string, def time.Duration) time.Duration {
	if d, ok := envDuration("DEDUPE_" + slug); ok {
		return d
	}
	return def
}
