package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds everything the API server and repctl need at startup.
type Config struct {
	Env         string
	Port        string
	DebugErrors bool
	CORSOrigins []string
	// TrustProxy makes client addresses come from X-Forwarded-For and
	// friends. Only enable it behind a proxy that overwrites those headers.
	TrustProxy  bool

	Database  Database
	RateLimit RateLimit
	Log       Log
}

// Database configures the storage handle.
type Database struct {
	URL             string
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	AutoMigrate     bool
}

// RateLimit configures the per-client sliding window.
type RateLimit struct {
	Window        time.Duration
	Max           int
	SweepInterval time.Duration
	// RedisURL switches the limiter to the shared Redis backend when set.
	RedisURL string
}

type Log struct {
	Level  string
	Format string
}

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrInvalidRateLimit   = errors.New("rate limit window and max must be positive")
)

// DefaultCORSOrigins are the front-ends allowed to call the API when
// CORS_ORIGINS is not configured.
var DefaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"https://essentials-dev.empowered.vote",
	"https://essentials.empowered.vote",
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Env:         "development",
		Port:        "5050",
		CORSOrigins: append([]string(nil), DefaultCORSOrigins...),
		Database: Database{
			ConnectTimeout:  2 * time.Second,
			QueryTimeout:    10 * time.Second,
			MaxOpenConns:    20,
			MaxIdleConns:    20,
			ConnMaxLifetime: 30 * time.Minute,
			SlowThreshold:   100 * time.Millisecond,
			AutoMigrate:     true,
		},
		RateLimit: RateLimit{
			Window:        15 * time.Minute,
			Max:           100,
			SweepInterval: time.Minute,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file named by CONFIG_FILE, and environment variables (including
// those in .env.local).
//
// Environment variables:
//   - APP_ENV, PORT, DEBUG_ERRORS, TRUST_PROXY, CORS_ORIGINS (comma separated)
//   - DATABASE_URL, DB_CONNECT_TIMEOUT, DB_QUERY_TIMEOUT, DB_MAX_OPEN_CONNS,
//     DB_MAX_IDLE_CONNS, DB_CONN_MAX_LIFETIME, DB_SLOW_THRESHOLD, DB_AUTO_MIGRATE
//   - RATE_LIMIT_WINDOW, RATE_LIMIT_MAX, RATE_LIMIT_SWEEP, REDIS_URL
//   - LOG_LEVEL, LOG_FORMAT
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.ApplyYAML(data); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// fileConfig mirrors Config in YAML form. Durations are strings such as "15m".
type fileConfig struct {
	Env         string   `yaml:"env"`
	Port        string   `yaml:"port"`
	DebugErrors *bool    `yaml:"debug_errors"`
	TrustProxy  *bool    `yaml:"trust_proxy"`
	CORSOrigins []string `yaml:"cors_origins"`
	Database    struct {
		URL             string `yaml:"url"`
		ConnectTimeout  string `yaml:"connect_timeout"`
		QueryTimeout    string `yaml:"query_timeout"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		SlowThreshold   string `yaml:"slow_threshold"`
		AutoMigrate     *bool  `yaml:"auto_migrate"`
	} `yaml:"database"`
	RateLimit struct {
		Window        string `yaml:"window"`
		Max           int    `yaml:"max"`
		SweepInterval string `yaml:"sweep_interval"`
		RedisURL      string `yaml:"redis_url"`
	} `yaml:"rate_limit"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// ApplyYAML overlays the non-empty values of a YAML document onto c.
func (c *Config) ApplyYAML(data []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.Env, f.Env)
	setString(&c.Port, f.Port)
	if f.DebugErrors != nil {
		c.DebugErrors = *f.DebugErrors
	}
	if f.TrustProxy != nil {
		c.TrustProxy = *f.TrustProxy
	}
	if len(f.CORSOrigins) > 0 {
		c.CORSOrigins = f.CORSOrigins
	}

	setString(&c.Database.URL, f.Database.URL)
	setInt(&c.Database.MaxOpenConns, f.Database.MaxOpenConns)
	setInt(&c.Database.MaxIdleConns, f.Database.MaxIdleConns)
	if f.Database.AutoMigrate != nil {
		c.Database.AutoMigrate = *f.Database.AutoMigrate
	}

	setInt(&c.RateLimit.Max, f.RateLimit.Max)
	setString(&c.RateLimit.RedisURL, f.RateLimit.RedisURL)

	setString(&c.Log.Level, f.Log.Level)
	setString(&c.Log.Format, f.Log.Format)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"database.connect_timeout", f.Database.ConnectTimeout, &c.Database.ConnectTimeout},
		{"database.query_timeout", f.Database.QueryTimeout, &c.Database.QueryTimeout},
		{"database.conn_max_lifetime", f.Database.ConnMaxLifetime, &c.Database.ConnMaxLifetime},
		{"database.slow_threshold", f.Database.SlowThreshold, &c.Database.SlowThreshold},
		{"rate_limit.window", f.RateLimit.Window, &c.RateLimit.Window},
		{"rate_limit.sweep_interval", f.RateLimit.SweepInterval, &c.RateLimit.SweepInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// ApplyEnv overlays environment variables onto c. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("APP_ENV"); ok {
		c.Env = strings.ToLower(v)
	}
	if v, ok := get("PORT"); ok {
		c.Port = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.Database.URL = v
	}
	if v, ok := get("REDIS_URL"); ok {
		c.RateLimit.RedisURL = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := get("CORS_ORIGINS"); ok {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}

	bools := map[string]*bool{
		"DEBUG_ERRORS":    &c.DebugErrors,
		"TRUST_PROXY":     &c.TrustProxy,
		"DB_AUTO_MIGRATE": &c.Database.AutoMigrate,
	}
	for key, dst := range bools {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"DB_MAX_OPEN_CONNS": &c.Database.MaxOpenConns,
		"DB_MAX_IDLE_CONNS": &c.Database.MaxIdleConns,
		"RATE_LIMIT_MAX":    &c.RateLimit.Max,
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"DB_CONNECT_TIMEOUT":   &c.Database.ConnectTimeout,
		"DB_QUERY_TIMEOUT":     &c.Database.QueryTimeout,
		"DB_CONN_MAX_LIFETIME": &c.Database.ConnMaxLifetime,
		"DB_SLOW_THRESHOLD":    &c.Database.SlowThreshold,
		"RATE_LIMIT_WINDOW":    &c.RateLimit.Window,
		"RATE_LIMIT_SWEEP":     &c.RateLimit.SweepInterval,
	}
	for key, dst := range durations {
		if v, ok := get(key); ok {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks the settings the server cannot run without.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// parseDuration accepts Go durations ("15m") or a bare number of milliseconds
// ("900000").
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
