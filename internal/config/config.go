// Package config handles application configuration.
//
// Defaults come from an optional config.json file, overridden by environment
// variables. Sequence runner configs live separately under RunnerConfigDir
// (see internal/seqconfig) and may be redirected with CRAWL_CONFIG_PATH.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// CORS
	CORSOrigins []string

	// Crawl defaults
	UserAgent     string
	Concurrency   int           // candidate workers per job
	FetchTimeout  time.Duration // per-request timeout
	RateLimit     time.Duration // minimum inter-request delay per host
	MaxDownloads  int           // global download cap per run (0 = unlimited)
	PatternsPlace int           // candidate URLs per place

	// Cache-age policy windows
	MaxAge     time.Duration // successful responses stay fresh
	Refresh404 time.Duration // 404s not retried within window
	Retry4xx   time.Duration // non-404 4xx not retried within window

	// Jobs
	AllowMultiJobs bool

	// Telemetry
	EventBatchThreshold int // crawls above this page count batch event writes

	// Sequence runner config directory (holds crawl-runner.{json|yaml})
	RunnerConfigDir string
}

// fileConfig mirrors the subset of Config settable from config.json.
type fileConfig struct {
	Port                int      `json:"port"`
	BaseURL             string   `json:"baseUrl"`
	DatabaseURL         string   `json:"databaseUrl"`
	CORSOrigins         []string `json:"corsOrigins"`
	UserAgent           string   `json:"userAgent"`
	Concurrency         int      `json:"concurrency"`
	FetchTimeoutMs      int      `json:"fetchTimeoutMs"`
	RateLimitMs         int      `json:"rateLimitMs"`
	MaxDownloads        int      `json:"maxDownloads"`
	PatternsPerPlace    int      `json:"patternsPerPlace"`
	MaxAgeDays          int      `json:"maxAgeDays"`
	Refresh404Days      int      `json:"refresh404Days"`
	Retry4xxDays        int      `json:"retry4xxDays"`
	AllowMultiJobs      bool     `json:"allowMultiJobs"`
	EventBatchThreshold int      `json:"eventBatchThreshold"`
	RunnerConfigDir     string   `json:"runnerConfigDir"`
}

// DefaultConfigFile is the default-config file read at startup when present.
const DefaultConfigFile = "config.json"

// Load reads configuration from config.json (if present) and environment
// variables. Environment variables win.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                8080,
		BaseURL:             "http://localhost:8080",
		DatabaseURL:         "file:data/news.db?_journal=WAL&_timeout=5000",
		CORSOrigins:         []string{"http://localhost:3000"},
		UserAgent:           "hubcrawl/1.0 (+https://github.com/newsmap/hubcrawl)",
		Concurrency:         2,
		FetchTimeout:        15 * time.Second,
		RateLimit:           500 * time.Millisecond,
		MaxDownloads:        0,
		PatternsPlace:       3,
		MaxAge:              7 * 24 * time.Hour,
		Refresh404:          180 * 24 * time.Hour,
		Retry4xx:            7 * 24 * time.Hour,
		AllowMultiJobs:      false,
		EventBatchThreshold: 20,
		RunnerConfigDir:     "config",
	}

	if err := cfg.applyFile(getEnv("HUBCRAWL_CONFIG", DefaultConfigFile)); err != nil {
		return nil, err
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.BaseURL = getEnv("BASE_URL", cfg.BaseURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.CORSOrigins = getEnvSlice("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.UserAgent = getEnv("CRAWL_USER_AGENT", cfg.UserAgent)
	cfg.AllowMultiJobs = getEnvBool("ALLOW_MULTI_JOBS", cfg.AllowMultiJobs)
	cfg.RunnerConfigDir = getEnv("CRAWL_CONFIG_PATH", cfg.RunnerConfigDir)

	var err error
	if cfg.Concurrency, err = getEnvPositiveInt("CRAWL_CONCURRENCY", cfg.Concurrency); err != nil {
		return nil, err
	}
	if cfg.PatternsPlace, err = getEnvPositiveInt("CRAWL_PATTERNS_PER_PLACE", cfg.PatternsPlace); err != nil {
		return nil, err
	}
	cfg.FetchTimeout = getEnvDuration("CRAWL_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.RateLimit = getEnvDuration("CRAWL_RATE_LIMIT", cfg.RateLimit)
	cfg.MaxAge = getEnvDuration("CRAWL_MAX_AGE", cfg.MaxAge)
	cfg.Refresh404 = getEnvDuration("CRAWL_REFRESH_404", cfg.Refresh404)
	cfg.Retry4xx = getEnvDuration("CRAWL_RETRY_4XX", cfg.Retry4xx)
	cfg.MaxDownloads = getEnvInt("CRAWL_MAX_DOWNLOADS", cfg.MaxDownloads)
	cfg.EventBatchThreshold = getEnvInt("EVENT_BATCH_THRESHOLD", cfg.EventBatchThreshold)

	return cfg, nil
}

// applyFile merges a config.json file into cfg. A missing file is fine;
// invalid JSON is not.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if fc.Port > 0 {
		c.Port = fc.Port
	}
	if fc.BaseURL != "" {
		c.BaseURL = fc.BaseURL
	}
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	if len(fc.CORSOrigins) > 0 {
		c.CORSOrigins = fc.CORSOrigins
	}
	if fc.UserAgent != "" {
		c.UserAgent = fc.UserAgent
	}
	if fc.Concurrency > 0 {
		c.Concurrency = fc.Concurrency
	}
	if fc.FetchTimeoutMs > 0 {
		c.FetchTimeout = time.Duration(fc.FetchTimeoutMs) * time.Millisecond
	}
	if fc.RateLimitMs > 0 {
		c.RateLimit = time.Duration(fc.RateLimitMs) * time.Millisecond
	}
	if fc.MaxDownloads > 0 {
		c.MaxDownloads = fc.MaxDownloads
	}
	if fc.PatternsPerPlace > 0 {
		c.PatternsPlace = fc.PatternsPerPlace
	}
	if fc.MaxAgeDays > 0 {
		c.MaxAge = time.Duration(fc.MaxAgeDays) * 24 * time.Hour
	}
	if fc.Refresh404Days > 0 {
		c.Refresh404 = time.Duration(fc.Refresh404Days) * 24 * time.Hour
	}
	if fc.Retry4xxDays > 0 {
		c.Retry4xx = time.Duration(fc.Retry4xxDays) * 24 * time.Hour
	}
	if fc.AllowMultiJobs {
		c.AllowMultiJobs = true
	}
	if fc.EventBatchThreshold > 0 {
		c.EventBatchThreshold = fc.EventBatchThreshold
	}
	if fc.RunnerConfigDir != "" {
		c.RunnerConfigDir = fc.RunnerConfigDir
	}
	return nil
}

// TokenValues exposes the loaded settings as the config token namespace
// for sequence files (`@config.key`). Keys match the config.json field
// names.
func (c *Config) TokenValues() map[string]any {
	return map[string]any{
		"baseUrl":          c.BaseURL,
		"userAgent":        c.UserAgent,
		"concurrency":      c.Concurrency,
		"fetchTimeoutMs":   int(c.FetchTimeout / time.Millisecond),
		"rateLimitMs":      int(c.RateLimit / time.Millisecond),
		"maxDownloads":     c.MaxDownloads,
		"patternsPerPlace": c.PatternsPlace,
		"allowMultiJobs":   c.AllowMultiJobs,
		"runnerConfigDir":  c.RunnerConfigDir,
	}
}

// ParsePositiveInt parses a numeric flag with positive-integer semantics:
// zero, negative and non-integer values are rejected.
func ParsePositiveInt(name, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %d", name, n)
	}
	return n, nil
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

func getEnvPositiveInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return ParsePositiveInt(key, value)
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
