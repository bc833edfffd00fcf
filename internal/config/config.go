// Package config loads process settings from the environment (optionally
// seeded from a .env file) and the classification catalog from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Storage
	DatabaseURL string

	// HTTP surface
	EnableHTTP bool
	HTTPAddr   string

	CatalogPath string

	// Scheduling
	FetchInterval        time.Duration
	SweepInterval        time.Duration
	MaxConcurrentFetches int
	LeaseTTL             time.Duration

	// Fetching and extraction
	RequestTimeout time.Duration
	ExtractTimeout time.Duration
	UserAgent      string
	MinBodyChars   int
	IngestCutoff   time.Time // zero means no cutoff

	// DedupWindow bounds how far back stored titles seed the similarity set.
	DedupWindow time.Duration

	// Retention
	RetentionDays           int
	RetentionKeepBookmarked bool

	// Summarization
	SummaryProvider    string // deepseek | gemini
	DeepSeekAPIKey     string
	DeepSeekEndpoint   string
	DeepSeekModel      string
	GeminiAPIKey       string
	GeminiModel        string
	SummaryMaxInput    int
	SummaryMinLength   int
	SummaryMaxLength   int
	SummaryRetries     int
	SummaryRetryDelay  time.Duration
	MaxSummariesPerRun int
	SummaryRPS         float64

	Debug bool
}

const (
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
)

func defaults() *Config {
	return &Config{
		DatabaseURL:             "sqlite://technews.db",
		EnableHTTP:              true,
		HTTPAddr:                ":8080",
		CatalogPath:             "configs/catalog.yaml",
		FetchInterval:           5 * time.Minute,
		SweepInterval:           24 * time.Hour,
		MaxConcurrentFetches:    5,
		LeaseTTL:                10 * time.Minute,
		RequestTimeout:          30 * time.Second,
		ExtractTimeout:          15 * time.Second,
		UserAgent:               "technews/1.0 (+https://github.com/deusflow/technews)",
		MinBodyChars:            200,
		DedupWindow:             72 * time.Hour,
		RetentionDays:           30,
		RetentionKeepBookmarked: true,
		SummaryProvider:         ProviderDeepSeek,
		DeepSeekEndpoint:        "https://api.deepseek.com/v1",
		DeepSeekModel:           "deepseek-chat",
		GeminiModel:             "gemini-1.5-flash",
		SummaryMaxInput:         4000,
		SummaryMinLength:        100,
		SummaryMaxLength:        300,
		SummaryRetries:          3,
		SummaryRetryDelay:       2 * time.Second,
		MaxSummariesPerRun:      20,
		SummaryRPS:              1,
	}
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := defaults()

	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.EnableHTTP = getEnvBoolOrDefault("ENABLE_HTTP", cfg.EnableHTTP)
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.CatalogPath = getEnvOrDefault("CATALOG_PATH", cfg.CatalogPath)

	cfg.FetchInterval = getEnvDurationOrDefault("FETCH_INTERVAL", cfg.FetchInterval)
	cfg.SweepInterval = getEnvDurationOrDefault("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.MaxConcurrentFetches = getEnvIntOrDefault("MAX_CONCURRENT_FETCHES", cfg.MaxConcurrentFetches)
	cfg.LeaseTTL = getEnvDurationOrDefault("LEASE_TTL", cfg.LeaseTTL)

	cfg.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ExtractTimeout = getEnvDurationOrDefault("EXTRACT_TIMEOUT", cfg.ExtractTimeout)
	cfg.UserAgent = getEnvOrDefault("USER_AGENT", cfg.UserAgent)
	cfg.MinBodyChars = getEnvIntOrDefault("MIN_BODY_CHARS", cfg.MinBodyChars)
	cfg.DedupWindow = getEnvDurationOrDefault("DEDUP_WINDOW", cfg.DedupWindow)

	if v := strings.TrimSpace(os.Getenv("INGEST_CUTOFF")); v != "" {
		t, err := parseCutoff(v)
		if err != nil {
			return nil, fmt.Errorf("INGEST_CUTOFF: %w", err)
		}
		cfg.IngestCutoff = t
	}

	cfg.RetentionDays = getEnvIntOrDefault("RETENTION_DAYS", cfg.RetentionDays)
	cfg.RetentionKeepBookmarked = getEnvBoolOrDefault("RETENTION_KEEP_BOOKMARKED", cfg.RetentionKeepBookmarked)

	cfg.SummaryProvider = strings.ToLower(getEnvOrDefault("SUMMARY_PROVIDER", cfg.SummaryProvider))
	cfg.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.DeepSeekEndpoint = getEnvOrDefault("DEEPSEEK_ENDPOINT", cfg.DeepSeekEndpoint)
	cfg.DeepSeekModel = getEnvOrDefault("DEEPSEEK_MODEL", cfg.DeepSeekModel)
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.SummaryMaxInput = getEnvIntOrDefault("SUMMARY_MAX_INPUT", cfg.SummaryMaxInput)
	cfg.SummaryMinLength = getEnvIntOrDefault("SUMMARY_MIN_LENGTH", cfg.SummaryMinLength)
	cfg.SummaryMaxLength = getEnvIntOrDefault("SUMMARY_MAX_LENGTH", cfg.SummaryMaxLength)
	cfg.SummaryRetries = getEnvIntOrDefault("SUMMARY_RETRIES", cfg.SummaryRetries)
	cfg.SummaryRetryDelay = getEnvDurationOrDefault("SUMMARY_RETRY_DELAY", cfg.SummaryRetryDelay)
	cfg.MaxSummariesPerRun = getEnvIntOrDefault("MAX_SUMMARIES_PER_RUN", cfg.MaxSummariesPerRun)
	cfg.SummaryRPS = getEnvFloatOrDefault("SUMMARY_RPS", cfg.SummaryRPS)

	cfg.Debug = os.Getenv("DEBUG") == "true"

	return cfg, cfg.Validate()
}

// SummaryAPIKey returns the credential of the selected provider.
func (c *Config) SummaryAPIKey() string {
	if c.SummaryProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.DeepSeekAPIKey
}

// RetentionAge converts RetentionDays to a duration.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(c.DatabaseURL, "postgresql://") &&
		!strings.HasPrefix(c.DatabaseURL, "sqlite://") {
		return fmt.Errorf("DATABASE_URL must start with postgres://, postgresql:// or sqlite://")
	}
	if c.MaxConcurrentFetches < 1 {
		return fmt.Errorf("MAX_CONCURRENT_FETCHES must be positive")
	}
	if c.FetchInterval <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("FETCH_INTERVAL and SWEEP_INTERVAL must be positive")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1")
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive")
	}
	if c.MinBodyChars < 0 {
		return fmt.Errorf("MIN_BODY_CHARS must not be negative")
	}
	if c.SummaryProvider != ProviderDeepSeek && c.SummaryProvider != ProviderGemini {
		return fmt.Errorf("SUMMARY_PROVIDER must be %q or %q", ProviderDeepSeek, ProviderGemini)
	}
	if c.SummaryMinLength < 1 || c.SummaryMinLength > c.SummaryMaxLength {
		return fmt.Errorf("SUMMARY_MIN_LENGTH must be between 1 and SUMMARY_MAX_LENGTH")
	}
	if c.SummaryMaxInput < c.SummaryMaxLength {
		return fmt.Errorf("SUMMARY_MAX_INPUT must not be smaller than SUMMARY_MAX_LENGTH")
	}
	if c.SummaryRPS <= 0 {
		return fmt.Errorf("SUMMARY_RPS must be positive")
	}
	return nil
}

func parseCutoff(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or bare seconds ("300").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
