// Package config builds the explicit configuration object handed to every
// component that talks to an external service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultTrendsURL   = "https://trends-dashboard-backend-766707302238.europe-west1.run.app"
	DefaultGeminiModel = "gemini-2.0-flash-exp"
)

// Merge modes for the insights pipeline.
const (
	MergeModel  = "model"
	MergeConcat = "concat"
)

// Dashboard data sources.
const (
	DataSourceMock    = "mock"
	DataSourceBackend = "backend"
)

type Config struct {
	Port     string `validate:"required"`
	LogLevel string

	// PublicURL is the externally reachable base URL advertised in the agent card.
	PublicURL       string        `validate:"required,url"`
	A2ABlockTimeout time.Duration `validate:"gt=0s"`

	// GeminiAPIKey is only required by commands that call the generative API;
	// the gemini client refuses to build without it.
	GeminiAPIKey string
	GeminiModel  string `validate:"required"`

	TrendsBaseURL    string        `validate:"required,url"`
	TrendsTimeout    time.Duration `validate:"gt=0s"`
	TrendsCacheTTL   time.Duration `validate:"gte=0s"`
	TrendsCacheSize  int           `validate:"gte=1"`
	TrendsRatePerSec float64       `validate:"gt=0"`

	Insights Insights

	DashboardDataSource string   `validate:"oneof=mock backend"`
	DashboardSources    []string `validate:"dive,oneof=google youtube"`
	DashboardCategory   string   `validate:"required"`
	KeywordGroupsFile   string
	KeywordGroups       []KeywordGroup `validate:"dive"`
}

// Insights holds the tuning knobs of the CSV insights pipeline.
type Insights struct {
	TokenBudget       int           `validate:"gt=0"`
	TokensPerRow      int           `validate:"gt=0"`
	OverlapRatio      float64       `validate:"gte=0,lt=1"`
	RequestDelay      time.Duration `validate:"gte=0s"`
	RateLimitCooldown time.Duration `validate:"gte=0s"`
	MaxAttempts       int           `validate:"gte=1"`
	RequestTimeout    time.Duration `validate:"gt=0s"`
	MergeMode         string        `validate:"oneof=model concat"`
	CountTokens       bool
	RunHistory        int `validate:"gte=1"`
}

var validate = validator.New()

// Load reads .env (if present) and the process environment, then validates the
// result. Invalid numeric values fall back to their defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  getEnv("GEMINI_MODEL", DefaultGeminiModel),

		A2ABlockTimeout: getEnvDuration("A2A_BLOCK_TIMEOUT", 25*time.Second),

		TrendsBaseURL:    strings.TrimRight(getEnv("TRENDS_API_URL", DefaultTrendsURL), "/"),
		TrendsTimeout:    getEnvDuration("TRENDS_TIMEOUT", 30*time.Second),
		TrendsCacheTTL:   getEnvDuration("TRENDS_CACHE_TTL", 5*time.Minute),
		TrendsCacheSize:  getEnvInt("TRENDS_CACHE_SIZE", 256),
		TrendsRatePerSec: getEnvFloat("TRENDS_RATE_PER_SEC", 5),

		Insights: Insights{
			TokenBudget:       getEnvInt("INSIGHTS_TOKEN_BUDGET", 800000),
			TokensPerRow:      getEnvInt("INSIGHTS_TOKENS_PER_ROW", 55),
			OverlapRatio:      getEnvFloat("INSIGHTS_OVERLAP_RATIO", 0.1),
			RequestDelay:      getEnvDuration("INSIGHTS_REQUEST_DELAY", 90*time.Second),
			RateLimitCooldown: getEnvDuration("INSIGHTS_RATE_LIMIT_COOLDOWN", 90*time.Second),
			MaxAttempts:       getEnvInt("INSIGHTS_MAX_ATTEMPTS", 3),
			RequestTimeout:    getEnvDuration("INSIGHTS_REQUEST_TIMEOUT", 2*time.Minute),
			MergeMode:         getEnv("INSIGHTS_MERGE_MODE", MergeModel),
			CountTokens:       getEnvBool("INSIGHTS_COUNT_TOKENS", false),
			RunHistory:        getEnvInt("INSIGHTS_RUN_HISTORY", 32),
		},

		DashboardDataSource: getEnv("DASHBOARD_DATA_SOURCE", DataSourceMock),
		DashboardSources:    getEnvList("DASHBOARD_SOURCES", []string{"google", "youtube"}),
		DashboardCategory:   getEnv("DASHBOARD_CATEGORY", "Dairy & Alternatives"),
		KeywordGroupsFile:   os.Getenv("KEYWORD_GROUPS_FILE"),
	}
	cfg.PublicURL = strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:"+cfg.Port), "/")

	groups, err := LoadKeywordGroups(cfg.KeywordGroupsFile)
	if err != nil {
		return nil, err
	}
	cfg.KeywordGroups = groups

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// A budget below one row would leave the chunker with nothing to send.
	if c.Insights.TokenBudget < c.Insights.TokensPerRow {
		return fmt.Errorf("invalid configuration: INSIGHTS_TOKEN_BUDGET (%d) must be at least INSIGHTS_TOKENS_PER_ROW (%d)",
			c.Insights.TokenBudget, c.Insights.TokensPerRow)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
