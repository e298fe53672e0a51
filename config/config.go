package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all engine and service configuration
type Config struct {
	// Service
	Host               string
	Port               string
	CORSAllowedOrigins []string
	DatabaseURL        string

	// Discovery
	SearchAPIURL         string
	SearchAPIKey         string
	SearchEngineID       string
	SearchMaxResults     int
	SearchIntentKeywords string
	SearchCountry        string
	SearchLanguage       string
	DiscoveryBatchSize   int
	SearchStagger        time.Duration
	ScoreThreshold       float64

	// Extraction
	GenAIAPIURL string
	GenAIAPIKey string
	GenAIModel  string

	// Browser
	BrowserBin        string
	NavTimeout        time.Duration
	SelectorTimeout   time.Duration
	SettleDelay       time.Duration
	PopupMaxHTMLBytes int
	ScreenshotDir     string

	// Orchestration
	SiteBatchSize    int
	ProductBatchSize int
	MaxAttempts      int
	MaxResults       int
	SiteTimeout      time.Duration

	// Cache
	CacheBackend string
	CacheTTL     time.Duration

	// History
	HistoryRetention time.Duration
}

// Load reads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Host:               getEnv("HOST", ""),
		Port:               getEnv("PORT", "8080"),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DatabaseURL:        os.Getenv("DATABASE_URL"),

		SearchAPIURL:         getEnv("SEARCH_API_URL", "https://www.googleapis.com/customsearch/v1"),
		SearchAPIKey:         os.Getenv("SEARCH_API_KEY"),
		SearchEngineID:       os.Getenv("SEARCH_ENGINE_ID"),
		SearchMaxResults:     getEnvInt("SEARCH_MAX_RESULTS", 10),
		SearchIntentKeywords: getEnv("SEARCH_INTENT_KEYWORDS", "buy online"),
		SearchCountry:        getEnv("SEARCH_COUNTRY", "us"),
		SearchLanguage:       getEnv("SEARCH_LANGUAGE", "en"),
		DiscoveryBatchSize:   getEnvInt("DISCOVERY_BATCH_SIZE", 3),
		SearchStagger:        getEnvDuration("SEARCH_STAGGER", 350*time.Millisecond),
		ScoreThreshold:       getEnvFloat("SCORE_THRESHOLD", 0.3),

		GenAIAPIURL: getEnv("GENAI_API_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GenAIAPIKey: os.Getenv("GENAI_API_KEY"),
		GenAIModel:  getEnv("GENAI_MODEL", "gemini-2.0-flash"),

		BrowserBin:        getEnv("BROWSER_BIN", ""),
		NavTimeout:        getEnvDuration("NAV_TIMEOUT", 8*time.Second),
		SelectorTimeout:   getEnvDuration("SELECTOR_TIMEOUT", 1500*time.Millisecond),
		SettleDelay:       getEnvDuration("SETTLE_DELAY", 800*time.Millisecond),
		PopupMaxHTMLBytes: getEnvInt("POPUP_MAX_HTML_BYTES", 8192),
		ScreenshotDir:     getEnv("SCREENSHOT_DIR", ""),

		SiteBatchSize:    getEnvInt("SITE_BATCH_SIZE", 3),
		ProductBatchSize: getEnvInt("PRODUCT_BATCH_SIZE", 2),
		MaxAttempts:      getEnvInt("MAX_ATTEMPTS", 9),
		MaxResults:       getEnvInt("MAX_RESULTS", 3),
		SiteTimeout:      getEnvDuration("SITE_TIMEOUT", 45*time.Second),

		CacheBackend: getEnv("CACHE_BACKEND", "postgres"),
		CacheTTL:     time.Duration(getEnvInt("CACHE_TTL_HOURS", 24)) * time.Hour,

		HistoryRetention: time.Duration(getEnvInt("HISTORY_RETENTION_DAYS", 90)) * 24 * time.Hour,
	}
}

// Validate checks that required external credentials are present.
// Missing values are configuration errors and fatal at startup.
func (c *Config) Validate() error {
	if c.SearchAPIKey == "" {
		return fmt.Errorf("SEARCH_API_KEY environment variable is required")
	}
	if c.SearchEngineID == "" {
		return fmt.Errorf("SEARCH_ENGINE_ID environment variable is required")
	}
	if c.GenAIAPIKey == "" {
		return fmt.Errorf("GENAI_API_KEY environment variable is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return nil
}

// RequestTimeout returns the aggregate deadline for one comparison
// request, derived from the attempt budget and per-site timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.MaxAttempts)*c.SiteTimeout + 30*time.Second
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
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
