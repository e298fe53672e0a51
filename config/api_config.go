package config

import (
	"strings"
	"time"
)

// APIConfig holds API configuration settings
type APIConfig struct {
	Version           string
	BaseURL           string
	RequireAPIKey     bool
	RateLimitEnabled  bool
	LoggingEnabled    bool
	CORSEnabled       bool
	MaxRequestSize    int64
	RequestTimeout    time.Duration
	SubscriptionPlans map[string]SubscriptionPlan
}

// SubscriptionPlan defines the limits and features for each subscription tier
type SubscriptionPlan struct {
	Name            string
	RateLimit       int // requests per minute
	DailyLimit      int // comparisons per day
	MaxCartProducts int // maximum products per comparison
	MaxAsyncTasks   int // maximum queued async comparisons
	Priority        bool
	Price           float64 // monthly price in USD
	Features        []string
}

// DefaultAPIConfig returns the default API configuration
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Version:          "v1",
		BaseURL:          getEnv("API_BASE_URL", "https://api.cartscout.app"),
		RequireAPIKey:    getEnvBool("API_REQUIRE_KEY", false),
		RateLimitEnabled: getEnvBool("API_RATE_LIMIT_ENABLED", true),
		LoggingEnabled:   getEnvBool("API_LOGGING_ENABLED", true),
		CORSEnabled:      getEnvBool("API_CORS_ENABLED", true),
		MaxRequestSize:   getEnvInt64("API_MAX_REQUEST_SIZE", 1*1024*1024), // 1MB
		RequestTimeout:   getEnvDuration("API_REQUEST_TIMEOUT", 5*time.Minute),
		SubscriptionPlans: map[string]SubscriptionPlan{
			"free": {
				Name:            "Free",
				RateLimit:       30,
				DailyLimit:      50,
				MaxCartProducts: 5,
				MaxAsyncTasks:   2,
				Priority:        false,
				Price:           0.0,
				Features: []string{
					"Cross-site price comparison",
					"Up to 5 cart products",
					"Cached results",
				},
			},
			"basic": {
				Name:            "Basic",
				RateLimit:       120,
				DailyLimit:      500,
				MaxCartProducts: 15,
				MaxAsyncTasks:   5,
				Priority:        false,
				Price:           9.99,
				Features: []string{
					"Everything in Free",
					"Larger carts",
					"Async comparisons",
					"Comparison history",
				},
			},
			"pro": {
				Name:            "Professional",
				RateLimit:       300,
				DailyLimit:      5000,
				MaxCartProducts: 40,
				MaxAsyncTasks:   20,
				Priority:        true,
				Price:           29.99,
				Features: []string{
					"Everything in Basic",
					"Priority processing",
					"Extended history",
					"Usage analytics",
				},
			},
			"enterprise": {
				Name:            "Enterprise",
				RateLimit:       1000,
				DailyLimit:      100000,
				MaxCartProducts: 100,
				MaxAsyncTasks:   100,
				Priority:        true,
				Price:           199.99,
				Features: []string{
					"Everything in Pro",
					"Custom rate limits",
					"Dedicated support",
					"SLA guarantees",
				},
			},
		},
	}
}

// GetPlan returns a subscription plan by name
func (c *APIConfig) GetPlan(planName string) (SubscriptionPlan, bool) {
	plan, exists := c.SubscriptionPlans[planName]
	return plan, exists
}

// GetDefaultPlan returns the free plan
func (c *APIConfig) GetDefaultPlan() SubscriptionPlan {
	return c.SubscriptionPlans["free"]
}

// IsValidPlan checks if a plan name is valid
func (c *APIConfig) IsValidPlan(planName string) bool {
	_, exists := c.SubscriptionPlans[planName]
	return exists
}

// GetPlanByAPIKey determines the plan based on API key prefix
func (c *APIConfig) GetPlanByAPIKey(apiKey string) SubscriptionPlan {
	if apiKey == "" {
		return c.GetDefaultPlan()
	}

	if len(apiKey) < 10 {
		return c.GetDefaultPlan()
	}

	if strings.HasPrefix(apiKey, "enterprise_") {
		return c.SubscriptionPlans["enterprise"]
	} else if strings.HasPrefix(apiKey, "pro_") {
		return c.SubscriptionPlans["pro"]
	} else if strings.HasPrefix(apiKey, "basic_") {
		return c.SubscriptionPlans["basic"]
	} else if strings.HasPrefix(apiKey, "test_") {
		// Test keys get pro plan access
		return c.SubscriptionPlans["pro"]
	}

	return c.GetDefaultPlan()
}
