package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"

	"cartscout/config"
	"cartscout/models"
)

type contextKey int

const (
	ctxKeyAPIKey contextKey = iota
	ctxKeyPlan
)

// KeyValidator validates an API key against storage and counts the
// use. Satisfied by services.APIKeyService.
type KeyValidator interface {
	ValidateAPIKey(apiKey string) (*models.APIKey, error)
}

// Paths that skip API key checks and rate limiting
func isOpenPath(path string) bool {
	switch path {
	case "/health", "/metrics", "/status", "/api/docs":
		return true
	}
	return strings.HasPrefix(path, "/api/docs/")
}

// RateLimitMiddleware enforces each plan's per-minute request rate.
// Requests are bucketed by API key when one is present, otherwise by
// client IP.
func RateLimitMiddleware(apiCfg *config.APIConfig) func(http.Handler) http.Handler {
	limiters := make(map[string]*limiter.Limiter, len(apiCfg.SubscriptionPlans))
	for _, plan := range apiCfg.SubscriptionPlans {
		lmt := tollbooth.NewLimiter(float64(plan.RateLimit)/60.0, &limiter.ExpirableOptions{
			DefaultExpirationTTL: time.Hour,
		})
		lmt.SetBurst(burstFor(plan.RateLimit))
		limiters[plan.Name] = lmt
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpenPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := ExtractAPIKey(r)
			plan := apiCfg.GetPlanByAPIKey(apiKey)

			lmt, ok := limiters[plan.Name]
			if !ok {
				lmt = limiters[apiCfg.GetDefaultPlan().Name]
			}

			identity := apiKey
			if identity == "" {
				identity = clientIP(r)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(plan.RateLimit))

			if httpErr := tollbooth.LimitByKeys(lmt, []string{plan.Name, identity}); httpErr != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(httpErr.StatusCode)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded, slow down",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// burstFor allows a short burst on top of the steady per-minute rate
func burstFor(perMinute int) int {
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return burst
}

// APIKeyMiddleware validates API keys against storage and attaches the
// key and its plan to the request context. validator may be nil, which
// reduces the check to presence when keys are required.
func APIKeyMiddleware(apiCfg *config.APIConfig, validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpenPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := ExtractAPIKey(r)

			if apiCfg.RequireAPIKey && apiKey == "" {
				writeAuthError(w, "API key required")
				return
			}

			plan := apiCfg.GetPlanByAPIKey(apiKey)
			if apiKey != "" && validator != nil {
				record, err := validator.ValidateAPIKey(apiKey)
				if err != nil {
					writeAuthError(w, err.Error())
					return
				}
				if p, exists := apiCfg.GetPlan(record.Plan); exists {
					plan = p
				}
			}

			ctx := context.WithValue(r.Context(), ctxKeyAPIKey, apiKey)
			ctx = context.WithValue(ctx, ctxKeyPlan, plan)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestSizeLimitMiddleware caps request body size so oversized carts
// fail fast
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs API requests with their status and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}

		apiKey := ExtractAPIKey(r)
		if len(apiKey) > 8 {
			apiKey = apiKey[:8] + "..."
		}

		log.Printf("API Request: %s %s -> %d (API Key: %s, Duration: %v)",
			r.Method, r.URL.Path, wrapped.statusCode, apiKey, time.Since(start))
	})
}

// ExtractAPIKey pulls the API key from the request, checking the
// Authorization header, the X-API-Key header and the query string
func ExtractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
		if strings.HasPrefix(auth, "ApiKey ") {
			return strings.TrimPrefix(auth, "ApiKey ")
		}
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}

	return r.URL.Query().Get("api_key")
}

// APIKeyFromContext returns the API key attached by APIKeyMiddleware
func APIKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(ctxKeyAPIKey).(string)
	return key
}

// PlanFromContext returns the subscription plan attached by
// APIKeyMiddleware, falling back to the free plan
func PlanFromContext(ctx context.Context, apiCfg *config.APIConfig) config.SubscriptionPlan {
	if plan, ok := ctx.Value(ctxKeyPlan).(config.SubscriptionPlan); ok {
		return plan
	}
	return apiCfg.GetDefaultPlan()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
