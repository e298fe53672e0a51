package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cartscout/config"
	"cartscout/models"
	"cartscout/repository"
)

// APIKeyService manages API keys and their subscription plans
type APIKeyService struct {
	config *config.APIConfig
	repo   *repository.APIKeyRepository
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(apiConfig *config.APIConfig) *APIKeyService {
	return &APIKeyService{
		config: apiConfig,
		repo:   repository.NewAPIKeyRepository(),
	}
}

// getPlanLimit gets the limit for a specific plan and period
func (s *APIKeyService) getPlanLimit(plan, period string) int {
	planConfig, exists := s.config.GetPlan(plan)
	if !exists {
		planConfig = s.config.GetDefaultPlan()
	}

	if period == "daily" {
		return planConfig.DailyLimit
	}
	// Monthly is approximated as thirty daily allowances
	return planConfig.DailyLimit * 30
}

// ValidateAPIKey checks the key, enforces its usage limits and counts
// the use. Returns the key record on success.
func (s *APIKeyService) ValidateAPIKey(apiKey string) (*models.APIKey, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	dbKey, err := s.repo.GetAPIKeyByKey(apiKey)
	if err != nil {
		return nil, fmt.Errorf("invalid API key")
	}

	if !dbKey.IsActive {
		return nil, fmt.Errorf("API key is inactive")
	}
	if dbKey.DailyUsage >= dbKey.MaxDaily {
		return nil, fmt.Errorf("daily usage limit exceeded")
	}
	if dbKey.MonthlyUsage >= dbKey.MaxMonthly {
		return nil, fmt.Errorf("monthly usage limit exceeded")
	}

	dbKey.DailyUsage++
	dbKey.MonthlyUsage++
	dbKey.LastUsed = time.Now()

	if err := s.repo.UpdateAPIKeyUsage(dbKey); err != nil {
		return nil, fmt.Errorf("failed to update API key usage: %v", err)
	}

	return dbKey, nil
}

// CheckCartSize enforces the plan's cart size ceiling before a
// comparison is accepted
func (s *APIKeyService) CheckCartSize(plan config.SubscriptionPlan, productCount int) error {
	if productCount > plan.MaxCartProducts {
		return fmt.Errorf("cart has %d products, the %s plan allows %d", productCount, plan.Name, plan.MaxCartProducts)
	}
	return nil
}

// GenerateAPIKey creates and stores a new API key for a user. The
// prefix defaults to the plan name when empty. The plaintext key is
// only available on the returned record, the database keeps a hash.
func (s *APIKeyService) GenerateAPIKey(userID, plan, prefix string) (*models.APIKey, error) {
	if !s.config.IsValidPlan(plan) {
		return nil, fmt.Errorf("invalid plan: %s", plan)
	}
	if prefix == "" {
		prefix = plan
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %v", err)
	}

	hash := sha256.Sum256(keyBytes)
	keySuffix := hex.EncodeToString(hash[:])[:16]
	apiKey := prefix + "_" + keySuffix

	dbKey := &models.APIKey{
		Key:          apiKey,
		Prefix:       prefix,
		UserID:       userID,
		Plan:         plan,
		DailyUsage:   0,
		MonthlyUsage: 0,
		MaxDaily:     s.getPlanLimit(plan, "daily"),
		MaxMonthly:   s.getPlanLimit(plan, "monthly"),
		IsActive:     true,
		CreatedAt:    time.Now(),
		LastUsed:     time.Now(),
	}

	if err := s.repo.CreateAPIKey(dbKey); err != nil {
		return nil, fmt.Errorf("failed to store API key: %v", err)
	}

	return dbKey, nil
}

// GetAPIKeyInfo returns public information about an API key
func (s *APIKeyService) GetAPIKeyInfo(apiKey string) (*models.APIKeyInfo, error) {
	dbKey, err := s.repo.GetAPIKeyByKey(apiKey)
	if err != nil {
		return nil, fmt.Errorf("API key not found")
	}
	return dbKey.ToAPIKeyInfo(), nil
}

// DeactivateAPIKey deactivates an API key
func (s *APIKeyService) DeactivateAPIKey(apiKey string) error {
	dbKey, err := s.repo.GetAPIKeyByKey(apiKey)
	if err != nil {
		return fmt.Errorf("API key not found")
	}
	return s.repo.DeactivateAPIKey(dbKey.ID)
}

// GetUsageStats returns plan and usage statistics for an API key
func (s *APIKeyService) GetUsageStats(apiKey string) (map[string]interface{}, error) {
	dbKey, err := s.repo.GetAPIKeyByKey(apiKey)
	if err != nil {
		return nil, fmt.Errorf("API key not found")
	}

	planConfig, exists := s.config.GetPlan(dbKey.Plan)
	if !exists {
		planConfig = s.config.GetDefaultPlan()
	}

	stats := map[string]interface{}{
		"plan": map[string]interface{}{
			"name":              planConfig.Name,
			"rate_limit":        planConfig.RateLimit,
			"daily_limit":       planConfig.DailyLimit,
			"max_cart_products": planConfig.MaxCartProducts,
			"max_async_tasks":   planConfig.MaxAsyncTasks,
			"priority":          planConfig.Priority,
			"monthly_price":     planConfig.Price,
			"features":          planConfig.Features,
		},
		"usage": map[string]interface{}{
			"daily_usage":       dbKey.DailyUsage,
			"monthly_usage":     dbKey.MonthlyUsage,
			"max_daily":         dbKey.MaxDaily,
			"max_monthly":       dbKey.MaxMonthly,
			"daily_remaining":   dbKey.MaxDaily - dbKey.DailyUsage,
			"monthly_remaining": dbKey.MaxMonthly - dbKey.MonthlyUsage,
		},
		"key_info": map[string]interface{}{
			"created_at": dbKey.CreatedAt,
			"last_used":  dbKey.LastUsed,
			"is_active":  dbKey.IsActive,
		},
	}

	return stats, nil
}
