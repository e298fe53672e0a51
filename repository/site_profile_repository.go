package repository

import (
	"database/sql"
	"fmt"
	"time"

	"cartscout/database"
	"cartscout/models"
)

type SiteProfileRepository struct{}

func NewSiteProfileRepository() *SiteProfileRepository {
	return &SiteProfileRepository{}
}

// GetProfile returns the learned profile for a hostname, or nil when
// the site has never been visited successfully
func (r *SiteProfileRepository) GetProfile(hostname string) (*models.SiteProfile, error) {
	query := `
		SELECT hostname, COALESCE(search_selector, ''), success_count, failure_count, last_success_at, updated_at
		FROM site_profiles
		WHERE hostname = $1
	`

	var profile models.SiteProfile
	err := database.DB.QueryRow(query, hostname).Scan(
		&profile.Hostname, &profile.SearchSelector, &profile.SuccessCount,
		&profile.FailureCount, &profile.LastSuccessAt, &profile.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No profile yet
		}
		return nil, fmt.Errorf("failed to get site profile: %v", err)
	}

	return &profile, nil
}

// RecordSuccess saves the search selector that worked for a hostname
func (r *SiteProfileRepository) RecordSuccess(hostname, searchSelector string) error {
	query := `
		INSERT INTO site_profiles (hostname, search_selector, success_count, last_success_at, updated_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (hostname) DO UPDATE SET
			search_selector = EXCLUDED.search_selector,
			success_count = site_profiles.success_count + 1,
			last_success_at = EXCLUDED.last_success_at,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	_, err := database.DB.Exec(query, hostname, searchSelector, now)
	if err != nil {
		return fmt.Errorf("failed to record site success: %v", err)
	}

	return nil
}

// RecordFailure counts a failed visit for a hostname
func (r *SiteProfileRepository) RecordFailure(hostname string) error {
	query := `
		INSERT INTO site_profiles (hostname, failure_count, updated_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (hostname) DO UPDATE SET
			failure_count = site_profiles.failure_count + 1,
			updated_at = EXCLUDED.updated_at
	`

	_, err := database.DB.Exec(query, hostname, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record site failure: %v", err)
	}

	return nil
}
