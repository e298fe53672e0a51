package repository

import (
	"database/sql"
	"fmt"
	"time"

	"cartscout/database"
)

type CacheRepository struct{}

func NewCacheRepository() *CacheRepository {
	return &CacheRepository{}
}

// Get returns the stored value for a key if present and not expired
func (r *CacheRepository) Get(key string) (string, bool, error) {
	query := `
		SELECT value
		FROM cache_entries
		WHERE key = $1 AND expires_at > $2
	`

	var value string
	err := database.DB.QueryRow(query, key, time.Now()).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get cache entry: %v", err)
	}

	return value, true, nil
}

// Set inserts or replaces a cache entry with a fresh expiry
func (r *CacheRepository) Set(key, value string, ttl time.Duration) error {
	query := `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at
	`

	_, err := database.DB.Exec(query, key, value, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %v", err)
	}

	return nil
}

// Delete removes a cache entry
func (r *CacheRepository) Delete(key string) error {
	_, err := database.DB.Exec(`DELETE FROM cache_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %v", err)
	}

	return nil
}

// PurgeExpired removes all entries past their expiry and returns how
// many rows were deleted
func (r *CacheRepository) PurgeExpired() (int64, error) {
	result, err := database.DB.Exec(`DELETE FROM cache_entries WHERE expires_at <= $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %v", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return rows, nil
}

// Count returns the number of live cache entries
func (r *CacheRepository) Count() (int, error) {
	var count int
	err := database.DB.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE expires_at > $1`, time.Now()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %v", err)
	}

	return count, nil
}
