package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

var DB *sql.DB

// InitDatabase initializes the database connection
func InitDatabase(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	var err error
	DB, err = sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Test the connection
	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %v", err)
	}

	log.Println("Successfully connected to database")
	return nil
}

// CreateTables creates the necessary tables if they don't exist
func CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key VARCHAR(64) PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS comparison_history (
			id SERIAL PRIMARY KEY,
			hostname TEXT NOT NULL,
			product_count INTEGER NOT NULL,
			candidates_found INTEGER DEFAULT 0,
			sites_attempted INTEGER DEFAULT 0,
			alternatives_found INTEGER DEFAULT 0,
			best_savings DECIMAL(10,2) DEFAULT 0,
			duration_ms BIGINT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS site_profiles (
			hostname TEXT PRIMARY KEY,
			search_selector TEXT,
			success_count INTEGER DEFAULT 0,
			failure_count INTEGER DEFAULT 0,
			last_success_at TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id SERIAL PRIMARY KEY,
			key_hash VARCHAR(64) NOT NULL UNIQUE,
			key_prefix VARCHAR(20) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			plan VARCHAR(20) NOT NULL CHECK (plan IN ('free', 'basic', 'pro', 'enterprise')),
			daily_usage INTEGER DEFAULT 0,
			monthly_usage INTEGER DEFAULT 0,
			max_daily INTEGER NOT NULL,
			max_monthly INTEGER NOT NULL,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_comparison_history_created ON comparison_history (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys (key_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys (user_id)`,
	}

	for _, query := range queries {
		_, err := DB.Exec(query)
		if err != nil {
			return fmt.Errorf("failed to create table: %v", err)
		}
	}

	return nil
}

// CloseDatabase closes the database connection
func CloseDatabase() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
