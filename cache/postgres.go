package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"cartscout/repository"
)

// PostgresStore persists extraction results in Postgres so cached
// results survive restarts and are shared between instances.
type PostgresStore struct {
	repo *repository.CacheRepository
}

// NewPostgresStore creates a store backed by the cache_entries table
func NewPostgresStore(repo *repository.CacheRepository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

// Get retrieves a value from the cache into dest
func (s *PostgresStore) Get(ctx context.Context, key string, dest interface{}) error {
	value, found, err := s.repo.Get(key)
	if err != nil {
		// Backend trouble degrades to a miss so the pipeline proceeds
		log.Printf("⚠️ Cache backend read failed, bypassing: %v", err)
		return ErrCacheMiss
	}
	if !found {
		return ErrCacheMiss
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		// Corrupt entry, drop it and report a miss
		if delErr := s.repo.Delete(key); delErr != nil {
			log.Printf("⚠️ Failed to drop corrupt cache entry: %v", delErr)
		}
		return ErrCacheMiss
	}

	return nil
}

// Set stores a value in the cache with TTL
func (s *PostgresStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.repo.Set(key, string(data), ttl)
}

// Delete removes a value from the cache
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return s.repo.Delete(key)
}
