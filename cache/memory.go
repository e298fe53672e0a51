package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	Data       []byte
	Expiration time.Time
}

// MemoryStore is a thread-safe in-memory cache with TTL support
type MemoryStore struct {
	data  map[string]cacheItem
	mutex sync.RWMutex
	stop  chan struct{}
}

// NewMemoryStore creates a new in-memory cache store
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		data: make(map[string]cacheItem),
		stop: make(chan struct{}),
	}

	// Cleanup goroutine removes expired entries every 10 minutes
	go store.cleanupExpired()

	return store
}

// Get retrieves a value from the cache into dest
func (s *MemoryStore) Get(ctx context.Context, key string, dest interface{}) error {
	s.mutex.RLock()
	item, exists := s.data[key]
	s.mutex.RUnlock()

	if !exists {
		return ErrCacheMiss
	}

	if time.Now().After(item.Expiration) {
		return ErrCacheMiss
	}

	if err := json.Unmarshal(item.Data, dest); err != nil {
		// Corrupt entry, drop it and report a miss
		s.Delete(ctx, key)
		return ErrCacheMiss
	}

	return nil
}

// Set stores a value in the cache with TTL
func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = cacheItem{
		Data:       data,
		Expiration: time.Now().Add(ttl),
	}

	return nil
}

// Delete removes a value from the cache
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.data, key)
	return nil
}

// Size returns the current number of items in the cache
func (s *MemoryStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}

// Clear removes all items from the cache
func (s *MemoryStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data = make(map[string]cacheItem)
}

// Stop terminates the cleanup goroutine
func (s *MemoryStore) Stop() {
	close(s.stop)
}

// cleanupExpired removes expired entries from the cache periodically
func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mutex.Lock()
			now := time.Now()
			for key, item := range s.data {
				if now.After(item.Expiration) {
					delete(s.data, key)
				}
			}
			s.mutex.Unlock()
		case <-s.stop:
			return
		}
	}
}
