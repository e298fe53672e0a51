package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned when a key is absent, expired, or its
// stored value cannot be parsed. Callers treat all three the same:
// recompute and write through.
var ErrCacheMiss = errors.New("cache: miss")

// Store is the extraction result cache. Implementations must treat
// corruption as a miss and must never surface backend failures as
// anything other than a miss on read.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key builds a content-addressed cache key from its identity parts.
// Parts are joined with an unambiguous separator before hashing so
// ("ab","c") and ("a","bc") can never collide.
func Key(parts ...string) string {
	canonical := strings.Join(parts, "\x1f")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ContentDigest returns a short digest of page content, used as a key
// part so that a content change invalidates the entry implicitly.
func ContentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}
