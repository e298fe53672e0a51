package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// RetryOptions configures retry behavior for flaky page operations
type RetryOptions struct {
	MaxRetries int           // Retries after the first attempt
	RetryDelay time.Duration // Delay between attempts
}

// DefaultRetryOptions returns the retry policy used for navigation and
// search submission
func DefaultRetryOptions() *RetryOptions {
	return &RetryOptions{
		MaxRetries: 2,
		RetryDelay: 1500 * time.Millisecond,
	}
}

// WithRetry runs op, retrying transient failures with a delay between
// attempts. Permanent failures stop immediately, as does context
// cancellation.
func WithRetry(ctx context.Context, label string, options *RetryOptions, op func() error) error {
	if options == nil {
		options = DefaultRetryOptions()
	}

	var lastErr error
	for attempt := 0; attempt <= options.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("🔄 Retrying %s (attempt %d/%d)", label, attempt+1, options.MaxRetries+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(options.RetryDelay):
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		log.Printf("⚠️ %s failed: %v", label, err)
	}

	return fmt.Errorf("%s failed after %d attempts: %v", label, options.MaxRetries+1, lastErr)
}

// IsTransient reports whether retrying on the same site could help.
// Bot walls, missing search inputs, stuck popups and extraction
// failures are verdicts about the site, not flakes.
func IsTransient(err error) bool {
	var botErr *BotWallError
	if errors.As(err, &botErr) {
		return false
	}
	var popupErr *PopupDismissError
	if errors.As(err, &popupErr) {
		return false
	}
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) {
		return false
	}
	if errors.Is(err, ErrNoSearchInput) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
