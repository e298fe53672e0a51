package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain network error", errors.New("connection reset"), true},
		{"wrapped timeout", fmt.Errorf("navigate: %w", errors.New("net timeout")), true},
		{"bot wall", &BotWallError{Hostname: "shop.example.com", Type: BlockCaptcha, Confidence: 0.8}, false},
		{"wrapped bot wall", fmt.Errorf("shop site: %w", &BotWallError{Hostname: "shop.example.com"}), false},
		{"popup dismiss failure", &PopupDismissError{Hostname: "shop.example.com", Selector: "#reject"}, false},
		{"extraction failure", &ExtractionError{Mode: ModeSearchResults, Site: "shop.example.com", Err: errors.New("bad json")}, false},
		{"no search input", ErrNoSearchInput, false},
		{"wrapped no search input", fmt.Errorf("locate: %w", ErrNoSearchInput), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "navigation", fastRetryOptions(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("WithRetry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("op ran %d times, want 1", calls)
	}
}

func TestWithRetry_RetriesTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "search submit", fastRetryOptions(), func() error {
		calls++
		if calls < 3 {
			return errors.New("page not ready")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("WithRetry() = %v, want nil after recovery", err)
	}
	if calls != 3 {
		t.Errorf("op ran %d times, want 3", calls)
	}
}

func TestWithRetry_PermanentFailureStopsImmediately(t *testing.T) {
	blocked := &BotWallError{Hostname: "shop.example.com", Type: BlockCaptcha, Confidence: 0.9, Reason: "matched captcha"}

	calls := 0
	err := WithRetry(context.Background(), "navigation", fastRetryOptions(), func() error {
		calls++
		return blocked
	})

	var botErr *BotWallError
	if !errors.As(err, &botErr) {
		t.Fatalf("WithRetry() = %v, want the bot wall error back", err)
	}
	if calls != 1 {
		t.Errorf("op ran %d times for a permanent failure, want 1", calls)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	opts := &RetryOptions{MaxRetries: 1, RetryDelay: time.Millisecond}

	calls := 0
	err := WithRetry(context.Background(), "navigation", opts, func() error {
		calls++
		return errors.New("flaky load")
	})

	if err == nil {
		t.Fatal("WithRetry() = nil, want error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("op ran %d times, want 2", calls)
	}
	if !strings.Contains(err.Error(), "navigation failed after 2 attempts") {
		t.Errorf("error %q does not mention the attempt count", err)
	}
	if !strings.Contains(err.Error(), "flaky load") {
		t.Errorf("error %q does not carry the last failure", err)
	}
}

func TestWithRetry_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := WithRetry(ctx, "navigation", &RetryOptions{MaxRetries: 3, RetryDelay: time.Minute}, func() error {
		calls++
		cancel()
		return errors.New("slow page")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithRetry() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("op ran %d times after cancellation, want 1", calls)
	}
}

func TestWithRetry_NilOptionsUseDefaults(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "navigation", nil, func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("WithRetry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("op ran %d times, want 1", calls)
	}
}

func fastRetryOptions() *RetryOptions {
	return &RetryOptions{MaxRetries: 2, RetryDelay: time.Millisecond}
}
