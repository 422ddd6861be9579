package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_PerHost(t *testing.T) {
	limiter := NewLimiter(1, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://router.huggingface.co/v1"); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	// Same host, different path shares the bucket
	if limiter.Allow("https://router.huggingface.co/v1/chat/completions") {
		t.Error("expected second request to the same host to be throttled")
	}
	// Other hosts have their own bucket
	if !limiter.Allow("https://api.openai.com/v1") {
		t.Error("expected other host to be allowed")
	}
}

func TestLimiter_Throttles(t *testing.T) {
	limiter := NewLimiter(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx, "http://localhost:8080"); err != nil {
			t.Fatalf("wait %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected ~100ms for 3 requests at 20 rps, took %v", elapsed)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("http://example.com") {
			t.Fatalf("request %d throttled with rate limiting disabled", i)
		}
	}
}

func TestLimiter_ContextCancel(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	_ = limiter.Wait(context.Background(), "http://example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "http://example.com"); err == nil {
		t.Error("expected error when context expires before a token is available")
	}
}

func TestLimiter_SetHostRate(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	limiter.SetHostRate("fast.example", 1000, 10)
	for i := 0; i < 10; i++ {
		if !limiter.Allow("http://fast.example/x") {
			t.Fatalf("request %d should fit the host burst", i)
		}
	}
}
