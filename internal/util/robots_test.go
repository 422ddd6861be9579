package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsChecker_CanFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			_, _ = w.Write([]byte("User-agent: riskpilot\nDisallow: /drafts/\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rc := NewRobotsChecker("riskpilot/0.1 (+https://example.com)", srv.Client())
	ctx := context.Background()

	allowed, delay, err := rc.CanFetch(ctx, srv.URL+"/drafts/q3.txt")
	if err != nil {
		t.Fatalf("CanFetch: %v", err)
	}
	if allowed {
		t.Error("Expected /drafts/ to be disallowed")
	}
	if delay != 2*time.Second {
		t.Errorf("Expected crawl delay 2s, got %v", delay)
	}

	allowed, _, _ = rc.CanFetch(ctx, srv.URL+"/status")
	if !allowed {
		t.Error("Expected /status to be allowed")
	}
	if hits.Load() != 1 {
		t.Errorf("Expected robots.txt fetched once, got %d", hits.Load())
	}
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	allowed, _, err := NewRobotsChecker("riskpilot", srv.Client()).CanFetch(context.Background(), srv.URL+"/anything")
	if err != nil || !allowed {
		t.Errorf("Expected allowed with no robots.txt, got %v, %v", allowed, err)
	}
}

func TestProductToken(t *testing.T) {
	if got := productToken("riskpilot/0.1 (+https://x)"); got != "riskpilot" {
		t.Errorf("Expected riskpilot, got %q", got)
	}
}
