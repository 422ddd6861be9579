package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/riskpilot/internal/model"
)

func testFetcher(robots bool) *Fetcher {
	return NewFetcher(model.FetchConfig{UserAgent: "riskpilot/test", MaxBytes: 1 << 10, RespectRobots: robots}, http.DefaultClient)
}

func TestFetch_HTMLStatusPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "riskpilot/test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>Milestone 2 delayed.</p></body></html>"))
	}))
	defer srv.Close()

	doc, err := testFetcher(false).Fetch(context.Background(), srv.URL+"/wiki/Weekly_Status", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.ContentType != model.ContentText {
		t.Errorf("Expected text, got %s", doc.ContentType)
	}
	if doc.Filename != "Weekly_Status" {
		t.Errorf("Expected filename Weekly_Status, got %q", doc.Filename)
	}
}

func TestFetch_CSVByHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("category,planned,actual\ncloud,100,180\n"))
	}))
	defer srv.Close()

	doc, err := testFetcher(false).Fetch(context.Background(), srv.URL+"/export", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.ContentType != model.ContentCSV {
		t.Errorf("Expected csv, got %s", doc.ContentType)
	}
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
		case "/big":
			_, _ = w.Write(make([]byte, 2<<10))
		case "/missing":
			http.NotFound(w, r)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer srv.Close()

	f := testFetcher(true)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, srv.URL+"/private/report.txt", ""); !errors.Is(err, ErrDisallowed) {
		t.Errorf("Expected ErrDisallowed, got %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/missing", ""); err == nil {
		t.Error("Expected error for 404")
	}
	if _, err := f.Fetch(ctx, srv.URL+"/big", ""); err == nil {
		t.Error("Expected error for oversized body")
	}
	if _, err := f.Fetch(ctx, srv.URL+"/public.txt", ""); err != nil {
		t.Errorf("Expected allowed fetch, got %v", err)
	}
}

func TestIsURL(t *testing.T) {
	for src, want := range map[string]bool{
		"https://wiki.example.com/status": true,
		"http://localhost/x":              true,
		"reports/status.txt":              false,
		"ftp://example.com/file":          false,
	} {
		if got := IsURL(src); got != want {
			t.Errorf("IsURL(%q): expected %v, got %v", src, want, got)
		}
	}
}
