package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/util"
)

// ErrDisallowed is returned for URLs the host's robots.txt excludes
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Fetcher loads inputs published over HTTP, such as status pages or exported
// reports on an internal wiki
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	robots    *util.RobotsChecker // nil = ignore robots.txt
}

// NewFetcher creates a fetcher from cfg using client for every request
func NewFetcher(cfg model.FetchConfig, client *http.Client) *Fetcher {
	f := &Fetcher{client: client, userAgent: cfg.UserAgent, maxBytes: cfg.MaxBytes}
	if f.maxBytes <= 0 || f.maxBytes > MaxFileBytes {
		f.maxBytes = MaxFileBytes
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(cfg.UserAgent, client)
	}
	return f
}

// IsURL reports whether source names an http(s) resource rather than a file
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Fetch downloads rawURL and extracts its text like Load does for files.
// An empty declared type is taken from the response Content-Type, then from
// the body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, declared model.ContentType) (Document, error) {
	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return Document{}, err
		}
		if !allowed {
			return Document{}, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/plain,text/csv,application/pdf;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Document{}, fmt.Errorf("fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return Document{}, fmt.Errorf("%s exceeds the %d byte limit", rawURL, f.maxBytes)
	}

	if declared == "" {
		declared = contentTypeOf(resp.Header.Get("Content-Type"))
	}
	return decode(documentName(resp.Request.URL), body, declared)
}

// contentTypeOf maps a response media type onto an input content type;
// unknown types return "" so the body is sniffed
func contentTypeOf(header string) model.ContentType {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	switch mt {
	case "application/pdf":
		return model.ContentPDF
	case "text/csv", "text/tab-separated-values":
		return model.ContentCSV
	case "text/html", "application/xhtml+xml", "text/plain", "text/markdown":
		return model.ContentText
	}
	return ""
}

// documentName is the last path element of u, or its host
func documentName(u *url.URL) string {
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "." || name == "/" || name == "" {
		return u.Host
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}
