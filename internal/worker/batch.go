package worker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/riskpilot/internal/model"
)

// ManifestEntry is one file listed in a batch manifest
type ManifestEntry struct {
	Path        string
	ContentType model.ContentType // empty = detect from the file
}

// ReadManifest reads a batch manifest: one file per line, optionally
// followed by whitespace and a content type (csv, text, pdf, manual).
// Blank lines and # comments are skipped, duplicates dropped, relative
// paths resolved against the manifest's directory. http(s) URLs are kept
// as written.
func ReadManifest(path string) ([]ManifestEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(path)
	seen := make(map[string]bool)
	var entries []ManifestEntry

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		entry := ManifestEntry{Path: fields[0]}
		if len(fields) > 1 {
			ct := model.ContentType(strings.ToLower(fields[1]))
			if !ct.Valid() {
				return nil, fmt.Errorf("manifest line %d: unknown content type %q", lineNo, fields[1])
			}
			entry.ContentType = ct
		}
		if !isURL(entry.Path) && !filepath.IsAbs(entry.Path) {
			entry.Path = filepath.Join(base, entry.Path)
		}

		if seen[entry.Path] {
			continue
		}
		seen[entry.Path] = true
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}
	return entries, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
