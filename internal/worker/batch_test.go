package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/riskpilot/internal/model"
)

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "inputs.txt")
	content := `# weekly program pack
status.txt
costs.csv   csv

notes.md manual
status.txt
/abs/risk.pdf pdf
https://wiki.example.com/Status_Week_12
`
	if err := os.WriteFile(manifest, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}

	want := []ManifestEntry{
		{Path: filepath.Join(dir, "status.txt")},
		{Path: filepath.Join(dir, "costs.csv"), ContentType: model.ContentCSV},
		{Path: filepath.Join(dir, "notes.md"), ContentType: model.ContentManual},
		{Path: "/abs/risk.pdf", ContentType: model.ContentPDF},
		{Path: "https://wiki.example.com/Status_Week_12"},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], entries[i])
		}
	}
}

func TestReadManifest_BadContentType(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "inputs.txt")
	if err := os.WriteFile(manifest, []byte("report.docx docx\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadManifest(manifest); err == nil {
		t.Error("expected error for unknown content type")
	}
}

func TestReadManifest_Missing(t *testing.T) {
	if _, err := ReadManifest(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing manifest")
	}
}
