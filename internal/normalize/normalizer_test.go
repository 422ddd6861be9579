package normalize

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ppiankov/riskpilot/internal/model"
)

func TestNormalize_EmptyInput(t *testing.T) {
	n := NewNormalizer(500, 0)

	for _, text := range []string{"", "   ", "\n\t\n", "\x00\x01"} {
		_, err := n.Normalize(RawInput{InputID: "in-1", ContentType: model.ContentText, Text: text})
		if !errors.Is(err, model.ErrEmptyInput) {
			t.Errorf("Normalize(%q) error = %v, want ErrEmptyInput", text, err)
		}
		var empty *model.EmptyInputError
		if !errors.As(err, &empty) || empty.InputID != "in-1" {
			t.Errorf("Expected EmptyInputError for in-1, got %v", err)
		}
	}
}

func TestNormalize_TextSegmentsRespectLimit(t *testing.T) {
	n := NewNormalizer(40, 0)

	text := "Weekly status report\n\nMilestone 3 slipped by two weeks.\n\n" +
		"Vendor onboarding is blocked pending contract review and the security questionnaire."
	out, err := n.Normalize(RawInput{InputID: "in-1", ProgramID: "p1", ContentType: model.ContentText, Text: text})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(out.Segments) < 3 {
		t.Fatalf("Expected at least 3 segments, got %d: %q", len(out.Segments), out.Segments)
	}
	for i, seg := range out.Segments {
		if utf8.RuneCountInString(seg) > 40 {
			t.Errorf("Segment %d exceeds limit: %q", i, seg)
		}
	}
	if out.DocumentKind != model.KindStatusReport {
		t.Errorf("Expected status_report, got %s", out.DocumentKind)
	}
	if out.ProgramID != "p1" || out.InputID != "in-1" {
		t.Errorf("Identity not carried: %+v", out)
	}
}

func TestNormalize_NeverSplitsWords(t *testing.T) {
	n := NewNormalizer(32, 0)
	long := strings.Repeat("x", 50)
	out, err := n.Normalize(RawInput{InputID: "in-1", ContentType: model.ContentText, Text: "short words here " + long + " tail"})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	found := false
	for _, seg := range out.Segments {
		if seg == long {
			found = true
		}
		for _, w := range strings.Fields(seg) {
			if strings.Contains(w, "x") && w != long {
				t.Errorf("Word was split: %q", w)
			}
		}
	}
	if !found {
		t.Errorf("Expected oversized word as its own segment, got %q", out.Segments)
	}
}

func TestNormalize_ParagraphsGrouped(t *testing.T) {
	n := NewNormalizer(500, 0)
	out, err := n.Normalize(RawInput{InputID: "in-1", ContentType: model.ContentText, Text: "one\n\ntwo\n\nthree"})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(out.Segments) != 1 || out.Segments[0] != "one\n\ntwo\n\nthree" {
		t.Errorf("Expected small paragraphs grouped, got %q", out.Segments)
	}
}

func TestNormalize_CSV(t *testing.T) {
	n := NewNormalizer(500, 0)
	text := "risk_id,description,severity,owner\n" +
		"R1,Vendor delay,High,\n" +
		"R2,Budget overrun,Medium,Finance\n"

	out, err := n.Normalize(RawInput{InputID: "in-2", ContentType: model.ContentCSV, Text: text, Filename: "risks.csv"})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(out.Segments) != 2 {
		t.Fatalf("Expected one segment per row, got %d", len(out.Segments))
	}
	if out.Segments[0] != "risk_id: R1; description: Vendor delay; severity: High" {
		t.Errorf("Unexpected row rendering: %q", out.Segments[0])
	}
	if out.ExtractedFacts["row_count"] != "2" {
		t.Errorf("row_count = %q", out.ExtractedFacts["row_count"])
	}
	if out.ExtractedFacts["row.2.owner"] != "Finance" {
		t.Errorf("row.2.owner = %q", out.ExtractedFacts["row.2.owner"])
	}
	if _, ok := out.ExtractedFacts["row.1.owner"]; ok {
		t.Error("Empty cells should not become facts")
	}
	if out.DocumentKind != model.KindRiskRegister {
		t.Errorf("Expected risk_register, got %s", out.DocumentKind)
	}
}

func TestNormalize_CSVRowLimit(t *testing.T) {
	n := NewNormalizer(500, 2)
	text := "month,spend\nJan,100\nFeb,120\nMar,400\n"

	out, err := n.Normalize(RawInput{InputID: "in-3", ContentType: model.ContentCSV, Text: text})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(out.Segments) != 2 {
		t.Errorf("Expected 2 segments, got %d", len(out.Segments))
	}
	if out.ExtractedFacts["truncated_rows"] != "1" {
		t.Errorf("truncated_rows = %q", out.ExtractedFacts["truncated_rows"])
	}
	if out.DocumentKind != model.KindCostSummary {
		t.Errorf("Expected cost_summary from headers, got %s", out.DocumentKind)
	}
}

func TestNormalize_CSVHeaderOnlyIsEmpty(t *testing.T) {
	n := NewNormalizer(500, 0)
	_, err := n.Normalize(RawInput{InputID: "in-4", ContentType: model.ContentCSV, Text: "a,b,c\n"})
	if !errors.Is(err, model.ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestNormalize_HTML(t *testing.T) {
	n := NewNormalizer(500, 0)
	text := "<html><head><style>p{}</style></head><body><h1>Status</h1><p>Milestone 2 is <b>on track</b>.</p>" +
		"<script>alert(1)</script></body></html>"

	out, err := n.Normalize(RawInput{InputID: "in-5", ContentType: model.ContentText, Text: text})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	joined := strings.Join(out.Segments, "\n")
	if strings.Contains(joined, "<") || strings.Contains(joined, "alert") || strings.Contains(joined, "p{}") {
		t.Errorf("Markup leaked into segments: %q", joined)
	}
	if !strings.Contains(joined, "Milestone 2 is") || !strings.Contains(joined, "on track") {
		t.Errorf("Visible text missing: %q", joined)
	}
	if out.ExtractedFacts["markup"] != "html" {
		t.Error("Expected markup fact")
	}
}

func TestNormalize_UnicodeNFKC(t *testing.T) {
	n := NewNormalizer(500, 0)
	// Fullwidth letters and a ligature fold to ASCII
	out, err := n.Normalize(RawInput{InputID: "in-6", ContentType: model.ContentText, Text: "ＲＩＳＫ ﬁnding"})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if out.Segments[0] != "RISK finding" {
		t.Errorf("Expected NFKC folding, got %q", out.Segments[0])
	}
}

func TestNormalize_ManualAndSections(t *testing.T) {
	n := NewNormalizer(500, 0)
	text := "## Summary\nAll good.\n\nRISKS\nStaffing.\n\nNext steps:\nHire."

	out, err := n.Normalize(RawInput{InputID: "in-7", ContentType: model.ContentManual, Text: text})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if out.DocumentKind != model.KindAnalystInput {
		t.Errorf("Expected analyst_input, got %s", out.DocumentKind)
	}
	if out.ExtractedFacts["sections"] != "summary, risks, next steps" {
		t.Errorf("sections = %q", out.ExtractedFacts["sections"])
	}
}

func TestDetectTableKind(t *testing.T) {
	tests := []struct {
		filename string
		header   []string
		want     model.DocumentKind
	}{
		{"risk_register.csv", nil, model.KindRiskRegister},
		{"burn_rate.csv", nil, model.KindCostSummary},
		{"milestones.csv", nil, model.KindMilestones},
		{"ai_usage.csv", nil, model.KindAIUsage},
		{"maintain.csv", []string{"name"}, model.KindGeneralData},
		{"", []string{"Milestone", "Due"}, model.KindMilestones},
		{"", []string{"model", "tokens_in"}, model.KindAIUsage},
	}

	for _, tt := range tests {
		if got := detectTableKind(tt.filename, tt.header); got != tt.want {
			t.Errorf("detectTableKind(%q, %v) = %s, want %s", tt.filename, tt.header, got, tt.want)
		}
	}
}
