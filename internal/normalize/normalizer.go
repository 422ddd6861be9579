package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/riskpilot/internal/model"
)

// DefaultMaxSegmentChars is used when the normalizer is built with a non-positive limit
const DefaultMaxSegmentChars = 500

// RawInput is already-extracted text plus its declared content type
type RawInput struct {
	InputID     string
	ProgramID   string
	ContentType model.ContentType
	Text        string
	Filename    string
}

// Normalizer turns raw text into segmented, tagged inputs. It performs no I/O.
type Normalizer struct {
	maxSegmentChars int
	maxCSVRows      int
}

// NewNormalizer creates a normalizer. maxCSVRows <= 0 keeps every row.
func NewNormalizer(maxSegmentChars, maxCSVRows int) *Normalizer {
	if maxSegmentChars <= 0 {
		maxSegmentChars = DefaultMaxSegmentChars
	}
	return &Normalizer{
		maxSegmentChars: maxSegmentChars,
		maxCSVRows:      maxCSVRows,
	}
}

// Normalize produces the NormalizedInput for one raw input.
// Empty or whitespace-only text fails with *model.EmptyInputError.
func (n *Normalizer) Normalize(raw RawInput) (model.NormalizedInput, error) {
	text := cleanText(raw.Text)
	if strings.TrimSpace(text) == "" {
		return model.NormalizedInput{}, &model.EmptyInputError{InputID: raw.InputID}
	}

	contentType := raw.ContentType
	if !contentType.Valid() {
		contentType = model.ContentText
	}

	out := model.NormalizedInput{
		InputID:        raw.InputID,
		ProgramID:      raw.ProgramID,
		ContentType:    contentType,
		Filename:       raw.Filename,
		ExtractedFacts: make(map[string]string),
	}

	switch contentType {
	case model.ContentCSV:
		table, err := parseTable(text)
		if err != nil {
			// Unparseable tables are still useful as prose
			out.ExtractedFacts["parse_error"] = err.Error()
			out.Segments = n.segmentText(text)
			out.DocumentKind = model.KindGeneralData
			break
		}
		out.Segments = n.tableSegments(table, out.ExtractedFacts)
		out.DocumentKind = detectTableKind(raw.Filename, table.header)
	default:
		if looksLikeHTML(text) {
			text = htmlToText(text)
			out.ExtractedFacts["markup"] = "html"
		}
		out.Segments = n.segmentText(text)
		addTextFacts(text, out.ExtractedFacts)
		if contentType == model.ContentManual {
			out.DocumentKind = model.KindAnalystInput
		} else {
			out.DocumentKind = detectTextKind(raw.Filename, text)
		}
	}

	if len(out.Segments) == 0 {
		return model.NormalizedInput{}, &model.EmptyInputError{InputID: raw.InputID}
	}
	out.ExtractedFacts["segment_count"] = strconv.Itoa(len(out.Segments))
	return out, nil
}

// cleanText applies NFKC, normalizes line endings and drops control characters
func cleanText(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

func addTextFacts(text string, facts map[string]string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	facts["line_count"] = strconv.Itoa(len(lines))
	facts["word_count"] = strconv.Itoa(len(strings.Fields(text)))
	if sections := extractSections(lines); len(sections) > 0 {
		facts["sections"] = strings.Join(sections, ", ")
	}
}

// extractSections returns heading-like lines in document order
func extractSections(lines []string) []string {
	var sections []string
	seen := make(map[string]bool)
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" || !isHeading(s) {
			continue
		}
		name := strings.ToLower(strings.Trim(s, "#*: "))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		sections = append(sections, name)
	}
	return sections
}

func isHeading(s string) bool {
	if strings.HasPrefix(s, "##") || strings.HasPrefix(s, "**") {
		return true
	}
	if strings.HasSuffix(s, ":") && len(strings.Fields(s)) <= 6 {
		return true
	}
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter && len(strings.Fields(s)) <= 8
}
