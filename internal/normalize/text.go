package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// segmentText groups paragraphs into segments of at most maxSegmentChars runes.
// Oversized paragraphs are split on whitespace; a single word longer than the
// limit becomes its own segment rather than being cut.
func (n *Normalizer) segmentText(text string) []string {
	var segments []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			segments = append(segments, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range paragraphs(text) {
		paraLen := utf8.RuneCountInString(para)
		if paraLen > n.maxSegmentChars {
			flush()
			segments = append(segments, splitWords(para, n.maxSegmentChars)...)
			continue
		}
		sepLen := 0
		if currentLen > 0 {
			sepLen = 2
		}
		if currentLen+sepLen+paraLen > n.maxSegmentChars {
			flush()
			sepLen = 0
		}
		if sepLen > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentLen += sepLen + paraLen
	}
	flush()
	return segments
}

// paragraphs splits on blank lines and trims each block
func paragraphs(text string) []string {
	var out []string
	var block []string
	emit := func() {
		if len(block) > 0 {
			out = append(out, strings.Join(block, "\n"))
			block = block[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emit()
			continue
		}
		block = append(block, trimmed)
	}
	emit()
	return out
}

// splitWords packs whitespace-separated words into chunks of at most limit runes
func splitWords(para string, limit int) []string {
	var chunks []string
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(para) {
		wl := utf8.RuneCountInString(word)
		if n > 0 && n+1+wl > limit {
			chunks = append(chunks, b.String())
			b.Reset()
			n = 0
		}
		if n > 0 {
			b.WriteByte(' ')
			n++
		}
		b.WriteString(word)
		n += wl
	}
	if n > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

var htmlMarkers = []string{"<html", "<body", "<p>", "<div", "<table", "<br", "<li>", "<h1", "<h2"}

// looksLikeHTML detects status reports exported from wikis or mail clients
func looksLikeHTML(text string) bool {
	head := strings.ToLower(text)
	if len(head) > 4096 {
		head = head[:4096]
	}
	for _, m := range htmlMarkers {
		if strings.Contains(head, m) {
			return true
		}
	}
	return false
}

// blockTags end a paragraph when they open or close
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "section": true, "article": true,
}

// htmlToText keeps visible text, mapping block elements to paragraph breaks
func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[tag] {
				b.WriteString("\n\n")
			} else if tag == "td" || tag == "th" {
				b.WriteString(" ")
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.WriteString(collapseSpace(string(z.Text())))
		}
	}
}

// collapseSpace squeezes whitespace runs to one space, keeping edge spaces
// so inline elements do not glue words together
func collapseSpace(s string) string {
	inner := strings.Join(strings.Fields(s), " ")
	if inner == "" {
		if s != "" {
			return " "
		}
		return ""
	}
	if strings.TrimLeftFunc(s, unicode.IsSpace) != s {
		inner = " " + inner
	}
	if strings.TrimRightFunc(s, unicode.IsSpace) != s {
		inner += " "
	}
	return inner
}
