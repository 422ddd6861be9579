package model

import (
	"strconv"
	"time"
)

// ContentType is the declared format of a raw input
type ContentType string

const (
	ContentCSV    ContentType = "csv"
	ContentText   ContentType = "text"
	ContentPDF    ContentType = "pdf"
	ContentManual ContentType = "manual"
)

// Valid reports whether c is a supported content type
func (c ContentType) Valid() bool {
	switch c {
	case ContentCSV, ContentText, ContentPDF, ContentManual:
		return true
	}
	return false
}

// DocumentKind is the detected purpose of a document (risk register, status report, ...)
type DocumentKind string

const (
	KindRiskRegister    DocumentKind = "risk_register"
	KindCostSummary     DocumentKind = "cost_summary"
	KindMilestones      DocumentKind = "milestones"
	KindAIUsage         DocumentKind = "ai_usage"
	KindStatusReport    DocumentKind = "status_report"
	KindAnalystNotes    DocumentKind = "analyst_notes"
	KindGeneralData     DocumentKind = "general_data"
	KindGeneralDocument DocumentKind = "general_document"
	KindAnalystInput    DocumentKind = "analyst_input"
)

// SignalTypes returns the signal types worth generating for this kind of document
func (k DocumentKind) SignalTypes() []SignalType {
	switch k {
	case KindCostSummary:
		return []SignalType{SignalCostRisk}
	case KindAIUsage:
		return []SignalType{SignalAIEfficiency}
	default:
		return []SignalType{SignalDeliveryRisk}
	}
}

// NormalizedInput is the immutable, segmented form of one raw input
type NormalizedInput struct {
	InputID        string            `json:"input_id"`
	ProgramID      string            `json:"program_id"`
	ContentType    ContentType       `json:"content_type"`
	DocumentKind   DocumentKind      `json:"document_kind"`
	Filename       string            `json:"filename,omitempty"`
	Segments       []string          `json:"segments"`
	ExtractedFacts map[string]string `json:"extracted_facts,omitempty"`
}

// Segment is one embedded retrieval unit owned by the context index
type Segment struct {
	ID            string    `json:"id"`
	ProgramID     string    `json:"program_id"`
	SourceInputID string    `json:"source_input_id"`
	Text          string    `json:"text"`
	Embedding     []float32 `json:"embedding,omitempty"`
	Position      int       `json:"position"`
	Seq           uint64    `json:"seq"` // Insertion order, newest wins ties
	InsertedAt    time.Time `json:"inserted_at"`
}

// ScoredSegment is a retrieval hit
type ScoredSegment struct {
	Segment
	Score float64 `json:"score"`
}

// SegmentsOf turns a normalized input into index segments with stable IDs
func SegmentsOf(in NormalizedInput) []Segment {
	out := make([]Segment, 0, len(in.Segments))
	for i, text := range in.Segments {
		out = append(out, Segment{
			ID:            SegmentID(in.InputID, i),
			ProgramID:     in.ProgramID,
			SourceInputID: in.InputID,
			Text:          text,
			Position:      i,
		})
	}
	return out
}

// SegmentID derives the segment id from its input and position
func SegmentID(inputID string, position int) string {
	return inputID + "#" + strconv.Itoa(position)
}
