package llm

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/riskpilot/internal/model"
)

// ErrPromptBudget means the instruction and the top retrieved segment leave
// no room for any of the input
var ErrPromptBudget = errors.New("prompt exceeds character budget")

// focus is the per-type analyst guidance
var focus = map[model.SignalType]string{
	model.SignalDeliveryRisk: "Focus on schedule delays, resource constraints, dependency issues, and scope changes.",
	model.SignalCostRisk:     "Focus on budget variances, burn rate issues, and unexpected expenditures.",
	model.SignalAIEfficiency: "Focus on token utilization, model selection appropriateness, and cost-effectiveness.",
}

// queries drive retrieval for each signal type
var queries = map[model.SignalType]string{
	model.SignalDeliveryRisk: "project delays blockers schedule risks issues problems",
	model.SignalCostRisk:     "budget cost overrun expenses spending variance",
	model.SignalAIEfficiency: "AI usage efficiency automation optimization",
}

// QueryFor returns the retrieval query for a signal type
func QueryFor(st model.SignalType) string {
	if q, ok := queries[st]; ok {
		return q
	}
	return string(st)
}

// Instruction builds the analyst instruction for the requested signal types
func Instruction(types []model.SignalType, kind model.DocumentKind, jsonMode bool) string {
	if len(types) == 0 {
		types = []model.SignalType{model.SignalDeliveryRisk}
	}

	var b strings.Builder
	b.WriteString("You are an expert program analyst. Assess the program input below")
	if kind != "" {
		fmt.Fprintf(&b, " (document kind: %s)", kind)
	}
	b.WriteString(" for the following signals:\n")
	for _, st := range types {
		fmt.Fprintf(&b, "- %s [%s]. %s\n", st, strings.Join(st.Vocabulary(), ", "), focus[st])
	}
	b.WriteString("\n")

	switch {
	case jsonMode:
		b.WriteString(`Respond with JSON only: {"signals":[{"signal_type":"...","signal_value":"...","confidence":0.0,"explanation":"..."}]} ` +
			"with one entry per signal. confidence is between 0.0 and 1.0; explanation is 2-3 sentences.")
	case len(types) == 1:
		fmt.Fprintf(&b, "Provide your assessment in the following format:\nSIGNAL_VALUE: [%s]\nCONFIDENCE: [0.0 to 1.0]\nEXPLANATION: [2-3 sentence explanation]",
			strings.Join(types[0].Vocabulary(), ", "))
	default:
		b.WriteString("Provide one block per signal, separated by a line containing ---, in the following format:\n" +
			"SIGNAL_TYPE: [signal type]\nSIGNAL_VALUE: [one of the listed values]\nCONFIDENCE: [0.0 to 1.0]\nEXPLANATION: [2-3 sentence explanation]")
	}
	return b.String()
}

// PromptContext is the material for one invocation. RetrievedSegments are
// ordered by relevance, highest first.
type PromptContext struct {
	Instruction        string
	NormalizedSegments []string
	RetrievedSegments  []model.ScoredSegment
	TruncationApplied  bool
}

const (
	retrievedHeader = "\n\nRETRIEVED CONTEXT:\n"
	inputHeader     = "\n\nINPUT:\n"
	retrievedSep    = "\n\n---\n\n"
	segmentSep      = "\n\n"
)

// Render serializes the context into the user prompt
func (p PromptContext) Render() string {
	var b strings.Builder
	b.WriteString(p.Instruction)
	if len(p.RetrievedSegments) > 0 {
		b.WriteString(retrievedHeader)
		for i, s := range p.RetrievedSegments {
			if i > 0 {
				b.WriteString(retrievedSep)
			}
			b.WriteString(sourceLine(s))
			b.WriteString(s.Text)
		}
	}
	if len(p.NormalizedSegments) > 0 {
		b.WriteString(inputHeader)
		b.WriteString(strings.Join(p.NormalizedSegments, segmentSep))
	}
	return b.String()
}

func sourceLine(s model.ScoredSegment) string {
	return fmt.Sprintf("[Source: %s, relevance %.2f]\n", s.SourceInputID, s.Score)
}

// BuildPromptContext assembles a context whose rendering is at most
// maxChars runes. Over budget, it drops the lowest-relevance retrieved
// segments first, then trims the input from its tail. The instruction and
// the top retrieved segment are never cut, and a non-empty prefix of the
// input always remains. If that still does not fit, it returns
// ErrPromptBudget.
func BuildPromptContext(instruction string, segments []string, retrieved []model.ScoredSegment, maxChars int) (PromptContext, error) {
	p := PromptContext{
		Instruction:        instruction,
		NormalizedSegments: append([]string(nil), segments...),
		RetrievedSegments:  append([]model.ScoredSegment(nil), retrieved...),
	}
	if maxChars <= 0 {
		return p, nil
	}

	over := func() int { return utf8.RuneCountInString(p.Render()) - maxChars }

	// 1. Lower-relevance retrieved segments, lowest first
	for over() > 0 && len(p.RetrievedSegments) > 1 {
		p.RetrievedSegments = p.RetrievedSegments[:len(p.RetrievedSegments)-1]
		p.TruncationApplied = true
	}

	// 2. Input, from the tail, down to part of the first segment
	for n := over(); n > 0 && len(p.NormalizedSegments) > 0; n = over() {
		p.TruncationApplied = true
		last := len(p.NormalizedSegments) - 1
		if last > 0 {
			p.NormalizedSegments = p.NormalizedSegments[:last]
			continue
		}
		kept := trimTail(p.NormalizedSegments[0], n)
		if kept == "" {
			break
		}
		p.NormalizedSegments[0] = kept
	}

	if n := over(); n > 0 {
		return p, fmt.Errorf("%w: %d runes over %d", ErrPromptBudget, n, maxChars)
	}
	return p, nil
}

// trimTail removes n runes from the end of s
func trimTail(s string, n int) string {
	runes := []rune(s)
	if n >= len(runes) {
		return ""
	}
	return strings.TrimSpace(string(runes[:len(runes)-n]))
}
