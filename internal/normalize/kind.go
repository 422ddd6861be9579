package normalize

import (
	"strings"
	"unicode"

	"github.com/ppiankov/riskpilot/internal/model"
)

// detectTableKind looks at the filename first, then the header names
func detectTableKind(filename string, header []string) model.DocumentKind {
	if filename != "" {
		name := strings.ToLower(filename)
		switch {
		case strings.Contains(name, "risk"):
			return model.KindRiskRegister
		case strings.Contains(name, "cost"), strings.Contains(name, "burn"):
			return model.KindCostSummary
		case strings.Contains(name, "milestone"):
			return model.KindMilestones
		case hasToken(name, "ai"), strings.Contains(name, "usage"):
			return model.KindAIUsage
		}
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(h)
	}
	switch {
	case anyContains(cols, "risk"):
		return model.KindRiskRegister
	case anyContains(cols, "cost", "spend", "budget"):
		return model.KindCostSummary
	case anyContains(cols, "milestone"):
		return model.KindMilestones
	case anyContains(cols, "token", "model"):
		return model.KindAIUsage
	}
	return model.KindGeneralData
}

func detectTextKind(filename, text string) model.DocumentKind {
	if filename != "" {
		name := strings.ToLower(filename)
		switch {
		case strings.Contains(name, "status"):
			return model.KindStatusReport
		case strings.Contains(name, "note"):
			return model.KindAnalystNotes
		case strings.Contains(name, "risk"):
			return model.KindRiskRegister
		}
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "weekly") && strings.Contains(lower, "status"):
		return model.KindStatusReport
	case strings.Contains(lower, "analyst"), strings.Contains(lower, "observation"):
		return model.KindAnalystNotes
	}
	return model.KindGeneralDocument
}

func anyContains(values []string, needles ...string) bool {
	for _, v := range values {
		for _, n := range needles {
			if strings.Contains(v, n) {
				return true
			}
		}
	}
	return false
}

// hasToken matches tok as a whole word of name ("ai_usage.csv" yes, "maintain.csv" no)
func hasToken(name, tok string) bool {
	for _, f := range strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if f == tok {
			return true
		}
	}
	return false
}
