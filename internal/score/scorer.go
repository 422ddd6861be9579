package score

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ppiankov/riskpilot/internal/model"
)

// Term is one lexicon entry. Stem matches any token that starts with it
// ("delay" matches "delays" and "delayed").
type Term struct {
	Stem   string
	Weight int
}

// Lexicon groups terms by the signal type they inform
type Lexicon struct {
	DeliveryCritical []Term
	DeliveryCaution  []Term
	CostCritical     []Term
	CostCaution      []Term
	EfficiencyGood   []Term
	EfficiencyPoor   []Term
}

// DefaultLexicon is the keyword set used by the rule-based generator
func DefaultLexicon() Lexicon {
	return Lexicon{
		DeliveryCritical: terms(2, "delay", "blocked", "blocker", "critical", "overrun", "missed", "fail",
			"urgent", "shortfall", "slipped", "slippage", "escalat", "stalled"),
		DeliveryCaution: terms(1, "concern", "monitor", "watch", "potential", "risk", "variance",
			"dependenc", "pending", "behind", "tight", "attrition"),
		CostCritical: terms(2, "overrun", "overspend", "overbudget", "exceed", "anomal", "spike",
			"unplanned", "unexpected"),
		CostCaution: terms(1, "variance", "burn", "increase", "contingency", "reforecast"),
		EfficiencyGood: terms(1, "efficient", "cached", "cache", "reuse", "automat", "optimi", "saving",
			"reduced"),
		EfficiencyPoor: terms(1, "retry", "retries", "wasted", "redundant", "duplicate", "timeout",
			"expensive", "idle", "unused", "inefficien"),
	}
}

func terms(weight int, stems ...string) []Term {
	out := make([]Term, len(stems))
	for i, s := range stems {
		out[i] = Term{Stem: s, Weight: weight}
	}
	return out
}

// Assessment is the scorer's verdict for one signal type
type Assessment struct {
	SignalType  model.SignalType
	Value       string
	Matches     []string // distinct matched tokens, first-seen order
	Weight      int
	Words       int
	Density     float64
	Explanation string
	Data        map[string]interface{}
}

// Scorer scans text for risk keywords. It is deterministic: the same
// segments always produce the same assessment.
type Scorer struct {
	lexicon Lexicon
}

// NewScorer creates a scorer with the default lexicon
func NewScorer() *Scorer {
	return &Scorer{lexicon: DefaultLexicon()}
}

// NewScorerWithLexicon creates a scorer with a custom lexicon
func NewScorerWithLexicon(l Lexicon) *Scorer {
	return &Scorer{lexicon: l}
}

// minWords keeps one keyword in a three-word note from reading as a flood
const minWords = 10

// Assess scores segments for signalType
func (s *Scorer) Assess(signalType model.SignalType, segments []string) Assessment {
	tokens := tokenize(segments)

	switch signalType {
	case model.SignalCostRisk:
		return s.assessCost(tokens)
	case model.SignalAIEfficiency:
		return s.assessEfficiency(tokens)
	default:
		return s.assessDelivery(tokens)
	}
}

// assessDelivery grades schedule risk (LOW/MEDIUM/HIGH)
func (s *Scorer) assessDelivery(tokens []string) Assessment {
	critical := scan(tokens, s.lexicon.DeliveryCritical)
	caution := scan(tokens, s.lexicon.DeliveryCaution)
	weight := critical.weight + caution.weight
	density := densityOf(weight, len(tokens))

	// 1. Dense or repeated critical language
	value := "LOW"
	switch {
	case density >= 0.3 || len(critical.matches) >= 3:
		value = "HIGH"
	// 2. Any critical term, or several softer ones
	case density >= 0.1 || len(critical.matches) >= 1 || len(caution.matches) >= 2:
		value = "MEDIUM"
	}

	matches := append(append([]string{}, critical.matches...), caution.matches...)
	var explanation string
	switch value {
	case "HIGH":
		explanation = "Multiple high-risk delivery indicators detected: " + strings.Join(matches, ", ") + "."
	case "MEDIUM":
		explanation = "Some delivery risk indicators warrant monitoring: " + strings.Join(matches, ", ") + "."
	default:
		explanation = "No significant delivery risk indicators detected in the input."
	}

	return Assessment{
		SignalType:  model.SignalDeliveryRisk,
		Value:       value,
		Matches:     matches,
		Weight:      weight,
		Words:       len(tokens),
		Density:     density,
		Explanation: explanation,
		Data: map[string]interface{}{
			"critical": critical.matches,
			"caution":  caution.matches,
			"weight":   weight,
			"density":  density,
			"formula":  "sum(occurrences * weight) / max(words, 10)",
		},
	}
}

// assessCost flags budget anomalies (NORMAL/ANOMALOUS)
func (s *Scorer) assessCost(tokens []string) Assessment {
	critical := scan(tokens, s.lexicon.CostCritical)
	caution := scan(tokens, s.lexicon.CostCaution)
	weight := critical.weight + caution.weight
	density := densityOf(weight, len(tokens))

	value := "NORMAL"
	if len(critical.matches) >= 1 || len(caution.matches) >= 2 || density >= 0.1 {
		value = "ANOMALOUS"
	}

	matches := append(append([]string{}, critical.matches...), caution.matches...)
	explanation := "Cost metrics appear within expected ranges."
	if value == "ANOMALOUS" {
		explanation = "Cost variance indicators exceed normal thresholds: " + strings.Join(matches, ", ") + "."
	}

	return Assessment{
		SignalType:  model.SignalCostRisk,
		Value:       value,
		Matches:     matches,
		Weight:      weight,
		Words:       len(tokens),
		Density:     density,
		Explanation: explanation,
		Data: map[string]interface{}{
			"critical": critical.matches,
			"caution":  caution.matches,
			"weight":   weight,
			"density":  density,
		},
	}
}

// assessEfficiency weighs good against poor usage patterns (LOW/MODERATE/HIGH)
func (s *Scorer) assessEfficiency(tokens []string) Assessment {
	good := scan(tokens, s.lexicon.EfficiencyGood)
	poor := scan(tokens, s.lexicon.EfficiencyPoor)

	value := "MODERATE"
	switch {
	case poor.weight > good.weight:
		value = "LOW"
	case good.weight > poor.weight && len(good.matches) >= 2:
		value = "HIGH"
	}

	matches := append(append([]string{}, good.matches...), poor.matches...)
	var explanation string
	switch value {
	case "HIGH":
		explanation = "AI usage shows efficient patterns: " + strings.Join(good.matches, ", ") + "."
	case "LOW":
		explanation = "AI usage shows waste indicators: " + strings.Join(poor.matches, ", ") + "."
	default:
		explanation = "AI usage patterns show moderate efficiency levels."
	}

	return Assessment{
		SignalType:  model.SignalAIEfficiency,
		Value:       value,
		Matches:     matches,
		Weight:      good.weight - poor.weight,
		Words:       len(tokens),
		Density:     densityOf(good.weight+poor.weight, len(tokens)),
		Explanation: explanation,
		Data: map[string]interface{}{
			"good":    good.matches,
			"poor":    poor.matches,
			"balance": good.weight - poor.weight,
		},
	}
}

type scanResult struct {
	matches []string
	weight  int
}

// scan sums occurrence weights and records distinct matched tokens
func scan(tokens []string, lexicon []Term) scanResult {
	var r scanResult
	seen := make(map[string]bool)
	for _, tok := range tokens {
		for _, term := range lexicon {
			if !strings.HasPrefix(tok, term.Stem) {
				continue
			}
			r.weight += term.Weight
			if !seen[tok] {
				seen[tok] = true
				r.matches = append(r.matches, tok)
			}
			break
		}
	}
	return r
}

func densityOf(weight, words int) float64 {
	if words < minWords {
		words = minWords
	}
	return float64(weight) / float64(words)
}

func tokenize(segments []string) []string {
	var tokens []string
	for _, seg := range segments {
		tokens = append(tokens, strings.FieldsFunc(strings.ToLower(seg), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...)
	}
	return tokens
}

// String renders the assessment for debug logs
func (a Assessment) String() string {
	return fmt.Sprintf("%s=%s (weight %d, density %.2f, matches %v)", a.SignalType, a.Value, a.Weight, a.Density, a.Matches)
}
