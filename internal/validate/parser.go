package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/ppiankov/riskpilot/internal/model"
)

// Strategy names the parse path that produced the drafts
type Strategy string

const (
	StrategyStrict   Strategy = "strict-json"
	StrategyTolerant Strategy = "tolerant-json"
	StrategyLabelled Strategy = "labelled-fields"
)

// DraftDefaults fills fields the reply does not carry
type DraftDefaults struct {
	// Requested lists the signal types asked for. A draft without a type is
	// assigned the only requested type; with several requested it is rejected.
	Requested []model.SignalType
	ModelUsed string
	TokensIn  int
	TokensOut int
}

// Rejection explains why one candidate draft was dropped
type Rejection struct {
	Index      int    `json:"index"`
	SignalType string `json:"signal_type,omitempty"`
	Value      string `json:"value,omitempty"`
	Reason     string `json:"reason"`
}

func (r Rejection) String() string {
	return fmt.Sprintf("draft %d (%s=%s): %s", r.Index, r.SignalType, r.Value, r.Reason)
}

// ParseResult holds accepted drafts plus what was rejected and why
type ParseResult struct {
	Drafts   []model.SignalDraft
	Rejected []Rejection
	Strategy Strategy
}

// candidate is a draft before validation; nil means the field was absent
type candidate struct {
	SignalType  *string  `json:"signal_type"`
	SignalValue *string  `json:"signal_value"`
	Confidence  *float64 `json:"confidence"`
	Explanation *string  `json:"explanation"`

	confidenceRaw string
}

type envelope struct {
	Signals []candidate `json:"signals"`
}

// Parse converts a model reply into validated drafts. Strict JSON is tried
// first; tolerant extraction runs only when it fails. Bad drafts are
// collected in Rejected and never fail the batch. Zero accepted drafts
// returns *model.ParseFailure alongside the result.
func Parse(raw string, defaults DraftDefaults) (ParseResult, error) {
	var res ParseResult

	cands, err := parseStrict(raw)
	res.Strategy = StrategyStrict
	if err != nil {
		cands = parseTolerantJSON(raw)
		res.Strategy = StrategyTolerant
		if len(cands) == 0 {
			cands = parseLabelled(raw)
			res.Strategy = StrategyLabelled
		}
	}

	seen := make(map[model.SignalType]bool)
	for i, c := range cands {
		draft, rej := validateCandidate(i, c, defaults)
		if rej == nil && seen[draft.SignalType] {
			rej = &Rejection{Index: i, SignalType: string(draft.SignalType), Value: draft.RawValue, Reason: "duplicate signal type in reply"}
		}
		if rej != nil {
			res.Rejected = append(res.Rejected, *rej)
			continue
		}
		seen[draft.SignalType] = true
		res.Drafts = append(res.Drafts, draft)
	}

	if len(res.Drafts) == 0 {
		reasons := make([]string, 0, len(res.Rejected))
		for _, r := range res.Rejected {
			reasons = append(reasons, r.String())
		}
		return res, &model.ParseFailure{Reasons: reasons}
	}
	return res, nil
}

func validateCandidate(i int, c candidate, d DraftDefaults) (model.SignalDraft, *Rejection) {
	rej := func(typ, val, reason string) *Rejection {
		return &Rejection{Index: i, SignalType: typ, Value: val, Reason: reason}
	}

	var st model.SignalType
	typeText := ""
	if c.SignalType != nil && strings.TrimSpace(*c.SignalType) != "" {
		typeText = *c.SignalType
		t, ok := model.ParseSignalType(typeText)
		if !ok {
			return model.SignalDraft{}, rej(typeText, "", "unknown signal type")
		}
		st = t
	} else {
		if len(d.Requested) != 1 {
			return model.SignalDraft{}, rej("", "", "missing signal_type")
		}
		st = d.Requested[0]
	}
	if len(d.Requested) > 0 && !containsType(d.Requested, st) {
		return model.SignalDraft{}, rej(string(st), "", "signal type was not requested")
	}

	if c.SignalValue == nil || strings.TrimSpace(*c.SignalValue) == "" {
		return model.SignalDraft{}, rej(string(st), "", "missing signal_value")
	}
	value := model.CanonicalValue(*c.SignalValue)
	if !st.Allows(value) {
		return model.SignalDraft{}, rej(string(st), value,
			fmt.Sprintf("value not in vocabulary %v", st.Vocabulary()))
	}

	if c.Confidence == nil {
		reason := "missing confidence"
		if c.confidenceRaw != "" {
			reason = fmt.Sprintf("confidence %q is not a number", c.confidenceRaw)
		}
		return model.SignalDraft{}, rej(string(st), value, reason)
	}
	conf, adjusted := clamp(*c.Confidence)

	explanation := ""
	if c.Explanation != nil {
		explanation = strings.TrimSpace(*c.Explanation)
	}
	if reason := checkExplanation(explanation); reason != "" {
		return model.SignalDraft{}, rej(string(st), value, reason)
	}

	return model.SignalDraft{
		SignalType:         st,
		RawValue:           value,
		Confidence:         conf,
		Explanation:        explanation,
		ModelUsed:          d.ModelUsed,
		TokensIn:           d.TokensIn,
		TokensOut:          d.TokensOut,
		ConfidenceAdjusted: adjusted,
	}, nil
}

// MinExplanationChars is the shortest explanation accepted from a model
const MinExplanationChars = 30

// checkExplanation returns why an explanation is unusable, or ""
func checkExplanation(e string) string {
	lower := strings.ToLower(e)
	switch {
	case e == "":
		return "missing explanation"
	case strings.Contains(lower, "unable to parse"), strings.Contains(lower, "failed to parse"):
		return "explanation is a parse-error placeholder"
	case strings.HasSuffix(e, ":"):
		return "explanation is truncated"
	case utf8.RuneCountInString(e) < MinExplanationChars:
		return fmt.Sprintf("explanation shorter than %d characters", MinExplanationChars)
	}
	return ""
}

func clamp(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, true
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	}
	return v, false
}

func containsType(types []model.SignalType, t model.SignalType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// parseStrict accepts exactly one JSON document, either {"signals":[...]} or a
// single signal object, with no unknown fields
func parseStrict(raw string) ([]candidate, error) {
	body := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return nil, errors.New("empty reply")
	}

	var env envelope
	if err := decodeStrict(body, &env); err == nil {
		if env.Signals == nil {
			return nil, errors.New("missing signals array")
		}
		return env.Signals, nil
	}

	var single candidate
	if err := decodeStrict(body, &single); err != nil {
		return nil, err
	}
	return []candidate{single}, nil
}

func decodeStrict(body string, v any) error {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

var (
	typeKeys        = []string{"signal_type", "signalType", "type", "signal"}
	valueKeys       = []string{"signal_value", "signalValue", "value", "level", "rating"}
	confidenceKeys  = []string{"confidence", "confidence_score", "confidenceScore", "score"}
	explanationKeys = []string{"explanation", "rationale", "reason", "justification", "summary"}
)

// parseTolerantJSON recovers drafts from the first JSON-looking span in
// free text, accepting common key spellings
func parseTolerantJSON(raw string) []candidate {
	span := jsonSpan(raw)
	if span == "" || !gjson.Valid(span) {
		return nil
	}
	root := gjson.Parse(span)

	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.Get("signals").IsArray():
		items = root.Get("signals").Array()
	case root.IsObject():
		items = []gjson.Result{root}
	}

	var out []candidate
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		var c candidate
		if v, ok := firstOf(item, typeKeys); ok {
			s := v.String()
			c.SignalType = &s
		}
		if v, ok := firstOf(item, valueKeys); ok {
			s := v.String()
			c.SignalValue = &s
		}
		if v, ok := firstOf(item, confidenceKeys); ok {
			c.confidenceRaw = v.String()
			if f, ok := parseConfidence(v.String()); ok {
				c.Confidence = &f
			}
		}
		if v, ok := firstOf(item, explanationKeys); ok {
			s := v.String()
			c.Explanation = &s
		}
		out = append(out, c)
	}
	return out
}

func firstOf(item gjson.Result, keys []string) (gjson.Result, bool) {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// jsonSpan returns the text between the first opening brace/bracket and the
// matching last closing one
func jsonSpan(raw string) string {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if raw[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(raw, closer)
	if end <= start {
		return ""
	}
	return raw[start : end+1]
}

var (
	labelRe   = regexp.MustCompile(`(?i)^[\s*#>-]*(SIGNAL[_ ]TYPE|SIGNAL[_ ]VALUE|CONFIDENCE|EXPLANATION)[\s*]*:[\s*]*(.*)$`)
	numberRe  = regexp.MustCompile(`^[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?\s*%?`)
	dividerRe = regexp.MustCompile(`^\s*(?:-{3,}|={3,})\s*$`)
)

// parseLabelled reads "SIGNAL_TYPE: ... / SIGNAL_VALUE: ... / CONFIDENCE: ... /
// EXPLANATION: ..." blocks. A new block starts at a divider line or when a
// label repeats. Explanations may continue on following lines.
func parseLabelled(raw string) []candidate {
	var out []candidate
	var cur *candidate
	var explanation *strings.Builder
	seen := make(map[string]bool)

	flush := func() {
		if cur == nil {
			return
		}
		if explanation != nil {
			s := strings.TrimSpace(explanation.String())
			cur.Explanation = &s
		}
		out = append(out, *cur)
		cur, explanation = nil, nil
		seen = make(map[string]bool)
	}

	for _, line := range strings.Split(raw, "\n") {
		if dividerRe.MatchString(line) {
			flush()
			continue
		}
		m := labelRe.FindStringSubmatch(line)
		if m == nil {
			if explanation != nil {
				if strings.TrimSpace(line) == "" {
					// Blank line ends a multi-line explanation
					s := strings.TrimSpace(explanation.String())
					cur.Explanation = &s
					explanation = nil
					continue
				}
				explanation.WriteString(" ")
				explanation.WriteString(strings.TrimSpace(line))
			}
			continue
		}

		label := strings.ToUpper(strings.ReplaceAll(m[1], " ", "_"))
		val := strings.TrimSpace(m[2])
		if seen[label] {
			flush()
		}
		if cur == nil {
			cur = &candidate{}
		}
		seen[label] = true
		if explanation != nil {
			s := strings.TrimSpace(explanation.String())
			cur.Explanation = &s
			explanation = nil
		}

		switch label {
		case "SIGNAL_TYPE":
			cur.SignalType = &val
		case "SIGNAL_VALUE":
			v := firstWord(val)
			cur.SignalValue = &v
		case "CONFIDENCE":
			cur.confidenceRaw = val
			if f, ok := parseConfidence(val); ok {
				cur.Confidence = &f
			}
		case "EXPLANATION":
			explanation = &strings.Builder{}
			explanation.WriteString(val)
		}
	}
	flush()
	return out
}

// firstWord keeps "HIGH" from "HIGH (due to delays)"
func firstWord(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "[]*\"'")
	if f := strings.Fields(s); len(f) > 0 {
		return strings.Trim(f[0], ".,;:*\"'()[]")
	}
	return ""
}

// parseConfidence reads "0.8", "0.85 (high)" or "85%"
func parseConfidence(s string) (float64, bool) {
	s = strings.Trim(strings.TrimSpace(s), "[]*\"'")
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.TrimSpace(m)
	pct := strings.HasSuffix(m, "%")
	m = strings.TrimSpace(strings.TrimSuffix(m, "%"))
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if pct {
		f /= 100
	}
	return f, true
}
