package model

import (
	"strings"
	"time"
)

// SignalType classifies what a signal assesses
type SignalType string

const (
	SignalDeliveryRisk SignalType = "delivery_risk" // Schedule, staffing and dependency risk
	SignalCostRisk     SignalType = "cost_risk"     // Budget variance and burn anomalies
	SignalAIEfficiency SignalType = "ai_efficiency" // Token and model usage efficiency
)

// AllSignalTypes lists every signal type in a stable order
var AllSignalTypes = []SignalType{SignalDeliveryRisk, SignalCostRisk, SignalAIEfficiency}

// vocabulary is the closed set of values allowed per signal type
var vocabulary = map[SignalType][]string{
	SignalDeliveryRisk: {"LOW", "MEDIUM", "HIGH"},
	SignalCostRisk:     {"NORMAL", "ANOMALOUS"},
	SignalAIEfficiency: {"LOW", "MODERATE", "HIGH"},
}

// Valid reports whether t is a known signal type
func (t SignalType) Valid() bool {
	_, ok := vocabulary[t]
	return ok
}

// Vocabulary returns the allowed values for the signal type (nil if unknown)
func (t SignalType) Vocabulary() []string {
	values := vocabulary[t]
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// Allows reports whether value belongs to the vocabulary of t.
// Comparison is exact; callers canonicalize with CanonicalValue first.
func (t SignalType) Allows(value string) bool {
	for _, v := range vocabulary[t] {
		if v == value {
			return true
		}
	}
	return false
}

// ParseSignalType accepts the canonical name plus a few spellings models produce
func ParseSignalType(s string) (SignalType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "delivery_risk", "delivery", "schedule_risk":
		return SignalDeliveryRisk, true
	case "cost_risk", "cost", "cost_anomaly":
		return SignalCostRisk, true
	case "ai_efficiency", "efficiency", "ai_usage_efficiency":
		return SignalAIEfficiency, true
	}
	return "", false
}

// CanonicalValue upper-cases and trims a raw signal value
func CanonicalValue(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, "[]\"'.*")
	return strings.ToUpper(strings.TrimSpace(v))
}

// SignalDraft is a model reply that has not been validated or persisted yet
type SignalDraft struct {
	SignalType         SignalType `json:"signal_type"`
	RawValue           string     `json:"raw_value"`
	Confidence         float64    `json:"confidence"`
	Explanation        string     `json:"explanation"`
	ModelUsed          string     `json:"model_used"`
	TokensIn           int        `json:"tokens_in"`
	TokensOut          int        `json:"tokens_out"`
	ConfidenceAdjusted bool       `json:"confidence_adjusted,omitempty"` // Clamped into [0,1]
}

// Signal is a persisted, validated assessment. Never mutated after creation.
type Signal struct {
	ID              string     `json:"id"`
	ProgramID       string     `json:"program_id"`
	InputID         string     `json:"input_id"`
	SignalType      SignalType `json:"signal_type"`
	SignalValue     string     `json:"signal_value"`
	ConfidenceScore float64    `json:"confidence_score"`
	Explanation     string     `json:"explanation"`
	ModelUsed       string     `json:"model_used"`
	CostMetricID    string     `json:"cost_metric_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Override is an analyst correction. Append-only.
type Override struct {
	ID            string    `json:"id"`
	SignalID      string    `json:"signal_id"`
	OriginalValue string    `json:"original_value"`
	OverrideValue string    `json:"override_value"`
	Justification string    `json:"justification"`
	AnalystName   string    `json:"analyst_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// SignalView pairs a signal with its effective value
type SignalView struct {
	Signal
	EffectiveValue string `json:"effective_value"`
	Overridden     bool   `json:"overridden"`
}
