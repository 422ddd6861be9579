package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/validate"
)

// Status is the outcome of one input
type Status string

const (
	StatusOK           Status = "ok"
	StatusParseFailure Status = "parse_failure"
	StatusError        Status = "error"
)

// InputResult reports what happened to one input
type InputResult struct {
	InputID           string               `json:"input_id"`
	Filename          string               `json:"filename,omitempty"`
	DocumentKind      model.DocumentKind   `json:"document_kind,omitempty"`
	Status            Status               `json:"status"`
	SignalTypes       []model.SignalType   `json:"signal_types,omitempty"`
	Signals           []model.Signal       `json:"signals,omitempty"`
	CostMetric        *model.CostMetric    `json:"cost_metric,omitempty"`
	Strategy          validate.Strategy    `json:"parse_strategy,omitempty"`
	Rejected          []validate.Rejection `json:"rejected,omitempty"`
	Retrieved         int                  `json:"retrieved_segments"`
	TruncationApplied bool                 `json:"truncation_applied,omitempty"`
	Fallback          bool                 `json:"fallback,omitempty"`
	FallbackReason    string               `json:"fallback_reason,omitempty"`
	PersistenceFailed bool                 `json:"persistence_failed,omitempty"`
	Error             string               `json:"error,omitempty"`

	failure error
}

// Err is the failure that ended the input, if any
func (r *InputResult) Err() error { return r.failure }

// AnalyzeResult aggregates a program run
type AnalyzeResult struct {
	ProgramID    string          `json:"program_id"`
	Inputs       []*InputResult  `json:"inputs"`
	Signals      []model.Signal  `json:"signals"`
	TotalTokens  int             `json:"total_tokens"`
	TotalCostUSD decimal.Decimal `json:"total_cost_usd"`
	Fallbacks    int             `json:"fallbacks"`
}

func (a *AnalyzeResult) add(r *InputResult) {
	if r.failure != nil && r.Error == "" {
		r.Error = r.failure.Error()
	}
	a.Inputs = append(a.Inputs, r)
	a.Signals = append(a.Signals, r.Signals...)
	if r.CostMetric != nil {
		a.TotalTokens += r.CostMetric.TokensTotal
		a.TotalCostUSD = a.TotalCostUSD.Add(r.CostMetric.EstimatedCostUSD)
	}
	if r.Fallback {
		a.Fallbacks++
	}
}

// Count returns how many inputs ended with status
func (a *AnalyzeResult) Count(status Status) int {
	n := 0
	for _, r := range a.Inputs {
		if r.Status == status {
			n++
		}
	}
	return n
}
