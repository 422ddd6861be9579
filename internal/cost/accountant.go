package cost

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/riskpilot/internal/model"
)

// CharsPerToken is the fixed approximation used when the endpoint does not
// report token counts
const CharsPerToken = 4

// Usage carries exact token counts reported by an endpoint
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Ledger is the persistence the accountant records through
type Ledger interface {
	RecordInvocation(ctx context.Context, metric model.CostMetric, drafts []model.SignalDraft, programID, inputID string) ([]model.Signal, error)
	CostMetrics(ctx context.Context, programID string) ([]model.CostMetric, error)
	CountSignals(ctx context.Context, programID string) (int, error)
}

// Accountant estimates invocation cost and records it with the produced signals
type Accountant struct {
	prices *PriceTable
	ledger Ledger
	now    func() time.Time
}

// NewAccountant creates an accountant bound to ledger
func NewAccountant(prices *PriceTable, ledger Ledger) *Accountant {
	return &Accountant{prices: prices, ledger: ledger, now: time.Now}
}

// Estimate derives token counts and cost for one invocation. Exact usage,
// when reported, wins over the character approximation.
func (a *Accountant) Estimate(textIn, textOut, modelName string, usage *Usage) model.CostMetric {
	m := Estimate(a.prices, textIn, textOut, modelName, usage)
	m.CreatedAt = a.now().UTC()
	return m
}

// Estimate is the pure form of Accountant.Estimate
func Estimate(prices *PriceTable, textIn, textOut, modelName string, usage *Usage) model.CostMetric {
	m := model.CostMetric{ModelName: modelName}
	if usage != nil && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		m.TokensIn = usage.PromptTokens
		m.TokensOut = usage.CompletionTokens
		m.Exact = true
	} else {
		m.TokensIn = ApproxTokens(textIn)
		m.TokensOut = ApproxTokens(textOut)
	}
	m.TokensTotal = m.TokensIn + m.TokensOut

	price, _ := prices.Lookup(modelName)
	m.EstimatedCostUSD = price.InputPer1K.Mul(decimal.NewFromInt(int64(m.TokensIn))).
		Add(price.OutputPer1K.Mul(decimal.NewFromInt(int64(m.TokensOut)))).
		Shift(-3)
	return m
}

// ApproxTokens is ceil(chars / CharsPerToken)
func ApproxTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Record stores metric and the drafts it paid for in one ledger transaction
func (a *Accountant) Record(ctx context.Context, metric model.CostMetric, drafts []model.SignalDraft, programID, inputID string) ([]model.Signal, error) {
	metric.ProgramID = programID
	metric.InputID = inputID
	signals, err := a.ledger.RecordInvocation(ctx, metric, drafts, programID, inputID)
	if err != nil {
		return nil, fmt.Errorf("record invocation: %w", err)
	}
	return signals, nil
}

// Summary aggregates stored metrics for programID ("" = all programs)
func (a *Accountant) Summary(ctx context.Context, programID string) (Summary, error) {
	metrics, err := a.ledger.CostMetrics(ctx, programID)
	if err != nil {
		return Summary{}, fmt.Errorf("load cost metrics: %w", err)
	}
	signals, err := a.ledger.CountSignals(ctx, programID)
	if err != nil {
		return Summary{}, fmt.Errorf("count signals: %w", err)
	}
	s := Summarize(metrics, signals)
	s.ProgramID = programID
	return s, nil
}
