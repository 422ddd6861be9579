package cost

import (
	"github.com/shopspring/decimal"

	"github.com/ppiankov/riskpilot/internal/model"
)

// ModelUsage is one row of the per-model breakdown
type ModelUsage struct {
	Invocations int             `json:"invocations"`
	Tokens      int             `json:"tokens"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
}

// Summary is the cost rollup for a program or the whole ledger
type Summary struct {
	ProgramID          string                `json:"program_id,omitempty"`
	TotalTokens        int                   `json:"total_tokens"`
	TotalCostUSD       decimal.Decimal       `json:"total_cost_usd"`
	TotalSignals       int                   `json:"total_signals"`
	TotalInvocations   int                   `json:"total_invocations"`
	AvgCostPerSignal   decimal.Decimal       `json:"avg_cost_per_signal"`
	AvgTokensPerSignal float64               `json:"avg_tokens_per_signal"`
	ModelBreakdown     map[string]ModelUsage `json:"model_breakdown"`
}

// avgPlaces bounds the precision of per-signal averages
const avgPlaces = 10

// Summarize aggregates metrics using only sums, so any ordering of the
// input yields an identical Summary
func Summarize(metrics []model.CostMetric, totalSignals int) Summary {
	s := Summary{
		TotalCostUSD:     decimal.Zero,
		AvgCostPerSignal: decimal.Zero,
		TotalSignals:     totalSignals,
		TotalInvocations: len(metrics),
		ModelBreakdown:   make(map[string]ModelUsage),
	}
	for _, m := range metrics {
		s.TotalTokens += m.TokensTotal
		s.TotalCostUSD = s.TotalCostUSD.Add(m.EstimatedCostUSD)

		row := s.ModelBreakdown[m.ModelName]
		row.Invocations++
		row.Tokens += m.TokensTotal
		row.CostUSD = row.CostUSD.Add(m.EstimatedCostUSD)
		s.ModelBreakdown[m.ModelName] = row
	}
	if totalSignals > 0 {
		n := decimal.NewFromInt(int64(totalSignals))
		s.AvgCostPerSignal = s.TotalCostUSD.DivRound(n, avgPlaces)
		s.AvgTokensPerSignal = float64(s.TotalTokens) / float64(totalSignals)
	}
	return s
}
