package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostMetric records token usage and estimated spend for one model invocation.
// Every signal produced by that invocation references it by ID.
type CostMetric struct {
	ID               string          `json:"id"`
	ProgramID        string          `json:"program_id"`
	InputID          string          `json:"input_id"`
	TokensIn         int             `json:"tokens_in"`
	TokensOut        int             `json:"tokens_out"`
	TokensTotal      int             `json:"tokens_total"`
	EstimatedCostUSD decimal.Decimal `json:"estimated_cost_usd"`
	ModelName        string          `json:"model_name"`
	LatencyMS        int64           `json:"latency_ms"`
	Exact            bool            `json:"exact"` // Token counts reported by the endpoint
	CreatedAt        time.Time       `json:"created_at"`
}

// FallbackModelName identifies signals produced by the rule-based generator.
// Invocations under this name are never billed.
const FallbackModelName = "fallback-rule-based"
