package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/riskpilot/internal/model"
)

func insertMetricTx(ctx context.Context, tx *sql.Tx, m model.CostMetric) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cost_metrics (id, program_id, input_id, tokens_in, tokens_out, tokens_total,
		                           estimated_cost_usd, model_name, latency_ms, exact, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProgramID, m.InputID, m.TokensIn, m.TokensOut, m.TokensTotal,
		m.EstimatedCostUSD.String(), m.ModelName, m.LatencyMS, boolToInt(m.Exact),
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert cost metric: %w", err)
	}
	return nil
}

// CostMetrics returns the invocation metrics of a program ("" = all), oldest first
func (l *Ledger) CostMetrics(ctx context.Context, programID string) ([]model.CostMetric, error) {
	q := `SELECT id, program_id, input_id, tokens_in, tokens_out, tokens_total,
	             estimated_cost_usd, model_name, latency_ms, exact, created_at
	      FROM cost_metrics`
	var args []interface{}
	if programID != "" {
		q += " WHERE program_id = ?"
		args = append(args, programID)
	}
	q += " ORDER BY rowid"

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost metrics: %w", err)
	}
	defer rows.Close()

	var out []model.CostMetric
	for rows.Next() {
		var m model.CostMetric
		var cost, createdAt string
		var exact int
		if err := rows.Scan(&m.ID, &m.ProgramID, &m.InputID, &m.TokensIn, &m.TokensOut, &m.TokensTotal,
			&cost, &m.ModelName, &m.LatencyMS, &exact, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cost metric: %w", err)
		}
		m.EstimatedCostUSD, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("cost metric %s: bad amount %q: %w", m.ID, cost, err)
		}
		m.Exact = exact != 0
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
