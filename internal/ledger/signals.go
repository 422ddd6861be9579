package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/riskpilot/internal/model"
)

// checkDraft enforces the signal taxonomy: known type, value from its
// vocabulary, confidence within [0,1]
func checkDraft(d model.SignalDraft) error {
	if !d.SignalType.Valid() {
		return &model.ValidationError{Field: "signal_type", Reason: fmt.Sprintf("unknown signal type %q", d.SignalType)}
	}
	if !d.SignalType.Allows(d.RawValue) {
		return &model.ValidationError{Field: "signal_value",
			Reason: fmt.Sprintf("%q is not one of %v for %s", d.RawValue, d.SignalType.Vocabulary(), d.SignalType)}
	}
	if d.Confidence < 0 || d.Confidence > 1 || math.IsNaN(d.Confidence) {
		return &model.ValidationError{Field: "confidence_score", Reason: fmt.Sprintf("%v outside [0,1]", d.Confidence)}
	}
	return nil
}

// RecordInvocation stores the cost metric and every signal it paid for in
// one transaction. Either all rows land or none do.
func (l *Ledger) RecordInvocation(ctx context.Context, metric model.CostMetric, drafts []model.SignalDraft, programID, inputID string) ([]model.Signal, error) {
	for _, d := range drafts {
		if err := checkDraft(d); err != nil {
			return nil, err
		}
	}

	createdAt, now := l.timestamp()
	if metric.ID == "" {
		metric.ID = l.newID()
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = createdAt
	}
	metric.ProgramID = programID
	metric.InputID = inputID

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := l.ensureInputTx(ctx, tx, programID, inputID, now); err != nil {
		return nil, err
	}
	if err := insertMetricTx(ctx, tx, metric); err != nil {
		return nil, err
	}

	signals := make([]model.Signal, 0, len(drafts))
	for _, d := range drafts {
		s := l.signalFromDraft(d, programID, inputID, metric.ID, createdAt)
		if err := insertSignalTx(ctx, tx, s); err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return signals, nil
}

// Store persists a single validated draft. costMetricID may be empty.
func (l *Ledger) Store(ctx context.Context, draft model.SignalDraft, programID, inputID, costMetricID string) (model.Signal, error) {
	if err := checkDraft(draft); err != nil {
		return model.Signal{}, err
	}
	createdAt, now := l.timestamp()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Signal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := l.ensureInputTx(ctx, tx, programID, inputID, now); err != nil {
		return model.Signal{}, err
	}
	s := l.signalFromDraft(draft, programID, inputID, costMetricID, createdAt)
	if err := insertSignalTx(ctx, tx, s); err != nil {
		return model.Signal{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Signal{}, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

func (l *Ledger) signalFromDraft(d model.SignalDraft, programID, inputID, costMetricID string, createdAt time.Time) model.Signal {
	return model.Signal{
		ID:              l.newID(),
		ProgramID:       programID,
		InputID:         inputID,
		SignalType:      d.SignalType,
		SignalValue:     d.RawValue,
		ConfidenceScore: d.Confidence,
		Explanation:     d.Explanation,
		ModelUsed:       d.ModelUsed,
		CostMetricID:    costMetricID,
		CreatedAt:       createdAt,
	}
}

func insertSignalTx(ctx context.Context, tx *sql.Tx, s model.Signal) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO signals (id, program_id, input_id, signal_type, signal_value, confidence_score,
		                      explanation, model_used, cost_metric_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProgramID, s.InputID, string(s.SignalType), s.SignalValue, s.ConfidenceScore,
		s.Explanation, s.ModelUsed, nullIfEmpty(s.CostMetricID), s.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	ProgramID      string
	InputID        string
	SignalType     model.SignalType
	EffectiveValue string
	Limit          int
}

const signalViewQuery = `
SELECT id, program_id, input_id, signal_type, signal_value, confidence_score, explanation,
       model_used, cost_metric_id, created_at, latest_override
FROM (
	SELECT s.*, s.rowid AS row_seq,
	       (SELECT o.override_value FROM overrides o WHERE o.signal_id = s.id ORDER BY o.seq DESC LIMIT 1) AS latest_override
	FROM signals s
) v`

// List returns signals with their effective values, oldest first
func (l *Ledger) List(ctx context.Context, f Filter) ([]model.SignalView, error) {
	var where []string
	var args []interface{}
	if f.ProgramID != "" {
		where = append(where, "program_id = ?")
		args = append(args, f.ProgramID)
	}
	if f.InputID != "" {
		where = append(where, "input_id = ?")
		args = append(args, f.InputID)
	}
	if f.SignalType != "" {
		where = append(where, "signal_type = ?")
		args = append(args, string(f.SignalType))
	}
	if f.EffectiveValue != "" {
		where = append(where, "COALESCE(latest_override, signal_value) = ?")
		args = append(args, model.CanonicalValue(f.EffectiveValue))
	}

	q := signalViewQuery
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY row_seq"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []model.SignalView
	for rows.Next() {
		v, err := scanSignalView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Get returns one signal with its effective value
func (l *Ledger) Get(ctx context.Context, signalID string) (model.SignalView, error) {
	row := l.db.QueryRowContext(ctx, signalViewQuery+" WHERE id = ?", signalID)
	v, err := scanSignalView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SignalView{}, fmt.Errorf("signal %s: %w", signalID, model.ErrNotFound)
	}
	return v, err
}

// EffectiveValue is the latest override's value, else the generated value
func (l *Ledger) EffectiveValue(ctx context.Context, signalID string) (string, error) {
	v, err := l.Get(ctx, signalID)
	if err != nil {
		return "", err
	}
	return v.EffectiveValue, nil
}

// CountSignals counts stored signals for programID ("" = all)
func (l *Ledger) CountSignals(ctx context.Context, programID string) (int, error) {
	var n int
	var err error
	if programID == "" {
		err = l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals`).Scan(&n)
	} else {
		err = l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals WHERE program_id = ?`, programID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSignalView(row scanner) (model.SignalView, error) {
	var v model.SignalView
	var signalType, createdAt string
	var costMetricID, latest sql.NullString
	err := row.Scan(&v.ID, &v.ProgramID, &v.InputID, &signalType, &v.SignalValue, &v.ConfidenceScore,
		&v.Explanation, &v.ModelUsed, &costMetricID, &createdAt, &latest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, err
		}
		return v, fmt.Errorf("scan signal: %w", err)
	}
	v.SignalType = model.SignalType(signalType)
	v.CostMetricID = costMetricID.String
	v.CreatedAt = parseTime(createdAt)
	v.EffectiveValue = v.SignalValue
	if latest.Valid {
		v.EffectiveValue = latest.String
		v.Overridden = true
	}
	return v, nil
}
