package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ppiankov/riskpilot/internal/model"
)

// MinJustificationChars is the shortest accepted override justification
const MinJustificationChars = 10

// OverrideRequest is an analyst correction before validation
type OverrideRequest struct {
	SignalID      string `json:"signal_id" validate:"required"`
	Value         string `json:"override_value" validate:"required"`
	Justification string `json:"justification" validate:"required,min=10"`
	AnalystName   string `json:"analyst_name" validate:"required"`
}

var overrideValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

func (r *OverrideRequest) normalize() {
	r.SignalID = strings.TrimSpace(r.SignalID)
	r.Value = model.CanonicalValue(r.Value)
	r.Justification = strings.TrimSpace(r.Justification)
	r.AnalystName = strings.TrimSpace(r.AnalystName)
}

func validateOverride(r OverrideRequest) error {
	err := overrideValidator.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &model.ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return &model.ValidationError{Field: fe.Field(), Reason: "must not be empty"}
	case "min":
		return &model.ValidationError{Field: fe.Field(),
			Reason: fmt.Sprintf("must be at least %d characters", MinJustificationChars)}
	}
	return &model.ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q", fe.Tag())}
}

// Override appends an analyst correction to a signal. The signal itself is
// not modified; its effective value becomes the newest override.
func (l *Ledger) Override(ctx context.Context, req OverrideRequest) (model.Override, error) {
	req.normalize()
	if err := validateOverride(req); err != nil {
		return model.Override{}, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Override{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var signalType, original string
	err = tx.QueryRowContext(ctx,
		`SELECT signal_type, signal_value FROM signals WHERE id = ?`, req.SignalID,
	).Scan(&signalType, &original)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Override{}, fmt.Errorf("signal %s: %w", req.SignalID, model.ErrNotFound)
		}
		return model.Override{}, fmt.Errorf("load signal: %w", err)
	}

	st := model.SignalType(signalType)
	if !st.Allows(req.Value) {
		return model.Override{}, &model.ValidationError{Field: "override_value",
			Reason: fmt.Sprintf("%q is not one of %v for %s", req.Value, st.Vocabulary(), st)}
	}

	createdAt, now := l.timestamp()
	o := model.Override{
		ID:            l.newID(),
		SignalID:      req.SignalID,
		OriginalValue: original,
		OverrideValue: req.Value,
		Justification: req.Justification,
		AnalystName:   req.AnalystName,
		CreatedAt:     createdAt,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO overrides (id, signal_id, original_value, override_value, justification, analyst_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SignalID, o.OriginalValue, o.OverrideValue, o.Justification, o.AnalystName, now,
	)
	if err != nil {
		return model.Override{}, fmt.Errorf("insert override: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Override{}, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}

// Overrides returns the override history of a signal, oldest first
func (l *Ledger) Overrides(ctx context.Context, signalID string) ([]model.Override, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, signal_id, original_value, override_value, justification, analyst_name, created_at
		 FROM overrides WHERE signal_id = ? ORDER BY seq`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var o model.Override
		var createdAt string
		if err := rows.Scan(&o.ID, &o.SignalID, &o.OriginalValue, &o.OverrideValue,
			&o.Justification, &o.AnalystName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.CreatedAt = parseTime(createdAt)
		out = append(out, o)
	}
	return out, rows.Err()
}
