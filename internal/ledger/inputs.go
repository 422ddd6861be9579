package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/riskpilot/internal/model"
)

// SaveInput stores (or replaces) a normalized input so its program can be
// reindexed later. An input id stays bound to the program that first saved
// it; saving it under another program is a validation error.
func (l *Ledger) SaveInput(ctx context.Context, in model.NormalizedInput) error {
	segs, err := json.Marshal(in.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	facts, err := json.Marshal(in.ExtractedFacts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	_, now := l.timestamp()

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO inputs (id, program_id, content_type, document_kind, filename, segments_json, facts_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   content_type = excluded.content_type,
		   document_kind = excluded.document_kind,
		   filename = excluded.filename,
		   segments_json = excluded.segments_json,
		   facts_json = excluded.facts_json
		 WHERE inputs.program_id = excluded.program_id`,
		in.InputID, in.ProgramID, string(in.ContentType), string(in.DocumentKind),
		nullIfEmpty(in.Filename), string(segs), string(facts), now,
	)
	if err != nil {
		return fmt.Errorf("save input %s: %w", in.InputID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return programMismatch(in.InputID)
	}
	return nil
}

func programMismatch(inputID string) error {
	return &model.ValidationError{Field: "program_id", Reason: fmt.Sprintf("input %s belongs to another program", inputID)}
}

// ensureInputTx creates a placeholder input row so signals recorded without a
// prior SaveInput still satisfy the foreign key
func (l *Ledger) ensureInputTx(ctx context.Context, tx *sql.Tx, programID, inputID, now string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO inputs (id, program_id, content_type, created_at) VALUES (?, ?, '', ?)
		 ON CONFLICT(id) DO NOTHING`,
		inputID, programID, now,
	)
	if err != nil {
		return fmt.Errorf("ensure input %s: %w", inputID, err)
	}
	var owner string
	if err := tx.QueryRowContext(ctx, `SELECT program_id FROM inputs WHERE id = ?`, inputID).Scan(&owner); err != nil {
		return fmt.Errorf("ensure input %s: %w", inputID, err)
	}
	if owner != programID {
		return programMismatch(inputID)
	}
	return nil
}

// Inputs returns the stored normalized inputs of a program, oldest first.
// Placeholder rows without segments are skipped.
func (l *Ledger) Inputs(ctx context.Context, programID string) ([]model.NormalizedInput, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, program_id, content_type, document_kind, filename, segments_json, facts_json
		 FROM inputs WHERE program_id = ? ORDER BY rowid`, programID)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	var out []model.NormalizedInput
	for rows.Next() {
		var in model.NormalizedInput
		var contentType, kind, segs, facts string
		var filename sql.NullString
		if err := rows.Scan(&in.InputID, &in.ProgramID, &contentType, &kind, &filename, &segs, &facts); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		in.ContentType = model.ContentType(contentType)
		in.DocumentKind = model.DocumentKind(kind)
		in.Filename = filename.String
		if err := json.Unmarshal([]byte(segs), &in.Segments); err != nil {
			return nil, fmt.Errorf("unmarshal segments of %s: %w", in.InputID, err)
		}
		if err := json.Unmarshal([]byte(facts), &in.ExtractedFacts); err != nil {
			return nil, fmt.Errorf("unmarshal facts of %s: %w", in.InputID, err)
		}
		if len(in.Segments) == 0 {
			continue
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// DeleteInput removes an input together with its signals, their overrides
// and its cost metrics
func (l *Ledger) DeleteInput(ctx context.Context, inputID string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM inputs WHERE id = ?`, inputID)
	if err != nil {
		return fmt.Errorf("delete input %s: %w", inputID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("input %s: %w", inputID, model.ErrNotFound)
	}
	return nil
}
