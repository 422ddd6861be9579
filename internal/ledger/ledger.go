package ledger

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS inputs (
	id             TEXT PRIMARY KEY,
	program_id     TEXT NOT NULL,
	content_type   TEXT NOT NULL,
	document_kind  TEXT NOT NULL DEFAULT '',
	filename       TEXT,
	segments_json  TEXT NOT NULL DEFAULT '[]',
	facts_json     TEXT NOT NULL DEFAULT '{}',
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inputs_program ON inputs(program_id);

CREATE TABLE IF NOT EXISTS cost_metrics (
	id                 TEXT PRIMARY KEY,
	program_id         TEXT NOT NULL,
	input_id           TEXT NOT NULL,
	tokens_in          INTEGER NOT NULL,
	tokens_out         INTEGER NOT NULL,
	tokens_total       INTEGER NOT NULL,
	estimated_cost_usd TEXT NOT NULL,
	model_name         TEXT NOT NULL,
	latency_ms         INTEGER NOT NULL DEFAULT 0,
	exact              INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	FOREIGN KEY (input_id) REFERENCES inputs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_cost_metrics_program ON cost_metrics(program_id);

CREATE TABLE IF NOT EXISTS signals (
	id               TEXT PRIMARY KEY,
	program_id       TEXT NOT NULL,
	input_id         TEXT NOT NULL,
	signal_type      TEXT NOT NULL CHECK (signal_type IN ('delivery_risk', 'cost_risk', 'ai_efficiency')),
	signal_value     TEXT NOT NULL,
	confidence_score REAL NOT NULL CHECK (confidence_score >= 0 AND confidence_score <= 1),
	explanation      TEXT NOT NULL,
	model_used       TEXT NOT NULL,
	cost_metric_id   TEXT,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (input_id) REFERENCES inputs(id) ON DELETE CASCADE,
	FOREIGN KEY (cost_metric_id) REFERENCES cost_metrics(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_program ON signals(program_id);
CREATE INDEX IF NOT EXISTS idx_signals_input ON signals(input_id);

CREATE TABLE IF NOT EXISTS overrides (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	signal_id      TEXT NOT NULL,
	original_value TEXT NOT NULL,
	override_value TEXT NOT NULL,
	justification  TEXT NOT NULL,
	analyst_name   TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (signal_id) REFERENCES signals(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_overrides_signal ON overrides(signal_id, seq);
`

// Ledger persists inputs, signals, overrides and cost metrics in SQLite.
// Signals are never updated; overrides are append-only.
type Ledger struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Ledger{
		db:    db,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}, nil
}

// Close closes the underlying database connection
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) timestamp() (time.Time, string) {
	now := l.now().UTC()
	return now, now.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
