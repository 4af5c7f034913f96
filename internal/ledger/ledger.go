// Package ledger implements the Usage Ledger: an append-only SQLite table
// of per-request token usage and the aggregation queries the gateway
// exposes over /v1/usage. Grounded on
// original_source/gateway/metering.py's UsageMeter, ported from Python's
// sqlite3 to database/sql + modernc.org/sqlite.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed request's usage, matching metering.py's
// UsageRecord dataclass.
type Record struct {
	APIKey           string
	Model            string
	SessionID        string // "" when the request carried no session header
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMS        float64
	Timestamp        time.Time
}

// Ledger wraps a SQLite-backed usage table.
type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	api_key TEXT NOT NULL,
	model TEXT NOT NULL,
	session_id TEXT,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_key_time ON usage(api_key, ts);
CREATE INDEX IF NOT EXISTS idx_usage_model_time ON usage(model, ts);
CREATE INDEX IF NOT EXISTS idx_usage_session ON usage(session_id);
`

// Open creates (or reopens) the ledger database at path and ensures its
// schema exists. path may be ":memory:" for tests.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer avoids SQLITE_BUSY under our own concurrency

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: migrate schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// Record appends one usage row. Matches metering.py's record().
func (l *Ledger) Record(r Record) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := l.db.Exec(
		`INSERT INTO usage (api_key, model, session_id, prompt_tokens, completion_tokens, total_tokens, latency_ms, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.APIKey, r.Model, nullableString(r.SessionID), r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.LatencyMS, ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("ledger: insert: %w", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Aggregate is one row of an aggregation query result that keeps the
// input/output split (by_key, by_session, breakdown).
type Aggregate struct {
	Key              string
	RequestCount     int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	AvgLatencyMS     float64
}

// ByKey aggregates usage for one API key since the given time (zero value
// means no lower bound). Matches get_usage_by_key.
func (l *Ledger) ByKey(apiKey string, since time.Time) (Aggregate, error) {
	row := l.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0), COALESCE(SUM(total_tokens),0),
		       COALESCE(AVG(latency_ms),0)
		FROM usage WHERE api_key = ? AND ts >= ?`,
		apiKey, since.Unix())

	agg := Aggregate{Key: apiKey}
	if err := row.Scan(&agg.RequestCount, &agg.PromptTokens, &agg.CompletionTokens, &agg.TotalTokens, &agg.AvgLatencyMS); err != nil {
		return Aggregate{}, fmt.Errorf("ledger: aggregate by key: %w", err)
	}
	return agg, nil
}

// ModelAggregate is one row of the by_model query. get_usage_by_model never
// reports an input/output split, only request_count/total_tokens/avg_latency_ms.
type ModelAggregate struct {
	Model        string
	RequestCount int
	TotalTokens  int
	AvgLatencyMS float64
}

// ByModel aggregates usage for one model since the given time. Matches
// get_usage_by_model.
func (l *Ledger) ByModel(model string, since time.Time) (ModelAggregate, error) {
	row := l.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(total_tokens),0), COALESCE(AVG(latency_ms),0)
		FROM usage WHERE model = ? AND ts >= ?`,
		model, since.Unix())

	agg := ModelAggregate{Model: model}
	if err := row.Scan(&agg.RequestCount, &agg.TotalTokens, &agg.AvgLatencyMS); err != nil {
		return ModelAggregate{}, fmt.Errorf("ledger: aggregate by model: %w", err)
	}
	return agg, nil
}

// SessionUsage mirrors get_usage_by_session's row shape (it additionally
// reports the first/last request time, with no since filter).
type SessionUsage struct {
	Aggregate
	FirstRequest time.Time
	LastRequest  time.Time
}

// BySession aggregates usage for one session, with no time filter, matching
// get_usage_by_session.
func (l *Ledger) BySession(sessionID string) (SessionUsage, error) {
	row := l.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0), COALESCE(SUM(total_tokens),0),
		       COALESCE(AVG(latency_ms),0), COALESCE(MIN(ts),0), COALESCE(MAX(ts),0)
		FROM usage WHERE session_id = ?`, sessionID)

	var su SessionUsage
	su.Key = sessionID
	var minTS, maxTS int64
	if err := row.Scan(&su.RequestCount, &su.PromptTokens, &su.CompletionTokens, &su.TotalTokens, &su.AvgLatencyMS, &minTS, &maxTS); err != nil {
		return SessionUsage{}, fmt.Errorf("ledger: aggregate session: %w", err)
	}
	if minTS > 0 {
		su.FirstRequest = time.Unix(minTS, 0)
	}
	if maxTS > 0 {
		su.LastRequest = time.Unix(maxTS, 0)
	}
	return su, nil
}

// Breakdown groups an API key's usage by model since the given time,
// matching get_usage_breakdown.
func (l *Ledger) Breakdown(apiKey string, since time.Time) ([]Aggregate, error) {
	rows, err := l.db.Query(`
		SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0), COALESCE(SUM(total_tokens),0),
		       COALESCE(AVG(latency_ms),0)
		FROM usage WHERE api_key = ? AND ts >= ?
		GROUP BY model`, apiKey, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("ledger: breakdown: %w", err)
	}
	defer rows.Close()

	var out []Aggregate
	for rows.Next() {
		var agg Aggregate
		if err := rows.Scan(&agg.Key, &agg.RequestCount, &agg.PromptTokens, &agg.CompletionTokens, &agg.TotalTokens, &agg.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("ledger: scan breakdown row: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// GlobalStats is the gateway-wide aggregate, matching get_global_stats.
// get_global_stats never reports the input/output split either, only the
// combined total.
type GlobalStats struct {
	RequestCount int
	UniqueKeys   int
	UniqueModels int
	TotalTokens  int
	AvgLatencyMS float64
}

// Global computes gateway-wide stats since the given time, matching
// get_global_stats.
func (l *Ledger) Global(since time.Time) (GlobalStats, error) {
	row := l.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT api_key), COUNT(DISTINCT model),
		       COALESCE(SUM(total_tokens),0), COALESCE(AVG(latency_ms),0)
		FROM usage WHERE ts >= ?`, since.Unix())

	var gs GlobalStats
	if err := row.Scan(&gs.RequestCount, &gs.UniqueKeys, &gs.UniqueModels, &gs.TotalTokens, &gs.AvgLatencyMS); err != nil {
		return GlobalStats{}, fmt.Errorf("ledger: global stats: %w", err)
	}
	return gs, nil
}
