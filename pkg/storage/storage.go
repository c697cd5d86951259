package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const DefaultPath = "cwvcheck.sqlite"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS audit_results (
  id            INTEGER PRIMARY KEY,
  origin        TEXT NOT NULL,
  input         TEXT NOT NULL,
  verdict       TEXT NOT NULL CHECK (verdict IN ('passed','failed')),
  audit_date    TEXT NOT NULL,
  lcp_p75       TEXT NOT NULL,
  lcp_good_pct  INTEGER NOT NULL,
  fid_p75       TEXT NOT NULL,
  fid_good_pct  INTEGER NOT NULL,
  cls_p75       TEXT NOT NULL,
  cls_good_pct  INTEGER NOT NULL,
  redirected    INTEGER NOT NULL CHECK (redirected IN (0,1)),
  degraded      INTEGER NOT NULL CHECK (degraded IN (0,1)),
  created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_origin ON audit_results(origin, audit_date);
CREATE INDEX IF NOT EXISTS idx_results_date ON audit_results(audit_date);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// InsertResult appends r. Rows are never updated: auditing an origin twice a day stores it twice.
func (d *DB) InsertResult(ctx context.Context, r Result) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO audit_results(origin, input, verdict, audit_date, lcp_p75, lcp_good_pct, fid_p75, fid_good_pct, cls_p75, cls_good_pct, redirected, degraded) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.Origin, r.Input, r.Verdict, r.Date, r.LCPP75, r.LCPGoodPct, r.FIDP75, r.FIDGoodPct, r.CLSP75, r.CLSGoodPct, boolToInt(r.Redirected), boolToInt(r.Degraded))
	if err != nil {
		return 0, fmt.Errorf("inserting result for %s: %w", r.Origin, err)
	}
	return res.LastInsertId()
}

// ListOptions controls selection when listing results.
type ListOptions struct {
	OriginFilter string
	// Since and Until are inclusive YYYY-MM-DD dates.
	Since string
	Until string
	Limit int
}

// ListResults returns stored results, oldest first.
func (d *DB) ListResults(ctx context.Context, opts ListOptions) ([]Result, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.OriginFilter != "" {
		where += " AND origin LIKE ?"
		args = append(args, fmt.Sprintf("%%%s%%", opts.OriginFilter))
	}
	if opts.Since != "" {
		where += " AND audit_date >= ?"
		args = append(args, opts.Since)
	}
	if opts.Until != "" {
		where += " AND audit_date <= ?"
		args = append(args, opts.Until)
	}

	q := "SELECT id, origin, input, verdict, audit_date, lcp_p75, lcp_good_pct, fid_p75, fid_good_pct, cls_p75, cls_good_pct, redirected, degraded, created_at FROM audit_results " + where + " ORDER BY audit_date, id"
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r                    Result
			redirected, degraded int
			createdAtStr         string
		)
		if err := rows.Scan(&r.ID, &r.Origin, &r.Input, &r.Verdict, &r.Date, &r.LCPP75, &r.LCPGoodPct, &r.FIDP75, &r.FIDGoodPct, &r.CLSP75, &r.CLSGoodPct, &redirected, &degraded, &createdAtStr); err != nil {
			return nil, err
		}
		r.Redirected = redirected == 1
		r.Degraded = degraded == 1
		r.CreatedAt = parseTimestamp(createdAtStr)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type OriginStats struct {
	Origin      string
	Runs        int
	PassedCount int
	FailedCount int
	LastDate    string
	LastVerdict string
}

// GetStats aggregates results per origin.
func (d *DB) GetStats(ctx context.Context) ([]OriginStats, error) {
	query := `
		SELECT
			a.origin,
			COUNT(*),
			SUM(CASE WHEN a.verdict = 'passed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN a.verdict = 'failed' THEN 1 ELSE 0 END),
			MAX(a.audit_date),
			(SELECT b.verdict FROM audit_results b WHERE b.origin = a.origin ORDER BY b.audit_date DESC, b.id DESC LIMIT 1)
		FROM
			audit_results a
		GROUP BY
			a.origin
		ORDER BY
			a.origin;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []OriginStats
	for rows.Next() {
		var s OriginStats
		if err := rows.Scan(&s.Origin, &s.Runs, &s.PassedCount, &s.FailedCount, &s.LastDate, &s.LastVerdict); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// parseTimestamp reads SQLite CURRENT_TIMESTAMP values.
func parseTimestamp(s string) time.Time {
	// Try "2006-01-02 15:04:05" then RFC3339
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
