// Package ledger is the durable job_id -> status store that makes runs
// idempotent and resumable: jobs in a terminal status are never
// re-fetched or re-scored unless explicitly forced.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"jobharvest-engine/internal/canonical"
	"jobharvest-engine/internal/domain"
)

// Record is a ledger entry plus the job fields reporting consumers need.
type Record struct {
	domain.LedgerEntry
	Title         string
	Company       string
	CanonicalURL  string
	Score         *int
	Justification string
	Sources       string // comma-joined source domains
	URLKeys       []string
}

type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite ledger. An unreachable
// store here is fatal for the run, by contract.
func Open(path string) (*Ledger, error) {
	// modernc sqlite DSN: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1) // sqlite wants a single writer
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger unreachable: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger migrate: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  job_id        TEXT PRIMARY KEY,
  status        TEXT NOT NULL,
  title         TEXT NOT NULL DEFAULT '',
  company       TEXT NOT NULL DEFAULT '',
  url           TEXT NOT NULL DEFAULT '',
  score         INTEGER,
  justification TEXT NOT NULL DEFAULT '',
  detail        TEXT NOT NULL DEFAULT '',
  note          TEXT NOT NULL DEFAULT '',
  sources       TEXT NOT NULL DEFAULT '',
  updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(updated_at DESC);

CREATE TABLE IF NOT EXISTS job_urls (
  url_key TEXT PRIMARY KEY,
  job_id  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_urls_job ON job_urls(job_id);
`)
	return err
}

// Upsert commits one record atomically: the jobs row and its url aliases
// land in a single transaction, so a crash leaves either the whole write
// or none of it.
func (l *Ledger) Upsert(ctx context.Context, r Record) error {
	if r.JobID == "" {
		return errors.New("ledger: empty job_id")
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}
	defer tx.Rollback()

	var score any
	if r.Score != nil {
		score = *r.Score
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO jobs (job_id, status, title, company, url, score, justification, detail, note, sources, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(job_id) DO UPDATE SET
  status        = excluded.status,
  title         = CASE WHEN excluded.title   != '' THEN excluded.title   ELSE jobs.title   END,
  company       = CASE WHEN excluded.company != '' THEN excluded.company ELSE jobs.company END,
  url           = CASE WHEN excluded.url     != '' THEN excluded.url     ELSE jobs.url     END,
  score         = COALESCE(excluded.score, jobs.score),
  justification = CASE WHEN excluded.justification != '' THEN excluded.justification ELSE jobs.justification END,
  detail        = excluded.detail,
  note          = CASE WHEN excluded.note != '' THEN excluded.note ELSE jobs.note END,
  sources       = CASE WHEN excluded.sources != '' THEN excluded.sources ELSE jobs.sources END,
  updated_at    = excluded.updated_at;`,
		r.JobID, string(r.Status), r.Title, r.Company, r.CanonicalURL,
		score, r.Justification, r.Detail, r.Note, r.Sources,
		r.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("ledger upsert %s: %w", r.JobID, err)
	}

	for _, key := range r.URLKeys {
		if key == "" {
			continue
		}
		if err := linkURL(ctx, tx, key, r.JobID); err != nil {
			return fmt.Errorf("ledger link url %s: %w", r.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger commit %s: %w", r.JobID, err)
	}
	return nil
}

// LinkURL records that a url alias resolved to an existing job (the
// cross-source duplicate case) without touching the job row itself.
func (l *Ledger) LinkURL(ctx context.Context, urlKey, jobID string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger link url: %w", err)
	}
	defer tx.Rollback()

	if err := linkURL(ctx, tx, urlKey, jobID); err != nil {
		return fmt.Errorf("ledger link url: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger link url: %w", err)
	}
	return nil
}

// linkURL points the url alias at jobID. When a canonical id supersedes
// an earlier provisional one, the alias moves and the superseded row is
// dropped once it is non-terminal and nothing else references it.
func linkURL(ctx context.Context, tx *sql.Tx, urlKey, jobID string) error {
	var oldID string
	err := tx.QueryRowContext(ctx, `SELECT job_id FROM job_urls WHERE url_key = ?;`, urlKey).Scan(&oldID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if oldID == jobID {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO job_urls (url_key, job_id) VALUES (?, ?)
ON CONFLICT(url_key) DO UPDATE SET job_id = excluded.job_id;`, urlKey, jobID); err != nil {
		return err
	}

	if oldID != "" {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM jobs
WHERE job_id = ?
  AND status NOT IN ('admitted','rejected','filtered_out')
  AND NOT EXISTS (SELECT 1 FROM job_urls WHERE job_id = ?);`, oldID, oldID); err != nil {
			return err
		}
	}
	return nil
}

// MergeSources unions the given source domains into the job's persisted
// attribution.
func (l *Ledger) MergeSources(ctx context.Context, jobID string, domains []string) error {
	var cur string
	err := l.db.QueryRowContext(ctx, `SELECT sources FROM jobs WHERE job_id = ?;`, jobID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	set := make(map[string]struct{})
	for _, s := range strings.Split(cur, ",") {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	before := len(set)
	for _, s := range domains {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	if len(set) == before {
		return nil
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)

	_, err = l.db.ExecContext(ctx, `UPDATE jobs SET sources = ? WHERE job_id = ?;`,
		strings.Join(out, ","), jobID)
	return err
}

// Get returns the record for a job id, nil when absent.
func (l *Ledger) Get(ctx context.Context, jobID string) (*Record, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT job_id, status, title, company, url, score, justification, detail, note, sources, updated_at
FROM jobs WHERE job_id = ?;`, jobID)
	return scanRecord(row)
}

// Exists reports whether any entry exists for the job id.
func (l *Ledger) Exists(ctx context.Context, jobID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE job_id = ? LIMIT 1;`, jobID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Resolve maps a canonical-URL key to the job it was last attributed to.
// This is the provisional-id lookup used before any expensive work.
func (l *Ledger) Resolve(ctx context.Context, urlKey string) (jobID string, ok bool, err error) {
	err = l.db.QueryRowContext(ctx, `SELECT job_id FROM job_urls WHERE url_key = ?;`, urlKey).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return jobID, true, nil
}

// Admitted lists admitted jobs, newest first, for reporting consumers.
func (l *Ledger) Admitted(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT job_id, status, title, company, url, score, justification, detail, note, sources, updated_at
FROM jobs WHERE status = ? ORDER BY updated_at DESC LIMIT ?;`, string(domain.StatusAdmitted), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Fingerprints returns title/company identities of settled jobs updated
// since the given time, used to seed the fuzzy deduper across runs.
// Non-terminal rows are excluded: a job waiting on a retry must not
// fuzzy-match its own earlier sighting and get dropped as a duplicate.
func (l *Ledger) Fingerprints(ctx context.Context, since time.Time) ([]canonical.Fingerprint, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT job_id, title, company FROM jobs
WHERE updated_at >= ? AND title != '' AND company != ''
  AND status IN ('admitted','rejected','filtered_out');`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []canonical.Fingerprint
	for rows.Next() {
		var fp canonical.Fingerprint
		if err := rows.Scan(&fp.JobID, &fp.Title, &fp.Company); err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	var r Record
	var status, updatedAt string
	var score sql.NullInt64
	err := row.Scan(&r.JobID, &status, &r.Title, &r.Company, &r.CanonicalURL,
		&score, &r.Justification, &r.Detail, &r.Note, &r.Sources, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Status = domain.Status(status)
	if score.Valid {
		v := int(score.Int64)
		r.Score = &v
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}
