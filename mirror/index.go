package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	_ "modernc.org/sqlite" // SQLite driver registration

	"verinews.io/verify/metadata"
	"verinews.io/verify/verify"
)

// ErrNotFound is returned when the index has no matching entry.
var ErrNotFound = errors.New("mirror: entry not found")

// Status is a submission's standing in the local library.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	// StatusFlagged marks a verified entry whose content later failed a check.
	StatusFlagged Status = "flagged"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusVerified, StatusFailed, StatusFlagged:
		return st, true
	default:
		return "", false
	}
}

// Entry is one row of the content library.
type Entry struct {
	SubmissionID   string
	VerificationID string
	Fingerprint    string
	Title          string
	Location       string
	ContentType    string
	Category       metadata.Category
	Creator        string
	Status         Status
	TxHash         string
	RecordCID      cid.Cid
	SubmittedAt    time.Time
	UpdatedAt      time.Time
	Error          string
}

// Filter selects library entries. Zero fields match everything.
type Filter struct {
	// Search matches titles case-insensitively.
	Search   string
	Category metadata.Category
	Status   Status
	Limit    int
}

// Stats summarizes the library.
type Stats struct {
	Total    int
	Verified int
	Pending  int
	Failed   int
	Flagged  int
	// Rate is the verified share of all entries in percent, one decimal.
	Rate float64
}

// Index is the SQLite catalogue of submissions. Record bodies live in the
// CAS; the index holds what search and the dashboard need.
type Index struct {
	db  *sql.DB
	now func() time.Time
}

// OpenIndex opens or creates an index at path. ":memory:" gives a private
// in-memory index.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("mirror: opening index: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS submissions (
			submission_id   TEXT PRIMARY KEY,
			verification_id TEXT UNIQUE,
			fingerprint     TEXT NOT NULL,
			title           TEXT NOT NULL,
			title_lower     TEXT NOT NULL,
			location        TEXT NOT NULL DEFAULT '',
			content_type    TEXT NOT NULL,
			category        TEXT NOT NULL,
			creator         TEXT NOT NULL,
			status          TEXT NOT NULL,
			tx_hash         TEXT NOT NULL DEFAULT '',
			record_cid      TEXT NOT NULL DEFAULT '',
			submitted_at    INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			error           TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
		CREATE INDEX IF NOT EXISTS idx_submissions_category ON submissions(category);
		CREATE INDEX IF NOT EXISTS idx_submissions_fingerprint ON submissions(fingerprint);
		CREATE INDEX IF NOT EXISTS idx_submissions_submitted ON submissions(submitted_at);
	`)
	if err != nil {
		return fmt.Errorf("mirror: creating tables: %w", err)
	}
	return nil
}

func (x *Index) Close() error { return x.db.Close() }

// AddPending records a broadcast transaction awaiting inclusion.
func (x *Index) AddPending(ctx context.Context, p verify.Pending) error {
	md := p.Metadata
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO submissions (submission_id, fingerprint, title, title_lower, location,
			content_type, category, creator, status, tx_hash, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(submission_id) DO UPDATE SET tx_hash = excluded.tx_hash, updated_at = excluded.updated_at
	`, p.SubmissionID, p.Fingerprint.String(), md.Title, strings.ToLower(md.Title), md.Location,
		md.ContentType, string(md.Category()), md.Creator, string(StatusPending), p.TxHash.Hex(),
		md.SubmittedAt, x.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mirror: recording pending %s: %w", p.SubmissionID, err)
	}
	return nil
}

// PutVerified records a confirmed record stored under recordCID. It inserts
// the row when the submission was never seen as pending (e.g. an import).
func (x *Index) PutVerified(ctx context.Context, submissionID string, rec verify.Record, recordCID cid.Cid) error {
	md := rec.Metadata
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO submissions (submission_id, verification_id, fingerprint, title, title_lower, location,
			content_type, category, creator, status, tx_hash, record_cid, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(submission_id) DO UPDATE SET
			verification_id = excluded.verification_id,
			status = excluded.status,
			tx_hash = excluded.tx_hash,
			record_cid = excluded.record_cid,
			updated_at = excluded.updated_at,
			error = ''
	`, submissionID, rec.VerificationID, rec.Fingerprint.String(), md.Title, strings.ToLower(md.Title), md.Location,
		md.ContentType, string(md.Category()), md.Creator, string(StatusVerified), rec.TxHash.Hex(),
		recordCID.String(), md.SubmittedAt, rec.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("mirror: recording verification %s: %w", rec.VerificationID, err)
	}
	return nil
}

// MarkFailed moves a pending submission to failed. Unknown submissions are
// ignored: only broadcast transactions are tracked.
func (x *Index) MarkFailed(ctx context.Context, submissionID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := x.db.ExecContext(ctx, `
		UPDATE submissions SET status = ?, error = ?, updated_at = ?
		WHERE submission_id = ? AND status = ?
	`, string(StatusFailed), msg, x.now().UnixMilli(), submissionID, string(StatusPending))
	if err != nil {
		return fmt.Errorf("mirror: recording failure %s: %w", submissionID, err)
	}
	return nil
}

// SetFlagged flags or unflags a verified entry.
func (x *Index) SetFlagged(ctx context.Context, verificationID string, flagged bool) error {
	from, to := StatusVerified, StatusFlagged
	if !flagged {
		from, to = to, from
	}
	res, err := x.db.ExecContext(ctx, `
		UPDATE submissions SET status = ?, updated_at = ? WHERE verification_id = ? AND status IN (?, ?)
	`, string(to), x.now().UnixMilli(), verificationID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("mirror: flagging %s: %w", verificationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `
	SELECT submission_id, COALESCE(verification_id, ''), fingerprint, title, location, content_type,
		category, creator, status, tx_hash, record_cid, submitted_at, updated_at, error
	FROM submissions`

// ByVerificationID returns the entry registered under id.
func (x *Index) ByVerificationID(ctx context.Context, id string) (Entry, error) {
	return scanEntry(x.db.QueryRowContext(ctx, selectColumns+` WHERE verification_id = ?`, id))
}

// List returns matching entries, newest submission first.
func (x *Index) List(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, `instr(title_lower, ?) > 0`)
		args = append(args, strings.ToLower(s))
	}
	if f.Category != "" {
		where = append(where, `category = ?`)
		args = append(args, string(f.Category))
	}
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(f.Status))
	}
	q := selectColumns
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY submitted_at DESC, submission_id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mirror: listing: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats counts entries by status.
func (x *Index) Stats(ctx context.Context) (Stats, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("mirror: stats: %w", err)
	}
	defer rows.Close()
	var st Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("mirror: stats: %w", err)
		}
		st.Total += n
		switch Status(status) {
		case StatusVerified:
			st.Verified = n
		case StatusPending:
			st.Pending = n
		case StatusFailed:
			st.Failed = n
		case StatusFlagged:
			st.Flagged = n
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if st.Total > 0 {
		st.Rate = math.Round(float64(st.Verified)*1000/float64(st.Total)) / 10
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                 Entry
		category, status  string
		recordCID         string
		submitted, update int64
	)
	err := row.Scan(&e.SubmissionID, &e.VerificationID, &e.Fingerprint, &e.Title, &e.Location, &e.ContentType,
		&category, &e.Creator, &status, &e.TxHash, &recordCID, &submitted, &update, &e.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("mirror: scanning entry: %w", err)
	}
	e.Category = metadata.Category(category)
	e.Status = Status(status)
	e.SubmittedAt = time.UnixMilli(submitted).UTC()
	e.UpdatedAt = time.UnixMilli(update).UTC()
	if recordCID != "" {
		if e.RecordCID, err = cid.Decode(recordCID); err != nil {
			return Entry{}, fmt.Errorf("mirror: entry %s has invalid record cid: %w", e.SubmissionID, err)
		}
	}
	return e, nil
}
