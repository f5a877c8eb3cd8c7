package logging

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	event_id      TEXT NOT NULL,
	kind          TEXT NOT NULL,
	style         TEXT,
	generation    INTEGER NOT NULL DEFAULT 0,
	decision      TEXT NOT NULL,
	reason        TEXT,
	score         REAL NOT NULL DEFAULT 0,
	payload_json  TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_session
ON decision_log(session_id, id);
`

// #endregion schema

// #region journal-struct
// Journal persists facilitation decisions in SQLite for later inspection.
// It is an observability sink only: the controller never reads it back.
type Journal struct {
	db *sql.DB
}

// #endregion journal-struct

// #region constructor
// OpenJournal opens a SQLite database and runs migrations.
func OpenJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// DB returns the underlying *sql.DB.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// #endregion constructor

// #region record
// Record writes one entry. Missing event IDs and timestamps are filled in.
func (j *Journal) Record(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}

	_, err := j.db.Exec(
		`INSERT INTO decision_log (session_id, event_id, kind, style, generation, decision, reason, score, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID,
		e.EventID,
		string(e.Kind),
		nullIfEmpty(e.Style),
		int64(e.Generation),
		e.Decision,
		nullIfEmpty(e.Reason),
		e.Score,
		nullIfEmpty(e.PayloadJSON),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// #endregion record

// #region recent
// Recent returns up to limit entries, newest first. An empty sessionID
// matches every session; a non-empty kind filters by kind.
func (j *Journal) Recent(sessionID string, kind Kind, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT id, session_id, event_id, kind, style, generation, decision, reason, score, payload_json, created_at
		 FROM decision_log
		 WHERE (? = '' OR session_id = ?) AND (? = '' OR kind = ?)
		 ORDER BY id DESC
		 LIMIT ?`,
		sessionID, sessionID, string(kind), string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kindStr, createdStr string
		var styleStr, reason, payload sql.NullString
		var gen int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventID, &kindStr, &styleStr, &gen,
			&e.Decision, &reason, &e.Score, &payload, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Kind = Kind(kindStr)
		e.Style = styleStr.String
		e.Generation = uint64(gen)
		e.Reason = reason.String
		e.PayloadJSON = payload.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

// CountByDecision tallies entries of one kind per decision for a session.
func (j *Journal) CountByDecision(sessionID string, kind Kind) (map[string]int, error) {
	rows, err := j.db.Query(
		`SELECT decision, COUNT(*) FROM decision_log
		 WHERE (? = '' OR session_id = ?) AND kind = ?
		 GROUP BY decision`,
		sessionID, sessionID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[decision] = n
	}
	return counts, rows.Err()
}

// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
