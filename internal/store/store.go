package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
// Several flatkap processes share one journal, so writers do collide.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

const (
	StatusRunning     = "running"
	StatusFinished    = "finished"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

type Session struct {
	ID            string    `json:"id"`
	UID           string    `json:"uid"`
	LauncherPID   int       `json:"launcher_pid"`
	Args          []string  `json:"args"`
	WorkloadPID   int       `json:"workload_pid,omitempty"`
	Status        string    `json:"status"`
	DaemonsReaped bool      `json:"daemons_reaped"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
}

// Outcome is what a session records when it ends.
type Outcome struct {
	WorkloadPID   int
	Status        string
	DaemonsReaped bool
	Error         string
	FinishedAt    time.Time
}

type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	uid            TEXT NOT NULL,
	launcher_pid   INTEGER NOT NULL,
	args           TEXT NOT NULL DEFAULT '[]',
	workload_pid   INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'running',
	daemons_reaped INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

// DefaultMaxOpenConns is the connection pool size. One flatkap process
// writes at most twice, so a small pool is plenty.
const DefaultMaxOpenConns = 2

// dsnWithPragmas returns a connection string with WAL and busy_timeout
// applied to every new connection.
func dsnWithPragmas(dbPath string) string {
	// busy_timeout: concurrent sessions finishing together
	// journal_mode=WAL: readers never block the writer
	return dbPath + "?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
}

// New opens the journal at dbPath, creating its directory and schema.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxOpenConns)

	err = retryOnBusy(func() error {
		_, e := db.Exec(createTableSQL)
		return e
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSession(sess *Session) error {
	args, err := json.Marshal(sess.Args)
	if err != nil {
		return fmt.Errorf("encoding args: %w", err)
	}
	status := sess.Status
	if status == "" {
		status = StatusRunning
	}

	err = retryOnBusy(func() error {
		_, e := s.db.Exec(
			`INSERT INTO sessions (id, uid, launcher_pid, args, status, started_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.UID, sess.LauncherPID, string(args), status, sess.StartedAt.UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *Store) FinishSession(id string, out Outcome) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`UPDATE sessions
			 SET workload_pid = ?, status = ?, daemons_reaped = ?, error = ?, finished_at = ?
			 WHERE id = ?`,
			out.WorkloadPID, out.Status, out.DaemonsReaped, out.Error, out.FinishedAt.UTC(), id,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	return checkRowAffected(result, id)
}

func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, uid, launcher_pid, args, workload_pid, status, daemons_reaped, error, started_at, finished_at
		 FROM sessions WHERE id = ?`, id,
	)
	return scanSession(row)
}

func (s *Store) ListSessions() ([]*Session, error) {
	rows, err := s.db.Query(
		`SELECT id, uid, launcher_pid, args, workload_pid, status, daemons_reaped, error, started_at, finished_at
		 FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*Session, error) {
	var sess Session
	var args string
	var finishedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.UID, &sess.LauncherPID, &args, &sess.WorkloadPID, &sess.Status,
		&sess.DaemonsReaped, &sess.Error, &sess.StartedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if finishedAt.Valid {
		sess.FinishedAt = finishedAt.Time
	}
	if err := json.Unmarshal([]byte(args), &sess.Args); err != nil {
		return nil, fmt.Errorf("decoding args of %s: %w", sess.ID, err)
	}
	return &sess, nil
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

func checkRowAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}
