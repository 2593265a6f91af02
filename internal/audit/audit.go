// Package audit persists command and session records to a local SQLite
// database. Writes happen on the execution path, so the logger interfaces
// swallow errors after logging them; auditing must never fail a command.
// Every record also lands in an events table that the NATS publisher
// drains, which keeps the audit trail durable across broker outages.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS command_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    command TEXT NOT NULL,
    exit_code INTEGER,
    duration_ms INTEGER,
    truncated INTEGER DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS session_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    shell TEXT,
    pid INTEGER,
    started_at TEXT NOT NULL DEFAULT (datetime('now')),
    ended_at TEXT,
    end_reason TEXT
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    payload TEXT,
    synced INTEGER DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_events_unsynced ON events(synced) WHERE synced = 0;
`

// Log is the audit database handle. Safe for concurrent use; database/sql
// serializes access to the single SQLite connection pool.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// LogCommand records a one-shot command execution. Implements the executor's
// logger interface; failures are logged, not returned.
func (l *Log) LogCommand(sessionID, command string, exitCode int, duration time.Duration, truncated bool) {
	if err := l.recordCommand(sessionID, command, exitCode, duration, truncated); err != nil {
		log.Printf("audit: failed to record command: %v", err)
	}
}

func (l *Log) recordCommand(sessionID, command string, exitCode int, duration time.Duration, truncated bool) error {
	durationMs := duration.Milliseconds()
	_, err := l.db.Exec(
		`INSERT INTO command_log (session_id, command, exit_code, duration_ms, truncated) VALUES (?, ?, ?, ?, ?)`,
		sessionID, command, exitCode, durationMs, truncated)
	if err != nil {
		return fmt.Errorf("failed to log command: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"session_id":  sessionID,
		"command":     command,
		"exit_code":   exitCode,
		"duration_ms": durationMs,
		"truncated":   truncated,
	})
	_, err = l.db.Exec(
		`INSERT INTO events (type, payload) VALUES ('command', ?)`, string(payload))
	return err
}

// LogSessionStart records an interactive session start. Implements the
// session manager's logger interface; failures are logged, not returned.
func (l *Log) LogSessionStart(sessionID, shell string, pid int) {
	if err := l.recordSessionStart(sessionID, shell, pid); err != nil {
		log.Printf("audit: failed to record session start: %v", err)
	}
}

func (l *Log) recordSessionStart(sessionID, shell string, pid int) error {
	_, err := l.db.Exec(
		`INSERT INTO session_log (session_id, shell, pid) VALUES (?, ?, ?)`,
		sessionID, shell, pid)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"session_id": sessionID,
		"shell":      shell,
		"pid":        pid,
	})
	_, err = l.db.Exec(`INSERT INTO events (type, payload) VALUES ('session_start', ?)`, string(payload))
	return err
}

// LogSessionEnd closes the most recent open record for a session id.
// Session ids can be reused after a kill, so the update targets the open
// row, not the id.
func (l *Log) LogSessionEnd(sessionID, reason string) {
	if err := l.recordSessionEnd(sessionID, reason); err != nil {
		log.Printf("audit: failed to record session end: %v", err)
	}
}

func (l *Log) recordSessionEnd(sessionID, reason string) error {
	_, err := l.db.Exec(
		`UPDATE session_log SET ended_at = datetime('now'), end_reason = ? WHERE session_id = ? AND ended_at IS NULL`,
		reason, sessionID)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"session_id": sessionID,
		"reason":     reason,
	})
	_, err = l.db.Exec(`INSERT INTO events (type, payload) VALUES ('session_end', ?)`, string(payload))
	return err
}

// LogEvent records a generic event for downstream sync.
func (l *Log) LogEvent(eventType string, payload interface{}) error {
	data, _ := json.Marshal(payload)
	_, err := l.db.Exec(`INSERT INTO events (type, payload) VALUES (?, ?)`, eventType, string(data))
	return err
}

// Event is an audit record awaiting publication.
type Event struct {
	ID        int64
	Type      string
	Payload   string
	CreatedAt string
}

// UnsyncedEvents returns events that haven't been published yet, oldest
// first.
func (l *Log) UnsyncedEvents(limit int) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT id, type, payload, created_at FROM events WHERE synced = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkSynced marks the given event IDs as published.
func (l *Log) MarkSynced(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE events SET synced = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
