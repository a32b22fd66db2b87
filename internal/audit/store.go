package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome values recorded for each dispatched command.
const (
	OutcomeExecuted     = "executed"
	OutcomeError        = "error"
	OutcomeUnknown      = "unknown-command"
	OutcomeUnauthorized = "unauthorized"
	OutcomeMalformed    = "malformed"
)

// Command describes one dispatched request for the journal.
type Command struct {
	Subsystem     string
	Queue         string
	Command       string
	Client        string
	CorrelationID string
	Outcome       string
	Latency       time.Duration
}

// CommandEntry is one journal row read back from the command log.
type CommandEntry struct {
	ID            int64
	OccurredAt    time.Time
	Subsystem     string
	Queue         string
	Command       string
	Client        string
	CorrelationID string
	Outcome       string
	LatencyMS     float64
}

// SessionEntry is one journal row read back from the session log.
type SessionEntry struct {
	ID         int64
	OccurredAt time.Time
	Event      string
	Client     string
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database at the given path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the journal file location.
func (s *Store) Path() string { return s.path }

// RecordSession appends one session lifecycle event.
func (s *Store) RecordSession(ctx context.Context, event, client string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (occurred_at, event, client) VALUES (?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), event, client)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// RecordCommand appends one dispatched-command record.
func (s *Store) RecordCommand(ctx context.Context, cmd Command) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_events (
            occurred_at, subsystem, queue, command, client,
            correlation_id, outcome, latency_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		cmd.Subsystem,
		cmd.Queue,
		cmd.Command,
		cmd.Client,
		cmd.CorrelationID,
		cmd.Outcome,
		float64(cmd.Latency)/float64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("insert command event: %w", err)
	}
	return nil
}

// RecentCommands returns the newest command records, newest first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]CommandEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, subsystem, queue, command, client,
                correlation_id, outcome, latency_ms
         FROM command_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query command events: %w", err)
	}
	defer rows.Close()

	var entries []CommandEntry
	for rows.Next() {
		var entry CommandEntry
		var occurred string
		if err := rows.Scan(&entry.ID, &occurred, &entry.Subsystem, &entry.Queue,
			&entry.Command, &entry.Client, &entry.CorrelationID,
			&entry.Outcome, &entry.LatencyMS); err != nil {
			return nil, fmt.Errorf("scan command event: %w", err)
		}
		entry.OccurredAt = parseTimestamp(occurred)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command events: %w", err)
	}
	return entries, nil
}

// RecentSessions returns the newest session events, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, event, client
         FROM session_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var entries []SessionEntry
	for rows.Next() {
		var entry SessionEntry
		var occurred string
		if err := rows.Scan(&entry.ID, &occurred, &entry.Event, &entry.Client); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		entry.OccurredAt = parseTimestamp(occurred)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session events: %w", err)
	}
	return entries, nil
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
