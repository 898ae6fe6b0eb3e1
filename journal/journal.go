package journal

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const historyTimeFormat = "2006-01-02 15:04:05"

// Kind tells what an event records
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindAlert    Kind = "alert"
)

// Event is one saved snapshot or fired alert
type Event struct {
	ID         string
	SessionID  string
	Kind       Kind
	OccurredAt time.Time
	Count      int
	Path       string
}

// Session is one run of the viewer
type Session struct {
	ID        string
	Source    string
	StartedAt time.Time
}

// Journal appends events for the current session to a SQLite file
type Journal struct {
	db      *sql.DB
	session Session
	logger  *zap.Logger
}

// Open opens or creates the database at path and starts a new session for
// source.
func Open(ctx context.Context, path, source string, logger *zap.Logger) (*Journal, error) {
	j, err := openDB(ctx, path, logger)
	if err != nil {
		return nil, err
	}

	j.session = Session{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now(),
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, started_at) VALUES (?, ?, ?)`,
		j.session.ID, j.session.Source, j.session.StartedAt.UnixNano())
	if err != nil {
		j.db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	j.logger.Info("journal opened", zap.String("path", path), zap.String("session", j.session.ID))
	return j, nil
}

// OpenHistory opens the database at path for reading past sessions without
// starting a new one.
func OpenHistory(ctx context.Context, path string, logger *zap.Logger) (*Journal, error) {
	return openDB(ctx, path, logger)
}

func openDB(ctx context.Context, path string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one writer; the loop is the only caller
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	j := &Journal{db: db, logger: logger.Named("journal")}
	if err := j.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			detections INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_time ON events(session_id, occurred_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := j.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Session returns the session opened with the journal
func (j *Journal) Session() Session {
	return j.session
}

// RecordSnapshot logs a saved frame
func (j *Journal) RecordSnapshot(ctx context.Context, at time.Time, count int, path string) error {
	_, err := j.record(ctx, KindSnapshot, at, count, path)
	return err
}

// RecordAlert logs a fired alert
func (j *Journal) RecordAlert(ctx context.Context, at time.Time, count int) error {
	_, err := j.record(ctx, KindAlert, at, count, "")
	return err
}

func (j *Journal) record(ctx context.Context, kind Kind, at time.Time, count int, path string) (Event, error) {
	ev := Event{
		ID:         uuid.NewString(),
		SessionID:  j.session.ID,
		Kind:       kind,
		OccurredAt: at,
		Count:      count,
		Path:       path,
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, session_id, kind, occurred_at, detections, path) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, string(ev.Kind), ev.OccurredAt.UnixNano(), ev.Count, ev.Path)
	if err != nil {
		return Event{}, fmt.Errorf("failed to record %s event: %w", kind, err)
	}

	j.logger.Debug("event recorded", zap.String("kind", string(kind)), zap.Int("detections", count))
	return ev, nil
}

// List returns up to limit events of sessionID, newest first. A limit of 0
// or less returns all of them.
func (j *Journal) List(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	query := `SELECT id, session_id, kind, occurred_at, detections, path FROM events
		WHERE session_id = ? ORDER BY occurred_at DESC, rowid DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		var nanos int64
		if err := rows.Scan(&ev.ID, &ev.SessionID, &kind, &nanos, &ev.Count, &ev.Path); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.OccurredAt = time.Unix(0, nanos)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Sessions lists every recorded session, newest first
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, source, started_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var nanos int64
		if err := rows.Scan(&s.ID, &s.Source, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, nanos)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// WriteHistory prints the most recent session and up to limit of its
// events, newest first.
func (j *Journal) WriteHistory(ctx context.Context, w io.Writer, limit int) error {
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No recorded sessions")
		return err
	}

	last := sessions[0]
	events, err := j.List(ctx, last.ID, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Session %s (%s) started %s, %d events shown\n",
		last.ID, last.Source, last.StartedAt.Format(historyTimeFormat), len(events))
	for _, ev := range events {
		line := fmt.Sprintf("  %s  %-8s  people=%d", ev.OccurredAt.Format(historyTimeFormat), ev.Kind, ev.Count)
		if ev.Path != "" {
			line += "  " + ev.Path
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
