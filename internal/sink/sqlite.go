package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/kanshi/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	timestamp   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	session_id  TEXT,
	message     TEXT NOT NULL,
	metadata    TEXT,
	duration_ms REAL,
	severity    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_agent_time ON events (agent_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type);
`

// SQLite archives events into a local SQLite database so operators can
// query history with SQL instead of grepping the JSON-lines file.
// database/sql serializes access; no extra locking needed here.
type SQLite struct {
	db     *sql.DB
	insert *sql.Stmt
	min    model.Severity
}

// NewSQLite opens (or creates) the archive database and ensures the schema.
func NewSQLite(path string, min model.Severity) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: sqlite schema: %w", err)
	}
	insert, err := db.Prepare(
		`INSERT INTO events (id, timestamp, event_type, agent_id, session_id, message, metadata, duration_ms, severity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: prepare insert: %w", err)
	}
	return &SQLite{db: db, insert: insert, min: min}, nil
}

func (s *SQLite) Name() string                { return "sqlite" }
func (s *SQLite) MinSeverity() model.Severity { return s.min }

func (s *SQLite) Write(ev model.Event) error {
	var metadata any
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("sink: marshal metadata: %w", err)
		}
		metadata = string(raw)
	}
	var sessionID any
	if ev.SessionID != "" {
		sessionID = ev.SessionID
	}
	var durationMs any
	if ev.DurationMs != nil {
		durationMs = *ev.DurationMs
	}

	_, err := s.insert.Exec(
		ev.ID.String(),
		ev.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		string(ev.EventType),
		ev.AgentID,
		sessionID,
		ev.Message,
		metadata,
		durationMs,
		string(ev.Severity),
	)
	if err != nil {
		return fmt.Errorf("sink: sqlite insert: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	s.insert.Close()
	return s.db.Close()
}
