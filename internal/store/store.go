// Package store is the append-only event log and per-agent snapshot table
// backing the persistence model, on SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentforge/agentforge/internal/model"
	"github.com/agentforge/agentforge/internal/platform/apperror"
)

// Store persists events and snapshots. SQLite only supports one writer, so
// the underlying pool is capped at a single connection.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite database at path and ensures schema.
func Open(path string) (*Store, error) {
	normalized, err:= normalizePath(path)
	if err != nil {
		return nil, err
	}
	if err:= ensureDir(normalized); err != nil {
		return nil, fmt.Errorf("store: prepare database path: %w", err)
	}
	dsn:= fmt.Sprintf("file:%s?_foreign_keys=on&_mode=rwc", normalized)
	db, err:= sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s:= &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// Close() releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("store: database path is required")
	}
	abs, err:= filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

func ensureDir(dbPath string) error {
	dir:= filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	project TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_agent_id ON events(agent_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

CREATE TABLE IF NOT EXISTS snapshots (
	agent_id TEXT PRIMARY KEY,
	project TEXT NOT NULL DEFAULT '',
	session_name TEXT NOT NULL DEFAULT '',
	branch_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	task TEXT NOT NULL DEFAULT '',
	profile TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	last_activity DATETIME NOT NULL,
	last_response TEXT NOT NULL DEFAULT '',
	last_user_message TEXT NOT NULL DEFAULT '',
	sub_agent_count INTEGER NOT NULL DEFAULT 0,
	location TEXT NOT NULL DEFAULT '',
	parked INTEGER NOT NULL DEFAULT 0
);
`

func (s *Store) initSchema() error {
	_, err:= s.db.Exec(schema)
	return err
}

// LogEvent appends an event to the log. Events are append-only: there is
// no Update or Delete operation.
func (s *Store) LogEvent(ctx context.Context, e model.Event) (int64, error) {
	payload, err:= json.Marshal(e.Payload)
	if err != nil {
		return 0, apperror.New(apperror.KindStore, "log_event", err)
	}
	ts:= e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err:= s.db.ExecContext(ctx,
		`INSERT INTO events (agent_id, project, kind, payload, timestamp) VALUES (?, ?, ?, ?, ?)`,
		e.AgentID, e.Project, string(e.Kind), string(payload), ts,
	)
	if err != nil {
		return 0, apperror.New(apperror.KindStore, "log_event", err)
	}
	return res.LastInsertId()
}

// RecentEvents returns up to limit most recent events, newest first,
// optionally filtered to a single agent when agentID is non-empty.
func (s *Store) RecentEvents(ctx context.Context, agentID string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if agentID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, agent_id, project, kind, payload, timestamp FROM events ORDER BY id DESC LIMIT ?`,
			limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, agent_id, project, kind, payload, timestamp FROM events WHERE agent_id = ? ORDER BY id DESC LIMIT ?`,
			agentID, limit)
	}
	if err != nil {
		return nil, apperror.New(apperror.KindStore, "recent_events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var payload string
		if err:= rows.Scan(&e.ID, &e.AgentID, &e.Project, &e.Kind, &payload, &e.Timestamp); err != nil {
			return nil, apperror.New(apperror.KindStore, "recent_events", err)
		}
		if payload != "" {
			if err:= json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, apperror.New(apperror.KindStore, "recent_events", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveSnapshot upserts the single snapshot row for an agent, preserving
// the at-most-one-per-agent invariant from.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	_, err:= s.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			agent_id, project, session_name, branch_name, status, task, profile,
			created_at, last_activity, last_response, last_user_message,
			sub_agent_count, location, parked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
		project = excluded.project,
		session_name = excluded.session_name,
		branch_name = excluded.branch_name,
		status = excluded.status,
		task = excluded.task,
		profile = excluded.profile,
		last_activity = excluded.last_activity,
		last_response = excluded.last_response,
		last_user_message = excluded.last_user_message,
		sub_agent_count = excluded.sub_agent_count,
		location = excluded.location,
		parked = excluded.parked
		`,
		snap.AgentID, snap.Project, snap.SessionName, snap.BranchName, string(snap.Status),
		snap.Task, snap.Profile, snap.CreatedAt, snap.LastActivity, snap.LastResponse,
		snap.LastUserMessage, snap.SubAgentCount, snap.Location, boolToInt(snap.Parked),
	)
	if err != nil {
		return apperror.New(apperror.KindStore, "save_snapshot", err)
	}
	return nil
}

// LoadSnapshots returns every persisted agent snapshot, used for the
// boot-time recovery scan .
func (s *Store) LoadSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	rows, err:= s.db.QueryContext(ctx, `
		SELECT agent_id, project, session_name, branch_name, status, task, profile,
		created_at, last_activity, last_response, last_user_message,
		sub_agent_count, location, parked
		FROM snapshots
		`)
	if err != nil {
		return nil, apperror.New(apperror.KindStore, "load_snapshots", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var status string
		var parked int
		if err:= rows.Scan(
			&snap.AgentID, &snap.Project, &snap.SessionName, &snap.BranchName, &status,
			&snap.Task, &snap.Profile, &snap.CreatedAt, &snap.LastActivity, &snap.LastResponse,
			&snap.LastUserMessage, &snap.SubAgentCount, &snap.Location, &parked,
		); err != nil {
			return nil, apperror.New(apperror.KindStore, "load_snapshots", err)
		}
		snap.Status = model.Status(status)
		snap.Parked = parked != 0
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteSnapshot removes an agent's snapshot row, used once a killed
// agent's final state has been relayed and it is fully retired.
func (s *Store) DeleteSnapshot(ctx context.Context, agentID string) error {
	_, err:= s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE agent_id = ?`, agentID)
	if err != nil {
		return apperror.New(apperror.KindStore, "delete_snapshot", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
