// Package journal persists the execution event stream to SQLite so a
// session's dependency graph can be reconstructed or inspected offline.
package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Event is one journaled execution event. Which fields are meaningful
// depends on Kind; the zero value is fine for the rest.
type Event struct {
	ID      int64
	Session string
	Ordinal int64
	Kind    string

	Statement int

	Object    uint64
	Class     uint64
	OwnerName string

	KeyName   string
	KeyIndex  int64
	IsIndex   bool
	Subscript bool
	InCall    bool

	// HasValue distinguishes an absent value (a call that returned
	// nothing) from an empty repr.
	HasValue  bool
	ValueRepr string
	ValueID   uint64

	Callee string
}

// Session is one recorded session.
type Session struct {
	ID        string
	StartedAt time.Time
}

// Journal is the SQLite event log. Append order within a session is the
// replay order.
type Journal struct {
	db *sql.DB

	mu       sync.Mutex
	ordinals map[string]int64 // next ordinal per session
}

// Open opens (or creates) a journal at path with WAL mode enabled.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	return &Journal{db: db, ordinals: make(map[string]int64)}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Migrate creates the journal tables and indexes. Idempotent.
func (j *Journal) Migrate() error {
	_, err := j.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
  id              TEXT PRIMARY KEY,
  started_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
  id              INTEGER PRIMARY KEY,
  session_id      TEXT NOT NULL REFERENCES sessions(id),
  ordinal         INTEGER NOT NULL,
  kind            TEXT NOT NULL,
  statement       INTEGER,
  object          INTEGER,
  class           INTEGER,
  owner_name      TEXT,
  key_name        TEXT,
  key_index       INTEGER,
  is_index        BOOLEAN DEFAULT FALSE,
  subscript       BOOLEAN DEFAULT FALSE,
  in_call         BOOLEAN DEFAULT FALSE,
  has_value       BOOLEAN DEFAULT FALSE,
  value_repr      TEXT,
  value_id        INTEGER,
  callee          TEXT
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// BeginSession registers a session id. Recording into an unregistered
// session fails the foreign key check, so call this first.
func (j *Journal) BeginSession(id string) error {
	_, err := j.db.Exec(
		"INSERT INTO sessions (id, started_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING",
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("begin session %q: %w", id, err)
	}
	return nil
}

// Sessions lists recorded sessions in start order.
func (j *Journal) Sessions() ([]Session, error) {
	rows, err := j.db.Query("SELECT id, started_at FROM sessions ORDER BY started_at, id")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Record appends one event to its session, assigning the next ordinal.
func (j *Journal) Record(ev *Event) error {
	j.mu.Lock()
	ord, ok := j.ordinals[ev.Session]
	if !ok {
		if err := j.db.QueryRow(
			"SELECT COALESCE(MAX(ordinal)+1, 0) FROM events WHERE session_id = ?",
			ev.Session).Scan(&ord); err != nil {
			j.mu.Unlock()
			return fmt.Errorf("next ordinal: %w", err)
		}
	}
	j.ordinals[ev.Session] = ord + 1
	j.mu.Unlock()

	ev.Ordinal = ord
	res, err := j.db.Exec(`
		INSERT INTO events (
		  session_id, ordinal, kind, statement,
		  object, class, owner_name,
		  key_name, key_index, is_index, subscript, in_call,
		  has_value, value_repr, value_id, callee
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Session, ev.Ordinal, ev.Kind, ev.Statement,
		int64(ev.Object), int64(ev.Class), ev.OwnerName,
		ev.KeyName, ev.KeyIndex, ev.IsIndex, ev.Subscript, ev.InCall,
		ev.HasValue, ev.ValueRepr, int64(ev.ValueID), ev.Callee)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

// Replay streams a session's events back in record order. The callback
// returning an error stops the replay and surfaces that error.
func (j *Journal) Replay(session string, fn func(Event) error) error {
	rows, err := j.db.Query(`
		SELECT id, ordinal, kind, statement,
		       object, class, owner_name,
		       key_name, key_index, is_index, subscript, in_call,
		       has_value, value_repr, value_id, callee
		FROM events WHERE session_id = ? ORDER BY ordinal`, session)
	if err != nil {
		return fmt.Errorf("replay session %q: %w", session, err)
	}
	defer rows.Close()

	for rows.Next() {
		ev := Event{Session: session}
		var object, class, valueID int64
		if err := rows.Scan(&ev.ID, &ev.Ordinal, &ev.Kind, &ev.Statement,
			&object, &class, &ev.OwnerName,
			&ev.KeyName, &ev.KeyIndex, &ev.IsIndex, &ev.Subscript, &ev.InCall,
			&ev.HasValue, &ev.ValueRepr, &valueID, &ev.Callee); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		ev.Object = uint64(object)
		ev.Class = uint64(class)
		ev.ValueID = uint64(valueID)
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EventCount reports the number of events recorded for a session.
func (j *Journal) EventCount(session string) (int64, error) {
	var n int64
	err := j.db.QueryRow("SELECT COUNT(*) FROM events WHERE session_id = ?", session).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// SetMetadata stores a key/value pair, replacing any previous value.
func (j *Journal) SetMetadata(key, value string) error {
	_, err := j.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// Metadata reads a key, returning ok=false when unset.
func (j *Journal) Metadata(key string) (string, bool, error) {
	var v string
	err := j.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v, true, nil
}
