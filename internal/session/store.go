// Package session implements the durable session/turn store (spec §3, §4.7).
// It is grounded on the teacher's memory.Engine: a pure-Go modernc.org/sqlite
// connection opened in WAL mode with a busy timeout, schema created on open.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Turn is a single append-only entry in a session's history.
type Turn struct {
	ID        int64          `json:"id"`
	Role      string         `json:"role"` // user | assistant | tool | system
	Type      string         `json:"type"`
	Status    *int           `json:"status,omitempty"`
	Content   json.RawMessage `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Session is the persisted conversation context keyed by a client-supplied
// (or generated) id.
type Session struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Generated bool           `json:"generated,omitempty"`
	History   []Turn         `json:"history"`
}

// Store is the process-wide session store singleton (spec §9 "Global
// mutable state" — the database connection is process-wide, not
// reinitialized).
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create session db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			metadata TEXT NOT NULL DEFAULT '{}',
			generated INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS session_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			status INTEGER,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_session ON session_history(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS policy_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			tool TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			rule TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_session ON policy_audit(session_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetOrCreateSession returns the session for id, creating an empty one if
// it does not already exist. generated marks a server-assigned id (spec §6
// session-id resolution).
func (s *Store) GetOrCreateSession(id string, generated bool) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(id)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, created_at, updated_at, metadata, generated) VALUES (?, ?, ?, '{}', ?)`,
		id, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), boolToInt(generated),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now, Metadata: map[string]any{}, Generated: generated}, nil
}

// Get returns the persisted session with full history, or sql.ErrNoRows.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSession(id)
}

func (s *Store) getSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT id, created_at, updated_at, metadata, generated FROM sessions WHERE id = ?`, id)
	var (
		sessID, metaRaw          string
		createdRaw, updatedRaw   string
		generated                int
	)
	if err := row.Scan(&sessID, &createdRaw, &updatedRaw, &metaRaw, &generated); err != nil {
		return nil, err
	}

	sess := &Session{ID: sessID, Generated: generated != 0}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedRaw)
	_ = json.Unmarshal([]byte(metaRaw), &sess.Metadata)

	rows, err := s.db.Query(
		`SELECT id, role, type, status, content, metadata, created_at FROM session_history WHERE session_id = ? ORDER BY id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			turnID           int64
			role, typ        string
			status           sql.NullInt64
			content, metaStr string
			createdAt        string
		)
		if err := rows.Scan(&turnID, &role, &typ, &status, &content, &metaStr, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t := Turn{ID: turnID, Role: role, Type: typ, Content: json.RawMessage(content)}
		if status.Valid {
			v := int(status.Int64)
			t.Status = &v
		}
		_ = json.Unmarshal([]byte(metaStr), &t.Metadata)
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		sess.History = append(sess.History, t)
	}
	return sess, rows.Err()
}

// AppendTurn appends a turn to session id's history, creating the session
// first if necessary, and returns the persisted turn (with its assigned id
// and timestamp).
func (s *Store) AppendTurn(id string, turn Turn) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getSession(id); err == sql.ErrNoRows {
		now := time.Now().UTC()
		if _, err := s.db.Exec(
			`INSERT INTO sessions (id, created_at, updated_at, metadata, generated) VALUES (?, ?, ?, '{}', 0)`,
			id, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	metaJSON := "{}"
	if turn.Metadata != nil {
		b, err := json.Marshal(turn.Metadata)
		if err == nil {
			metaJSON = string(b)
		}
	}
	content := string(turn.Content)
	if content == "" {
		content = "null"
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO session_history (session_id, role, type, status, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, turn.Role, turn.Type, nullableInt(turn.Status), content, metaJSON, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}
	turnID, _ := res.LastInsertId()

	if _, err := s.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, now.Format(time.RFC3339Nano), id); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	turn.ID = turnID
	turn.Timestamp = now
	return &turn, nil
}

// Upsert replaces a session's metadata (not its history).
func (s *Store) Upsert(id string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON := "{}"
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = string(b)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.Exec(`UPDATE sessions SET metadata = ?, updated_at = ? WHERE id = ?`, metaJSON, now, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err := s.db.Exec(
			`INSERT INTO sessions (id, created_at, updated_at, metadata, generated) VALUES (?, ?, ?, ?, 0)`,
			id, now, now, metaJSON,
		)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}
	return nil
}

// Delete removes a session and (via ON DELETE CASCADE) its full history.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// RecordPolicyAudit appends a row to the policy_audit table (SPEC_FULL.md
// §3 enrichment). Failures are logged by the caller, never fatal.
func (s *Store) RecordPolicyAudit(sessionID, tool, target, rule, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO policy_audit (session_id, tool, target, rule, action, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, tool, target, rule, action, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
