package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// History provides SQLite-backed persistence for conversations.
type History struct {
	db *sql.DB
}

// NewHistory opens the SQLite database at dbPath and creates tables if they don't exist.
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS sessions_user ON sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateSession inserts a session row for userID. An empty id gets a fresh uuid.
func (h *History) CreateSession(id, userID string) (*Record, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := h.db.Exec(
		`INSERT INTO sessions (id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		id, userID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &Record{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

// LatestSession returns the most recently updated session for userID, or nil.
func (h *History) LatestSession(userID string) (*Record, error) {
	row := h.db.QueryRow(
		`SELECT id, user_id, created_at, updated_at
		 FROM sessions
		 WHERE user_id = ?
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		userID,
	)

	var rec Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &rec, nil
}

// AddMessage appends a message to the session and bumps its updated_at.
func (h *History) AddMessage(sessionID string, e Entry) error {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO messages (session_id, role, content, timestamp)
		 VALUES (?, ?, ?, ?)`,
		sessionID, e.Role, e.Content, ts,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, ts, sessionID); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	return tx.Commit()
}

// RecentMessages returns the last limit messages of a session, oldest first.
// limit <= 0 returns all of them.
func (h *History) RecentMessages(sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.db.Query(
		`SELECT role, content, timestamp FROM (
		   SELECT id, role, content, timestamp
		   FROM messages
		   WHERE session_id = ?
		   ORDER BY id DESC
		   LIMIT ?
		 ) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Content, &e.Time); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

// ListSessions returns the most recently updated sessions.
func (h *History) ListSessions(limit int) ([]Record, error) {
	rows, err := h.db.Query(
		`SELECT s.id, s.user_id, s.created_at, s.updated_at, COUNT(m.id)
		 FROM sessions s
		 LEFT JOIN messages m ON s.id = m.session_id
		 GROUP BY s.id
		 ORDER BY s.updated_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CreatedAt, &rec.UpdatedAt, &rec.Messages); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// CountSessions returns the number of persisted sessions.
func (h *History) CountSessions() (int, error) {
	var n int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
