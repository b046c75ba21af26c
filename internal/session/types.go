// Package session keeps per-user conversation state in memory, with
// optional SQLite persistence.
package session

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one message in a conversation history.
type Entry struct {
	Role    string    `json:"role" yaml:"role"`
	Content string    `json:"content" yaml:"content"`
	Time    time.Time `json:"time" yaml:"time"`
}

// Summary provides a high-level view of a resident session for listing.
type Summary struct {
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	Entries         int       `json:"entries"`
	LastInteraction time.Time `json:"last_interaction"`
}

// Record is a persisted session row.
type Record struct {
	ID        string
	UserID    string
	Messages  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
