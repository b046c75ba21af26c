package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the conversation state of one user. All access goes through
// its methods, which serialize on an internal mutex.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu              sync.Mutex
	history         []Entry
	lastInteraction time.Time
	feedbackCount   int
	maxHistory      int
	onAppend        func(*Session, Entry)

	// Append hooks run outside mu but in append order: each append takes
	// a ticket under mu and waits its turn on persisted.
	nextTicket int
	persistMu  sync.Mutex
	persisted  *sync.Cond
	doneTicket int
}

// New returns an empty session for userID. maxHistory <= 0 keeps everything.
func New(userID string, maxHistory int) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:              uuid.New().String(),
		UserID:          userID,
		CreatedAt:       now,
		lastInteraction: now,
		maxHistory:      maxHistory,
	}
	s.persisted = sync.NewCond(&s.persistMu)
	return s
}

// Begin records an inbound message: it refreshes LastInteraction and
// appends the user entry.
func (s *Session) Begin(message string) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.lastInteraction = now
	s.mu.Unlock()
	s.append(Entry{Role: RoleUser, Content: message, Time: now})
}

// Append adds an entry to the history.
func (s *Session) Append(role, content string) {
	s.append(Entry{Role: role, Content: content, Time: time.Now().UTC()})
}

func (s *Session) append(e Entry) {
	s.mu.Lock()
	s.history = append(s.history, e)
	s.trim()
	hook := s.onAppend
	ticket := s.nextTicket
	s.nextTicket++
	s.mu.Unlock()

	s.persistMu.Lock()
	for s.doneTicket != ticket {
		s.persisted.Wait()
	}
	if hook != nil {
		hook(s, e)
	}
	s.doneTicket++
	s.persisted.Broadcast()
	s.persistMu.Unlock()
}

// trim drops the oldest entries in pairs once the cap is exceeded.
// Caller holds s.mu.
func (s *Session) trim() {
	if s.maxHistory <= 0 || len(s.history) <= s.maxHistory {
		return
	}
	drop := len(s.history) - s.maxHistory
	if drop%2 == 1 {
		drop++
	}
	if drop > len(s.history) {
		drop = len(s.history)
	}
	kept := make([]Entry, len(s.history)-drop)
	copy(kept, s.history[drop:])
	s.history = kept
}

// BeginReview increments the session's feedback counter and returns the
// new value. Concurrent messages share it; per-message counts belong to
// the caller.
func (s *Session) BeginReview() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbackCount++
	return s.feedbackCount
}

// EndMessage resets the feedback counter once a message is finished.
func (s *Session) EndMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbackCount = 0
}

// History returns a copy of all entries, oldest first.
func (s *Session) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.history))
	copy(out, s.history)
	return out
}

// Recent returns a copy of the last n entries.
func (s *Session) Recent(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.history) || n < 0 {
		n = len(s.history)
	}
	out := make([]Entry, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) LastInteraction() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInteraction
}

func (s *Session) FeedbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedbackCount
}

func (s *Session) summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		UserID:          s.UserID,
		SessionID:       s.ID,
		Entries:         len(s.history),
		LastInteraction: s.lastInteraction,
	}
}
