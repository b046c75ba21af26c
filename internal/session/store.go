package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
)

// Store owns the mapping from user id to Session.
type Store interface {
	// GetOrCreate returns the resident session for userID, creating it if
	// needed. Repeated calls return the same *Session while it is resident.
	GetOrCreate(userID string) *Session
	// Acquire is GetOrCreate for a message in flight: the session cannot
	// be lost to eviction until the matching Release.
	Acquire(userID string) *Session
	Release(s *Session)
	Get(userID string) (*Session, bool)
	Len() int
	Snapshot() []Summary
}

// Options configures a MemoryStore. Zero MaxSessions and TTL give an
// unbounded store whose sessions never expire.
type Options struct {
	MaxSessions int
	TTL         time.Duration
	MaxHistory  int
	History     *History
	Sink        log.ErrorSink
}

// MemoryStore keeps sessions in an expirable LRU. Access refreshes the TTL.
// Acquired sessions are pinned: if the LRU evicts one, the next lookup or
// the final Release puts it back.
type MemoryStore struct {
	opts   Options
	mu     sync.Mutex
	cache  *expirable.LRU[string, *Session]
	pinned map[string]*pin
}

type pin struct {
	sess *Session
	refs int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:   opts,
		cache:  expirable.NewLRU[string, *Session](opts.MaxSessions, nil, opts.TTL),
		pinned: make(map[string]*pin),
	}
}

func (m *MemoryStore) GetOrCreate(userID string) *Session {
	return m.getOrCreate(userID, false)
}

func (m *MemoryStore) Acquire(userID string) *Session {
	return m.getOrCreate(userID, true)
}

// Release unpins s. Once no message holds it, an evicted session is
// re-added so the next message continues the same history.
func (m *MemoryStore) Release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pinned[s.UserID]
	if !ok || p.sess != s {
		return
	}
	p.refs--
	if p.refs > 0 {
		return
	}
	delete(m.pinned, s.UserID)
	if _, ok := m.cache.Peek(s.UserID); !ok {
		m.cache.Add(s.UserID, s)
	}
}

func (m *MemoryStore) getOrCreate(userID string, acquire bool) *Session {
	m.mu.Lock()
	s, ok := m.resident(userID)
	m.mu.Unlock()

	if !ok {
		// Loading from disk happens outside the store lock.
		fresh := m.load(userID)

		m.mu.Lock()
		if s, ok = m.resident(userID); !ok {
			m.cache.Add(userID, fresh)
			s = fresh
		}
		m.mu.Unlock()
	}

	if acquire {
		m.mu.Lock()
		// s may have been evicted and replaced between the two sections.
		if cur, ok := m.resident(userID); ok {
			s = cur
		}
		p, ok := m.pinned[userID]
		if !ok {
			p = &pin{sess: s}
			m.pinned[userID] = p
		}
		p.refs++
		s = p.sess
		m.mu.Unlock()
	}
	return s
}

// resident returns the cached or pinned session for userID and refreshes
// its LRU position. Caller holds m.mu.
func (m *MemoryStore) resident(userID string) (*Session, bool) {
	if s, ok := m.cache.Get(userID); ok {
		m.cache.Add(userID, s)
		return s, true
	}
	if p, ok := m.pinned[userID]; ok {
		m.cache.Add(userID, p.sess)
		return p.sess, true
	}
	return nil, false
}

func (m *MemoryStore) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Peek(userID)
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

// Snapshot lists resident sessions, most recently active first.
func (m *MemoryStore) Snapshot() []Summary {
	m.mu.Lock()
	sessions := m.cache.Values()
	m.mu.Unlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.summary())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastInteraction.After(out[j].LastInteraction)
	})
	return out
}

// load builds a session for userID, rehydrating it from History when one
// is configured. Persistence errors degrade to an empty in-memory session.
func (m *MemoryStore) load(userID string) *Session {
	s := New(userID, m.opts.MaxHistory)
	h := m.opts.History
	if h == nil {
		return s
	}

	rec, err := h.LatestSession(userID)
	if err != nil {
		m.logError(fmt.Errorf("load session for %s: %w", userID, err))
		return s
	}
	if rec == nil {
		if _, err := h.CreateSession(s.ID, userID); err != nil {
			m.logError(fmt.Errorf("create session for %s: %w", userID, err))
			return s
		}
	} else {
		entries, err := h.RecentMessages(rec.ID, m.opts.MaxHistory)
		if err != nil {
			m.logError(fmt.Errorf("load history for %s: %w", userID, err))
			return s
		}
		// A capped window can start mid-pair.
		if len(entries) > 0 && entries[0].Role == RoleAssistant {
			entries = entries[1:]
		}
		s.ID = rec.ID
		s.CreatedAt = rec.CreatedAt
		s.history = entries
	}

	s.onAppend = func(sess *Session, e Entry) {
		if err := h.AddMessage(sess.ID, e); err != nil {
			m.logError(fmt.Errorf("persist message for %s: %w", sess.UserID, err))
		}
	}
	return s
}

func (m *MemoryStore) logError(err error) {
	if m.opts.Sink != nil {
		m.opts.Sink.LogError("session", err.Error())
	}
}
