package history

import (
	"context"
	"sync"
	"time"

	"github.com/codedesk/codedesk/pkg/types"
)

const janitorInterval = time.Minute

// MemoryStore holds conversation history in process memory. State is lost on
// restart, which matches the default single-instance deployment.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*sessionHistory
	maxMessages int
	maxSessions int
	ttl         time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

type sessionHistory struct {
	messages     []types.ChatMessage
	lastActivity time.Time
}

// NewMemoryStore creates an in-memory history store. maxMessages bounds each
// session's history, maxSessions bounds the session count (0 = unlimited),
// and ttl expires idle sessions (0 = never).
func NewMemoryStore(maxMessages, maxSessions int, ttl time.Duration) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	s := &MemoryStore{
		sessions:    make(map[string]*sessionHistory),
		maxMessages: maxMessages,
		maxSessions: maxSessions,
		ttl:         ttl,
		stop:        make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor()
	}
	return s
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msg types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
			s.evictIdlest()
		}
		h = &sessionHistory{}
		s.sessions[sessionID] = h
	}

	h.messages = append(h.messages, msg)
	if len(h.messages) > s.maxMessages {
		h.messages = h.messages[len(h.messages)-s.maxMessages:]
	}
	h.lastActivity = time.Now()
	return nil
}

func (s *MemoryStore) Context(_ context.Context, sessionID string, limit int) ([]types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	msgs := h.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]types.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// evictIdlest drops the longest-idle session. Caller holds the lock.
func (s *MemoryStore) evictIdlest() {
	var (
		victim string
		oldest time.Time
	)
	for id, h := range s.sessions {
		if victim == "" || h.lastActivity.Before(oldest) {
			victim = id
			oldest = h.lastActivity
		}
	}
	if victim != "" {
		delete(s.sessions, victim)
	}
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

// sweep removes sessions idle past the TTL.
func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.sessions {
		if now.Sub(h.lastActivity) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
