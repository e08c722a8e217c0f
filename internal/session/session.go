package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/neurolens/lucid/internal/answer"
	"github.com/neurolens/lucid/internal/conversation"
	"github.com/neurolens/lucid/internal/explain"
	"github.com/neurolens/lucid/internal/intent"
)

// Session holds per-session state: the current explanation record and the
// conversation log. The internal mutex serializes access, so the HTTP
// handlers and the event consumer can share a session safely.
type Session struct {
	ID uuid.UUID

	mu      sync.Mutex
	current *explain.Explanation
	log     *conversation.Log
}

func newSession(id uuid.UUID, historyLimit int) *Session {
	return &Session{ID: id, log: conversation.NewLog(historyLimit)}
}

// SetExplanation replaces the current record wholesale. The conversation
// log is left alone: prior turns remain a valid record of what was asked,
// even though later answers draw on the new analysis.
func (s *Session) SetExplanation(exp *explain.Explanation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = exp
}

// Explanation returns the current record, or nil when no analysis has been
// accepted yet. Records are immutable once built; callers read, never write.
func (s *Session) Explanation() *explain.Explanation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Record appends one question/answer exchange to the conversation log and
// returns the stored turn with its sequence id and timestamp assigned.
func (s *Session) Record(question string, m intent.Match, a answer.Answer) conversation.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Append(conversation.Turn{
		Question:        question,
		Intent:          m.Intent,
		MatchedTriggers: m.Triggers,
		Answer:          a.Text,
		Sources:         a.Sources,
		Grounded:        a.Grounded,
		ConfidenceTag:   a.ConfidenceTag,
	})
}

// History returns a snapshot of the retained turns, oldest first.
func (s *Session) History() []conversation.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.History()
}

// ClearHistory drops the conversation log. The current explanation is not
// touched.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Clear()
}

// Registry tracks live sessions by id. Sessions are created on first use
// and kept for the life of the process.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[uuid.UUID]*Session
	historyLimit int
}

// NewRegistry creates an empty registry whose sessions each keep at most
// historyLimit turns (0 = unbounded).
func NewRegistry(historyLimit int) *Registry {
	return &Registry{
		sessions:     make(map[uuid.UUID]*Session),
		historyLimit: historyLimit,
	}
}

// Get returns the session for id, or nil if none exists yet.
func (r *Registry) Get(id uuid.UUID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// GetOrCreate returns the session for id, creating it on first use.
func (r *Registry) GetOrCreate(id uuid.UUID) *Session {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	if s != nil {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[id]; s != nil {
		return s
	}
	s = newSession(id, r.historyLimit)
	r.sessions[id] = s
	return s
}

// Count reports how many sessions are live.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
