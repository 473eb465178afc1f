package chat

import (
	"context"
	"sync"
	"time"

	"askhc/src/core/rag"
)

// DefaultSession is used when a request does not name a session.
const DefaultSession = "default"

// Message is a stored conversation entry.
type Message struct {
	Role      rag.Role     `json:"role"`
	Content   string       `json:"content"`
	Sources   []rag.Source `json:"sources,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// HistoryStore keeps one append-only message list per session.
type HistoryStore interface {
	Append(ctx context.Context, session string, msgs ...Message) error
	Messages(ctx context.Context, session string) ([]Message, error)
	Len(ctx context.Context, session string) (int, error)
	Clear(ctx context.Context, session string) error
}

// History keeps conversations in memory. Nothing survives a restart.
type History struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

func NewHistory() *History {
	return &History{sessions: make(map[string][]Message)}
}

func (h *History) Append(_ context.Context, session string, msgs ...Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[session] = append(h.sessions[session], msgs...)
	return nil
}

// Messages returns a copy of the session history.
func (h *History) Messages(_ context.Context, session string) ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.sessions[session]))
	copy(out, h.sessions[session])
	return out, nil
}

func (h *History) Len(_ context.Context, session string) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[session]), nil
}

func (h *History) Clear(_ context.Context, session string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, session)
	return nil
}
