package ptt

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxkey/voxkey/pkg/llm"
)

const (
	// sessionIdleExpiry is the inactivity window after which a conversation
	// session is replaced, so context does not leak across unrelated
	// conversations separated by a long pause.
	sessionIdleExpiry = 5 * time.Minute

	// defaultHistoryTokens bounds the conversation history kept per session,
	// in estimated tokens.
	defaultHistoryTokens = 2000
)

// ConvoOption is a functional option for configuring a
// [ConversationManager].
type ConvoOption func(*ConversationManager)

// WithIdleExpiry overrides the session inactivity window.
func WithIdleExpiry(d time.Duration) ConvoOption {
	return func(m *ConversationManager) { m.idleExpiry = d }
}

// WithMaxHistoryTokens overrides the history budget.
func WithMaxHistoryTokens(n int) ConvoOption {
	return func(m *ConversationManager) { m.maxTokens = n }
}

// WithConvoClock injects the time source. Tests only.
func WithConvoClock(now func() time.Time) ConvoOption {
	return func(m *ConversationManager) { m.now = now }
}

// ConversationManager tracks the active assistant conversation: a lazily
// created session ID, its inactivity expiry, and a token-bounded message
// history. Safe for concurrent use.
type ConversationManager struct {
	idleExpiry time.Duration
	maxTokens  int
	now        func() time.Time

	mu           sync.Mutex
	id           string
	lastActivity time.Time
	messages     []llm.Message
}

// NewConversationManager creates a manager with no active session.
func NewConversationManager(opts ...ConvoOption) *ConversationManager {
	m := &ConversationManager{
		idleExpiry: sessionIdleExpiry,
		maxTokens:  defaultHistoryTokens,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Session returns the active session ID, creating a fresh one when none
// exists or the previous one expired. Calling Session counts as activity.
func (m *ConversationManager) Session() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.id == "" || now.Sub(m.lastActivity) > m.idleExpiry {
		m.id = uuid.NewString()
		m.messages = nil
	}
	m.lastActivity = now
	return m.id
}

// History returns a snapshot of the active session's messages. An expired
// session yields no history.
func (m *ConversationManager) History() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id == "" || m.now().Sub(m.lastActivity) > m.idleExpiry {
		return nil
	}
	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Record appends one query/response exchange to the history, evicting the
// oldest messages when the token budget is exceeded.
func (m *ConversationManager) Record(query, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id == "" {
		return
	}
	m.messages = append(m.messages,
		llm.Message{Role: "user", Content: query},
		llm.Message{Role: "assistant", Content: response},
	)
	m.lastActivity = m.now()

	for len(m.messages) > 0 && m.historyTokens() > m.maxTokens {
		m.messages = m.messages[1:]
	}
}

// historyTokens estimates the history size at roughly four characters per
// token. Must be called with m.mu held.
func (m *ConversationManager) historyTokens() int {
	chars := 0
	for _, msg := range m.messages {
		chars += len(msg.Content)
	}
	return chars / 4
}
