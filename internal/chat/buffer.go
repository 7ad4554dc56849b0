package chat

import (
	"sync"

	"github.com/edustack-labs/edustack/internal/llm"
)

// Buffer is the ordered conversation memory for one session. Appends happen
// only after a successful exchange, so a failed upstream call never leaves a
// half-recorded turn behind.
type Buffer struct {
	mu       sync.RWMutex
	messages []llm.Message
	maxTurns int
}

// NewBuffer creates an empty buffer. maxTurns caps the number of retained
// messages; once exceeded, the oldest user/assistant pair is evicted.
// maxTurns <= 0 means unbounded.
func NewBuffer(maxTurns int) *Buffer {
	return &Buffer{maxTurns: maxTurns}
}

// AppendExchange records one completed (user, assistant) pair.
func (b *Buffer) AppendExchange(userText string, reply string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages,
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	if b.maxTurns > 0 && len(b.messages) > b.maxTurns {
		// Evict whole pairs from the front so the context always starts on a
		// user turn.
		drop := len(b.messages) - b.maxTurns
		if drop%2 != 0 {
			drop++
		}
		b.messages = append(b.messages[:0:0], b.messages[drop:]...)
	}
}

// History returns a copy of the buffered messages in chronological order.
func (b *Buffer) History() []llm.Message {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]llm.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Session binds a client-chosen identifier to its conversation memory.
// Sessions are created lazily on first use and live for the process lifetime;
// only the buffer contents are capped.
type Session struct {
	ID     string
	Buffer *Buffer
}
