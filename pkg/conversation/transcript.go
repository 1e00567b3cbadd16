package conversation

import (
	"sync"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	"github.com/google/uuid"
)

// Entry is one transcript message.
type Entry struct {
	ID string
	llm.Message
}

// Transcript is the append-only conversation history sent to the language
// model. Messages carry IDs so a redelivered message is appended once.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]struct{}
}

// NewTranscript creates a transcript that starts with the system prompt, if
// any.
func NewTranscript(systemPrompt string) *Transcript {
	t := &Transcript{seen: make(map[string]struct{})}
	if systemPrompt != "" {
		t.Append("", llm.RoleSystem, systemPrompt)
	}
	return t
}

// Append adds a message and reports whether it was new. An empty id gets a
// fresh one.
func (t *Transcript) Append(id string, role llm.MessageRole, content string) bool {
	if id == "" {
		id = uuid.NewString()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[id]; ok {
		return false
	}
	t.seen[id] = struct{}{}
	t.entries = append(t.entries, Entry{ID: id, Message: llm.Message{Role: role, Content: content}})
	return true
}

// Messages returns a copy of the history in model form.
func (t *Transcript) Messages() []llm.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]llm.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Message
	}
	return out
}

// Entries returns a copy of the history with IDs.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
