// Package conversation holds the ordered record of a chat session's turns.
package conversation

import (
	"sync"

	"github.com/upb/chat-gateway/services/providers"
)

// Log is an ordered, append-only list of messages, optionally seeded with
// a system message at position 0. Messages are never edited or removed
// individually; Clear and Reset discard the whole sequence.
type Log struct {
	mu       sync.RWMutex
	system   string
	messages []providers.Message
}

// NewLog creates a log seeded with systemPrompt, if non-empty
func NewLog(systemPrompt string) *Log {
	l := &Log{system: systemPrompt}
	l.seed()
	return l
}

func (l *Log) seed() {
	l.messages = nil
	if l.system != "" {
		l.messages = append(l.messages, providers.Message{Role: providers.RoleSystem, Content: l.system})
	}
}

// Add appends a message and reports whether it was stored.
// Empty content is never stored.
func (l *Log) Add(role providers.Role, content string) bool {
	if content == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, providers.Message{Role: role, Content: content})
	return true
}

// AddUser appends a user message
func (l *Log) AddUser(content string) bool {
	return l.Add(providers.RoleUser, content)
}

// AddAssistant appends an assistant message
func (l *Log) AddAssistant(content string) bool {
	return l.Add(providers.RoleAssistant, content)
}

// AddSystem appends a system message
func (l *Log) AddSystem(content string) bool {
	return l.Add(providers.RoleSystem, content)
}

// Snapshot returns a copy of the current sequence
func (l *Log) Snapshot() []providers.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]providers.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of stored messages
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.messages)
}

// Clear empties the log and re-seeds the configured system prompt
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seed()
}

// Reset empties the log and seeds it with systemPrompt instead of the
// configured one. An empty systemPrompt leaves the log empty.
func (l *Log) Reset(systemPrompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.system = systemPrompt
	l.seed()
}
