package models

import (
	"time"

	"github.com/google/uuid"
)

// TurnStatus represents how a chat turn ended
type TurnStatus string

const (
	TurnStatusCompleted TurnStatus = "completed"
	TurnStatusFailed    TurnStatus = "failed" // No provider answered, the stream broke, or the reply was empty
)

// ChatTurn is one user prompt and the reply that answered it
type ChatTurn struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SessionID uuid.UUID  `json:"session_id" db:"session_id"`
	Status    TurnStatus `json:"status" db:"status"`

	// Provider that produced the reply, empty when none did
	Provider string `json:"provider,omitempty" db:"provider"`

	UserText      string `json:"user_text" db:"user_text"`
	AssistantText string `json:"assistant_text,omitempty" db:"assistant_text"`
	Fragments     int    `json:"fragments" db:"fragments"`
	Switched      bool   `json:"switched" db:"switched"` // Provider differs from the previous turn's

	LatencyMs    int     `json:"latency_ms" db:"latency_ms"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TableName returns the table name for the ChatTurn model
func (ChatTurn) TableName() string {
	return "chat_turns"
}

// NewChatTurn creates a turn for userText in session
func NewChatTurn(sessionID uuid.UUID, userText string) *ChatTurn {
	return &ChatTurn{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserText:  userText,
		CreatedAt: time.Now(),
	}
}

// MarkAsCompleted records the reply
func (t *ChatTurn) MarkAsCompleted(provider, text string, fragments int, switched bool) {
	now := time.Now()
	t.Status = TurnStatusCompleted
	t.Provider = provider
	t.AssistantText = text
	t.Fragments = fragments
	t.Switched = switched
	t.LatencyMs = int(now.Sub(t.CreatedAt).Milliseconds())
	t.CompletedAt = &now
}

// MarkAsFailed records why no reply was produced. provider is empty when
// no stream was ever acquired.
func (t *ChatTurn) MarkAsFailed(provider string, err error) {
	now := time.Now()
	msg := err.Error()
	t.Status = TurnStatusFailed
	t.Provider = provider
	t.ErrorMessage = &msg
	t.LatencyMs = int(now.Sub(t.CreatedAt).Milliseconds())
	t.CompletedAt = &now
}
