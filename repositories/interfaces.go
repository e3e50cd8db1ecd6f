package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/chat-gateway/models"
)

// ErrSessionNotFound is returned when a session has no stored turns
var ErrSessionNotFound = errors.New("session not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// TranscriptRepository persists finished chat turns
type TranscriptRepository interface {
	// Append stores a turn and bumps its session's counters
	Append(ctx context.Context, turn *models.ChatTurn) error

	// ListBySession returns the most recent turns of a session, oldest first
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatTurn, error)

	// Summary returns the session's counters
	Summary(ctx context.Context, sessionID uuid.UUID) (*SessionSummary, error)

	// DeleteBySession removes every turn of a session and returns how many
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

// SessionSummary aggregates the stored turns of one session
type SessionSummary struct {
	SessionID    uuid.UUID `json:"session_id"`
	TurnCount    int64     `json:"turn_count"`
	FailedCount  int64     `json:"failed_count"`
	LastProvider string    `json:"last_provider"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Repositories holds all repository instances
type Repositories struct {
	Transcripts TranscriptRepository
}
