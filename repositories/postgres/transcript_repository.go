package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/models"
	"github.com/upb/chat-gateway/repositories"
)

// ErrSessionNotFound is returned when a session has no stored turns
var ErrSessionNotFound = repositories.ErrSessionNotFound

// TranscriptRepository implements the repositories.TranscriptRepository interface
type TranscriptRepository struct {
	db     *DB
	tm     repositories.TransactionManager
	logger *zap.Logger
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *DB, logger *zap.Logger) repositories.TranscriptRepository {
	return &TranscriptRepository{
		db:     db,
		tm:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Append inserts the turn and upserts the session row in one transaction
func (r *TranscriptRepository) Append(ctx context.Context, turn *models.ChatTurn) error {
	insertTurn := `
		INSERT INTO chat_turns (
			id, session_id, status, provider, user_text, assistant_text,
			fragments, switched, latency_ms, error_message, created_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	upsertSession := `
		INSERT INTO chat_sessions (id, turn_count, failed_count, last_provider, created_at, updated_at)
		VALUES ($1, 1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET turn_count = chat_sessions.turn_count + 1,
		    failed_count = chat_sessions.failed_count + EXCLUDED.failed_count,
		    last_provider = COALESCE(NULLIF(EXCLUDED.last_provider, ''), chat_sessions.last_provider),
		    updated_at = EXCLUDED.updated_at
	`

	failed := 0
	if turn.Status == models.TurnStatusFailed {
		failed = 1
	}

	err := r.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		if _, err := executor.ExecContext(ctx, insertTurn,
			turn.ID,
			turn.SessionID,
			turn.Status,
			turn.Provider,
			turn.UserText,
			turn.AssistantText,
			turn.Fragments,
			turn.Switched,
			turn.LatencyMs,
			turn.ErrorMessage,
			turn.CreatedAt,
			turn.CompletedAt,
		); err != nil {
			return fmt.Errorf("failed to insert chat turn: %w", err)
		}

		if _, err := executor.ExecContext(ctx, upsertSession,
			turn.SessionID,
			failed,
			turn.Provider,
			turn.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to update chat session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("chat turn stored",
		zap.String("id", turn.ID.String()),
		zap.String("session_id", turn.SessionID.String()))
	return nil
}

// ListBySession returns up to limit of the newest turns, oldest first
func (r *TranscriptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatTurn, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, session_id, status, provider, user_text, assistant_text,
		       fragments, switched, latency_ms, error_message, created_at, completed_at
		FROM (
			SELECT * FROM chat_turns
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.ChatTurn
	for rows.Next() {
		turn := &models.ChatTurn{}
		err := rows.Scan(
			&turn.ID,
			&turn.SessionID,
			&turn.Status,
			&turn.Provider,
			&turn.UserText,
			&turn.AssistantText,
			&turn.Fragments,
			&turn.Switched,
			&turn.LatencyMs,
			&turn.ErrorMessage,
			&turn.CreatedAt,
			&turn.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat turn rows: %w", err)
	}

	return turns, nil
}

// Summary returns the session's counters
func (r *TranscriptRepository) Summary(ctx context.Context, sessionID uuid.UUID) (*repositories.SessionSummary, error) {
	query := `
		SELECT id, turn_count, failed_count, last_provider, updated_at
		FROM chat_sessions
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	s := &repositories.SessionSummary{}

	err := executor.QueryRowContext(ctx, query, sessionID).Scan(
		&s.SessionID,
		&s.TurnCount,
		&s.FailedCount,
		&s.LastProvider,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session summary: %w", err)
	}

	return s, nil
}

// DeleteBySession removes the session's turns and its counters
func (r *TranscriptRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var deleted int64

	err := r.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		result, err := executor.ExecContext(ctx, `DELETE FROM chat_turns WHERE session_id = $1`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete chat turns: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if _, err := executor.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, sessionID); err != nil {
			return fmt.Errorf("failed to delete chat session: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Debug("chat transcript deleted",
		zap.String("session_id", sessionID.String()),
		zap.Int64("turns", deleted))
	return deleted, nil
}
