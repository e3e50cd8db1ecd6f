package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/models"
	"github.com/upb/chat-gateway/repositories"
)

// Transcript is the stored record of one session
type Transcript struct {
	Summary *repositories.SessionSummary `json:"summary"`
	Turns   []*models.ChatTurn           `json:"turns"`
}

// TranscriptService reads and purges stored chat turns
type TranscriptService struct {
	repo   repositories.TranscriptRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewTranscriptService creates a transcript service
func NewTranscriptService(repo repositories.TranscriptRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *TranscriptService {
	return &TranscriptService{
		repo:   repo,
		txMgr:  txMgr,
		logger: logger,
	}
}

// Get returns the summary and the most recent turns of a session.
// Both are read in one transaction so the counters match the rows.
func (s *TranscriptService) Get(ctx context.Context, sessionID uuid.UUID, limit int) (*Transcript, error) {
	return WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) (*Transcript, error) {
		summary, err := s.repo.Summary(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repositories.ErrSessionNotFound) {
				return nil, NewDomainError(ErrorTypeNotFound, ErrTranscriptNotFound.Message, err).
					WithDetail("session_id", sessionID.String())
			}
			return nil, WrapInternal("failed to load session summary", err)
		}

		turns, err := s.repo.ListBySession(ctx, sessionID, limit)
		if err != nil {
			return nil, WrapInternal("failed to load transcript", err)
		}

		return &Transcript{Summary: summary, Turns: turns}, nil
	})
}

// Delete purges every stored turn of a session
func (s *TranscriptService) Delete(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	n, err := s.repo.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, WrapInternal("failed to delete transcript", err)
	}
	if n == 0 {
		return 0, NewDomainError(ErrorTypeNotFound, ErrTranscriptNotFound.Message, nil).
			WithDetail("session_id", sessionID.String())
	}

	s.logger.Info("transcript deleted",
		zap.String("session_id", sessionID.String()),
		zap.Int64("turns", n))
	return n, nil
}
