// Package chat runs conversation turns against the fallback chain.
//
// A Session owns one conversation log. Each turn appends the user message,
// asks the orchestrator for a stream, forwards fragments to the caller as
// they arrive, and appends the reconstructed assistant message once the
// stream completes. A turn that produces no reply appends nothing further.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/internal/rag"
	"github.com/upb/chat-gateway/models"
	"github.com/upb/chat-gateway/repositories"
	"github.com/upb/chat-gateway/services/conversation"
	"github.com/upb/chat-gateway/services/providers"
	"github.com/upb/chat-gateway/services/routing"
	"github.com/upb/chat-gateway/services/streaming"
)

var (
	// ErrEmptyInput is returned for blank user input
	ErrEmptyInput = errors.New("empty input")

	// ErrTurnInProgress is returned when a turn is started while another
	// one is still running on the same session
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrEmptyReply is returned when the provider finished without any text.
	// The turn fails and no assistant message is recorded.
	ErrEmptyReply = errors.New("provider returned an empty reply")
)

// MidStreamError reports a stream that failed after it was acquired.
// No fallback is attempted for it.
type MidStreamError struct {
	// Provider whose stream failed
	Provider string

	// Partial is the text received before the failure
	Partial string

	Err error
}

func (e *MidStreamError) Error() string {
	return fmt.Sprintf("%s stream failed: %v", e.Provider, e.Err)
}

func (e *MidStreamError) Unwrap() error {
	return e.Err
}

// Callbacks receive turn progress. Both are optional.
type Callbacks struct {
	// OnProvider is called once the stream is acquired. switched is true
	// when the provider differs from the previous turn's.
	OnProvider func(name string, switched bool)

	// OnFragment receives every fragment before the next one is pulled
	OnFragment streaming.ForwardFunc
}

// TurnResult describes a completed turn
type TurnResult struct {
	Provider  string `json:"provider"`
	Text      string `json:"text"`
	Fragments int    `json:"fragments"`
	Switched  bool   `json:"switched"`
}

// Session is one conversation bound to a fallback chain
type Session struct {
	id           uuid.UUID
	log          *conversation.Log
	orchestrator *routing.Orchestrator
	transcripts  repositories.TranscriptRepository
	retriever    rag.Retriever
	retrieval    rag.RetrievalOptions
	logger       *zap.Logger
	metrics      observability.Metrics

	turn sync.Mutex

	mu           sync.Mutex
	lastProvider string
	createdAt    time.Time
}

// Option configures a Session
type Option func(*Session)

// WithID fixes the session ID instead of generating one
func WithID(id uuid.UUID) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithTranscripts persists every finished turn
func WithTranscripts(repo repositories.TranscriptRepository) Option {
	return func(s *Session) {
		s.transcripts = repo
	}
}

// WithRetriever adds retrieved context to each call
func WithRetriever(r rag.Retriever, opts rag.RetrievalOptions) Option {
	return func(s *Session) {
		s.retriever = r
		s.retrieval = opts
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m observability.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// NewSession creates a session seeded with systemPrompt
func NewSession(orchestrator *routing.Orchestrator, systemPrompt string, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		id:           uuid.New(),
		log:          conversation.NewLog(systemPrompt),
		orchestrator: orchestrator,
		logger:       logger,
		metrics:      observability.NopMetrics{},
		createdAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id.String()))
	return s
}

// ID returns the session ID
func (s *Session) ID() uuid.UUID {
	return s.id
}

// CreatedAt returns when the session was created
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastProvider returns the provider that served the previous turn
func (s *Session) LastProvider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProvider
}

// History returns a copy of the conversation
func (s *Session) History() []providers.Message {
	return s.log.Snapshot()
}

// Reset clears the conversation and re-seeds the configured system prompt.
// It fails with ErrTurnInProgress while a turn is running.
func (s *Session) Reset() error {
	if !s.turn.TryLock() {
		return ErrTurnInProgress
	}
	defer s.turn.Unlock()

	s.log.Clear()
	return nil
}

// SetSystemPrompt clears the conversation and seeds it with prompt.
// It fails with ErrTurnInProgress while a turn is running.
func (s *Session) SetSystemPrompt(prompt string) error {
	if !s.turn.TryLock() {
		return ErrTurnInProgress
	}
	defer s.turn.Unlock()

	s.log.Reset(prompt)
	return nil
}

// Busy reports whether a turn is running
func (s *Session) Busy() bool {
	if !s.turn.TryLock() {
		return true
	}
	s.turn.Unlock()
	return false
}

// Turn runs one streamed exchange. Fragments reach cb.OnFragment in
// arrival order. On success the reply is appended to the log; on any
// failure only the user message remains.
func (s *Session) Turn(ctx context.Context, input string, cb Callbacks) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if !s.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer s.turn.Unlock()

	record := models.NewChatTurn(s.id, input)
	start := time.Now()

	s.log.AddUser(input)
	messages := s.withContext(ctx, input, s.log.Snapshot())

	stream, name, err := s.orchestrator.Ask(ctx, messages)
	if err != nil {
		s.logger.Warn("turn failed before streaming", zap.Error(err))
		s.persist(ctx, record, func() { record.MarkAsFailed("", err) })
		return nil, err
	}

	switched := s.swapProvider(name)
	if switched {
		s.logger.Info("provider switched", zap.String("provider", name))
	}
	if cb.OnProvider != nil {
		cb.OnProvider(name, switched)
	}

	res, err := streaming.Drain(stream, cb.OnFragment)
	s.metrics.RecordFragments(name, res.Fragments)
	if err == nil && res.Text == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		if !streaming.IsForwardError(err) {
			err = &MidStreamError{Provider: name, Partial: res.Text, Err: err}
		}
		s.logger.Warn("turn failed while streaming",
			zap.String("provider", name),
			zap.Int("fragments", res.Fragments),
			zap.Error(err))
		s.persist(ctx, record, func() { record.MarkAsFailed(name, err) })
		return nil, err
	}

	s.log.AddAssistant(res.Text)
	s.metrics.RecordTurn(name, time.Since(start).Seconds())
	s.persist(ctx, record, func() { record.MarkAsCompleted(name, res.Text, res.Fragments, switched) })

	return &TurnResult{
		Provider:  name,
		Text:      res.Text,
		Fragments: res.Fragments,
		Switched:  switched,
	}, nil
}

// Complete runs one blocking exchange. Fallback covers the whole call
// since nothing has been delivered before it returns.
func (s *Session) Complete(ctx context.Context, input string) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if !s.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer s.turn.Unlock()

	record := models.NewChatTurn(s.id, input)
	start := time.Now()

	s.log.AddUser(input)
	messages := s.withContext(ctx, input, s.log.Snapshot())

	text, name, err := s.orchestrator.Generate(ctx, messages)
	if err != nil {
		s.logger.Warn("turn failed", zap.Error(err))
		s.persist(ctx, record, func() { record.MarkAsFailed("", err) })
		return nil, err
	}

	if text == "" {
		err = fmt.Errorf("%s: %w", name, ErrEmptyReply)
		s.logger.Warn("turn failed", zap.String("provider", name), zap.Error(err))
		s.persist(ctx, record, func() { record.MarkAsFailed(name, err) })
		return nil, err
	}

	switched := s.swapProvider(name)
	s.log.AddAssistant(text)
	s.metrics.RecordTurn(name, time.Since(start).Seconds())
	s.persist(ctx, record, func() { record.MarkAsCompleted(name, text, 1, switched) })

	return &TurnResult{
		Provider:  name,
		Text:      text,
		Fragments: 1,
		Switched:  switched,
	}, nil
}

// swapProvider records name as the last provider and reports whether it changed
func (s *Session) swapProvider(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switched := s.lastProvider != "" && s.lastProvider != name
	s.lastProvider = name
	return switched
}

// withContext inserts retrieved documents as a system message after the
// leading system messages. The log itself is left untouched.
func (s *Session) withContext(ctx context.Context, query string, messages []providers.Message) []providers.Message {
	if s.retriever == nil {
		return messages
	}

	docs, err := s.retriever.Retrieve(ctx, query, s.retrieval)
	if err != nil {
		s.logger.Warn("retrieval failed, continuing without context", zap.Error(err))
		return messages
	}
	block := rag.FormatContext(docs)
	if block == "" {
		return messages
	}

	i := 0
	for i < len(messages) && messages[i].Role == providers.RoleSystem {
		i++
	}
	out := make([]providers.Message, 0, len(messages)+1)
	out = append(out, messages[:i]...)
	out = append(out, providers.Message{Role: providers.RoleSystem, Content: block})
	out = append(out, messages[i:]...)
	return out
}

// persist stores the turn without failing it
func (s *Session) persist(ctx context.Context, record *models.ChatTurn, mark func()) {
	if s.transcripts == nil {
		return
	}
	mark()

	// the caller's context may already be canceled when the stream broke
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.transcripts.Append(ctx, record); err != nil {
		s.logger.Error("failed to store chat turn", zap.Error(err))
	}
}
