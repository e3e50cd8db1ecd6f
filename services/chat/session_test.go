package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/rag"
	"github.com/upb/chat-gateway/models"
	"github.com/upb/chat-gateway/repositories"
	"github.com/upb/chat-gateway/services/providers"
	"github.com/upb/chat-gateway/services/providers/scripted"
	"github.com/upb/chat-gateway/services/routing"
	"github.com/upb/chat-gateway/services/streaming"
)

type memTranscripts struct {
	mu    sync.Mutex
	turns []*models.ChatTurn
	err   error
}

func (m *memTranscripts) Append(_ context.Context, turn *models.ChatTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.turns = append(m.turns, turn)
	return nil
}

func (m *memTranscripts) ListBySession(_ context.Context, sessionID uuid.UUID, _ int) ([]*models.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChatTurn
	for _, t := range m.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTranscripts) Summary(context.Context, uuid.UUID) (*repositories.SessionSummary, error) {
	return nil, errors.New("not implemented")
}

func (m *memTranscripts) DeleteBySession(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

type staticRetriever struct {
	docs []rag.Document
	err  error
}

func (r staticRetriever) Retrieve(context.Context, string, rag.RetrievalOptions) ([]rag.Document, error) {
	return r.docs, r.err
}

func rateLimited(name string) error {
	return providers.NewProviderError(name, providers.KindRateLimited, "rate_limit", "Too Many Requests", 429, nil)
}

func newSession(t *testing.T, chain []providers.Provider, system string, opts ...Option) *Session {
	t.Helper()
	orch, err := routing.NewOrchestrator(chain, zap.NewNop())
	require.NoError(t, err)
	return NewSession(orch, system, zap.NewNop(), opts...)
}

func collect(dst *[]string) streaming.ForwardFunc {
	return func(f string) error {
		*dst = append(*dst, f)
		return nil
	}
}

func TestSession_Turn(t *testing.T) {
	ctx := context.Background()

	t.Run("streams and records the reply", func(t *testing.T) {
		a := scripted.New("a", "Hello", " world")
		s := newSession(t, []providers.Provider{a}, "Be terse")

		var got []string
		var announced string
		res, err := s.Turn(ctx, "  Hi  ", Callbacks{
			OnProvider: func(name string, switched bool) {
				announced = name
				assert.False(t, switched)
			},
			OnFragment: collect(&got),
		})
		require.NoError(t, err)

		assert.Equal(t, "a", announced)
		assert.Equal(t, []string{"Hello", " world"}, got)
		assert.Equal(t, &TurnResult{Provider: "a", Text: "Hello world", Fragments: 2}, res)

		assert.Equal(t, []providers.Message{
			{Role: providers.RoleSystem, Content: "Be terse"},
			{Role: providers.RoleUser, Content: "Hi"},
			{Role: providers.RoleAssistant, Content: "Hello world"},
		}, s.History())

		calls := a.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, []providers.Message{
			{Role: providers.RoleSystem, Content: "Be terse"},
			{Role: providers.RoleUser, Content: "Hi"},
		}, calls[0])
	})

	t.Run("falls back when acquisition fails", func(t *testing.T) {
		a := scripted.Failing("a", rateLimited("a"))
		b := scripted.New("b", "Hello", " world")
		s := newSession(t, []providers.Provider{a, b}, "")

		var got []string
		res, err := s.Turn(ctx, "Hi", Callbacks{OnFragment: collect(&got)})
		require.NoError(t, err)

		assert.Equal(t, "b", res.Provider)
		assert.Equal(t, []string{"Hello", " world"}, got)
		assert.Equal(t, "b", s.LastProvider())
	})

	t.Run("reports a provider switch between turns", func(t *testing.T) {
		a := scripted.New("a", "one")
		b := scripted.New("b", "two")
		s := newSession(t, []providers.Provider{a, b}, "")

		first, err := s.Turn(ctx, "first", Callbacks{})
		require.NoError(t, err)
		assert.False(t, first.Switched)

		a.AcquireErr = rateLimited("a")

		var switchedTo string
		second, err := s.Turn(ctx, "second", Callbacks{
			OnProvider: func(name string, switched bool) {
				if switched {
					switchedTo = name
				}
			},
		})
		require.NoError(t, err)
		assert.True(t, second.Switched)
		assert.Equal(t, "b", switchedTo)

		third, err := s.Turn(ctx, "third", Callbacks{})
		require.NoError(t, err)
		assert.False(t, third.Switched)
	})

	t.Run("all providers fail", func(t *testing.T) {
		a := scripted.Failing("a", rateLimited("a"))
		b := scripted.Failing("b", errors.New("connection refused"))
		s := newSession(t, []providers.Provider{a, b}, "sys")

		res, err := s.Turn(ctx, "Hi", Callbacks{})
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, routing.ErrAllProvidersExhausted)
		assert.Contains(t, err.Error(), "connection refused")

		assert.Equal(t, []providers.Message{
			{Role: providers.RoleSystem, Content: "sys"},
			{Role: providers.RoleUser, Content: "Hi"},
		}, s.History())
	})

	t.Run("mid-stream failure does not fall back", func(t *testing.T) {
		streamErr := providers.NewProviderError("a", providers.KindConnection, "", "stream interrupted", 0, nil)
		a := scripted.New("a", "Hel", "lo")
		a.StreamErr = streamErr
		a.FailAfter = 1
		b := scripted.New("b", "unused")
		s := newSession(t, []providers.Provider{a, b}, "")

		var got []string
		res, err := s.Turn(ctx, "Hi", Callbacks{OnFragment: collect(&got)})
		require.Error(t, err)
		assert.Nil(t, res)

		var mid *MidStreamError
		require.ErrorAs(t, err, &mid)
		assert.Equal(t, "a", mid.Provider)
		assert.Equal(t, "Hel", mid.Partial)
		assert.ErrorIs(t, err, streamErr)

		assert.Equal(t, []string{"Hel"}, got)
		assert.Empty(t, b.Calls())
		assert.Equal(t, []providers.Message{{Role: providers.RoleUser, Content: "Hi"}}, s.History())
	})

	t.Run("consumer failure is not a stream failure", func(t *testing.T) {
		a := scripted.New("a", "one", "two")
		s := newSession(t, []providers.Provider{a}, "")

		boom := errors.New("client went away")
		_, err := s.Turn(ctx, "Hi", Callbacks{OnFragment: func(string) error { return boom }})
		require.Error(t, err)

		var mid *MidStreamError
		assert.False(t, errors.As(err, &mid))
		assert.True(t, streaming.IsForwardError(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, len(s.History()))
	})

	t.Run("empty input", func(t *testing.T) {
		a := scripted.New("a", "x")
		s := newSession(t, []providers.Provider{a}, "")

		_, err := s.Turn(ctx, "   ", Callbacks{})
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Empty(t, a.Calls())
		assert.Empty(t, s.History())
	})

	t.Run("rejects a concurrent turn", func(t *testing.T) {
		a := scripted.New("a", "one", "two")
		s := newSession(t, []providers.Provider{a}, "")

		var nested error
		_, err := s.Turn(ctx, "outer", Callbacks{
			OnFragment: func(string) error {
				if nested == nil {
					_, nested = s.Turn(ctx, "inner", Callbacks{})
				}
				return nil
			},
		})
		require.NoError(t, err)
		assert.ErrorIs(t, nested, ErrTurnInProgress)
		assert.Len(t, a.Calls(), 1)
	})
}

func TestSession_Complete(t *testing.T) {
	a := scripted.Failing("a", rateLimited("a"))
	b := scripted.New("b", "Hello", " world")
	s := newSession(t, []providers.Provider{a, b}, "")

	res, err := s.Complete(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, "Hello world", res.Text)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "Hello world", history[1].Content)

	_, err = s.Complete(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSession_Transcripts(t *testing.T) {
	ctx := context.Background()
	store := &memTranscripts{}

	a := scripted.New("a", "ok")
	s := newSession(t, []providers.Provider{a}, "", WithTranscripts(store))

	_, err := s.Turn(ctx, "Hi", Callbacks{})
	require.NoError(t, err)

	a.AcquireErr = rateLimited("a")
	_, err = s.Turn(ctx, "Again", Callbacks{})
	require.Error(t, err)

	turns, _ := store.ListBySession(ctx, s.ID(), 0)
	require.Len(t, turns, 2)

	assert.Equal(t, models.TurnStatusCompleted, turns[0].Status)
	assert.Equal(t, "a", turns[0].Provider)
	assert.Equal(t, "ok", turns[0].AssistantText)

	assert.Equal(t, models.TurnStatusFailed, turns[1].Status)
	assert.Empty(t, turns[1].Provider)
	require.NotNil(t, turns[1].ErrorMessage)
	assert.Contains(t, *turns[1].ErrorMessage, "Too Many Requests")

	t.Run("store failure does not fail the turn", func(t *testing.T) {
		broken := &memTranscripts{err: errors.New("db down")}
		s := newSession(t, []providers.Provider{scripted.New("a", "ok")}, "", WithTranscripts(broken))

		res, err := s.Turn(ctx, "Hi", Callbacks{})
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Text)
	})
}

func TestSession_Retriever(t *testing.T) {
	ctx := context.Background()

	t.Run("context goes after the leading system messages", func(t *testing.T) {
		a := scripted.New("a", "23 days")
		r := staticRetriever{docs: []rag.Document{{Source: "vacations.md", Content: "23 vacation days"}}}
		s := newSession(t, []providers.Provider{a}, "sys", WithRetriever(r, rag.RetrievalOptions{TopK: 2}))

		_, err := s.Turn(ctx, "How many vacation days?", Callbacks{})
		require.NoError(t, err)

		call := a.Calls()[0]
		require.Len(t, call, 3)
		assert.Equal(t, providers.Message{Role: providers.RoleSystem, Content: "sys"}, call[0])
		assert.Equal(t, providers.RoleSystem, call[1].Role)
		assert.Contains(t, call[1].Content, "23 vacation days")
		assert.Equal(t, providers.RoleUser, call[2].Role)

		// the log never stores retrieved context
		assert.Len(t, s.History(), 3)
		assert.Equal(t, "sys", s.History()[0].Content)
		assert.Equal(t, providers.RoleUser, s.History()[1].Role)
	})

	t.Run("retrieval failure is tolerated", func(t *testing.T) {
		a := scripted.New("a", "ok")
		s := newSession(t, []providers.Provider{a}, "", WithRetriever(staticRetriever{err: errors.New("index gone")}, rag.RetrievalOptions{}))

		_, err := s.Turn(ctx, "Hi", Callbacks{})
		require.NoError(t, err)
		assert.Len(t, a.Calls()[0], 1)
	})
}

func TestSession_ResetAndSystemPrompt(t *testing.T) {
	s := newSession(t, []providers.Provider{scripted.New("a", "ok")}, "sys")

	_, err := s.Turn(context.Background(), "Hi", Callbacks{})
	require.NoError(t, err)
	require.Len(t, s.History(), 3)

	require.NoError(t, s.Reset())
	assert.Equal(t, []providers.Message{{Role: providers.RoleSystem, Content: "sys"}}, s.History())

	require.NoError(t, s.SetSystemPrompt("You are a legal advisor"))
	assert.Equal(t, []providers.Message{{Role: providers.RoleSystem, Content: "You are a legal advisor"}}, s.History())

	require.NoError(t, s.Reset())
	assert.Equal(t, "You are a legal advisor", s.History()[0].Content)
}

func TestSession_ResetDuringTurn(t *testing.T) {
	t.Run("from the fragment callback", func(t *testing.T) {
		s := newSession(t, []providers.Provider{scripted.New("a", "Hel", "lo")}, "Be terse")

		var resetErr, promptErr error
		_, err := s.Turn(context.Background(), "Hi", Callbacks{
			OnFragment: func(f string) error {
				if f == "Hel" {
					assert.True(t, s.Busy())
					resetErr = s.Reset()
					promptErr = s.SetSystemPrompt("You are a legal advisor")
				}
				return nil
			},
		})
		require.NoError(t, err)

		assert.ErrorIs(t, resetErr, ErrTurnInProgress)
		assert.ErrorIs(t, promptErr, ErrTurnInProgress)
		assert.Equal(t, []providers.Message{
			{Role: providers.RoleSystem, Content: "Be terse"},
			{Role: providers.RoleUser, Content: "Hi"},
			{Role: providers.RoleAssistant, Content: "Hello"},
		}, s.History())
		assert.False(t, s.Busy())
	})

	t.Run("from another goroutine", func(t *testing.T) {
		s := newSession(t, []providers.Provider{scripted.New("a", "Hel", "lo")}, "Be terse")

		firstFragment := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			_, err := s.Turn(context.Background(), "Hi", Callbacks{
				OnFragment: func(f string) error {
					if f == "Hel" {
						close(firstFragment)
						<-release
					}
					return nil
				},
			})
			done <- err
		}()

		<-firstFragment
		assert.ErrorIs(t, s.Reset(), ErrTurnInProgress)
		close(release)
		require.NoError(t, <-done)

		history := s.History()
		require.Len(t, history, 3)
		assert.Equal(t, providers.RoleUser, history[1].Role)
		assert.Equal(t, "Hello", history[2].Content)

		require.NoError(t, s.Reset())
		assert.Len(t, s.History(), 1)
	})
}

func TestSession_EmptyReply(t *testing.T) {
	t.Run("stream without fragments", func(t *testing.T) {
		transcripts := &memTranscripts{}
		s := newSession(t, []providers.Provider{scripted.New("a")}, "Be terse", WithTranscripts(transcripts))

		res, err := s.Turn(context.Background(), "Hi", Callbacks{})
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrEmptyReply)

		var mid *MidStreamError
		require.ErrorAs(t, err, &mid)
		assert.Equal(t, "a", mid.Provider)

		history := s.History()
		require.Len(t, history, 2)
		assert.Equal(t, providers.RoleUser, history[1].Role)

		require.Len(t, transcripts.turns, 1)
		assert.Equal(t, models.TurnStatusFailed, transcripts.turns[0].Status)
	})

	t.Run("blocking call with no text", func(t *testing.T) {
		s := newSession(t, []providers.Provider{scripted.New("a")}, "Be terse")

		res, err := s.Complete(context.Background(), "Hi")
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrEmptyReply)
		assert.Len(t, s.History(), 2)
	})
}
