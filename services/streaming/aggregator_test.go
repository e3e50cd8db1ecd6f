package streaming

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/chat-gateway/services/providers"
	"github.com/upb/chat-gateway/services/providers/scripted"
)

func open(t *testing.T, p *scripted.Provider) providers.FragmentStream {
	t.Helper()
	s, err := p.Stream(context.Background(), nil, providers.DefaultGenerateOptions())
	require.NoError(t, err)
	return s
}

func TestDrain(t *testing.T) {
	var forwarded []string
	res, err := Drain(open(t, scripted.New("a", "Hello", " world")), func(f string) error {
		forwarded = append(forwarded, f)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello", " world"}, forwarded)
	assert.Equal(t, Result{Text: "Hello world", Fragments: 2}, res)
}

func TestDrain_StreamError(t *testing.T) {
	boom := errors.New("connection reset")
	p := scripted.New("a", "Hel", "lo")
	p.StreamErr, p.FailAfter = boom, 1

	res, err := Drain(open(t, p), nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsForwardError(err))
	assert.Equal(t, Result{Text: "Hel", Fragments: 1}, res)
}

func TestDrain_ForwardError(t *testing.T) {
	gone := errors.New("client went away")
	calls := 0

	res, err := Drain(open(t, scripted.New("a", "Hello", " world", "!")), func(string) error {
		calls++
		if calls == 2 {
			return gone
		}
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsForwardError(err))
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Hello world", res.Text)
}

func TestCollect(t *testing.T) {
	text, err := Collect(open(t, scripted.New("a", "Hello", " world")))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)

	text, err = Collect(open(t, scripted.New("a")))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}
