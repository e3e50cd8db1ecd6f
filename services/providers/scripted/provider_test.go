package scripted

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/chat-gateway/services/providers"
)

func collect(t *testing.T, s providers.FragmentStream) ([]string, error) {
	t.Helper()
	defer s.Close()

	var out []string
	for s.Next() {
		out = append(out, s.Current())
	}
	return out, s.Err()
}

func TestProvider_Stream(t *testing.T) {
	p := New("a", "Hello", " world")
	msgs := []providers.Message{{Role: providers.RoleUser, Content: "Hi"}}

	s, err := p.Stream(context.Background(), msgs, providers.DefaultGenerateOptions())
	require.NoError(t, err)

	got, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " world"}, got)
	assert.Equal(t, "a", p.Name())
	assert.Equal(t, [][]providers.Message{msgs}, p.Calls())
}

func TestProvider_Failures(t *testing.T) {
	boom := errors.New("boom")
	msgs := []providers.Message{{Role: providers.RoleUser, Content: "Hi"}}

	t.Run("acquire", func(t *testing.T) {
		p := Failing("a", boom)
		_, err := p.Stream(context.Background(), msgs, providers.DefaultGenerateOptions())
		assert.ErrorIs(t, err, boom)

		_, err = p.Generate(context.Background(), msgs, providers.DefaultGenerateOptions())
		assert.ErrorIs(t, err, boom)
		assert.Len(t, p.Calls(), 2)
	})

	t.Run("after fragments", func(t *testing.T) {
		p := New("a", "Hel", "lo")
		p.StreamErr, p.FailAfter = boom, 1

		s, err := p.Stream(context.Background(), msgs, providers.DefaultGenerateOptions())
		require.NoError(t, err)

		got, err := collect(t, s)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"Hel"}, got)
	})

	t.Run("after the last fragment", func(t *testing.T) {
		p := New("a", "Hel", "lo")
		p.StreamErr, p.FailAfter = boom, 2

		s, err := p.Stream(context.Background(), msgs, providers.DefaultGenerateOptions())
		require.NoError(t, err)

		got, err := collect(t, s)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"Hel", "lo"}, got)
	})
}

func TestProvider_Generate(t *testing.T) {
	text, err := New("a", "Hello", " world").Generate(context.Background(), nil, providers.DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New("a", "x").Generate(ctx, nil, providers.DefaultGenerateOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuilder(t *testing.T) {
	p, err := Builder(providers.ProviderConfig{Model: "Hola mundo"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", p.Name())

	s, err := p.Stream(context.Background(), nil, providers.DefaultGenerateOptions())
	require.NoError(t, err)
	got, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hola ", "mundo"}, got)

	p, err = Builder(providers.ProviderConfig{})
	require.NoError(t, err)
	text, err := p.Generate(context.Background(), nil, providers.DefaultGenerateOptions())
	require.NoError(t, err)
	assert.Equal(t, "Hello from the scripted provider.", text)
}
