// Package scripted provides a deterministic in-process Provider. It backs
// the offline "scripted" chain entry and the tests of the layers above the
// adapters.
package scripted

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/upb/chat-gateway/services/providers"
)

// Provider replays configured fragments and failures
type Provider struct {
	name string

	// Fragments are yielded in order by Stream and joined by Generate
	Fragments []string

	// AcquireErr is returned by Stream and Generate before any fragment
	AcquireErr error

	// StreamErr is surfaced after FailAfter fragments have been yielded
	StreamErr error
	FailAfter int

	mu    sync.Mutex
	calls [][]providers.Message
}

// New creates a provider that streams fragments
func New(name string, fragments ...string) *Provider {
	return &Provider{name: name, Fragments: fragments}
}

// Failing creates a provider whose handle acquisition always fails with err
func Failing(name string, err error) *Provider {
	return &Provider{name: name, AcquireErr: err}
}

// Builder creates an echo provider for the "scripted" chain entry.
// It answers with the configured model string, or a fixed greeting.
func Builder(config providers.ProviderConfig) (providers.Provider, error) {
	reply := config.Model
	if reply == "" {
		reply = "Hello from the scripted provider."
	}
	return New("scripted", strings.SplitAfter(reply, " ")...), nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.name
}

// Calls returns copies of the message lists received so far
func (p *Provider) Calls() [][]providers.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][]providers.Message, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *Provider) record(messages []providers.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]providers.Message, len(messages))
	copy(cp, messages)
	p.calls = append(p.calls, cp)
}

// Generate returns the concatenation of the fragments
func (p *Provider) Generate(ctx context.Context, messages []providers.Message, _ providers.GenerateOptions) (string, error) {
	p.record(messages)
	if p.AcquireErr != nil {
		return "", p.AcquireErr
	}
	if p.StreamErr != nil {
		return "", p.StreamErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.Join(p.Fragments, ""), nil
}

// Stream yields the fragments one at a time
func (p *Provider) Stream(ctx context.Context, messages []providers.Message, _ providers.GenerateOptions) (providers.FragmentStream, error) {
	p.record(messages)
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}

	fragments := append([]string(nil), p.Fragments...)
	streamErr, failAfter := p.StreamErr, p.FailAfter

	return providers.NewSeqStream(ctx, func(ctx context.Context) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for i, f := range fragments {
				if streamErr != nil && i == failAfter {
					yield("", streamErr)
					return
				}
				if err := ctx.Err(); err != nil {
					yield("", err)
					return
				}
				if !yield(f, nil) {
					return
				}
			}
			if streamErr != nil && failAfter >= len(fragments) {
				yield("", streamErr)
			}
		}
	}), nil
}
