package routing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/services/providers"
)

var (
	// ErrAllProvidersExhausted is matched by the error returned when every
	// provider in the chain failed
	ErrAllProvidersExhausted = errors.New("all providers failed")

	// ErrNoProviders is returned when the orchestrator has an empty chain
	ErrNoProviders = errors.New("no providers configured")
)

// ExhaustedError is returned when every provider failed. It wraps the last
// provider's error.
type ExhaustedError struct {
	// Attempts is the number of providers tried
	Attempts int

	// Provider is the name of the last provider tried
	Provider string

	// Last is the error of the last provider tried
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d providers failed, last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

// Orchestrator holds an ordered provider chain and falls back along it.
// The order is fixed at construction; the first provider is preferred.
type Orchestrator struct {
	chain   []providers.Provider
	policy  FallbackPolicy
	opts    providers.GenerateOptions
	logger  *zap.Logger
	metrics observability.Metrics
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPolicy replaces the default fallback policy
func WithPolicy(policy FallbackPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// WithGenerateOptions sets the sampling parameters passed to every provider
func WithGenerateOptions(opts providers.GenerateOptions) Option {
	return func(o *Orchestrator) {
		o.opts = opts
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an orchestrator over chain, which must not be empty
func NewOrchestrator(chain []providers.Provider, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	o := &Orchestrator{
		chain:   append([]providers.Provider(nil), chain...),
		policy:  DefaultPolicy(),
		opts:    providers.DefaultGenerateOptions(),
		logger:  logger,
		metrics: observability.NopMetrics{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Providers returns the chain's provider names in priority order
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.chain))
	for i, p := range o.chain {
		names[i] = p.Name()
	}
	return names
}

// Ask returns the stream of the first provider whose handle acquisition
// succeeds, together with that provider's name.
//
// Streams are lazy, so only failures raised while acquiring the handle are
// seen here. Errors raised while the caller drains the stream are reported
// by the stream itself and do not move on to the next provider.
func (o *Orchestrator) Ask(ctx context.Context, messages []providers.Message) (providers.FragmentStream, string, error) {
	var (
		stream providers.FragmentStream
		name   string
	)
	err := o.run(ctx, func(p providers.Provider) error {
		s, err := p.Stream(ctx, messages, o.opts)
		if err != nil {
			return err
		}
		stream, name = s, p.Name()
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return stream, name, nil
}

// Generate runs the blocking call along the chain with the same policy
// and returns the text and the name of the provider that produced it.
func (o *Orchestrator) Generate(ctx context.Context, messages []providers.Message) (string, string, error) {
	var (
		text string
		name string
	)
	err := o.run(ctx, func(p providers.Provider) error {
		t, err := p.Generate(ctx, messages, o.opts)
		if err != nil {
			return err
		}
		text, name = t, p.Name()
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return text, name, nil
}

// run calls attempt for each provider in order until one succeeds, the
// policy refuses to fall back, or the chain is exhausted.
func (o *Orchestrator) run(ctx context.Context, attempt func(providers.Provider) error) error {
	var lastErr error

	for i, p := range o.chain {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt(p)
		if err == nil {
			o.metrics.RecordAttempt(p.Name(), observability.OutcomeAcquired)
			if i > 0 {
				o.logger.Info("provider fallback succeeded",
					zap.String("provider", p.Name()),
					zap.Int("attempt", i+1))
			}
			return nil
		}

		lastErr = err
		kind := providers.KindOf(err)

		if !o.policy(err) {
			o.metrics.RecordAttempt(p.Name(), observability.OutcomeAborted)
			o.logger.Warn("provider failed, fallback not allowed",
				zap.String("provider", p.Name()),
				zap.String("kind", string(kind)),
				zap.Error(err))
			return err
		}

		o.metrics.RecordAttempt(p.Name(), observability.OutcomeFailed)
		o.metrics.RecordFallback(p.Name(), string(kind))
		o.logger.Warn("provider failed, trying next",
			zap.String("provider", p.Name()),
			zap.String("kind", string(kind)),
			zap.Int("attempt", i+1),
			zap.Int("remaining", len(o.chain)-i-1),
			zap.Error(err))
	}

	o.metrics.RecordExhausted()
	return &ExhaustedError{
		Attempts: len(o.chain),
		Provider: o.chain[len(o.chain)-1].Name(),
		Last:     lastErr,
	}
}
