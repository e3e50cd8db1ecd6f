package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/config"
	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/services/providers"
	"github.com/upb/chat-gateway/services/providers/anthropic"
	"github.com/upb/chat-gateway/services/providers/azure"
	"github.com/upb/chat-gateway/services/providers/gemini"
	"github.com/upb/chat-gateway/services/providers/scripted"
	"github.com/upb/chat-gateway/services/routing"
)

// NewProviderRegistry registers a builder for every supported backend
func NewProviderRegistry() (*providers.Registry, error) {
	registry := providers.NewRegistry()
	builders := map[string]providers.ProviderBuilder{
		config.ProviderAzure:     azure.Builder,
		config.ProviderAnthropic: anthropic.Builder,
		config.ProviderGemini:    gemini.Builder,
		config.ProviderScripted:  scripted.Builder,
	}
	for kind, b := range builders {
		if err := registry.RegisterBuilder(kind, b); err != nil {
			return nil, fmt.Errorf("register %s: %w", kind, err)
		}
	}
	return registry, nil
}

// ChainEntries translates the configured chain order into builder inputs
func ChainEntries(cfg *config.Config) []providers.ChainEntry {
	entries := make([]providers.ChainEntry, 0, len(cfg.Chat.ProviderOrder))
	for _, kind := range cfg.Chat.ProviderOrder {
		pc := providers.DefaultProviderConfig()
		pc.Timeout = cfg.Providers.Timeout

		switch kind {
		case config.ProviderAzure:
			pc.APIKey = cfg.Providers.Azure.APIKey
			pc.BaseURL = cfg.Providers.Azure.Endpoint
			pc.Model = cfg.Providers.Azure.Deployment
			pc.APIVersion = cfg.Providers.Azure.APIVersion
		case config.ProviderAnthropic:
			pc.APIKey = cfg.Providers.Anthropic.APIKey
			pc.BaseURL = cfg.Providers.Anthropic.BaseURL
			pc.Model = cfg.Providers.Anthropic.Model
		case config.ProviderGemini:
			pc.APIKey = cfg.Providers.Gemini.APIKey
			pc.BaseURL = cfg.Providers.Gemini.BaseURL
			pc.Model = cfg.Providers.Gemini.Model
		case config.ProviderScripted:
			pc.Model = cfg.Providers.Scripted.Reply
		}

		entries = append(entries, providers.ChainEntry{Kind: kind, Config: pc})
	}
	return entries
}

// NewOrchestrator builds the configured chain and wraps it in an orchestrator
func NewOrchestrator(cfg *config.Config, metrics observability.Metrics, logger *zap.Logger) (*routing.Orchestrator, error) {
	registry, err := NewProviderRegistry()
	if err != nil {
		return nil, err
	}

	chain, err := registry.BuildChain(ChainEntries(cfg), cfg.Chat.RequireAllProviders, logger)
	if err != nil {
		return nil, err
	}

	policy := routing.DefaultPolicy()
	if len(cfg.Chat.FallbackStopOn) > 0 {
		kinds, err := routing.ParseKinds(strings.Join(cfg.Chat.FallbackStopOn, ","))
		if err != nil {
			return nil, fmt.Errorf("fallback stop list: %w", err)
		}
		policy = routing.StopOnPolicy(kinds...)
	}

	if metrics == nil {
		metrics = observability.NopMetrics{}
	}

	o, err := routing.NewOrchestrator(chain, logger,
		routing.WithPolicy(policy),
		routing.WithMetrics(metrics),
		routing.WithGenerateOptions(providers.GenerateOptions{
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("provider chain ready", zap.Strings("providers", o.Providers()))
	return o, nil
}
