package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/app"
	"github.com/upb/chat-gateway/config"
	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/internal/rag"
	"github.com/upb/chat-gateway/services/chat"
	"github.com/upb/chat-gateway/services/prompt"
)

type options struct {
	expert      string
	expertsFile string
	providers   []string
	docsDir     string
	logLevel    string
	system      string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured providers from the terminal",
		Long: `Start an interactive chat session.

The session tries each provider in order and falls back to the next one
when a provider fails before it starts replying. Credentials and defaults
come from the environment (or a .env file); flags override them.

Examples:
  chat
  chat --expert legal
  chat --providers gemini,anthropic --docs ./documents`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Context())
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}

			logger, err := observability.NewLogger(cfg.Observability.LogLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			r, err := newREPL(cfg, opts.expert, logger)
			if err != nil {
				return err
			}
			r.in, r.out = cmd.InOrStdin(), cmd.OutOrStdout()
			return r.run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.expert, "expert", "e", "", "expert persona to start with")
	f.StringVar(&opts.expertsFile, "experts-file", "", "YAML file with the expert catalog")
	f.StringSliceVarP(&opts.providers, "providers", "p", nil, "fallback chain, most preferred first")
	f.StringVar(&opts.docsDir, "docs", "", "directory of markdown documents used as context")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&opts.system, "system", "", "system prompt, overrides --expert")
	return cmd
}

// apply overlays command-line flags on the environment configuration
func (o options) apply(cfg *config.Config) error {
	if len(o.providers) > 0 {
		cfg.Chat.ProviderOrder = o.providers
	}
	if o.expertsFile != "" {
		cfg.Sessions.ExpertsFile = o.expertsFile
	}
	if o.docsDir != "" {
		cfg.Sessions.DocsDir = o.docsDir
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}
	if o.system != "" {
		cfg.Chat.SystemPrompt = o.system
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// newREPL builds the chain, the expert catalog and a single session
func newREPL(cfg *config.Config, expertKey string, logger *zap.Logger) (*repl, error) {
	orchestrator, err := app.NewOrchestrator(cfg, nil, logger)
	if err != nil {
		return nil, err
	}

	experts := prompt.DefaultCatalog()
	if cfg.Sessions.ExpertsFile != "" {
		if experts, err = prompt.LoadCatalog(cfg.Sessions.ExpertsFile); err != nil {
			return nil, err
		}
	}

	expert := experts.Default()
	if expertKey != "" {
		if expert, err = experts.Lookup(expertKey); err != nil {
			return nil, err
		}
	}
	system := expert.System
	if cfg.Chat.SystemPrompt != "" {
		system = cfg.Chat.SystemPrompt
	}

	var sessionOpts []chat.Option
	if cfg.Sessions.DocsDir != "" {
		retriever, err := rag.LoadMarkdownDir(cfg.Sessions.DocsDir, 0)
		if err != nil {
			return nil, err
		}
		sessionOpts = append(sessionOpts, chat.WithRetriever(retriever, app.DefaultRetrieval))
		logger.Info("document retrieval enabled", zap.Int("chunks", retriever.Len()))
	}

	return &repl{
		session:   chat.NewSession(orchestrator, system, logger, sessionOpts...),
		experts:   experts,
		expert:    expert,
		providers: orchestrator.Providers(),
		styles:    defaultStyles(),
	}, nil
}
