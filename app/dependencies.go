package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/auth"
	"github.com/upb/chat-gateway/config"
	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/internal/rag"
	"github.com/upb/chat-gateway/middleware"
	"github.com/upb/chat-gateway/repositories"
	"github.com/upb/chat-gateway/repositories/postgres"
	"github.com/upb/chat-gateway/services"
	"github.com/upb/chat-gateway/services/chat"
	"github.com/upb/chat-gateway/services/prompt"
	"github.com/upb/chat-gateway/services/routing"
)

// DefaultRetrieval is used for every session when a docs directory is set
var DefaultRetrieval = rag.RetrievalOptions{TopK: 3}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Optional transcript store; all nil without DATABASE_URL
	RepoFactory       *postgres.RepositoryFactory
	DB                *postgres.DB
	Transcripts       repositories.TranscriptRepository
	TxManager         repositories.TransactionManager
	TranscriptService *services.TranscriptService

	// Metrics; MetricsRegistry is nil when metrics are disabled
	Metrics         observability.Metrics
	MetricsRegistry *prometheus.Registry

	// Chat
	Orchestrator *routing.Orchestrator
	Sessions     *chat.Manager
	Experts      *prompt.Catalog
	Retriever    rag.Retriever

	// Auth; Validator and AuthHandler are nil when auth is disabled
	Validator      *auth.HMACValidator
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *auth.Handler
}

// Option customizes NewDependencies
type Option func(*Dependencies)

// WithRepositoryFactory uses an already opened transcript store instead of
// opening one from cfg.Database
func WithRepositoryFactory(f *postgres.RepositoryFactory) Option {
	return func(d *Dependencies) {
		d.RepoFactory = f
	}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NopMetrics{},
	}
	for _, opt := range opts {
		opt(deps)
	}

	deps.initMetrics(cfg)

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initChat(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize chat: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.Bool("transcripts", deps.TranscriptService != nil),
		zap.Bool("metrics", deps.MetricsRegistry != nil),
		zap.Bool("auth", deps.AuthMiddleware.Enabled()),
		zap.Bool("retrieval", deps.Retriever != nil))
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		return
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.MetricsRegistry = reg
	d.Metrics = observability.NewPrometheusMetrics(reg)
}

// initDatabase opens the transcript store when one is configured
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if d.RepoFactory == nil {
		if cfg.Database == nil {
			d.Logger.Info("DATABASE_URL not set, transcripts are not stored")
			return nil
		}
		factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
	}

	if err := d.RepoFactory.InitSchema(ctx); err != nil {
		d.closeDatabase()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	repos := d.RepoFactory.NewRepositories()
	d.DB = d.RepoFactory.GetDB()
	d.Transcripts = repos.Transcripts
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.TranscriptService = services.NewTranscriptService(d.Transcripts, d.TxManager, d.Logger)

	d.Logger.Info("transcript store ready")
	return nil
}

func (d *Dependencies) initChat(cfg *config.Config) error {
	orchestrator, err := NewOrchestrator(cfg, d.Metrics, d.Logger)
	if err != nil {
		return err
	}
	d.Orchestrator = orchestrator

	d.Experts = prompt.DefaultCatalog()
	if cfg.Sessions.ExpertsFile != "" {
		catalog, err := prompt.LoadCatalog(cfg.Sessions.ExpertsFile)
		if err != nil {
			return err
		}
		d.Experts = catalog
	}

	sessionOpts := []chat.Option{chat.WithMetrics(d.Metrics)}
	if d.Transcripts != nil {
		sessionOpts = append(sessionOpts, chat.WithTranscripts(d.Transcripts))
	}
	if cfg.Sessions.DocsDir != "" {
		retriever, err := rag.LoadMarkdownDir(cfg.Sessions.DocsDir, 0)
		if err != nil {
			return err
		}
		d.Retriever = retriever
		sessionOpts = append(sessionOpts, chat.WithRetriever(retriever, DefaultRetrieval))
		d.Logger.Info("document retrieval enabled",
			zap.String("dir", cfg.Sessions.DocsDir),
			zap.Int("chunks", retriever.Len()))
	}

	systemPrompt := cfg.Chat.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = d.Experts.Default().System
	}
	d.Sessions = chat.NewManager(orchestrator, systemPrompt, cfg.Sessions.IdleTTL, d.Logger, sessionOpts...)
	return nil
}

// initAuth enables bearer-token checks when a secret is configured. The
// token endpoint is only served outside production.
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not set, chat endpoints are unauthenticated")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return nil
	}

	validator, err := auth.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	d.Validator = validator
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)

	if cfg.IsDevelopment() {
		d.AuthHandler = auth.NewHandler(validator, cfg.Auth.TokenTTL, cfg.Server.TLS.Enabled, d.Logger)
		d.Logger.Info("development token endpoint enabled")
	}
	return nil
}

// StartBackground runs the session sweeper until ctx is done
func (d *Dependencies) StartBackground(ctx context.Context) {
	go d.Sessions.RunSweeper(ctx, d.Config.Sessions.SweepInterval)
}

func (d *Dependencies) closeDatabase() {
	if d.RepoFactory == nil {
		return
	}
	if err := d.RepoFactory.Close(); err != nil {
		d.Logger.Warn("failed to close database", zap.Error(err))
	}
	d.RepoFactory = nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
