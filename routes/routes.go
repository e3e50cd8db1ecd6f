package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/app"
	"github.com/upb/chat-gateway/handlers"
	"github.com/upb/chat-gateway/utils"
)

// RequestTimeout bounds every route except the streaming message endpoint
const RequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Sessions.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	var sqlDB *sql.DB
	if deps.DB != nil {
		sqlDB = deps.DB.DB
	}
	health := handlers.NewHealthHandler(sqlDB, deps.Orchestrator, deps.Sessions,
		deps.Config.Environment, deps.AuthMiddleware.Enabled(), deps.Logger)

	chatHandler := handlers.NewChatHandler(deps.Sessions, deps.Experts, deps.Logger)
	expertHandler := handlers.NewExpertHandler(deps.Experts)

	var transcriptHandler *handlers.TranscriptHandler
	if deps.TranscriptService != nil {
		transcriptHandler = handlers.NewTranscriptHandler(deps.TranscriptService, deps.Logger)
	} else {
		transcriptHandler = handlers.NewTranscriptHandler(nil, deps.Logger)
	}

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.MetricsRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// Development token endpoint
	if deps.AuthHandler != nil {
		r.Route("/auth/token", func(r chi.Router) {
			r.Use(middleware.Timeout(RequestTimeout))
			r.Post("/", deps.AuthHandler.HandleIssue)
			r.Delete("/", deps.AuthHandler.HandleLogout)
		})
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(RequestTimeout))
			r.Get("/status", health.HandleStatus)
			r.Get("/experts", expertHandler.HandleList)
		})

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			// A streamed turn lasts as long as the provider keeps sending
			r.Post("/{id}/messages", chatHandler.HandleSendMessage)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(RequestTimeout))
				r.Post("/", chatHandler.HandleCreateSession)
				r.Get("/{id}", chatHandler.HandleGetSession)
				r.Delete("/{id}", chatHandler.HandleDeleteSession)
				r.Get("/{id}/history", chatHandler.HandleGetHistory)
				r.Delete("/{id}/history", chatHandler.HandleResetHistory)
				r.Put("/{id}/expert", chatHandler.HandleSetExpert)
				r.Get("/{id}/transcript", transcriptHandler.HandleGetTranscript)
				r.Delete("/{id}/transcript", transcriptHandler.HandleDeleteTranscript)
			})
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request ID
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
