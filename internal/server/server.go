// Package server exposes the de-identification pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/elyn-health/phi-shield/internal/audit"
	"github.com/elyn-health/phi-shield/internal/cache"
	"github.com/elyn-health/phi-shield/internal/config"
	"github.com/elyn-health/phi-shield/internal/generate"
	"github.com/elyn-health/phi-shield/internal/llm"
	"github.com/elyn-health/phi-shield/internal/logger"
	"github.com/elyn-health/phi-shield/internal/security"
	"github.com/elyn-health/phi-shield/internal/web"
	"github.com/elyn-health/phi-shield/internal/ws"
)

// Version is the service version reported by /info.
const Version = "0.1.0"

// Server is the HTTP front of the pipeline.
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	svc       *generate.Service
	cache     *cache.CompletionCache
	audit     *audit.Store
	hub       *ws.Hub
	limiter   *security.RateLimiter
	router    *mux.Router
	server    *http.Server
	stopClean chan struct{}
	startTime time.Time
}

// New creates a server instance from configuration. A reachable audit
// database is required when auditing is enabled; an unreachable cache only
// disables caching.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	client := llm.NewClient(cfg.Upstream, log.WithComponent("llm").Logger)

	var completionCache *cache.CompletionCache
	if cfg.Cache.Enabled {
		var err error
		completionCache, err = cache.New(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Cache unavailable, continuing without it", zap.Error(err))
			completionCache = nil
		}
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		var err error
		auditStore, err = audit.NewStore(&cfg.Audit, log.WithComponent("audit").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
	}

	var hub *ws.Hub
	if cfg.WebSocket.Enabled {
		hub = ws.NewHub(&ws.HubConfig{
			BroadcastRedactions:  cfg.WebSocket.BroadcastRedactions,
			BroadcastRequests:    cfg.WebSocket.BroadcastRequests,
			BroadcastConnections: cfg.WebSocket.BroadcastConnections,
		}, log.WithComponent("ws").Logger)
	}

	svc := generate.NewService(client, completionCache, auditStore, hub, log)

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		svc:       svc,
		cache:     completionCache,
		audit:     auditStore,
		hub:       hub,
		limiter:   security.NewRateLimiter(cfg.Security),
		router:    mux.NewRouter(),
		stopClean: make(chan struct{}),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/notes/generate", s.handleGenerateNote).Methods("POST")
	api.HandleFunc("/handoffs/generate", s.handleGenerateHandoff).Methods("POST")
	api.HandleFunc("/redact", s.handleRedact).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting phi-shield server",
		zap.Int("port", s.config.Server.Port),
		zap.String("upstream", s.config.Upstream.BaseURL),
		zap.Bool("cache_enabled", s.cache != nil),
		zap.Bool("audit_enabled", s.audit != nil),
	)

	if s.hub != nil {
		go s.hub.Run()
	}
	go s.limiter.StartCleanupRoutine(s.stopClean)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and closes backing stores
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping phi-shield server")
	close(s.stopClean)

	err := s.server.Shutdown(ctx)

	if s.cache != nil {
		if cerr := s.cache.Close(); cerr != nil {
			s.logger.Warn("Failed to close cache", zap.Error(cerr))
		}
	}
	if s.audit != nil {
		if aerr := s.audit.Close(); aerr != nil {
			s.logger.Warn("Failed to close audit store", zap.Error(aerr))
		}
	}

	return err
}

// handleWebSocket handles dashboard event stream connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}
