package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/metrics"
	"github.com/alanyoungcy/easybet/internal/server/handler"
	"github.com/alanyoungcy/easybet/internal/server/middleware"
	"github.com/alanyoungcy/easybet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AdminAPIKey additionally guards /api/admin routes when set.
	AdminAPIKey string
	Auth        middleware.AuthConfig

	RateLimit       int
	RateLimitWindow time.Duration
	IdempotencyTTL  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Token    *handler.TokenHandler
	Projects *handler.ProjectHandler
	Tickets  *handler.TicketHandler
	Orders   *handler.OrderHandler
	Accounts *handler.AccountHandler
	Admin    *handler.AdminHandler
}

// Deps are the optional collaborators of the middleware chain. A nil
// Limiter disables rate limiting; a nil Idempotency store disables replay.
type Deps struct {
	Hub         *ws.Hub
	Metrics     *metrics.Metrics
	Limiter     domain.RateLimiter
	Idempotency domain.IdempotencyStore
}

// Server is the EasyBet HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain applied.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	logger = logger.With(slog.String("component", "server"))

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	// Token.
	mux.HandleFunc("GET /api/token", handlers.Token.Info)
	mux.HandleFunc("GET /api/token/balance/{address}", handlers.Token.Balance)
	mux.HandleFunc("GET /api/token/allowance", handlers.Token.Allowance)
	mux.HandleFunc("POST /api/token/claim", handlers.Token.Claim)
	mux.HandleFunc("POST /api/token/approve", handlers.Token.Approve)
	mux.HandleFunc("POST /api/token/increase-allowance", handlers.Token.IncreaseAllowance)
	mux.HandleFunc("POST /api/token/decrease-allowance", handlers.Token.DecreaseAllowance)
	mux.HandleFunc("POST /api/token/transfer", handlers.Token.Transfer)
	mux.HandleFunc("POST /api/token/transfer-from", handlers.Token.TransferFrom)
	mux.HandleFunc("POST /api/token/mint", handlers.Token.Mint)

	// Projects.
	mux.HandleFunc("GET /api/projects", handlers.Projects.List)
	mux.HandleFunc("POST /api/projects", handlers.Projects.Create)
	mux.HandleFunc("GET /api/projects/active", handlers.Projects.Active)
	mux.HandleFunc("GET /api/projects/{id}", handlers.Projects.Get)
	mux.HandleFunc("GET /api/projects/{id}/stats", handlers.Projects.Stats)
	mux.HandleFunc("GET /api/projects/{id}/orders", handlers.Projects.Orders)
	mux.HandleFunc("GET /api/projects/{id}/tickets", handlers.Projects.Tickets)
	mux.HandleFunc("POST /api/projects/{id}/tickets", handlers.Projects.Purchase)
	mux.HandleFunc("POST /api/projects/{id}/fund", handlers.Projects.Fund)
	mux.HandleFunc("POST /api/projects/{id}/close", handlers.Projects.Close)
	mux.HandleFunc("POST /api/projects/{id}/settle", handlers.Projects.Settle)
	mux.HandleFunc("GET /api/projects/{id}/settlement", handlers.Projects.PreviewSettlement)
	mux.HandleFunc("GET /api/projects/{id}/history", handlers.Projects.History)

	// Tickets and orders.
	mux.HandleFunc("GET /api/tickets/{id}", handlers.Tickets.Get)
	mux.HandleFunc("POST /api/tickets/{id}/list", handlers.Tickets.List)
	mux.HandleFunc("POST /api/tickets/{id}/transfer", handlers.Tickets.Transfer)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.Get)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.Cancel)
	mux.HandleFunc("POST /api/orders/{id}/fill", handlers.Orders.Fill)

	// Accounts.
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Accounts.Get)
	mux.HandleFunc("GET /api/accounts/{address}/tickets", handlers.Accounts.Tickets)
	mux.HandleFunc("GET /api/accounts/{address}/orders", handlers.Accounts.Orders)
	mux.HandleFunc("GET /api/accounts/{address}/history", handlers.Accounts.History)

	// Admin.
	admin := middleware.APIKey(cfg.AdminAPIKey)
	mux.Handle("GET /api/admin/snapshot", admin(http.HandlerFunc(handlers.Admin.Snapshot)))
	mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(handlers.Admin.Audit)))
	mux.Handle("GET /api/admin/audit-log", admin(http.HandlerFunc(handlers.Admin.AuditLog)))
	mux.Handle("POST /api/admin/transfer", admin(http.HandlerFunc(handlers.Admin.TransferAdmin)))

	// Build the middleware chain, innermost first.
	h := middleware.Route(mux)
	if deps.Idempotency != nil {
		skew := cfg.Auth.MaxSkew
		if skew <= 0 {
			skew = middleware.DefaultMaxSkew
		}
		// Signature-keyed entries must outlive every timestamp still accepted.
		ttl := max(cfg.IdempotencyTTL, 2*skew)
		h = middleware.Idempotency(deps.Idempotency, ttl, logger)(h)
	}
	h = middleware.Actor(cfg.Auth)(h)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	}
	h = middleware.Logging(logger, deps.Metrics)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the fully wrapped HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
