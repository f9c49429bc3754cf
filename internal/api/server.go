// Package api provides the operator HTTP and WebSocket surface: dashboard
// reads, the audit feed, manual risk controls, and live event streaming.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/config"
	"github.com/halcyon-desk/trading-engine/internal/events"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// ReadStore is the query surface the handlers read from.
type ReadStore interface {
	LatestSnapshot(ctx context.Context) (*types.PortfolioSnapshot, error)
	RecentSignals(ctx context.Context, limit int) ([]types.Signal, error)
	RecentTrades(ctx context.Context, limit int) ([]types.Trade, error)
	RecentAudit(ctx context.Context, limit int) ([]types.AuditEntry, error)
	AuditByChain(ctx context.Context, chainID uuid.UUID) ([]types.AuditEntry, error)
}

// Control is the orchestrator handle for manual operator actions.
type Control interface {
	Halted() bool
	CircuitLevel() types.CircuitLevel
	EmergencyStop(ctx context.Context, reason string) (cancelled, closed int, err error)
	ResumeTrading(resolvedBy string)
	RunCycle(ctx context.Context) *types.CycleResult
	Analyze(ctx context.Context, symbol string) (types.SymbolAnalysis, error)
}

// ReviewQuota reports analyst quota consumption for the dashboard.
type ReviewQuota interface {
	ReviewsToday() int
}

// Server is the operator API server.
type Server struct {
	settings *config.Settings
	store    ReadStore
	control  Control
	quota    ReviewQuota
	hub      *Hub
	router   *mux.Router
	limiter  *rateLimiter
	logger   *zap.Logger
	http     *http.Server
}

// NewServer builds the server and subscribes its websocket hub to the bus.
func NewServer(settings *config.Settings, store ReadStore, control Control, quota ReviewQuota, bus *events.Bus, logger *zap.Logger) *Server {
	s := &Server{
		settings: settings,
		store:    store,
		control:  control,
		quota:    quota,
		hub:      NewHub(logger),
		router:   mux.NewRouter(),
		limiter:  newRateLimiter(100, time.Minute),
		logger:   logger.Named("api"),
	}
	bus.SubscribeAll(s.hub.Broadcast)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/dashboard", s.handleDashboard).Methods("GET")
	s.router.HandleFunc("/api/portfolio", s.handlePortfolio).Methods("GET")
	s.router.HandleFunc("/api/signals", s.handleSignals).Methods("GET")
	s.router.HandleFunc("/api/trades", s.handleTrades).Methods("GET")
	s.router.HandleFunc("/api/audit", s.handleAudit).Methods("GET")
	s.router.HandleFunc("/api/audit/chain/{id}", s.handleAuditChain).Methods("GET")
	s.router.HandleFunc("/api/analysis/{symbol}", s.handleAnalysis).Methods("GET")

	s.router.HandleFunc("/api/cycle", s.handleRunCycle).Methods("POST")
	s.router.HandleFunc("/api/emergency-stop", s.handleEmergencyStop).Methods("POST")
	s.router.HandleFunc("/api/resume", s.handleResume).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Use(s.rateLimit, s.authenticate)
}

// Handler returns the full middleware-wrapped handler, for tests and for
// mounting under a custom server.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.settings.AllowedOriginList(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.settings.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info("api server listening", zap.String("addr", s.settings.ListenAddr))
	return s.http.ListenAndServe()
}

// Shutdown drains connections and closes the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
