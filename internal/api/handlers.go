package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"mode":          s.settings.Mode,
		"circuit_level": s.control.CircuitLevel(),
		"halted":        s.control.Halted(),
		"time":          time.Now().UTC(),
	})
}

// handleDashboard aggregates the operator landing view in one call.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		s.logger.Error("dashboard snapshot query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	signals, err := s.store.RecentSignals(ctx, 10)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "signals unavailable")
		return
	}
	trades, err := s.store.RecentTrades(ctx, 10)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "trades unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"portfolio":     snap,
		"signals":       signals,
		"trades":        trades,
		"circuit_level": s.control.CircuitLevel(),
		"halted":        s.control.Halted(),
		"reviews_today": s.quota.ReviewsToday(),
		"watchlist":     s.settings.WatchlistSymbols(),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.LatestSnapshot(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.store.RecentSignals(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "signals unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "count": len(signals)})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.RecentTrades(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "trades unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"trades": trades, "count": len(trades)})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.RecentAudit(r.Context(), queryLimit(r, 100))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "audit unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleAuditChain reconstructs the provenance of one capital decision.
func (s *Server) handleAuditChain(w http.ResponseWriter, r *http.Request) {
	chainID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid decision chain id")
		return
	}
	entries, err := s.store.AuditByChain(r.Context(), chainID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "audit unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"decision_chain_id": chainID,
		"entries":           entries,
		"count":             len(entries),
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	analysis, err := s.control.Analyze(r.Context(), symbol)
	if err != nil {
		s.logger.Error("on-demand analysis failed",
			zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	result := s.control.RunCycle(r.Context())
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		s.writeError(w, http.StatusBadRequest, "reason required")
		return
	}

	cancelled, closed, err := s.control.EmergencyStop(r.Context(), body.Reason)
	if err != nil {
		s.logger.Error("emergency stop incomplete", zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"halted":           true,
		"orders_cancelled": cancelled,
		"positions_closed": closed,
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ResolvedBy string `json:"resolved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ResolvedBy == "" {
		s.writeError(w, http.StatusBadRequest, "resolved_by required")
		return
	}

	s.control.ResumeTrading(body.ResolvedBy)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"halted":        false,
		"circuit_level": s.control.CircuitLevel(),
	})
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 500 {
		return def
	}
	return n
}
