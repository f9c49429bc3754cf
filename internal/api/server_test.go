package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/config"
	"github.com/halcyon-desk/trading-engine/internal/events"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

type fakeReadStore struct {
	snap    *types.PortfolioSnapshot
	signals []types.Signal
	trades  []types.Trade
	audit   []types.AuditEntry
	byChain map[uuid.UUID][]types.AuditEntry
}

func (f *fakeReadStore) LatestSnapshot(context.Context) (*types.PortfolioSnapshot, error) {
	return f.snap, nil
}
func (f *fakeReadStore) RecentSignals(_ context.Context, limit int) ([]types.Signal, error) {
	if len(f.signals) > limit {
		return f.signals[:limit], nil
	}
	return f.signals, nil
}
func (f *fakeReadStore) RecentTrades(context.Context, int) ([]types.Trade, error) {
	return f.trades, nil
}
func (f *fakeReadStore) RecentAudit(context.Context, int) ([]types.AuditEntry, error) {
	return f.audit, nil
}
func (f *fakeReadStore) AuditByChain(_ context.Context, chainID uuid.UUID) ([]types.AuditEntry, error) {
	return f.byChain[chainID], nil
}

type fakeControl struct {
	halted    bool
	level     types.CircuitLevel
	stopCalls []string
	resumed   string
	cycleRuns int
	analysis  types.SymbolAnalysis
}

func (f *fakeControl) Halted() bool { return f.halted }

func (f *fakeControl) CircuitLevel() types.CircuitLevel { return f.level }
func (f *fakeControl) EmergencyStop(_ context.Context, reason string) (int, int, error) {
	f.stopCalls = append(f.stopCalls, reason)
	f.halted = true
	f.level = types.CircuitRed
	return 3, 2, nil
}
func (f *fakeControl) ResumeTrading(resolvedBy string) {
	f.resumed = resolvedBy
	f.halted = false
	f.level = types.CircuitNone
}
func (f *fakeControl) RunCycle(context.Context) *types.CycleResult {
	f.cycleRuns++
	return &types.CycleResult{CycleID: "abc12345", SymbolsProcessed: 2, Errors: []string{}}
}
func (f *fakeControl) Analyze(_ context.Context, symbol string) (types.SymbolAnalysis, error) {
	f.analysis.Symbol = symbol
	return f.analysis, nil
}

type fakeQuota struct{ used int }

func (f *fakeQuota) ReviewsToday() int { return f.used }

func apiSettings(secret string) *config.Settings {
	return &config.Settings{
		Mode:             "paper",
		Watchlist:        "AAPL,MSFT",
		AllowedOrigins:   "http://localhost:3000",
		JWTSecret:        secret,
		JWTExpiryMinutes: 30,
		ListenAddr:       ":0",
	}
}

func newTestServer(t *testing.T, secret string) (*Server, *fakeReadStore, *fakeControl, *events.Bus) {
	t.Helper()
	store := &fakeReadStore{
		snap: &types.PortfolioSnapshot{TotalEquity: 105000, Cash: 55000},
		signals: []types.Signal{
			{ID: 1, Symbol: "AAPL", Action: types.ActionBuy, Confidence: 0.72},
			{ID: 2, Symbol: "MSFT", Action: types.ActionSell, Confidence: 0.68},
		},
		trades:  []types.Trade{{ID: 1, Symbol: "AAPL", Side: "buy"}},
		audit:   []types.AuditEntry{{ID: 1, EventType: "cycle_completed"}},
		byChain: make(map[uuid.UUID][]types.AuditEntry),
	}
	control := &fakeControl{level: types.CircuitNone}
	bus := events.NewBus(zap.NewNop())
	srv := NewServer(apiSettings(secret), store, control, &fakeQuota{used: 7}, bus, zap.NewNop())
	return srv, store, control, bus
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func post(t *testing.T, h http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthIsOpen(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "topsecret")

	w := get(t, srv.Handler(), "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["circuit_level"] != "NONE" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "topsecret")
	h := srv.Handler()

	if w := get(t, h, "/api/portfolio", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := get(t, h, "/api/portfolio", "not-a-jwt"); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", w.Code)
	}

	token, err := srv.IssueToken("operator")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if w := get(t, h, "/api/portfolio", token); w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")
	if w := get(t, srv.Handler(), "/api/portfolio", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
}

func TestDashboardAggregates(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")

	w := get(t, srv.Handler(), "/api/dashboard", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Portfolio    types.PortfolioSnapshot `json:"portfolio"`
		Signals      []types.Signal          `json:"signals"`
		Trades       []types.Trade           `json:"trades"`
		CircuitLevel string                  `json:"circuit_level"`
		Halted       bool                    `json:"halted"`
		ReviewsToday int                     `json:"reviews_today"`
		Watchlist    []string                `json:"watchlist"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Portfolio.TotalEquity != 105000 || len(body.Signals) != 2 || len(body.Trades) != 1 {
		t.Errorf("body = %+v", body)
	}
	if body.ReviewsToday != 7 || body.CircuitLevel != "NONE" || body.Halted {
		t.Errorf("status fields = %+v", body)
	}
	if len(body.Watchlist) != 2 {
		t.Errorf("watchlist = %v", body.Watchlist)
	}
}

func TestSignalsRespectsLimit(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")

	w := get(t, srv.Handler(), "/api/signals?limit=1", "")
	var body struct {
		Signals []types.Signal `json:"signals"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || len(body.Signals) != 1 {
		t.Errorf("count = %d", body.Count)
	}
}

func TestAuditChainLookup(t *testing.T) {
	srv, store, _, _ := newTestServer(t, "")
	chainID := uuid.New()
	store.byChain[chainID] = []types.AuditEntry{
		{EventType: "signal_generated", DecisionChainID: &chainID},
		{EventType: "claude_review", DecisionChainID: &chainID},
		{EventType: "trade_placed", DecisionChainID: &chainID},
	}

	w := get(t, srv.Handler(), "/api/audit/chain/"+chainID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Entries []types.AuditEntry `json:"entries"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 3 {
		t.Errorf("count = %d, want 3", body.Count)
	}

	if w := get(t, srv.Handler(), "/api/audit/chain/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d, want 400", w.Code)
	}
}

func TestEmergencyStopEndpoint(t *testing.T) {
	srv, _, control, _ := newTestServer(t, "")
	h := srv.Handler()

	if w := post(t, h, "/api/emergency-stop", "", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing reason: status = %d, want 400", w.Code)
	}

	w := post(t, h, "/api/emergency-stop", "", map[string]string{"reason": "manual halt"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["orders_cancelled"].(float64) != 3 || body["positions_closed"].(float64) != 2 {
		t.Errorf("body = %v", body)
	}
	if len(control.stopCalls) != 1 || control.stopCalls[0] != "manual halt" {
		t.Errorf("stop calls = %v", control.stopCalls)
	}

	w = post(t, h, "/api/resume", "", map[string]string{"resolved_by": "operator"})
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d", w.Code)
	}
	if control.resumed != "operator" || control.halted {
		t.Errorf("control = %+v", control)
	}
}

func TestManualCycleTrigger(t *testing.T) {
	srv, _, control, _ := newTestServer(t, "")

	w := post(t, srv.Handler(), "/api/cycle", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if control.cycleRuns != 1 {
		t.Errorf("cycle runs = %d", control.cycleRuns)
	}
	var result types.CycleResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.CycleID != "abc12345" {
		t.Errorf("result = %+v", result)
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	srv, _, control, _ := newTestServer(t, "")
	control.analysis = types.SymbolAnalysis{Direction: "bullish", Conviction: 7}

	w := get(t, srv.Handler(), "/api/analysis/aapl", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var analysis types.SymbolAnalysis
	if err := json.Unmarshal(w.Body.Bytes(), &analysis); err != nil {
		t.Fatal(err)
	}
	// Path symbols are uppercased before analysis.
	if analysis.Symbol != "AAPL" || analysis.Direction != "bullish" {
		t.Errorf("analysis = %+v", analysis)
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")
	h := srv.Handler()

	var limited bool
	for i := 0; i < 120; i++ {
		req := httptest.NewRequest("GET", "/api/portfolio", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limit never triggered")
	}

	// Health stays reachable regardless.
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func TestRateLimitWindowResets(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests must pass")
	}
	if rl.allow("a") {
		t.Error("third request in window must be rejected")
	}
	if !rl.allow("b") {
		t.Error("other clients have their own budget")
	}

	base = base.Add(61 * time.Second)
	if !rl.allow("a") {
		t.Error("new window must reset the count")
	}
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	srv, _, _, bus := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Shutdown(context.Background())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// The subscription is registered during the upgrade handler; give the
	// hub a moment to add the client.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	bus.Publish(events.TypeNewSignal, map[string]any{"symbol": "AAPL"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var event struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatal(err)
	}
	if event.Type != "new_signal" || event.Payload["symbol"] != "AAPL" {
		t.Errorf("event = %+v", event)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "topsecret")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("unauthenticated upgrade must fail")
	}

	token, err := srv.IssueToken("operator")
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", wsURL, token), nil)
	if err != nil {
		t.Fatalf("authenticated dial failed: %v", err)
	}
	conn.Close()
}
