// Package analyst wraps the Claude messages API as a second-opinion gate
// over ML signals, with a daily review quota and conservative fallbacks.
package analyst

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/audit"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	reviewMaxTokens  = 600
	analyzeMaxTokens = 1200
)

// Client calls the messages API. Quota state is owned by the trading loop
// goroutine; the fields are not safe for concurrent use.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	maxPerDay     int
	httpClient    *http.Client
	journal       *audit.Journal
	logger        *zap.Logger
	reviewsToday  int
	reviewDateUTC string
}

// NewClient creates an analyst client.
func NewClient(apiKey, model string, maxReviewsPerDay int, journal *audit.Journal, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		maxPerDay:  maxReviewsPerDay,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		journal:    journal,
		logger:     logger.Named("analyst"),
	}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// ReviewsToday reports reviews consumed against the current UTC day.
func (c *Client) ReviewsToday() int { return c.reviewsToday }

// messages API payloads.
type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ReviewSignal asks the analyst to pass judgment on a pending signal. It
// never returns an error: quota exhaustion, transport failures, and parse
// failures all degrade to a conservative verdict.
func (c *Client) ReviewSignal(ctx context.Context, sig *types.Signal, symCtx *types.SymbolContext) types.Verdict {
	today := time.Now().UTC().Format("2006-01-02")
	if today != c.reviewDateUTC {
		c.reviewsToday = 0
		c.reviewDateUTC = today
	}

	if c.reviewsToday >= c.maxPerDay {
		c.logger.Warn("review limit reached", zap.Int("max_per_day", c.maxPerDay))
		return types.Verdict{
			AdjustedConfidence:   sig.Confidence * 0.9,
			ConfidenceAdjustment: -10,
			PositionSizing:       types.SizingConservative,
			Reasoning:            "Review limit reached. Auto-conservative sizing applied.",
			RiskFlags:            []string{"review_limit_reached"},
			Approve:              sig.Confidence > 0.70,
		}
	}

	prompt := buildReviewPrompt(sig, symCtx)
	resp, err := c.send(ctx, apiRequest{
		Model:     c.model,
		MaxTokens: reviewMaxTokens,
		System:    reviewSystemPrompt,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		c.logger.Error("review failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		return types.Verdict{
			AdjustedConfidence:   sig.Confidence * 0.85,
			ConfidenceAdjustment: -15,
			PositionSizing:       types.SizingConservative,
			Reasoning:            fmt.Sprintf("Review failed (%v). Auto-conservative fallback.", err),
			RiskFlags:            []string{"api_error"},
			Approve:              sig.Confidence > 0.72,
		}
	}

	c.reviewsToday++
	reviewsUsed.Inc()
	verdict := parseReview(resp.text(), sig)
	verdict.InputTokens = resp.Usage.InputTokens
	verdict.OutputTokens = resp.Usage.OutputTokens

	c.journal.Record(ctx, types.AuditEntry{
		EventType: "claude_review",
		Component: "claude_analyst",
		Symbol:    sig.Symbol,
		Details: map[string]any{
			"signal_symbol":       sig.Symbol,
			"signal_action":       string(sig.Action),
			"ml_confidence":       sig.Confidence,
			"claude_approved":     verdict.Approve,
			"adjusted_confidence": verdict.AdjustedConfidence,
			"position_sizing":     string(verdict.PositionSizing),
			"reasoning":           verdict.Reasoning,
			"risk_flags":          verdict.RiskFlags,
			"tokens": map[string]any{
				"input":  verdict.InputTokens,
				"output": verdict.OutputTokens,
			},
			"reviews_today": c.reviewsToday,
		},
		DecisionChainID: &sig.DecisionChainID,
	})

	return verdict
}

// AnalyzeSymbol performs a deep on-demand analysis. Failures degrade to an
// ATR-derived neutral report rather than an error.
func (c *Client) AnalyzeSymbol(ctx context.Context, symbol string, indicators map[string]float64, symCtx *types.SymbolContext) types.SymbolAnalysis {
	prompt := buildAnalysisPrompt(symbol, indicators, symCtx)
	resp, err := c.send(ctx, apiRequest{
		Model:     c.model,
		MaxTokens: analyzeMaxTokens,
		System:    analysisSystemPrompt,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		c.logger.Error("analysis failed", zap.String("symbol", symbol), zap.Error(err))
		return fallbackAnalysis(symbol, symCtx.Price, indicators["atr_14"],
			fmt.Sprintf("Analysis unavailable (%v). Review indicators manually.", err),
			"analysis_api_error",
			fmt.Sprintf("Analysis failed for %s. Manual review required.", symbol))
	}

	analysis := parseAnalysis(resp.text(), symbol, symCtx.Price, indicators["atr_14"])
	analysis.InputTokens = resp.Usage.InputTokens
	analysis.OutputTokens = resp.Usage.OutputTokens
	analysis.AnalyzedAt = time.Now().UTC()

	c.journal.Record(ctx, types.AuditEntry{
		EventType: "claude_analysis",
		Component: "claude_analyst",
		Symbol:    symbol,
		Details: map[string]any{
			"symbol":     symbol,
			"direction":  analysis.Direction,
			"conviction": analysis.Conviction,
			"timeframe":  analysis.Timeframe,
			"summary":    analysis.Summary,
			"tokens": map[string]any{
				"input":  analysis.InputTokens,
				"output": analysis.OutputTokens,
			},
		},
	})

	return analysis
}

func (c *Client) send(ctx context.Context, payload apiRequest) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("analyst: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("analyst: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyst: request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("analyst: read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("analyst: api status %d: %s", httpResp.StatusCode, truncate(string(raw), 200))
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("analyst: decode response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("analyst: empty response content")
	}
	return &resp, nil
}

func (r *apiResponse) text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
