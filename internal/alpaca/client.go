// Package alpaca is a typed client for the Alpaca trading and market-data
// REST APIs.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

const requestTimeout = 30 * time.Second

// APIError is returned for any non-2xx broker response.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to the Alpaca trading API (account, positions, orders) and
// data API (bars, trades, news). Safe for concurrent use.
type Client struct {
	baseURL    string
	dataURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient builds a broker client. Credentials ride in headers on every
// request; all calls share a 30 second timeout and a circuit breaker that
// opens after repeated failures.
func NewClient(baseURL, dataURL, apiKey, secretKey string, logger *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "alpaca",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("broker circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		dataURL:   strings.TrimRight(dataURL, "/"),
		apiKey:    apiKey,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: breaker,
		logger:  logger.Named("alpaca"),
	}
}

// Account mirrors GET /v2/account. Alpaca serializes money as strings.
type Account struct {
	Status           string          `json:"status"`
	Equity           decimalString   `json:"equity"`
	LastEquity       decimalString   `json:"last_equity"`
	Cash             decimalString   `json:"cash"`
	LongMarketValue  decimalString   `json:"long_market_value"`
	ShortMarketValue decimalString   `json:"short_market_value"`
	BuyingPower      decimalString   `json:"buying_power"`
}

// Position mirrors one element of GET /v2/positions.
type Position struct {
	Symbol         string        `json:"symbol"`
	Qty            decimalString `json:"qty"`
	Side           string        `json:"side"`
	AvgEntryPrice  decimalString `json:"avg_entry_price"`
	CurrentPrice   decimalString `json:"current_price"`
	MarketValue    decimalString `json:"market_value"`
	UnrealizedPL   decimalString `json:"unrealized_pl"`
	UnrealizedPLPC decimalString `json:"unrealized_plpc"`
}

// Order mirrors the order object returned by POST /v2/orders.
type Order struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
}

// BracketOrder is the exact payload shape for a bracket order.
type BracketOrder struct {
	Symbol      string     `json:"symbol"`
	Qty         string     `json:"qty"`
	Side        string     `json:"side"`
	Type        string     `json:"type"`
	LimitPrice  string     `json:"limit_price"`
	TimeInForce string     `json:"time_in_force"`
	OrderClass  string     `json:"order_class"`
	StopLoss    StopLoss   `json:"stop_loss"`
	TakeProfit  TakeProfit `json:"take_profit"`
}

// StopLoss is the stop child of a bracket order.
type StopLoss struct {
	StopPrice string `json:"stop_price"`
}

// TakeProfit is the profit child of a bracket order.
type TakeProfit struct {
	LimitPrice string `json:"limit_price"`
}

// GetAccount fetches the trading account.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/account", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetPositions fetches all open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v2/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

type barPayload struct {
	Timestamp  time.Time `json:"t"`
	Open       float64   `json:"o"`
	High       float64   `json:"h"`
	Low        float64   `json:"l"`
	Close      float64   `json:"c"`
	Volume     int64     `json:"v"`
	VWAP       float64   `json:"vw"`
	TradeCount int64     `json:"n"`
}

// GetBars fetches up to limit bars for a symbol at the given timeframe,
// oldest first, from the IEX feed.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=%s&limit=%d&adjustment=raw&feed=iex",
		c.dataURL, url.PathEscape(symbol), url.QueryEscape(timeframe), limit)

	var payload struct {
		Bars []barPayload `json:"bars"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	bars := make([]types.Bar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		bars = append(bars, types.Bar{
			Symbol:     symbol,
			Timeframe:  timeframe,
			Timestamp:  b.Timestamp,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			VWAP:       b.VWAP,
			TradeCount: b.TradeCount,
		})
	}
	return bars, nil
}

// GetLatestTrade returns the most recent trade price for a symbol.
func (c *Client) GetLatestTrade(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/trades/latest?feed=iex", c.dataURL, url.PathEscape(symbol))

	var payload struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return 0, err
	}
	return payload.Trade.Price, nil
}

// GetNews fetches recent news for the given symbols, newest first.
func (c *Client) GetNews(ctx context.Context, symbols []string, limit int) ([]types.NewsItem, error) {
	endpoint := fmt.Sprintf("%s/v1beta1/news?symbols=%s&limit=%d&sort=desc",
		c.dataURL, url.QueryEscape(strings.Join(symbols, ",")), limit)

	var payload struct {
		News []struct {
			Headline  string    `json:"headline"`
			Summary   string    `json:"summary"`
			Source    string    `json:"source"`
			URL       string    `json:"url"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"news"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]types.NewsItem, 0, len(payload.News))
	for _, n := range payload.News {
		items = append(items, types.NewsItem{
			Headline:  n.Headline,
			Summary:   n.Summary,
			Source:    n.Source,
			URL:       n.URL,
			CreatedAt: n.CreatedAt,
		})
	}
	return items, nil
}

// PlaceBracketOrder submits a bracket order and returns the parent order.
func (c *Client) PlaceBracketOrder(ctx context.Context, order BracketOrder) (*Order, error) {
	var placed Order
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", order, &placed); err != nil {
		return nil, err
	}
	return &placed, nil
}

// CancelAllOrders cancels every open order and returns how many were hit.
func (c *Client) CancelAllOrders(ctx context.Context) (int, error) {
	var cancelled []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodDelete, c.baseURL+"/v2/orders", nil, &cancelled); err != nil {
		return 0, err
	}
	return len(cancelled), nil
}

// CloseAllPositions liquidates every position, cancelling linked orders.
func (c *Client) CloseAllPositions(ctx context.Context) (int, error) {
	var closed []struct {
		Symbol string `json:"symbol"`
	}
	if err := c.do(ctx, http.MethodDelete, c.baseURL+"/v2/positions?cancel_orders=true", nil, &closed); err != nil {
		return 0, err
	}
	return len(closed), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("alpaca: encode request: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("alpaca: build request: %w", err)
		}
		req.Header.Set("APCA-API-KEY-ID", c.apiKey)
		req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("alpaca: %s %s: %w", method, endpoint, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("alpaca: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Endpoint:   method + " " + endpoint,
				Body:       truncate(string(data), 300),
			}
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("alpaca: decode response: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// decimalString parses Alpaca's stringified numbers. Empty and null both
// decode to zero.
type decimalString float64

func (d *decimalString) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("alpaca: parse number %q: %w", s, err)
	}
	*d = decimalString(f)
	return nil
}

// Float returns the plain float64 value.
func (d decimalString) Float() float64 { return float64(d) }
