// Package market is the HTTP client for the metrics service that turns
// filings and price history into fraud-risk and stock-health scores.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/tickerdesk/internal/version"
)

// DefaultTimeout bounds one metrics request. Score computation downloads
// filings upstream, so it is generous.
const DefaultTimeout = 60 * time.Second

// ErrTickerNotFound is returned when the service answers 404 for a ticker.
var ErrTickerNotFound = errors.New("ticker not found")

// FraudScores is the response of GET /stocks/{ticker}.
type FraudScores struct {
	Ticker         string          `json:"ticker"`
	CompanyName    string          `json:"company_name"`
	MScore         *float64        `json:"m_score"`
	ZScore         *float64        `json:"z_score"`
	AccrualsRatio  *float64        `json:"accruals_ratio"`
	ShortInterest  json.RawMessage `json:"short_interest,omitempty"`
	InsiderTrading json.RawMessage `json:"insider_trading,omitempty"`
	Composite      *float64        `json:"composite_fraud_risk_score"`
}

// StockHealth is the response of GET /health-score/{ticker}.
type StockHealth struct {
	Ticker      string   `json:"ticker"`
	Sharpe      *float64 `json:"sharpe"`
	Sortino     *float64 `json:"sortino"`
	Alpha       *float64 `json:"alpha"`
	Beta        *float64 `json:"beta"`
	VaR95       *float64 `json:"var_95"`
	CVaR95      *float64 `json:"cvar_95"`
	MaxDrawdown *float64 `json:"max_drawdown"`
	Volatility  *float64 `json:"volatility"`
	Composite   *float64 `json:"composite_stock_health_score"`
}

// Client talks to the metrics service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a metrics client. A nil httpClient gets DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// FraudScores fetches fraud-risk metrics for ticker.
func (c *Client) FraudScores(ctx context.Context, ticker string) (*FraudScores, error) {
	var out FraudScores
	if err := c.get(ctx, "/stocks/"+url.PathEscape(normalizeTicker(ticker)), &out); err != nil {
		return nil, fmt.Errorf("fraud scores for %s: %w", ticker, err)
	}
	return &out, nil
}

// StockHealth fetches stock-health metrics for ticker.
func (c *Client) StockHealth(ctx context.Context, ticker string) (*StockHealth, error) {
	var out StockHealth
	if err := c.get(ctx, "/health-score/"+url.PathEscape(normalizeTicker(ticker)), &out); err != nil {
		return nil, fmt.Errorf("stock health for %s: %w", ticker, err)
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("metrics service URL is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrTickerNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, detail(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// detail extracts the service's {"detail": ...} message, falling back to
// the raw body.
func detail(body []byte) string {
	if d := gjson.GetBytes(body, "detail"); d.Exists() {
		return d.String()
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
