package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/tickerdesk/internal/market"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// MetricsSource is the slice of the metrics service the score tools use.
type MetricsSource interface {
	FraudScores(ctx context.Context, ticker string) (*market.FraudScores, error)
	StockHealth(ctx context.Context, ticker string) (*market.StockHealth, error)
}

// ScoreRecorder persists score snapshots. UpsertScore reports whether the
// row was written (false when a fresh row already existed).
type ScoreRecorder interface {
	UpsertScore(ctx context.Context, score models.TickerScore) (bool, error)
}

// FraudScoreTool reports Beneish M-Score, Altman Z-Score, accruals ratio
// and the composite fraud-risk score for a ticker.
type FraudScoreTool struct {
	source   MetricsSource
	recorder ScoreRecorder
	now      func() time.Time
}

// NewFraudScoreTool creates the fraud-score tool. recorder may be nil.
func NewFraudScoreTool(source MetricsSource, recorder ScoreRecorder) *FraudScoreTool {
	return &FraudScoreTool{source: source, recorder: recorder, now: time.Now}
}

// Name implements Tool.
func (f *FraudScoreTool) Name() string { return "compute_fraud_scores" }

// Description implements Tool.
func (f *FraudScoreTool) Description() string {
	return "Computes Beneish M-Score, Altman Z-Score, accruals ratio and a composite fraud-risk score (0-100, higher is riskier) for a company to assess manipulation and financial-distress risk."
}

// Call implements Tool.
func (f *FraudScoreTool) Call(ctx context.Context, query string) (string, error) {
	s, err := f.source.FraudScores(ctx, query)
	if err != nil {
		return "", err
	}

	ticker := firstNonEmpty(s.Ticker, strings.ToUpper(query))
	if f.recorder != nil && s.Composite != nil {
		payload, _ := json.Marshal(s)
		record(ctx, f.recorder, models.TickerScore{
			Ticker:      ticker,
			Kind:        models.ScoreKindFraud,
			CompanyName: s.CompanyName,
			Composite:   *s.Composite,
			Payload:     payload,
			LastUpdated: f.now().UTC(),
		})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fraud risk metrics for %s", ticker)
	if s.CompanyName != "" {
		fmt.Fprintf(&sb, " (%s)", s.CompanyName)
	}
	sb.WriteString(":\n")
	fmt.Fprintf(&sb, "- Beneish M-Score: %s\n", formatFloat(s.MScore))
	fmt.Fprintf(&sb, "- Altman Z-Score: %s\n", formatFloat(s.ZScore))
	fmt.Fprintf(&sb, "- Accruals ratio: %s\n", formatFloat(s.AccrualsRatio))
	fmt.Fprintf(&sb, "- Composite fraud risk score: %s", formatFloat(s.Composite))
	return sb.String(), nil
}

// StockHealthTool reports risk-adjusted return metrics and the composite
// stock-health score for a ticker.
type StockHealthTool struct {
	source   MetricsSource
	recorder ScoreRecorder
	now      func() time.Time
}

// NewStockHealthTool creates the stock-health tool. recorder may be nil.
func NewStockHealthTool(source MetricsSource, recorder ScoreRecorder) *StockHealthTool {
	return &StockHealthTool{source: source, recorder: recorder, now: time.Now}
}

// Name implements Tool.
func (h *StockHealthTool) Name() string { return "compute_stock_health" }

// Description implements Tool.
func (h *StockHealthTool) Description() string {
	return "Computes Sharpe, Sortino, Jensen's alpha, beta, 95% VaR and CVaR, maximum drawdown, annualised volatility and a composite stock-health score (0-100, higher is healthier) from one year of daily prices."
}

// Call implements Tool.
func (h *StockHealthTool) Call(ctx context.Context, query string) (string, error) {
	s, err := h.source.StockHealth(ctx, query)
	if err != nil {
		return "", err
	}

	ticker := firstNonEmpty(s.Ticker, strings.ToUpper(query))
	if h.recorder != nil && s.Composite != nil {
		payload, _ := json.Marshal(s)
		record(ctx, h.recorder, models.TickerScore{
			Ticker:      ticker,
			Kind:        models.ScoreKindHealth,
			Composite:   *s.Composite,
			Payload:     payload,
			LastUpdated: h.now().UTC(),
		})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Stock health metrics for %s:\n", ticker)
	fmt.Fprintf(&sb, "- Sharpe ratio: %s\n", formatFloat(s.Sharpe))
	fmt.Fprintf(&sb, "- Sortino ratio: %s\n", formatFloat(s.Sortino))
	fmt.Fprintf(&sb, "- Alpha (annual, vs S&P 500): %s\n", formatFloat(s.Alpha))
	fmt.Fprintf(&sb, "- Beta: %s\n", formatFloat(s.Beta))
	fmt.Fprintf(&sb, "- VaR 95%%: %s\n", formatFloat(s.VaR95))
	fmt.Fprintf(&sb, "- CVaR 95%%: %s\n", formatFloat(s.CVaR95))
	fmt.Fprintf(&sb, "- Max drawdown: %s\n", formatFloat(s.MaxDrawdown))
	fmt.Fprintf(&sb, "- Volatility (annualised): %s\n", formatFloat(s.Volatility))
	fmt.Fprintf(&sb, "- Composite stock health score: %s", formatFloat(s.Composite))
	return sb.String(), nil
}

// record persists a score. Storage failures never fail the tool call.
func record(ctx context.Context, r ScoreRecorder, score models.TickerScore) {
	written, err := r.UpsertScore(ctx, score)
	if err != nil {
		log.Printf("[tools] failed to record %s %s score: %v", score.Ticker, score.Kind, err)
		return
	}
	if !written {
		log.Printf("[tools] %s %s score is fresh, skipped upsert", score.Ticker, score.Kind)
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
