package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/tickerdesk/internal/store"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// DefaultRiskThreshold is the composite fraud score that raises an alert.
const DefaultRiskThreshold = 70.0

// ScoreReader reads stored scores.
type ScoreReader interface {
	GetScore(ctx context.Context, ticker string, kind models.ScoreKind) (*models.TickerScore, error)
}

// Trigger checks finished reports against the stored fraud scores and
// notifies when a ticker crosses the threshold.
type Trigger struct {
	scores    ScoreReader
	notifier  Notifier
	threshold float64
	timeout   time.Duration

	wg sync.WaitGroup
}

// NewTrigger creates a trigger. A threshold of zero or less uses
// DefaultRiskThreshold.
func NewTrigger(scores ScoreReader, notifier Notifier, threshold float64) *Trigger {
	if threshold <= 0 {
		threshold = DefaultRiskThreshold
	}
	return &Trigger{
		scores:    scores,
		notifier:  notifier,
		threshold: threshold,
		timeout:   2 * time.Minute,
	}
}

// Fire checks the tickers in the background. It never blocks the caller;
// failures are only logged.
func (t *Trigger) Fire(tickers []string, summary string) {
	if t == nil || t.notifier == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		sent, err := t.Check(ctx, tickers, summary)
		if err != nil {
			log.Printf("[notify] alert check for %s failed: %v", strings.Join(tickers, ","), err)
			return
		}
		if sent {
			log.Printf("[notify] alert sent for %s", strings.Join(tickers, ","))
		}
	}()
}

// Wait blocks until every fired check has finished.
func (t *Trigger) Wait() {
	if t != nil {
		t.wg.Wait()
	}
}

// Check notifies when any ticker's stored composite fraud score is at or
// above the threshold and reports whether an alert was sent.
func (t *Trigger) Check(ctx context.Context, tickers []string, summary string) (bool, error) {
	var flagged []models.TickerScore
	for _, ticker := range tickers {
		score, err := t.scores.GetScore(ctx, strings.ToUpper(strings.TrimSpace(ticker)), models.ScoreKindFraud)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("read fraud score for %s: %w", ticker, err)
		}
		if score.Composite >= t.threshold {
			flagged = append(flagged, *score)
		}
	}
	if len(flagged) == 0 {
		return false, nil
	}

	alert := Alert{Scores: flagged, Threshold: t.threshold, Summary: summary}
	for _, s := range flagged {
		alert.Tickers = append(alert.Tickers, s.Ticker)
	}
	if err := t.notifier.Notify(ctx, alert); err != nil {
		return false, fmt.Errorf("notify: %w", err)
	}
	return true, nil
}
