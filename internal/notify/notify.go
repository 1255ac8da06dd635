// Package notify delivers risk alerts after a report completes: a phone call
// that reads the alert aloud and a Telegram message.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// Alert is one risk notification.
type Alert struct {
	// Tickers are the tickers whose score crossed the threshold.
	Tickers []string
	// Scores are the stored scores that triggered the alert.
	Scores []models.TickerScore
	// Threshold is the composite score that triggered the alert.
	Threshold float64
	// Summary is the report summary the alert refers to.
	Summary string
	// Phone overrides the voice notifier's default number.
	Phone string
	// Message overrides the generated text.
	Message string
}

// Text renders the alert for delivery.
func (a Alert) Text() string {
	if strings.TrimSpace(a.Message) != "" {
		return a.Message
	}
	var sb strings.Builder
	sb.WriteString("Fraud risk alert. ")
	for _, s := range a.Scores {
		name := s.Ticker
		if s.CompanyName != "" {
			name = fmt.Sprintf("%s (%s)", s.CompanyName, s.Ticker)
		}
		fmt.Fprintf(&sb, "%s has a composite fraud risk score of %.1f, at or above %.1f. ", name, s.Composite, a.Threshold)
	}
	if a.Summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(a.Summary)
	}
	return strings.TrimSpace(sb.String())
}

// Notifier delivers an alert.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert Alert) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// Multi fans an alert out to every notifier. All notifiers run even when
// one fails; the errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
