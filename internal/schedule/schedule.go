// Package schedule regenerates reports for a watchlist on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// Generator produces a report for a set of tickers.
type Generator interface {
	GenerateReport(ctx context.Context, entities []string) (models.Report, error)
}

// Saver persists finished reports.
type Saver interface {
	SaveReport(ctx context.Context, r *models.Report) error
}

// Trigger checks a finished report for risk alerts.
type Trigger interface {
	Fire(tickers []string, summary string)
}

// Runner generates one watchlist report each time the cron expression is due.
type Runner struct {
	expr    string
	tickers []string
	gen     Generator
	saver   Saver
	trigger Trigger

	now func() time.Time
}

// New validates the cron expression and creates a runner. saver and
// trigger may be nil.
func New(expr string, tickers []string, gen Generator, saver Saver, trigger Trigger) (*Runner, error) {
	expr = strings.TrimSpace(expr)
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression: %q", expr)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("schedule has no tickers")
	}
	if gen == nil {
		return nil, fmt.Errorf("report generator is required")
	}
	return &Runner{
		expr:    expr,
		tickers: append([]string(nil), tickers...),
		gen:     gen,
		saver:   saver,
		trigger: trigger,
		now:     time.Now,
	}, nil
}

// Next returns the first run strictly after ref.
func (r *Runner) Next(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(r.expr, ref, false)
}

// Start runs until ctx is canceled. A run still in progress when the next
// tick comes due delays that tick; runs never overlap.
func (r *Runner) Start(ctx context.Context) {
	log.Printf("[schedule] watching %s on %q", strings.Join(r.tickers, ","), r.expr)
	for {
		next, err := r.Next(r.now())
		if err != nil {
			log.Printf("[schedule] compute next run: %v", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[schedule] stopped")
			return
		case <-timer.C:
		}
		if _, err := r.RunOnce(ctx); err != nil {
			log.Printf("[schedule] run failed: %v", err)
		}
	}
}

// RunOnce generates, saves and checks one watchlist report.
func (r *Runner) RunOnce(ctx context.Context) (models.Report, error) {
	started := r.now()
	report, err := r.gen.GenerateReport(ctx, r.tickers)
	if err != nil {
		return models.Report{}, fmt.Errorf("generate report: %w", err)
	}
	if r.saver != nil {
		if err := r.saver.SaveReport(ctx, &report); err != nil {
			return report, fmt.Errorf("save report: %w", err)
		}
	}
	if r.trigger != nil {
		r.trigger.Fire(report.Entities, report.Summary)
	}
	log.Printf("[schedule] report %s for %s done in %s", report.ID, strings.Join(r.tickers, ","),
		r.now().Sub(started).Round(time.Millisecond))
	return report, nil
}
