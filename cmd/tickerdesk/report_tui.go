package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/internal/tui"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// errCanceled is returned when the user quits the progress view early.
var errCanceled = errors.New("canceled")

// runWithTUI runs the report with the progress view.
func runWithTUI(ctx context.Context, engine *orchestrator.Engine, stocks []string) (report models.Report, retErr error) {
	// Log output corrupts the display while the view is active
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program, app := tui.NewReportProgram(stocks, engine.Config().Roster.Names(), tea.WithOutput(os.Stderr))
	emitter := orchestrator.NewEventEmitter(64)
	go forwardEventsToTUI(program, emitter.Events())

	type result struct {
		report models.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("PANIC in orchestrator: %v", r)
			}
			program.Send(tui.DoneMsg{Report: res.report, Err: res.err})
			done <- res
		}()
		res.report, res.err = engine.Stream(ctx, stocks, emitter)
	}()

	if _, err := program.Run(); err != nil {
		return models.Report{}, fmt.Errorf("progress view: %w", err)
	}
	if app.Canceled() {
		cancel()
		<-done
		return models.Report{}, errCanceled
	}
	res := <-done
	return res.report, res.err
}

// forwardEventsToTUI converts orchestrator events to TUI messages.
func forwardEventsToTUI(program *tea.Program, events <-chan orchestrator.OrchestratorEvent) {
	for event := range events {
		program.Send(tui.EventMsg{Event: event})
	}
}
