// Package tui provides the terminal progress view for a report task.
//
// The view is read-only. It shows the state machine phase, the delegation
// count, each worker with its tool calls, and a short activity log. Users
// can only quit with 'q' or Ctrl+C, which cancels the running task.
//
// Usage:
//
//	program, app := tui.NewReportProgram(tickers, roster.Names())
//	go program.Run()
//
//	// Forward orchestrator events
//	program.Send(tui.EventMsg{Event: ev})
//
//	// Signal completion
//	program.Send(tui.DoneMsg{Report: report, Err: err})
package tui
