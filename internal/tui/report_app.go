package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/tickerdesk/internal/orchestrator"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// maxActivity is how many activity lines the view keeps.
const maxActivity = 8

// EventMsg wraps an orchestrator event for the TUI.
type EventMsg struct {
	Event orchestrator.OrchestratorEvent
}

// DoneMsg signals the report task has finished.
type DoneMsg struct {
	Report models.Report
	Err    error
}

// WorkerState is the display state of one worker.
type WorkerState string

const (
	WorkerPending WorkerState = "pending"
	WorkerRunning WorkerState = "running"
	WorkerDone    WorkerState = "done"
	WorkerCapped  WorkerState = "capped"
)

// workerRow is one line of the workers panel.
type workerRow struct {
	name     string
	state    WorkerState
	tools    int
	lastTool string
}

// ReportApp is the bubbletea model for a running report task.
type ReportApp struct {
	header  *Header
	spinner spinner.Model

	workers  []*workerRow
	activity []string

	phase       orchestrator.Phase
	delegations int
	started     time.Time
	width       int

	done     bool
	canceled bool
	report   models.Report
	err      error

	titleStyle lipgloss.Style
	doneStyle  lipgloss.Style
	errStyle   lipgloss.Style
	dimStyle   lipgloss.Style
	runStyle   lipgloss.Style
}

// NewReportApp creates the model. workers lists the roster in dispatch order.
func NewReportApp(tickers, workers []string) *ReportApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#45B7D1"))

	a := &ReportApp{
		header:     NewHeader(tickers),
		spinner:    s,
		phase:      orchestrator.PhaseStart,
		started:    time.Now(),
		width:      80,
		titleStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		doneStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("28")).Bold(true),
		errStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		dimStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		runStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC857")),
	}
	for _, name := range workers {
		a.workers = append(a.workers, &workerRow{name: name, state: WorkerPending})
	}
	return a
}

// NewReportProgram creates a bubbletea program around a new ReportApp.
func NewReportProgram(tickers, workers []string, opts ...tea.ProgramOption) (*tea.Program, *ReportApp) {
	app := NewReportApp(tickers, workers)
	return tea.NewProgram(app, opts...), app
}

// Init implements tea.Model.
func (a *ReportApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *ReportApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !a.done {
				a.canceled = true
			}
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.header.SetWidth(msg.Width)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)

	case DoneMsg:
		a.done = true
		a.report = msg.Report
		a.err = msg.Err
		return a, tea.Quit
	}
	return a, nil
}

// apply folds one event into the view state.
func (a *ReportApp) apply(ev orchestrator.OrchestratorEvent) {
	if ev.Phase != "" {
		a.phase = ev.Phase
	}
	a.delegations = ev.DelegationCount

	switch ev.Type {
	case orchestrator.EventWorkerStarted:
		a.worker(ev.Worker).state = WorkerRunning
		a.log("dispatched %s", ev.Worker)
	case orchestrator.EventToolCall:
		w := a.worker(ev.Worker)
		w.tools++
		w.lastTool = ev.Tool
		a.log("%s called %s", ev.Worker, ev.Tool)
	case orchestrator.EventWorkerCompleted:
		w := a.worker(ev.Worker)
		if w.state != WorkerCapped {
			w.state = WorkerDone
		}
		a.log("%s finished", ev.Worker)
	case orchestrator.EventCapReached:
		if ev.Worker != "" {
			a.worker(ev.Worker).state = WorkerCapped
		}
		a.log("cap reached: %s", ev.Message)
	case orchestrator.EventSynthesisStarted:
		a.log("writing report")
	case orchestrator.EventTaskFailed:
		a.log("failed: %s", ev.Error)
	case orchestrator.EventReportReady:
		a.log("report ready")
	}
}

func (a *ReportApp) worker(name string) *workerRow {
	for _, w := range a.workers {
		if w.name == name {
			return w
		}
	}
	w := &workerRow{name: name, state: WorkerPending}
	a.workers = append(a.workers, w)
	return w
}

func (a *ReportApp) log(format string, args ...any) {
	line := fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	a.activity = append(a.activity, line)
	if len(a.activity) > maxActivity {
		a.activity = a.activity[len(a.activity)-maxActivity:]
	}
}

// Report returns the finished report and error once DoneMsg arrived.
func (a *ReportApp) Report() (models.Report, error) {
	return a.report, a.err
}

// Canceled reports whether the user quit before the task finished.
func (a *ReportApp) Canceled() bool {
	return a.canceled
}

// View implements tea.Model.
func (a *ReportApp) View() string {
	var b strings.Builder
	b.WriteString(a.header.View())
	b.WriteString("\n")

	status := fmt.Sprintf("%s %s", a.spinner.View(), a.phase)
	switch {
	case a.done && a.err != nil:
		status = a.errStyle.Render("✗ failed: " + a.err.Error())
	case a.done:
		status = a.doneStyle.Render("✓ report ready")
	}
	b.WriteString(status)
	b.WriteString(a.dimStyle.Render(fmt.Sprintf("   delegations %d   elapsed %s",
		a.delegations, time.Since(a.started).Round(time.Second))))
	b.WriteString("\n\n")

	b.WriteString(a.titleStyle.Render("Workers"))
	b.WriteString("\n")
	for _, w := range a.workers {
		b.WriteString(a.workerLine(w))
		b.WriteString("\n")
	}

	if len(a.activity) > 0 {
		b.WriteString("\n")
		b.WriteString(a.titleStyle.Render("Activity"))
		b.WriteString("\n")
		for _, line := range a.activity {
			b.WriteString(a.dimStyle.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(a.dimStyle.Render("q: cancel"))
	return b.String()
}

func (a *ReportApp) workerLine(w *workerRow) string {
	var icon string
	switch w.state {
	case WorkerRunning:
		icon = a.runStyle.Render("●")
	case WorkerDone:
		icon = a.doneStyle.Render("✓")
	case WorkerCapped:
		icon = a.errStyle.Render("!")
	default:
		icon = a.dimStyle.Render("○")
	}
	line := fmt.Sprintf("  %s %-8s %s", icon, w.name, a.dimStyle.Render(string(w.state)))
	if w.tools > 0 {
		line += a.dimStyle.Render(fmt.Sprintf("  %d tool call(s), last %s", w.tools, w.lastTool))
	}
	return line
}
