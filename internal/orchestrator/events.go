package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskStarted indicates a report task has started.
	EventTaskStarted EventType = "task_started"
	// EventDirective carries the controller's directive for the next step.
	EventDirective EventType = "directive"
	// EventWorkerStarted indicates a worker was dispatched.
	EventWorkerStarted EventType = "worker_started"
	// EventToolCall reports one tool call made by a running worker.
	EventToolCall EventType = "tool_call"
	// EventWorkerCompleted indicates a worker produced its result.
	EventWorkerCompleted EventType = "worker_completed"
	// EventCapReached indicates a delegation or tool-iteration cap stopped work.
	EventCapReached EventType = "cap_reached"
	// EventSynthesisStarted indicates the synthesizer is writing the report.
	EventSynthesisStarted EventType = "synthesis_started"
	// EventReportReady indicates the task finished with a report.
	EventReportReady EventType = "report_ready"
	// EventTaskFailed indicates the task failed.
	EventTaskFailed EventType = "task_failed"
)

// Phase is a state of the orchestration state machine.
type Phase string

const (
	PhaseStart         Phase = "start"
	PhaseOrchestrating Phase = "orchestrating"
	PhaseWorker        Phase = "worker"
	PhaseSynthesizing  Phase = "synthesizing"
	PhaseDone          Phase = "done"
)

// OrchestratorEvent represents an event emitted while a task runs.
// These events feed the progress TUI and the streaming endpoint.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// Phase is the state machine phase the event belongs to.
	Phase Phase `json:"phase"`
	// Worker is the related worker name, if applicable.
	Worker string `json:"worker,omitempty"`
	// Tool is the tool name for tool_call events.
	Tool string `json:"tool,omitempty"`
	// Message provides additional context about the event.
	Message string `json:"message,omitempty"`
	// Error contains error details for failure events.
	Error string `json:"error,omitempty"`
	// DelegationCount is the task's delegation count when the event fired.
	DelegationCount int `json:"delegation_count"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
