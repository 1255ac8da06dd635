package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ShayCichocki/tickerdesk/internal/agent"
	"github.com/ShayCichocki/tickerdesk/internal/llm"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// Engine runs report tasks. It is safe for concurrent use; each task owns
// its own TaskState.
type Engine struct {
	cfg        Config
	planner    llm.Planner
	controller *Controller
	synth      *Synthesizer
	emitter    *EventEmitter
	metrics    *Metrics
	logger     *DebugLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents emits progress events of every task to emitter.
func WithEvents(emitter *EventEmitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithMetrics records orchestration metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDebugLogger writes step-by-step traces to logger.
func WithDebugLogger(logger *DebugLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine validates cfg and builds an engine around planner.
func NewEngine(cfg Config, planner llm.Planner, opts ...Option) (*Engine, error) {
	if planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()

	e := &Engine{
		cfg:        cfg,
		planner:    planner,
		controller: NewController(planner, cfg.Roster),
		synth:      NewSynthesizer(planner, cfg.Roster),
		logger:     NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg.clone()
}

// BuildPrompt turns a list of tickers or company names into the task's
// initial user message.
func BuildPrompt(entities []string) string {
	return fmt.Sprintf(
		"Generate a comprehensive financial analysis report for the following companies/tickers: %s. "+
			"For each one, gather news sentiment data, quantitative fraud-risk metrics and stock health metrics.",
		strings.Join(entities, ", "),
	)
}

// CleanEntities trims entries and drops empty or duplicate ones, keeping order.
func CleanEntities(entities []string) []string {
	seen := make(map[string]bool, len(entities))
	out := make([]string, 0, len(entities))
	for _, raw := range entities {
		v := strings.TrimSpace(raw)
		if v == "" || seen[strings.ToUpper(v)] {
			continue
		}
		seen[strings.ToUpper(v)] = true
		out = append(out, v)
	}
	return out
}

// GenerateReport runs one task to completion and returns the report with
// its summary.
func (e *Engine) GenerateReport(ctx context.Context, entities []string) (models.Report, error) {
	return e.run(ctx, entities, e.emitter)
}

// Stream is GenerateReport with a per-call event emitter. The emitter is
// closed when the task ends.
func (e *Engine) Stream(ctx context.Context, entities []string, emitter *EventEmitter) (models.Report, error) {
	defer emitter.Close()
	return e.run(ctx, entities, emitter)
}

// runContext carries one task's emitter and logging.
type runContext struct {
	engine  *Engine
	emitter *EventEmitter
	state   models.TaskState
	phase   Phase
	tallies map[string]ToolTally
}

func (r *runContext) emit(ev OrchestratorEvent) {
	ev.Phase = r.phase
	ev.DelegationCount = r.state.DelegationCount
	if r.engine.emitter != nil && r.engine.emitter != r.emitter {
		r.engine.emitter.Emit(ev)
	}
	r.emitter.Emit(ev)
}

func (r *runContext) enter(p Phase) {
	r.engine.logger.Log("phase %s -> %s (delegations %d)", r.phase, p, r.state.DelegationCount)
	r.phase = p
}

func (e *Engine) run(ctx context.Context, entities []string, emitter *EventEmitter) (models.Report, error) {
	start := time.Now()
	entities = CleanEntities(entities)
	if len(entities) == 0 {
		return models.Report{}, ErrNoEntities
	}

	rc := &runContext{
		engine:  e,
		emitter: emitter,
		state:   models.NewTaskState(models.NewUserMessage(BuildPrompt(entities))),
		phase:   PhaseStart,
		tallies: make(map[string]ToolTally),
	}
	rc.emit(OrchestratorEvent{Type: EventTaskStarted, Message: strings.Join(entities, ", ")})

	report, outcome, err := e.loop(ctx, rc)
	if err != nil {
		rc.emit(OrchestratorEvent{Type: EventTaskFailed, Error: err.Error()})
		e.metrics.recordReport("error", time.Since(start))
		e.logger.Log("task failed: %v", err)
		return models.Report{}, err
	}

	report.Entities = entities
	report.Delegations = rc.state.DelegationCount
	report.CreatedAt = time.Now().UTC()

	rc.enter(PhaseDone)
	rc.emit(OrchestratorEvent{Type: EventReportReady, Message: report.Summary})
	e.metrics.recordReport(outcome, time.Since(start))
	log.Printf("[orchestrator] report ready for %s (%d delegations, %s)", strings.Join(entities, ", "), report.Delegations, outcome)
	return report, nil
}

// loop drives the state machine until synthesis or termination.
func (e *Engine) loop(ctx context.Context, rc *runContext) (models.Report, string, error) {
	policy := e.cfg.Policy()
	for {
		if err := ctx.Err(); err != nil {
			return models.Report{}, "", err
		}

		rc.enter(PhaseOrchestrating)
		log.Printf("[orchestrator] step (delegations so far: %d/%d)", rc.state.DelegationCount, e.cfg.MaxDelegations)
		directive, calledModel, err := e.controller.Next(ctx, rc.state)
		if err != nil {
			return models.Report{}, "", err
		}
		rc.state = models.Merge(rc.state, models.StateDelta{Messages: []models.Message{directive}})
		e.logger.Log("directive (model=%v): %q", calledModel, truncate(directive.Content, 200))
		rc.emit(OrchestratorEvent{Type: EventDirective, Message: truncate(directive.Content, 200)})

		completed := models.CompletedWorkers(rc.state.Conversation)
		decision := Route(directive, completed, rc.state.DelegationCount, e.cfg.Roster, policy)
		log.Printf("[router] %s %s: %s", decision.Action, decision.Worker, decision.Reason)
		e.metrics.recordTransition(decision.Action)
		if decision.CapReached {
			e.metrics.recordCap("delegations")
			rc.emit(OrchestratorEvent{Type: EventCapReached, Message: decision.Reason})
		}

		switch decision.Action {
		case ActionDispatch:
			if err := e.dispatch(ctx, rc, decision.Worker); err != nil {
				return models.Report{}, "", err
			}

		case ActionSynthesize:
			rc.enter(PhaseSynthesizing)
			rc.emit(OrchestratorEvent{Type: EventSynthesisStarted})
			log.Printf("[synthesizer] generating final report from %d worker results", len(completed))
			report, err := e.synth.Synthesize(ctx,
				models.UserMessages(rc.state.Conversation),
				models.WorkerResults(rc.state.Conversation),
				rc.tallies)
			if err != nil {
				return models.Report{}, "", err
			}
			return report, "synthesized", nil

		case ActionTerminate:
			if strings.TrimSpace(decision.FinalAnswer) == "" {
				return models.Report{}, "", ErrNoAnswer
			}
			summary, err := e.synth.Summarize(ctx, decision.FinalAnswer)
			if err != nil {
				return models.Report{}, "", err
			}
			return models.Report{Report: decision.FinalAnswer, Summary: summary}, "final_answer", nil

		default:
			return models.Report{}, "", fmt.Errorf("unknown router action %q", decision.Action)
		}
	}
}

// dispatch runs one worker and merges its result into the task state.
func (e *Engine) dispatch(ctx context.Context, rc *runContext, name string) error {
	spec, ok := e.cfg.Roster.Lookup(name)
	if !ok {
		return fmt.Errorf("dispatch to unknown worker %q", name)
	}

	rc.enter(PhaseWorker)
	log.Printf("[orchestrator] delegating to %s (delegation %d/%d)", name, rc.state.DelegationCount+1, e.cfg.MaxDelegations)
	rc.emit(OrchestratorEvent{Type: EventWorkerStarted, Worker: name})

	worker := agent.NewWorker(agent.Config{
		Name:              spec.Name,
		Prompt:            spec.Prompt,
		Planner:           e.planner,
		Tool:              spec.Tool,
		MaxToolIterations: e.cfg.MaxToolIterations,
		OnTool: func(ev agent.ToolEvent) {
			e.logger.Log("worker %s round %d tool %s -> error=%v", ev.Worker, ev.Round, ev.Call.Name, ev.Result.IsError)
			rc.emit(OrchestratorEvent{
				Type:    EventToolCall,
				Worker:  ev.Worker,
				Tool:    ev.Call.Name,
				Message: truncate(ev.Result.Content, 200),
			})
		},
	})

	res, err := worker.Run(ctx, rc.state)
	if err != nil {
		return err
	}
	rc.tallies[name] = ToolTally{Calls: res.ToolCalls, Errors: res.ToolErrors}
	if res.CapReached {
		e.metrics.recordCap("tool_iterations")
		rc.emit(OrchestratorEvent{Type: EventCapReached, Worker: name, Message: "tool iteration cap reached"})
	}

	rc.state = models.Merge(rc.state, models.StateDelta{
		Messages:            []models.Message{res.Message},
		Delegations:         1,
		ToolIterations:      res.ToolIterations,
		ResetToolIterations: true,
	})
	e.metrics.recordDelegation(name, res.ToolIterations)
	e.logger.Log("worker %s done after %d tool rounds: %q", name, res.ToolIterations, truncate(res.Message.Content, 200))
	rc.emit(OrchestratorEvent{Type: EventWorkerCompleted, Worker: name, Message: truncate(res.Message.Content, 200)})
	return nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
