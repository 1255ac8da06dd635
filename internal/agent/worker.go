// Package agent implements worker agents: a bounded loop in which a model
// answers one sub-question using a single external tool.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/tickerdesk/internal/llm"
	"github.com/ShayCichocki/tickerdesk/internal/tools"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// DefaultMaxToolIterations is the per-run tool round cap.
const DefaultMaxToolIterations = 3

// ToolEvent describes one executed tool call.
type ToolEvent struct {
	Worker string
	Call   models.ToolCall
	Result tools.Result
	Round  int
}

// Config contains configuration for a Worker.
type Config struct {
	// Name is the worker's origin tag.
	Name string
	// Prompt is the worker's system instruction.
	Prompt string
	// Planner drives the loop.
	Planner llm.Planner
	// Tool is the single capability the worker may call.
	Tool tools.Tool
	// MaxToolIterations caps tool rounds per run. Negative means
	// DefaultMaxToolIterations; zero means no tool ever executes.
	MaxToolIterations int
	// OnTool is called after every executed tool call. Optional.
	OnTool func(ToolEvent)
}

// Worker answers a sub-question using one tool behind a bounded loop.
type Worker struct {
	name     string
	prompt   string
	planner  llm.Planner
	executor *tools.Executor
	specs    []llm.ToolSpec
	maxIter  int
	onTool   func(ToolEvent)
}

// Result is the outcome of one worker run.
type Result struct {
	// Message is the worker-result message tagged with the worker's origin.
	Message models.Message
	// ToolIterations is the number of tool rounds executed.
	ToolIterations int
	// ToolCalls counts executed tool calls; ToolErrors counts those that
	// returned an error result.
	ToolCalls  int
	ToolErrors int
	// CapReached is true when the loop stopped on the tool-round cap with a
	// tool request still pending.
	CapReached bool
}

// NewWorker creates a worker.
func NewWorker(cfg Config) *Worker {
	maxIter := cfg.MaxToolIterations
	if maxIter < 0 {
		maxIter = DefaultMaxToolIterations
	}
	var specs []llm.ToolSpec
	executor := tools.NewExecutor()
	if cfg.Tool != nil {
		executor = tools.NewExecutor(cfg.Tool)
		specs = executor.Specs()
	}
	return &Worker{
		name:     cfg.Name,
		prompt:   cfg.Prompt,
		planner:  cfg.Planner,
		executor: executor,
		specs:    specs,
		maxIter:  maxIter,
		onTool:   cfg.OnTool,
	}
}

// Name returns the worker's origin tag.
func (w *Worker) Name() string {
	return w.name
}

// FallbackText is the worker result used when the model never produced text.
func FallbackText(name string) string {
	return fmt.Sprintf("%s worker produced no response.", name)
}

// Run executes the worker against the task. The worker sees only the
// task's user messages. The tool-round cap is checked before each round is
// executed, so with a cap of zero the model is called once and any tool
// request it makes is dropped.
func (w *Worker) Run(ctx context.Context, task models.TaskState) (Result, error) {
	local := models.Merge(models.TaskState{}, models.StateDelta{
		Messages:            models.UserMessages(task.Conversation),
		ResetToolIterations: true,
	})

	var (
		lastText   string
		capReached bool
		calls      int
		failures   int
	)
	for {
		log.Printf("[worker:%s] model call (tool iteration %d/%d)", w.name, local.ToolIterationCount, w.maxIter)
		resp, err := w.planner.Invoke(ctx, llm.Request{
			System:  w.prompt,
			History: local.Conversation,
			Tools:   w.specs,
		})
		if err != nil {
			return Result{}, fmt.Errorf("worker %s: %w", w.name, err)
		}
		if strings.TrimSpace(resp.Content) != "" {
			lastText = resp.Content
		}
		local = models.Merge(local, models.StateDelta{Messages: []models.Message{resp}})

		if !resp.HasToolCalls() {
			break
		}
		if local.ToolIterationCount >= w.maxIter {
			log.Printf("[worker:%s] tool iteration cap reached (%d), stopping tool loop", w.name, w.maxIter)
			capReached = true
			break
		}

		round := local.ToolIterationCount + 1
		results := make([]models.Message, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			res := w.executor.Execute(ctx, call.Name, call.Input)
			calls++
			if res.IsError {
				failures++
				log.Printf("[worker:%s] tool %s failed: %s", w.name, call.Name, res.Content)
			}
			if w.onTool != nil {
				w.onTool(ToolEvent{Worker: w.name, Call: call, Result: res, Round: round})
			}
			results = append(results, models.NewToolResultMessage(call.ID, res.Content, res.IsError))
		}
		local = models.Merge(local, models.StateDelta{Messages: results, ToolIterations: 1})
	}

	if strings.TrimSpace(lastText) == "" {
		lastText = FallbackText(w.name)
	}
	return Result{
		Message:        models.NewWorkerResult(w.name, lastText),
		ToolIterations: local.ToolIterationCount,
		ToolCalls:      calls,
		ToolErrors:     failures,
		CapReached:     capReached,
	}, nil
}
