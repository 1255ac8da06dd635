// Package llmtest provides scripted planners for tests that must not reach
// a real model.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/tickerdesk/internal/llm"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// Step produces one model response for a request.
type Step func(req llm.Request) (models.Message, error)

// Reply answers with plain assistant text.
func Reply(text string) Step {
	return func(llm.Request) (models.Message, error) {
		return models.NewAssistantMessage(text), nil
	}
}

// CallTool requests one call of tool per ticker, with optional
// accompanying text.
func CallTool(text, tool string, tickers ...string) Step {
	return func(req llm.Request) (models.Message, error) {
		calls := make([]models.ToolCall, 0, len(tickers))
		for i, t := range tickers {
			input, _ := json.Marshal(map[string]string{"ticker": t})
			calls = append(calls, models.ToolCall{
				ID:    fmt.Sprintf("call_%d_%d", len(req.History), i),
				Name:  tool,
				Input: input,
			})
		}
		return models.NewToolCallMessage(text, calls...), nil
	}
}

// QuoteToolResults answers with every tool result in the history, verbatim,
// one per line. It models a perfectly grounded worker.
func QuoteToolResults(prefix string) Step {
	return func(req llm.Request) (models.Message, error) {
		var lines []string
		if prefix != "" {
			lines = append(lines, prefix)
		}
		for _, m := range req.History {
			if m.Kind == models.KindToolResult {
				lines = append(lines, m.Content)
			}
		}
		return models.NewAssistantMessage(strings.Join(lines, "\n")), nil
	}
}

// Fail returns err.
func Fail(err error) Step {
	return func(llm.Request) (models.Message, error) {
		return models.Message{}, err
	}
}

// Planner replays steps in order and records every request. Once the
// script is exhausted it uses Fallback, or fails when Fallback is nil.
type Planner struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
	Fallback Step
}

// NewPlanner creates a scripted planner.
func NewPlanner(steps ...Step) *Planner {
	return &Planner{steps: steps}
}

// Invoke implements llm.Planner.
func (p *Planner) Invoke(ctx context.Context, req llm.Request) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	p.mu.Lock()
	p.requests = append(p.requests, cloneRequest(req))
	var step Step
	if len(p.steps) > 0 {
		step, p.steps = p.steps[0], p.steps[1:]
	} else {
		step = p.Fallback
	}
	p.mu.Unlock()

	if step == nil {
		return models.Message{}, fmt.Errorf("llmtest: script exhausted after %d calls", p.Calls())
	}
	return step(req)
}

// Calls returns how many times Invoke was called.
func (p *Planner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of the recorded requests.
func (p *Planner) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func cloneRequest(req llm.Request) llm.Request {
	history := make([]models.Message, len(req.History))
	copy(history, req.History)
	req.History = history
	return req
}

// Switch routes each request to the first planner whose match function
// accepts it. It lets one test drive the orchestrator, its workers and the
// synthesizer with separate scripts.
type Switch struct {
	routes []route
}

type route struct {
	match   func(llm.Request) bool
	planner llm.Planner
}

// NewSwitch creates an empty switch.
func NewSwitch() *Switch {
	return &Switch{}
}

// When adds a route.
func (s *Switch) When(match func(llm.Request) bool, planner llm.Planner) *Switch {
	s.routes = append(s.routes, route{match: match, planner: planner})
	return s
}

// SystemContains matches requests whose system instruction contains substr.
func SystemContains(substr string) func(llm.Request) bool {
	return func(req llm.Request) bool {
		return strings.Contains(req.System, substr)
	}
}

// HasTool matches requests that bind a tool with the given name.
func HasTool(name string) func(llm.Request) bool {
	return func(req llm.Request) bool {
		for _, t := range req.Tools {
			if t.Name == name {
				return true
			}
		}
		return false
	}
}

// Invoke implements llm.Planner.
func (s *Switch) Invoke(ctx context.Context, req llm.Request) (models.Message, error) {
	for _, r := range s.routes {
		if r.match(req) {
			return r.planner.Invoke(ctx, req)
		}
	}
	return models.Message{}, fmt.Errorf("llmtest: no route for request with system %q", truncate(req.System, 60))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
