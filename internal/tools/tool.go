// Package tools provides the external capabilities worker agents call:
// news headlines, fraud-risk scores and stock-health scores.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/tickerdesk/internal/llm"
)

// ErrorMarker prefixes every tool failure surfaced to a model.
const ErrorMarker = "TOOL_ERROR:"

// Tool is a single named capability taking a ticker or company query.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, query string) (string, error)
}

// Result is the guarded outcome of a tool call.
type Result struct {
	Content string
	IsError bool
}

// Guard runs t and never fails: errors and panics come back as text
// prefixed with ErrorMarker.
func Guard(ctx context.Context, t Tool, query string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(t.Name(), fmt.Errorf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return errorResult(t.Name(), err)
	}

	out, err := t.Call(ctx, query)
	if err != nil {
		return errorResult(t.Name(), err)
	}
	return Result{Content: out}
}

// IsErrorText reports whether s is a guarded tool failure.
func IsErrorText(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), ErrorMarker)
}

func errorResult(name string, err error) Result {
	return Result{
		Content: fmt.Sprintf("%s %s failed: %v", ErrorMarker, name, err),
		IsError: true,
	}
}

// Executor dispatches model tool calls to registered tools by name.
type Executor struct {
	tools map[string]Tool
}

// NewExecutor registers tools. Later tools with a duplicate name win.
func NewExecutor(tools ...Tool) *Executor {
	e := &Executor{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		e.tools[t.Name()] = t
	}
	return e
}

// Execute runs a tool call. Unknown tools and malformed input are reported
// as error results like any other tool failure.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) Result {
	t, ok := e.tools[name]
	if !ok {
		return Result{Content: fmt.Sprintf("%s unknown tool: %s", ErrorMarker, name), IsError: true}
	}
	query, err := QueryFromInput(input)
	if err != nil {
		return errorResult(name, err)
	}
	return Guard(ctx, t, query)
}

// Specs describes the registered tools for binding to a model call.
func (e *Executor) Specs() []llm.ToolSpec {
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, Spec(e.tools[name]))
	}
	return specs
}

// Spec is the model-facing schema of a ticker tool.
func Spec(t Tool) llm.ToolSpec {
	return llm.ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		Properties: map[string]any{
			"ticker": map[string]any{
				"type":        "string",
				"description": "Stock ticker symbol, e.g. NVDA",
			},
		},
		Required: []string{"ticker"},
	}
}

// QueryFromInput extracts the ticker from tool-call input. It accepts
// {"ticker": "..."}, {"query": "..."} or a bare JSON string.
func QueryFromInput(input json.RawMessage) (string, error) {
	if len(input) == 0 || !gjson.ValidBytes(input) {
		return "", fmt.Errorf("invalid tool input: %q", string(input))
	}
	parsed := gjson.ParseBytes(input)
	var q string
	switch {
	case parsed.Type == gjson.String:
		q = parsed.String()
	case parsed.Get("ticker").Exists():
		q = parsed.Get("ticker").String()
	case parsed.Get("query").Exists():
		q = parsed.Get("query").String()
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("missing ticker in tool input")
	}
	return q, nil
}
