package llm

import (
	"context"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// ToolSpec describes a tool the model may call while tools are bound.
type ToolSpec struct {
	Name        string
	Description string
	// Properties is the JSON-schema "properties" object of the tool input.
	Properties map[string]any
	Required   []string
}

// Request is a single language-model invocation.
type Request struct {
	// System is the system instruction.
	System string
	// History is the ordered message context.
	History []models.Message
	// Tools binds tools to the call. Empty means plain text generation.
	Tools []ToolSpec
}

// Planner is the language-model contract consumed by the orchestrator.
// Invoke returns either a KindText assistant message or, when tools are
// bound, a KindToolCall message requesting one or more tool calls.
type Planner interface {
	Invoke(ctx context.Context, req Request) (models.Message, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, req Request) (models.Message, error)

// Invoke calls f.
func (f PlannerFunc) Invoke(ctx context.Context, req Request) (models.Message, error) {
	return f(ctx, req)
}
