package models

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a task conversation.
type Role string

const (
	// RoleUser marks messages supplied by the caller.
	RoleUser Role = "user"
	// RoleSystem marks system instructions.
	RoleSystem Role = "system"
	// RoleAssistant marks model output (orchestrator, worker planner, synthesizer).
	RoleAssistant Role = "assistant"
	// RoleWorkerResult marks the single captured answer of a worker run.
	RoleWorkerResult Role = "worker_result"
	// RoleToolResult marks the output of a tool call.
	RoleToolResult Role = "tool_result"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSystem, RoleAssistant, RoleWorkerResult, RoleToolResult:
		return true
	default:
		return false
	}
}

// MessageKind is the variant tag of a Message.
type MessageKind string

const (
	// KindText is a plain text message.
	KindText MessageKind = "text"
	// KindToolCall is a model response requesting one or more tool calls.
	KindToolCall MessageKind = "tool_call"
	// KindToolResult carries the output of a single tool call.
	KindToolResult MessageKind = "tool_result"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its result.
	ID string `json:"id"`
	// Name is the tool name.
	Name string `json:"name"`
	// Input is the raw JSON arguments.
	Input json.RawMessage `json:"input,omitempty"`
}

// Message is one entry of a task conversation.
//
// Kind selects which of the variant fields are meaningful: ToolCalls for
// KindToolCall, ToolCallID and IsError for KindToolResult. Content is always
// the normalized text of the message (a tool-call message may carry text the
// model emitted alongside its request).
type Message struct {
	Kind    MessageKind `json:"kind"`
	Role    Role        `json:"role"`
	Origin  string      `json:"origin,omitempty"`
	Content string      `json:"content"`

	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// NewUserMessage creates a user text message.
func NewUserMessage(content string) Message {
	return Message{Kind: KindText, Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant text message with no origin.
func NewAssistantMessage(content string) Message {
	return Message{Kind: KindText, Role: RoleAssistant, Content: content}
}

// NewToolCallMessage creates an assistant message requesting tool calls.
func NewToolCallMessage(content string, calls ...ToolCall) Message {
	return Message{Kind: KindToolCall, Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolResultMessage creates the result entry for a tool call.
func NewToolResultMessage(callID, content string, isError bool) Message {
	return Message{Kind: KindToolResult, Role: RoleToolResult, ToolCallID: callID, Content: content, IsError: isError}
}

// NewWorkerResult creates the captured result of a worker run. It is the only
// constructor that sets Origin.
func NewWorkerResult(origin, content string) Message {
	return Message{Kind: KindText, Role: RoleWorkerResult, Origin: origin, Content: content}
}

// IsWorkerResult reports whether the message is a completed worker's output.
func (m Message) IsWorkerResult() bool {
	return m.Role == RoleWorkerResult && m.Origin != ""
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool {
	return m.Kind == KindToolCall && len(m.ToolCalls) > 0
}

// ContentBlock is one element of structured model output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NormalizeContent flattens model output to one string. It accepts a plain
// string, a slice of ContentBlock, a slice of strings, or a JSON-decoded
// []any of {"type":"text","text":...} maps. Text blocks are concatenated in
// order; every other block is dropped.
func NormalizeContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []ContentBlock:
		var b strings.Builder
		for _, block := range v {
			if block.Type == "" || block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String()
	case []string:
		return strings.Join(v, "")
	case []any:
		var b strings.Builder
		for _, item := range v {
			switch block := item.(type) {
			case string:
				b.WriteString(block)
			case map[string]any:
				if t, _ := block["type"].(string); t != "" && t != "text" {
					continue
				}
				if text, ok := block["text"].(string); ok {
					b.WriteString(text)
				}
			}
		}
		return b.String()
	default:
		return ""
	}
}

// UserMessages returns the user-role messages of a conversation in order.
func UserMessages(conversation []Message) []Message {
	var out []Message
	for _, m := range conversation {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// WorkerResults returns the worker-result messages of a conversation in order.
func WorkerResults(conversation []Message) []Message {
	var out []Message
	for _, m := range conversation {
		if m.IsWorkerResult() {
			out = append(out, m)
		}
	}
	return out
}

// CompletedWorkers returns the set of origins that already produced a result.
func CompletedWorkers(conversation []Message) map[string]bool {
	done := make(map[string]bool)
	for _, m := range conversation {
		if m.IsWorkerResult() {
			done[m.Origin] = true
		}
	}
	return done
}
