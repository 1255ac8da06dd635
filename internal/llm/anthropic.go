package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// AnthropicPlanner implements Planner on top of the Messages API.
type AnthropicPlanner struct {
	client      *Client
	temperature float64
}

// NewAnthropicPlanner creates a planner bound to client. Calls run at
// temperature 0 so tool selection and report layout stay reproducible.
func NewAnthropicPlanner(client *Client) *AnthropicPlanner {
	return &AnthropicPlanner{client: client}
}

// Invoke sends one Messages API request and converts the response.
func (p *AnthropicPlanner) Invoke(ctx context.Context, req Request) (models.Message, error) {
	system, messages := toMessageParams(req.System, req.History)
	if len(messages) == 0 {
		return models.Message{}, fmt.Errorf("invoke model: empty message history")
	}

	params := anthropic.MessageNewParams{
		Model:       p.client.Model(),
		MaxTokens:   p.client.MaxTokens(),
		Messages:    messages,
		Temperature: anthropic.Float(p.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
	}

	resp, err := p.client.sdk().Messages.New(ctx, params)
	if err != nil {
		return models.Message{}, fmt.Errorf("API call failed: %w", err)
	}
	p.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var blocks []models.ContentBlock
	var calls []models.ToolCall
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, models.ContentBlock{Type: "text", Text: variant.Text})
		case anthropic.ToolUseBlock:
			calls = append(calls, models.ToolCall{ID: variant.ID, Name: variant.Name, Input: variant.Input})
		}
	}

	text := models.NormalizeContent(blocks)
	if len(calls) > 0 {
		return models.NewToolCallMessage(text, calls...), nil
	}
	return models.NewAssistantMessage(text), nil
}

// toMessageParams converts a conversation to API messages. System-role
// messages are folded into the system prompt, worker results are presented
// to the model as labelled user turns, and consecutive turns of the same API
// role are merged so tool results always follow their tool calls in one turn.
func toMessageParams(system string, history []models.Message) (string, []anthropic.MessageParam) {
	systemParts := []string{}
	if system != "" {
		systemParts = append(systemParts, system)
	}

	var out []anthropic.MessageParam
	push := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range history {
		switch m.Role {
		case models.RoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
		case models.RoleUser:
			push(anthropic.MessageParamRoleUser, textBlocks(m.Content)...)
		case models.RoleWorkerResult:
			push(anthropic.MessageParamRoleUser, textBlocks(fmt.Sprintf("[%s worker result]\n%s", m.Origin, m.Content))...)
		case models.RoleToolResult:
			content := m.Content
			if content == "" {
				content = "(empty tool result)"
			}
			push(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(m.ToolCallID, content, m.IsError))
		case models.RoleAssistant:
			blocks := textBlocks(m.Content)
			if m.Kind == models.KindToolCall {
				for _, call := range m.ToolCalls {
					input := call.Input
					if len(input) == 0 {
						input = json.RawMessage(`{}`)
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
				}
			}
			push(anthropic.MessageParamRoleAssistant, blocks...)
		}
	}

	return strings.Join(systemParts, "\n\n"), out
}

// textBlocks returns a single text block, or none for blank text which the
// API rejects.
func textBlocks(text string) []anthropic.ContentBlockParamUnion {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(text)}
}

func toToolParams(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: spec.Properties,
					Required:   spec.Required,
				},
			},
		})
	}
	return tools
}
