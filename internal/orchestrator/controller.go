package orchestrator

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/tickerdesk/internal/llm"
	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// Controller produces the next directive. It calls the model only while no
// worker has completed; after that the dispatch order is fixed by the roster.
type Controller struct {
	planner llm.Planner
	roster  Roster
	prompt  string
}

// NewController creates a controller for roster.
func NewController(planner llm.Planner, roster Roster) *Controller {
	return &Controller{
		planner: planner,
		roster:  roster,
		prompt:  roster.OrchestratorPrompt(),
	}
}

// Next returns the directive message and whether the model was called.
func (c *Controller) Next(ctx context.Context, state models.TaskState) (models.Message, bool, error) {
	completed := models.CompletedWorkers(state.Conversation)
	if len(completed) > 0 {
		return models.NewAssistantMessage(c.nextDirective(completed)), false, nil
	}

	resp, err := c.planner.Invoke(ctx, llm.Request{
		System:  c.prompt,
		History: state.Conversation,
	})
	if err != nil {
		return models.Message{}, true, fmt.Errorf("orchestrator model call: %w", err)
	}
	// Tools are never bound here, so only the text matters.
	return models.NewAssistantMessage(resp.Content), true, nil
}

// nextDirective names the first incomplete worker in priority order, or the
// all-done sentinel.
func (c *Controller) nextDirective(completed map[string]bool) string {
	for _, name := range c.roster.Names() {
		if !completed[name] {
			return DelegateToken(name)
		}
	}
	return AllDoneSentinel
}
