package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/tickerdesk/pkg/models"
)

// Action is the transition chosen by Route.
type Action string

const (
	ActionDispatch   Action = "dispatch"
	ActionSynthesize Action = "synthesize"
	ActionTerminate  Action = "terminate"
)

// Policy holds the router's tunables.
type Policy struct {
	MaxDelegations       int
	MinFinalAnswerLength int
}

// Decision is the output of Route.
type Decision struct {
	Action Action
	// Worker is set for ActionDispatch.
	Worker string
	// FinalAnswer is the orchestrator text returned as the report when the
	// task terminates without synthesis. Empty when there is nothing to return.
	FinalAnswer string
	// Reason explains the decision for logs.
	Reason string
	// CapReached is true when the delegation cap forced the decision.
	CapReached bool
}

// Route decides the next transition from the latest directive, the set of
// completed workers and the delegation count. Rules apply in order: the
// delegation cap, then dispatch tokens for incomplete workers, then
// completion inference. It is a pure function.
func Route(latest models.Message, completed map[string]bool, delegationCount int, roster Roster, policy Policy) Decision {
	anyCompleted := len(completed) > 0

	if delegationCount >= policy.MaxDelegations {
		reason := fmt.Sprintf("delegation cap reached (%d/%d)", delegationCount, policy.MaxDelegations)
		if anyCompleted {
			return Decision{Action: ActionSynthesize, Reason: reason, CapReached: true}
		}
		return Decision{Action: ActionTerminate, Reason: reason, CapReached: true}
	}

	text := strings.TrimSpace(latest.Content)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, DelegatePrefix) {
			continue
		}
		name := strings.TrimPrefix(line, DelegatePrefix)
		if _, ok := roster.Lookup(name); !ok {
			continue
		}
		if completed[name] {
			continue
		}
		return Decision{Action: ActionDispatch, Worker: name, Reason: "found " + line}
	}

	if !anyCompleted {
		return Decision{Action: ActionTerminate, FinalAnswer: text, Reason: "no worker completed and no dispatch token"}
	}

	switch {
	case hasLine(text, AllDoneSentinel):
		return Decision{Action: ActionSynthesize, Reason: "all-done sentinel"}
	case len(text) < policy.MinFinalAnswerLength:
		return Decision{Action: ActionSynthesize, Reason: fmt.Sprintf("directive too short for a final answer (%d chars)", len(text))}
	case strings.HasPrefix(text, DelegatePrefix):
		return Decision{Action: ActionSynthesize, Reason: "stale dispatch directive"}
	default:
		return Decision{Action: ActionTerminate, FinalAnswer: text, Reason: "orchestrator wrote a final answer"}
	}
}

func hasLine(text, want string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
