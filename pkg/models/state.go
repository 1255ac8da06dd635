package models

// TaskState is the unit of data threaded through every orchestration step.
// A fresh TaskState is created per request and discarded once the task ends.
type TaskState struct {
	// Conversation is the append-only message history.
	Conversation []Message `json:"conversation"`
	// DelegationCount is the number of worker dispatches so far. Never decremented.
	DelegationCount int `json:"delegation_count"`
	// ToolIterationCount counts tool rounds of the worker currently running.
	ToolIterationCount int `json:"tool_iteration_count"`
}

// NewTaskState creates a state seeded with the given messages.
func NewTaskState(messages ...Message) TaskState {
	conv := make([]Message, len(messages))
	copy(conv, messages)
	return TaskState{Conversation: conv}
}

// Latest returns the last message of the conversation.
func (s TaskState) Latest() (Message, bool) {
	if len(s.Conversation) == 0 {
		return Message{}, false
	}
	return s.Conversation[len(s.Conversation)-1], true
}

// StateDelta is the partial update a step returns to the control loop.
type StateDelta struct {
	// Messages are appended to the conversation in order.
	Messages []Message
	// Delegations is added to DelegationCount. Negative values are ignored.
	Delegations int
	// ToolIterations is added to ToolIterationCount. Negative values are ignored.
	ToolIterations int
	// ResetToolIterations zeroes ToolIterationCount before ToolIterations is added.
	ResetToolIterations bool
}

// Merge applies delta to old and returns the new state. Counters use integer
// addition, messages use append, and old is never mutated.
func Merge(old TaskState, delta StateDelta) TaskState {
	conv := make([]Message, 0, len(old.Conversation)+len(delta.Messages))
	conv = append(conv, old.Conversation...)
	conv = append(conv, delta.Messages...)

	next := TaskState{
		Conversation:       conv,
		DelegationCount:    old.DelegationCount,
		ToolIterationCount: old.ToolIterationCount,
	}
	if delta.Delegations > 0 {
		next.DelegationCount += delta.Delegations
	}
	if delta.ResetToolIterations {
		next.ToolIterationCount = 0
	}
	if delta.ToolIterations > 0 {
		next.ToolIterationCount += delta.ToolIterations
	}
	return next
}
