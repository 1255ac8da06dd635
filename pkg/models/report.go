package models

import "time"

// Report is the final output of a task: the full markdown report and a short
// condensation of it, always returned together.
type Report struct {
	// ID is assigned when the report is persisted.
	ID string `json:"id,omitempty"`
	// Entities are the tickers or company names the report covers.
	Entities []string `json:"tickers"`
	// Report is the full markdown report.
	Report string `json:"report_markdown"`
	// Summary is the condensed version of Report.
	Summary string `json:"summary"`
	// Delegations is the number of worker dispatches the task used.
	Delegations int `json:"delegations"`
	// Synthesized is false when the orchestrator wrote the final answer itself.
	Synthesized bool `json:"synthesized"`
	// CreatedAt is when the report was produced.
	CreatedAt time.Time `json:"created_at"`
}
