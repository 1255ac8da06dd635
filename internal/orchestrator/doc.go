// Package orchestrator routes a report task across a fixed roster of worker
// agents and merges their results into one report.
//
// The control loop is a small state machine:
//
//	START -> ORCHESTRATING <-> WORKER(name) -> SYNTHESIZING -> DONE
//
// The Controller produces a directive, Route maps it to dispatch, synthesize
// or terminate, and the Engine applies each step to the task state through
// models.Merge. Two caps bound the work: MaxDelegations across the task and
// MaxToolIterations inside each worker run.
//
// Example usage:
//
//	engine, err := orchestrator.NewEngine(cfg, planner)
//	report, err := engine.GenerateReport(ctx, []string{"NVDA", "AAPL"})
package orchestrator
