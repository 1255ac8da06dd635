package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/tickerdesk/internal/agent"
)

const (
	// DefaultMaxDelegations caps worker dispatches per task.
	DefaultMaxDelegations = 10
	// DefaultMinFinalAnswerLength is the shortest orchestrator text treated
	// as a finished answer rather than a cue to synthesize.
	DefaultMinFinalAnswerLength = 200
)

// ErrNoEntities is returned when a report is requested for no tickers.
var ErrNoEntities = errors.New("no tickers or company names provided")

// ErrNoAnswer is returned when a task terminates without any text to report.
var ErrNoAnswer = errors.New("orchestrator produced no answer")

// Config is the immutable orchestration configuration. Build it once and
// pass it by value to NewEngine.
type Config struct {
	// Roster is the ordered worker table.
	Roster Roster
	// MaxDelegations caps worker dispatches per task.
	MaxDelegations int
	// MaxToolIterations caps tool rounds per worker run. Zero means a worker
	// never executes a tool.
	MaxToolIterations int
	// MinFinalAnswerLength is the router's final-answer threshold.
	MinFinalAnswerLength int
}

// DefaultConfig returns the standard caps for roster.
func DefaultConfig(roster Roster) Config {
	return Config{
		Roster:               roster,
		MaxDelegations:       DefaultMaxDelegations,
		MaxToolIterations:    agent.DefaultMaxToolIterations,
		MinFinalAnswerLength: DefaultMinFinalAnswerLength,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if err := c.Roster.Validate(); err != nil {
		return fmt.Errorf("invalid roster: %w", err)
	}
	if c.MaxDelegations < 0 {
		return fmt.Errorf("max delegations must be >= 0, got %d", c.MaxDelegations)
	}
	if c.MaxToolIterations < 0 {
		return fmt.Errorf("max tool iterations must be >= 0, got %d", c.MaxToolIterations)
	}
	if c.MinFinalAnswerLength < 0 {
		return fmt.Errorf("min final answer length must be >= 0, got %d", c.MinFinalAnswerLength)
	}
	return nil
}

// Policy returns the router policy derived from the config.
func (c Config) Policy() Policy {
	return Policy{
		MaxDelegations:       c.MaxDelegations,
		MinFinalAnswerLength: c.MinFinalAnswerLength,
	}
}

// clone copies the roster so later edits to the caller's slice cannot
// change a running engine.
func (c Config) clone() Config {
	roster := make(Roster, len(c.Roster))
	copy(roster, c.Roster)
	c.Roster = roster
	return c
}
