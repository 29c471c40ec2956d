// Package agents contains the simulation runtimes: customer and business
// polling loops, the launcher that orders their lifecycles, and the decision
// clients that choose each cycle's action.
package agents

import (
	"context"
	"sync"

	"bazaar/internal/models"
)

// StepContext is everything a decision client may consult for one cycle.
type StepContext struct {
	Profile    models.AgentProfile
	Step       int
	Inbox      []models.ReceivedMessage
	LastResult *models.ExecutionResult
}

// Decision is the outcome of one cycle: at most one action, and optionally
// the judgement that the agent's goal is complete.
type Decision struct {
	Action models.Action
	Done   bool
	Reason string
}

// DecisionClient chooses what an agent does each cycle. The runtime only
// requires that a returned action be one of the three marketplace actions
// with valid parameters; how the decision is produced is the client's
// business.
type DecisionClient interface {
	Decide(ctx context.Context, step StepContext) (Decision, error)
}

// ScriptedDecisions replays a fixed sequence of decisions, then reports
// done. Useful for deterministic experiments and tests.
type ScriptedDecisions struct {
	mu    sync.Mutex
	steps []Decision
	next  int
}

// NewScriptedDecisions builds a client that returns the given decisions in
// order.
func NewScriptedDecisions(steps ...Decision) *ScriptedDecisions {
	return &ScriptedDecisions{steps: steps}
}

// Decide implements DecisionClient.
func (s *ScriptedDecisions) Decide(_ context.Context, _ StepContext) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.steps) {
		return Decision{Done: true, Reason: "script exhausted"}, nil
	}
	d := s.steps[s.next]
	s.next++
	return d, nil
}
