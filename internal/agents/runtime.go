package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"bazaar/internal/client"
	"bazaar/internal/models"
)

// DefaultPollInterval paces the step loop when no interval is configured.
const DefaultPollInterval = 2 * time.Second

// Runtime is one agent: an independent polling loop executing at most one
// action decision per cycle. Customers stop after their step limit or when
// their decision client reports done; businesses run until Shutdown.
type Runtime struct {
	client    *client.Client
	profile   models.AgentProfile
	decisions DecisionClient
	interval  time.Duration
	maxSteps  int

	shutdown chan struct{}
	stopOnce sync.Once

	started   chan struct{}
	startOnce sync.Once
}

// NewCustomerRuntime builds a primary runtime that stops after maxSteps
// cycles (0 means unbounded) or when its decision client reports done.
func NewCustomerRuntime(cl *client.Client, profile models.AgentProfile, decisions DecisionClient, interval time.Duration, maxSteps int) *Runtime {
	return newRuntime(cl, profile, decisions, interval, maxSteps)
}

// NewBusinessRuntime builds a dependent runtime that runs until externally
// signaled.
func NewBusinessRuntime(cl *client.Client, profile models.AgentProfile, decisions DecisionClient, interval time.Duration) *Runtime {
	return newRuntime(cl, profile, decisions, interval, 0)
}

func newRuntime(cl *client.Client, profile models.AgentProfile, decisions DecisionClient, interval time.Duration, maxSteps int) *Runtime {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Runtime{
		client:    cl,
		profile:   profile,
		decisions: decisions,
		interval:  interval,
		maxSteps:  maxSteps,
		shutdown:  make(chan struct{}),
		started:   make(chan struct{}),
	}
}

// ID returns the agent id this runtime acts as.
func (r *Runtime) ID() string { return r.profile.ID }

// Shutdown signals the loop to stop after the current cycle. Safe to call
// more than once.
func (r *Runtime) Shutdown() {
	r.stopOnce.Do(func() { close(r.shutdown) })
}

// Started is closed once the agent is registered (or its run has failed),
// letting the launcher hold primaries back until the market is populated.
func (r *Runtime) Started() <-chan struct{} {
	return r.started
}

func (r *Runtime) markStarted() {
	r.startOnce.Do(func() { close(r.started) })
}

func (r *Runtime) willShutdown() bool {
	select {
	case <-r.shutdown:
		return true
	default:
		return false
	}
}

// Run registers the agent and drives the step loop until completion,
// shutdown, or an unrecoverable error. Cancellation is checked once per
// cycle, never mid-action.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.markStarted()

	if err := r.client.Connect(); err != nil {
		return err
	}
	defer r.client.Close()

	if _, err := r.client.Register(ctx, r.profile); err != nil {
		return err
	}
	r.markStarted()
	log.Info().Str("agent_id", r.profile.ID).Str("type", string(r.profile.Type)).Msg("agent started")

	var (
		lastIndex  int64
		lastResult *models.ExecutionResult
	)
	for step := 1; ; step++ {
		if ctx.Err() != nil || r.willShutdown() {
			return nil
		}

		inbox, err := r.fetchInbox(ctx, lastIndex)
		if err != nil {
			return fmt.Errorf("agent %s: %w", r.profile.ID, err)
		}
		for _, m := range inbox {
			if m.RowIndex > lastIndex {
				lastIndex = m.RowIndex
			}
		}

		decision, err := r.decisions.Decide(ctx, StepContext{
			Profile:    r.profile,
			Step:       step,
			Inbox:      inbox,
			LastResult: lastResult,
		})
		if err != nil {
			r.logStep(ctx, models.LogError, step, fmt.Sprintf("decision failed: %v", err))
			return fmt.Errorf("agent %s step %d: %w", r.profile.ID, step, err)
		}

		if decision.Action != nil {
			result, err := r.client.ExecuteAction(ctx, decision.Action)
			if err != nil {
				r.logStep(ctx, models.LogError, step, fmt.Sprintf("action failed: %v", err))
				return fmt.Errorf("agent %s step %d: %w", r.profile.ID, step, err)
			}
			lastResult = &result
			level := models.LogInfo
			if result.IsError {
				level = models.LogWarning
			}
			r.logStep(ctx, level, step, fmt.Sprintf("executed %s", decision.Action.ActionName()))
		}

		if decision.Done {
			log.Info().Str("agent_id", r.profile.ID).Int("steps", step).Str("reason", decision.Reason).Msg("agent finished")
			return nil
		}
		if r.maxSteps > 0 && step >= r.maxSteps {
			log.Info().Str("agent_id", r.profile.ID).Int("steps", step).Msg("agent reached step limit")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.shutdown:
			return nil
		case <-time.After(r.interval):
		}
	}
}

// fetchInbox polls for messages recorded after lastIndex.
func (r *Runtime) fetchInbox(ctx context.Context, lastIndex int64) ([]models.ReceivedMessage, error) {
	result, err := r.client.ExecuteAction(ctx, models.FetchMessagesAction{AfterIndex: lastIndex})
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, nil
	}
	var response models.FetchMessagesResponse
	if err := json.Unmarshal(result.Content, &response); err != nil {
		return nil, fmt.Errorf("decode inbox: %w", err)
	}
	return response.Messages, nil
}

// logStep records the cycle outcome on the durable log stream; failures to
// log are not fatal to the run.
func (r *Runtime) logStep(ctx context.Context, level models.LogLevel, step int, message string) {
	data, _ := json.Marshal(map[string]interface{}{"agent_id": r.profile.ID, "step": step})
	if err := r.client.CreateLog(ctx, models.Log{
		Level:   level,
		Name:    "agent_step",
		Message: message,
		Data:    data,
	}); err != nil {
		log.Warn().Err(err).Str("agent_id", r.profile.ID).Msg("log write failed")
	}
}
