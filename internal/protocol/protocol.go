// Package protocol validates and executes marketplace actions. Every
// attempted action, successful or rejected, is durably recorded before the
// caller sees its result, so post-hoc analysis can tell a misbehaving agent
// from one that never tried.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/database"
	"bazaar/internal/models"
	"bazaar/internal/search"
)

// FetchPersistence controls whether fetch_messages actions are themselves
// recorded to the action stream.
type FetchPersistence string

const (
	// FetchPersistAll records every fetch, including empty ones.
	FetchPersistAll FetchPersistence = "all"
	// FetchPersistNonEmpty records only fetches that returned messages or
	// failed.
	FetchPersistNonEmpty FetchPersistence = "non_empty"
	// FetchPersistNone never records fetches.
	FetchPersistNone FetchPersistence = "none"
)

// Executor ties persistence and search together behind the single action
// entry point. It holds no mutable state of its own; restarts are safe.
type Executor struct {
	store            database.Store
	search           *search.Registry
	fetchPersistence FetchPersistence
	now              func() time.Time
	recordHook       func(database.ActionRow)
}

// Option configures an Executor.
type Option func(*Executor)

// WithFetchPersistence sets the recording policy for fetch_messages actions.
func WithFetchPersistence(mode FetchPersistence) Option {
	return func(e *Executor) { e.fetchPersistence = mode }
}

// WithClock overrides the time source used for proposal expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithRecordHook registers a callback invoked after each action is recorded.
func WithRecordHook(fn func(database.ActionRow)) Option {
	return func(e *Executor) { e.recordHook = fn }
}

// NewExecutor builds an Executor over the given store and search registry.
func NewExecutor(store database.Store, registry *search.Registry, opts ...Option) *Executor {
	e := &Executor{
		store:            store,
		search:           registry,
		fetchPersistence: FetchPersistAll,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one action on behalf of agentID. Validation failures come
// back as a structured error result with a nil error; a non-nil error means
// the persistence layer itself failed and nothing can be trusted.
func (e *Executor) Execute(agentID string, req models.ActionRequest) (models.ExecutionResult, error) {
	result, persist := e.dispatch(agentID, &req)
	if persist {
		if err := e.record(agentID, req, result); err != nil {
			return models.ExecutionResult{}, err
		}
	}
	return result, nil
}

func (e *Executor) dispatch(agentID string, req *models.ActionRequest) (models.ExecutionResult, bool) {
	action, err := models.DecodeAction(req.Name, req.Parameters)
	if err != nil {
		errorType := ErrorTypeInvalidParameters
		if errors.Is(err, models.ErrUnknownAction) {
			errorType = ErrorTypeUnknownAction
		}
		return models.ErrorResult(models.ErrorDetail{ErrorType: errorType, Message: err.Error()}), true
	}

	switch a := action.(type) {
	case models.SearchAction:
		return e.executeSearch(agentID, a), true
	case models.SendMessageAction:
		// The authenticated caller is the sender regardless of what the
		// parameters claim; the recorded request reflects the normalized
		// form so later scans see the true sender and timestamp.
		a.FromAgentID = agentID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = e.now().UTC()
		}
		if normalized, err := models.EncodeAction(a); err == nil {
			req.Parameters = normalized.Parameters
		}
		return e.executeSendMessage(a), true
	case models.FetchMessagesAction:
		result := e.executeFetchMessages(agentID, a)
		return result, e.shouldPersistFetch(result)
	default:
		return models.ErrorResult(models.ErrorDetail{
			ErrorType: ErrorTypeUnknownAction,
			Message:   fmt.Sprintf("unhandled action %q", req.Name),
		}), true
	}
}

func (e *Executor) shouldPersistFetch(result models.ExecutionResult) bool {
	switch e.fetchPersistence {
	case FetchPersistNone:
		return false
	case FetchPersistNonEmpty:
		if result.IsError {
			return true
		}
		var content models.FetchMessagesResponse
		if err := json.Unmarshal(result.Content, &content); err != nil {
			return true
		}
		return len(content.Messages) > 0
	default:
		return true
	}
}

func (e *Executor) record(agentID string, req models.ActionRequest, result models.ExecutionResult) error {
	row, err := e.store.Actions().Create(database.ActionRow{
		ID: uuid.NewString(),
		Data: models.ActionRecord{
			AgentID: agentID,
			Request: req,
			Result:  result,
		},
	})
	if err != nil {
		return fmt.Errorf("record action %s for agent %s: %w", req.Name, agentID, err)
	}
	if e.recordHook != nil {
		e.recordHook(row)
	}
	return nil
}

// executeSearch ranks the currently registered businesses for the caller.
func (e *Executor) executeSearch(agentID string, a models.SearchAction) models.ExecutionResult {
	var searcher *models.AgentProfile
	if row, err := e.store.Agents().GetByID(agentID); err == nil {
		searcher = &row.Data
	}

	agentRows, err := e.store.Agents().GetAll(database.RangeParams{}, 0)
	if err != nil {
		return models.ErrorResult(models.ErrorDetail{
			ErrorType: ErrorTypeInvalidParameters,
			Message:   fmt.Sprintf("list agents: %v", err),
		})
	}
	var businesses []models.AgentProfile
	for _, row := range agentRows {
		if row.Data.Type == models.ParticipantBusiness && row.Data.Business != nil {
			businesses = append(businesses, row.Data)
		}
	}

	response, err := e.search.Run(a.Algorithm, search.Request{
		Query:       a.Query,
		Constraints: a.Constraints,
		Searcher:    searcher,
		Limit:       a.Limit,
		Page:        a.Page,
	}, businesses)
	if err != nil {
		return models.ErrorResult(models.ErrorDetail{
			ErrorType: ErrorTypeInvalidParameters,
			Message:   err.Error(),
		})
	}
	result, err := models.OKResult(response)
	if err != nil {
		return models.ErrorResult(models.ErrorDetail{
			ErrorType: ErrorTypeInvalidParameters,
			Message:   err.Error(),
		})
	}
	return result
}
