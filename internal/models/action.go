package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action name discriminants, as stored on the wire.
const (
	ActionNameSearch        = "search"
	ActionNameSendMessage   = "send_message"
	ActionNameFetchMessages = "fetch_messages"
)

// ErrUnknownAction is returned by DecodeAction for an unrecognized name.
var ErrUnknownAction = errors.New("unknown action")

// Action is one of the three marketplace operations an agent may request.
type Action interface {
	ActionName() string
}

// SearchAction asks the marketplace to rank registered businesses.
type SearchAction struct {
	Query       string             `json:"query"`
	Algorithm   string             `json:"algorithm"`
	Constraints *SearchConstraints `json:"constraints,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	Page        int                `json:"page,omitempty"`
}

// ActionName implements Action.
func (SearchAction) ActionName() string { return ActionNameSearch }

// SendMessageAction delivers a message from one agent to another.
type SendMessageAction struct {
	FromAgentID string    `json:"from_agent_id"`
	ToAgentID   string    `json:"to_agent_id"`
	CreatedAt   time.Time `json:"created_at"`
	Message     Message   `json:"-"`
}

// ActionName implements Action.
func (SendMessageAction) ActionName() string { return ActionNameSendMessage }

// MarshalJSON writes the message inline under the "message" key with its
// type tag.
func (a SendMessageAction) MarshalJSON() ([]byte, error) {
	msg, err := EncodeMessage(a.Message)
	if err != nil {
		return nil, err
	}
	type alias struct {
		FromAgentID string          `json:"from_agent_id"`
		ToAgentID   string          `json:"to_agent_id"`
		CreatedAt   time.Time       `json:"created_at"`
		Message     json.RawMessage `json:"message"`
	}
	return json.Marshal(alias{a.FromAgentID, a.ToAgentID, a.CreatedAt, msg})
}

// UnmarshalJSON parses the tagged message payload.
func (a *SendMessageAction) UnmarshalJSON(data []byte) error {
	var alias struct {
		FromAgentID string          `json:"from_agent_id"`
		ToAgentID   string          `json:"to_agent_id"`
		CreatedAt   time.Time       `json:"created_at"`
		Message     json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	if len(alias.Message) == 0 {
		return fmt.Errorf("send_message: missing message payload")
	}
	msg, err := DecodeMessage(alias.Message)
	if err != nil {
		return err
	}
	a.FromAgentID = alias.FromAgentID
	a.ToAgentID = alias.ToAgentID
	a.CreatedAt = alias.CreatedAt
	a.Message = msg
	return nil
}

// FetchMessagesAction retrieves messages previously sent to the caller.
// AfterIndex lets pollers skip rows they have already seen.
type FetchMessagesAction struct {
	FromAgentID string `json:"from_agent_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	AfterIndex  int64  `json:"after_index,omitempty"`
}

// ActionName implements Action.
func (FetchMessagesAction) ActionName() string { return ActionNameFetchMessages }

// DecodeAction parses action parameters for the named operation.
func DecodeAction(name string, params json.RawMessage) (Action, error) {
	switch name {
	case ActionNameSearch:
		var a SearchAction
		if err := json.Unmarshal(params, &a); err != nil {
			return nil, fmt.Errorf("decode search action: %w", err)
		}
		return a, nil
	case ActionNameSendMessage:
		var a SendMessageAction
		if err := json.Unmarshal(params, &a); err != nil {
			return nil, fmt.Errorf("decode send_message action: %w", err)
		}
		return a, nil
	case ActionNameFetchMessages:
		var a FetchMessagesAction
		if err := json.Unmarshal(params, &a); err != nil {
			return nil, fmt.Errorf("decode fetch_messages action: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, name)
	}
}

// EncodeAction serializes an action into (name, parameters) wire form.
func EncodeAction(a Action) (ActionRequest, error) {
	params, err := json.Marshal(a)
	if err != nil {
		return ActionRequest{}, fmt.Errorf("encode %s action: %w", a.ActionName(), err)
	}
	return ActionRequest{Name: a.ActionName(), Parameters: params}, nil
}

// ActionRequest is the wire form of a requested action.
type ActionRequest struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

// ExecutionResult is the outcome of an attempted action. Validation failures
// set IsError with a structured ErrorDetail as content; they are recoverable
// and always recorded.
type ExecutionResult struct {
	IsError bool            `json:"is_error"`
	Content json.RawMessage `json:"content"`
}

// ErrorDetail is the structured content of a failed action result.
type ErrorDetail struct {
	ErrorType    string `json:"error_type"`
	Message      string `json:"message"`
	ClosestMatch string `json:"closest_match,omitempty"`
}

// OKResult wraps a successful payload as an ExecutionResult.
func OKResult(content interface{}) (ExecutionResult, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("encode action result: %w", err)
	}
	return ExecutionResult{Content: raw}, nil
}

// ErrorResult wraps a structured error as a failed ExecutionResult.
func ErrorResult(detail ErrorDetail) ExecutionResult {
	raw, _ := json.Marshal(detail)
	return ExecutionResult{IsError: true, Content: raw}
}

// ErrorDetailOf extracts the structured error from a failed result. The
// second return is false for successful results.
func ErrorDetailOf(res ExecutionResult) (ErrorDetail, bool) {
	if !res.IsError {
		return ErrorDetail{}, false
	}
	var d ErrorDetail
	if err := json.Unmarshal(res.Content, &d); err != nil {
		return ErrorDetail{Message: string(res.Content)}, true
	}
	return d, true
}

// ActionRecord is the durable payload of one attempted action: who asked,
// what they asked for, and what came back. Every attempt, successful or
// rejected, produces exactly one record before the caller sees the response.
type ActionRecord struct {
	AgentID string          `json:"agent_id"`
	Request ActionRequest   `json:"request"`
	Result  ExecutionResult `json:"result"`
}

// SearchResponse is the successful content of a search action.
type SearchResponse struct {
	Businesses           []AgentProfile `json:"businesses"`
	Algorithm            string         `json:"algorithm"`
	TotalPossibleResults int            `json:"total_possible_results"`
	TotalPages           int            `json:"total_pages"`
}

// ReceivedMessage is one message returned by fetch_messages, annotated with
// the action row index it was recorded under so pollers can resume from it.
type ReceivedMessage struct {
	FromAgentID string          `json:"from_agent_id"`
	ToAgentID   string          `json:"to_agent_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Message     json.RawMessage `json:"message"`
	RowIndex    int64           `json:"row_index"`
}

// FetchMessagesResponse is the successful content of a fetch_messages action.
type FetchMessagesResponse struct {
	Messages []ReceivedMessage `json:"messages"`
	HasMore  bool              `json:"has_more"`
}
