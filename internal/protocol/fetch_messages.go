package protocol

import (
	"fmt"

	"bazaar/internal/database"
	"bazaar/internal/models"
)

// executeFetchMessages returns the messages previously delivered to the
// caller, oldest first, optionally filtered by sender and windowed by
// offset/limit. AfterIndex lets pollers resume past rows they have seen.
func (e *Executor) executeFetchMessages(agentID string, a models.FetchMessagesAction) models.ExecutionResult {
	rows, err := e.store.Actions().GetAll(database.RangeParams{AfterIndex: a.AfterIndex}, 0)
	if err != nil {
		return models.ErrorResult(models.ErrorDetail{
			ErrorType: ErrorTypeInvalidParameters,
			Message:   fmt.Sprintf("read action stream: %v", err),
		})
	}

	var inbox []models.ReceivedMessage
	for _, row := range rows {
		m, ok := deliveredMessage(row)
		if !ok || m.ToAgentID != agentID {
			continue
		}
		if a.FromAgentID != "" && m.FromAgentID != a.FromAgentID {
			continue
		}
		inbox = append(inbox, m)
	}

	start := a.Offset
	if start > len(inbox) {
		start = len(inbox)
	}
	end := len(inbox)
	if a.Limit > 0 && start+a.Limit < end {
		end = start + a.Limit
	}

	response := models.FetchMessagesResponse{
		Messages: inbox[start:end],
		HasMore:  end < len(inbox),
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
