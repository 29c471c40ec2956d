package protocol

import (
	"encoding/json"
	"math"
	"time"

	"bazaar/internal/database"
	"bazaar/internal/models"
)

// priceTolerance absorbs float rounding when checking proposal arithmetic.
const priceTolerance = 1e-6

// sendMessageAck is the success content of a send_message action.
type sendMessageAck struct {
	Status      string `json:"status"`
	ToAgentID   string `json:"to_agent_id"`
	MessageType string `json:"message_type"`
}

func (e *Executor) executeSendMessage(a models.SendMessageAction) models.ExecutionResult {
	if verr := e.validateSendMessage(a); verr != nil {
		return models.ErrorResult(verr.Detail())
	}
	result, err := models.OKResult(sendMessageAck{
		Status:      "delivered",
		ToAgentID:   a.ToAgentID,
		MessageType: a.Message.MessageType(),
	})
	if err != nil {
		return models.ErrorResult(models.ErrorDetail{
			ErrorType: ErrorTypeInvalidParameters,
			Message:   err.Error(),
		})
	}
	return result
}

func (e *Executor) validateSendMessage(a models.SendMessageAction) *ValidationError {
	if _, err := e.store.Agents().GetByID(a.ToAgentID); err != nil {
		return validationErrorf(ErrorTypeUnknownRecipient,
			"recipient agent %q is not registered", a.ToAgentID)
	}

	switch msg := a.Message.(type) {
	case models.TextMessage:
		return nil
	case models.OrderProposal:
		return e.validateOrderProposal(a, msg)
	case models.Payment:
		return e.validatePayment(a, msg)
	default:
		return validationErrorf(ErrorTypeInvalidParameters,
			"unsupported message type %q", a.Message.MessageType())
	}
}

// validateOrderProposal checks the proposal against the sending business's
// live menu, rejecting on the first violated invariant.
func (e *Executor) validateOrderProposal(a models.SendMessageAction, p models.OrderProposal) *ValidationError {
	sender, err := e.store.Agents().GetByID(a.FromAgentID)
	if err != nil || sender.Data.Type != models.ParticipantBusiness || sender.Data.Business == nil {
		return validationErrorf(ErrorTypeInvalidBusiness,
			"order proposals may only be sent by a registered business, %q is not one", a.FromAgentID)
	}
	recipient, err := e.store.Agents().GetByID(a.ToAgentID)
	if err != nil || recipient.Data.Type != models.ParticipantCustomer {
		return validationErrorf(ErrorTypeInvalidCustomer,
			"order proposals may only be sent to a customer, %q is not one", a.ToAgentID)
	}

	business := sender.Data.Business
	var sum float64
	for _, item := range p.Items {
		menuPrice, ok := business.MenuFeatures[item.ItemName]
		if !ok {
			verr := validationErrorf(ErrorTypeInvalidMenuItem,
				"item %q is not on the menu of business %q", item.ItemName, business.ID)
			verr.ClosestMatch = closestMenuItem(item.ItemName, business.MenuFeatures)
			return verr
		}
		floor := menuPrice * business.MinPriceFactor
		if item.UnitPrice < floor-priceTolerance || item.UnitPrice > menuPrice+priceTolerance {
			return validationErrorf(ErrorTypeInvalidMenuItemPrice,
				"item %q priced at %.2f, outside the accepted range %.2f to %.2f",
				item.ItemName, item.UnitPrice, floor, menuPrice)
		}
		sum += item.UnitPrice * float64(item.Quantity)
	}
	if math.Abs(sum-p.TotalPrice) > priceTolerance {
		return validationErrorf(ErrorTypeInvalidTotalPrice,
			"total_price %.2f does not match the item sum %.2f", p.TotalPrice, sum)
	}
	return nil
}

// validatePayment resolves the referenced proposal among messages previously
// exchanged between the same two agents. The proposal must exist, be
// unexpired, and not already settled by an earlier payment.
func (e *Executor) validatePayment(a models.SendMessageAction, pay models.Payment) *ValidationError {
	exchanged, err := e.messagesBetween(a.FromAgentID, a.ToAgentID)
	if err != nil {
		return validationErrorf(ErrorTypeInvalidProposal,
			"resolve proposal %q: %v", pay.ProposalMessageID, err)
	}

	var proposal *models.OrderProposal
	settled := false
	for _, m := range exchanged {
		msg, err := models.DecodeMessage(m.Message)
		if err != nil {
			continue
		}
		switch typed := msg.(type) {
		case models.OrderProposal:
			if typed.ID == pay.ProposalMessageID {
				p := typed
				proposal = &p
			}
		case models.Payment:
			if typed.ProposalMessageID == pay.ProposalMessageID {
				settled = true
			}
		}
	}

	if proposal == nil || proposal.Expired(e.now()) || settled {
		return validationErrorf(ErrorTypeInvalidProposal,
			"No unexpired order proposals found matching id %q between %q and %q",
			pay.ProposalMessageID, a.FromAgentID, a.ToAgentID)
	}
	return nil
}

// messagesBetween returns every successfully delivered message exchanged in
// either direction between the two agents, in recording order.
func (e *Executor) messagesBetween(agentA, agentB string) ([]models.ReceivedMessage, error) {
	rows, err := e.store.Actions().GetAll(database.RangeParams{}, 0)
	if err != nil {
		return nil, err
	}
	var out []models.ReceivedMessage
	for _, row := range rows {
		m, ok := deliveredMessage(row)
		if !ok {
			continue
		}
		if (m.FromAgentID == agentA && m.ToAgentID == agentB) ||
			(m.FromAgentID == agentB && m.ToAgentID == agentA) {
			out = append(out, m)
		}
	}
	return out, nil
}

// deliveredMessage extracts the message from a successful send_message
// action row without fully decoding the payload.
func deliveredMessage(row database.ActionRow) (models.ReceivedMessage, bool) {
	if row.Data.Request.Name != models.ActionNameSendMessage || row.Data.Result.IsError {
		return models.ReceivedMessage{}, false
	}
	var params struct {
		FromAgentID string          `json:"from_agent_id"`
		ToAgentID   string          `json:"to_agent_id"`
		CreatedAt   time.Time       `json:"created_at"`
		Message     json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(row.Data.Request.Parameters, &params); err != nil {
		return models.ReceivedMessage{}, false
	}
	return models.ReceivedMessage{
		FromAgentID: params.FromAgentID,
		ToAgentID:   params.ToAgentID,
		CreatedAt:   params.CreatedAt,
		Message:     params.Message,
		RowIndex:    row.RowIndex,
	}, true
}
