package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type discriminants, as stored on the wire.
const (
	MessageTypeText          = "text"
	MessageTypeOrderProposal = "order_proposal"
	MessageTypePayment       = "payment"
)

// Message is the payload of a SendMessage action: a text message, an order
// proposal, or a payment accepting a proposal.
type Message interface {
	MessageType() string
}

// TextMessage is a free-form chat message between two agents.
type TextMessage struct {
	Content string `json:"content"`
}

// MessageType implements Message.
func (TextMessage) MessageType() string { return MessageTypeText }

// OrderItem is a line item of an order proposal.
type OrderItem struct {
	ID        string  `json:"id"`
	ItemName  string  `json:"item_name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderProposal is a business-issued, itemized, price-committed offer. The
// total must equal the sum of unit_price x quantity across items, and every
// item must exist on the sending business's menu at its recorded price.
type OrderProposal struct {
	ID                  string      `json:"id"`
	Items               []OrderItem `json:"items"`
	TotalPrice          float64     `json:"total_price"`
	SpecialInstructions string      `json:"special_instructions,omitempty"`
	EstimatedDelivery   string      `json:"estimated_delivery,omitempty"`
	ExpiresAt           *time.Time  `json:"expires_at,omitempty"`
}

// MessageType implements Message.
func (OrderProposal) MessageType() string { return MessageTypeOrderProposal }

// Expired reports whether the proposal's expiry, if any, has passed at now.
func (p *OrderProposal) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Payment accepts a previously received order proposal by id.
type Payment struct {
	ProposalMessageID string `json:"proposal_message_id"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	DeliveryAddress   string `json:"delivery_address,omitempty"`
	PaymentMessage    string `json:"payment_message,omitempty"`
}

// MessageType implements Message.
func (Payment) MessageType() string { return MessageTypePayment }

// EncodeMessage serializes a message into its tagged wire form.
func EncodeMessage(m Message) (json.RawMessage, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.MessageType(), err)
	}
	// Splice the discriminant into the object.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.MessageType(), err)
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%q", m.MessageType()))
	return json.Marshal(fields)
}

// DecodeMessage parses a tagged wire message into its concrete type.
func DecodeMessage(data json.RawMessage) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch env.Type {
	case MessageTypeText:
		var m TextMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode text message: %w", err)
		}
		return m, nil
	case MessageTypeOrderProposal:
		var m OrderProposal
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode order proposal: %w", err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("decode order proposal: missing id")
		}
		if len(m.Items) == 0 {
			return nil, fmt.Errorf("decode order proposal %s: no items", m.ID)
		}
		for _, item := range m.Items {
			if item.Quantity < 1 {
				return nil, fmt.Errorf("decode order proposal %s: item %q has quantity %d", m.ID, item.ItemName, item.Quantity)
			}
			if item.UnitPrice < 0 {
				return nil, fmt.Errorf("decode order proposal %s: item %q has negative unit price", m.ID, item.ItemName)
			}
		}
		return m, nil
	case MessageTypePayment:
		var m Payment
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
		if m.ProposalMessageID == "" {
			return nil, fmt.Errorf("decode payment: missing proposal_message_id")
		}
		return m, nil
	default:
		return nil, fmt.Errorf("decode message: unknown type %q", env.Type)
	}
}
