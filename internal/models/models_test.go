package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTagging(t *testing.T) {
	encoded, err := EncodeMessage(TextMessage{Content: "hello"})
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"type":"text"`)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, TextMessage{Content: "hello"}, decoded)

	_, err = DecodeMessage(json.RawMessage(`{"type":"carrier_pigeon"}`))
	assert.Error(t, err)
}

func TestDecodeOrderProposalValidation(t *testing.T) {
	valid := OrderProposal{
		ID:         "prop-1",
		Items:      []OrderItem{{ID: "i1", ItemName: "croissant", Quantity: 2, UnitPrice: 3.5}},
		TotalPrice: 7.0,
	}
	encoded, err := EncodeMessage(valid)
	require.NoError(t, err)
	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, valid, decoded)

	cases := map[string]string{
		"missing id":     `{"type":"order_proposal","items":[{"item_name":"x","quantity":1,"unit_price":1}],"total_price":1}`,
		"no items":       `{"type":"order_proposal","id":"p","items":[],"total_price":0}`,
		"zero quantity":  `{"type":"order_proposal","id":"p","items":[{"item_name":"x","quantity":0,"unit_price":1}],"total_price":0}`,
		"negative price": `{"type":"order_proposal","id":"p","items":[{"item_name":"x","quantity":1,"unit_price":-1}],"total_price":-1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage(json.RawMessage(raw))
			assert.Error(t, err)
		})
	}

	_, err = DecodeMessage(json.RawMessage(`{"type":"payment"}`))
	assert.Error(t, err, "payment without a proposal reference must not decode")
}

func TestOrderProposalExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	open := OrderProposal{ID: "p"}
	assert.False(t, open.Expired(now), "proposals without expiry never expire")

	expiring := OrderProposal{ID: "p", ExpiresAt: &later}
	assert.False(t, expiring.Expired(now))
	assert.True(t, expiring.Expired(later.Add(time.Minute)))
}

func TestSendMessageActionRoundTrip(t *testing.T) {
	action := SendMessageAction{
		FromAgentID: "bakery-1",
		ToAgentID:   "carol",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Message:     TextMessage{Content: "fresh croissants today"},
	}
	req, err := EncodeAction(action)
	require.NoError(t, err)
	assert.Equal(t, ActionNameSendMessage, req.Name)

	decoded, err := DecodeAction(req.Name, req.Parameters)
	require.NoError(t, err)
	got, ok := decoded.(SendMessageAction)
	require.True(t, ok)
	assert.Equal(t, action.FromAgentID, got.FromAgentID)
	assert.Equal(t, action.ToAgentID, got.ToAgentID)
	assert.Equal(t, TextMessage{Content: "fresh croissants today"}, got.Message)
}

func TestDecodeActionUnknownName(t *testing.T) {
	_, err := DecodeAction("teleport", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestAgentProfileValidate(t *testing.T) {
	business := NewBusinessProfile(Business{ID: "b1", Name: "B", MinPriceFactor: 0.8})
	require.NoError(t, business.Validate())

	customer := NewCustomerProfile(Customer{ID: "c1", Name: "C"})
	require.NoError(t, customer.Validate())

	bad := []AgentProfile{
		{Type: ParticipantCustomer, Customer: &Customer{}},
		{ID: "x", Type: ParticipantBusiness},
		{ID: "x", Type: ParticipantCustomer, Customer: &Customer{}, Business: &Business{}},
		{ID: "x", Type: "robot"},
		{ID: "x", Type: ParticipantBusiness, Business: &Business{MinPriceFactor: 0}},
		{ID: "x", Type: ParticipantBusiness, Business: &Business{MinPriceFactor: 1.5}},
	}
	for _, p := range bad {
		assert.Error(t, p.Validate())
	}
}

func TestSearchableText(t *testing.T) {
	b := Business{
		Name:            "Sweet Dreams Bakery",
		Description:     "Fresh pastries",
		MenuFeatures:    map[string]float64{"croissant": 3.5},
		AmenityFeatures: map[string]bool{"wifi": true, "parking": false},
	}

	plain := b.SearchableText(SearchableTextOptions{})
	assert.Contains(t, plain, "Sweet Dreams Bakery")
	assert.Contains(t, plain, "croissant")
	assert.NotContains(t, plain, "3.5")
	assert.NotContains(t, plain, "wifi")

	full := b.SearchableText(SearchableTextOptions{IndexMenuPrices: true, IndexAmenities: true})
	assert.Contains(t, full, "croissant: 3.5")
	assert.Contains(t, full, "wifi")
	assert.NotContains(t, full, "parking")
}

func TestSearchableTextStable(t *testing.T) {
	b := Business{
		Name: "Corner Deli",
		MenuFeatures: map[string]float64{
			"pastrami on rye": 12.0, "pickle plate": 4.0, "matzo ball soup": 7.5,
			"egg cream": 3.0, "knish": 5.0,
		},
		AmenityFeatures: map[string]bool{
			"counter seating": true, "delivery": true, "parking": true,
		},
	}
	opts := SearchableTextOptions{IndexMenuPrices: true, IndexAmenities: true}
	first := b.SearchableText(opts)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, b.SearchableText(opts))
	}
}
