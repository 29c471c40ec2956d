package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParticipantType discriminates the two kinds of marketplace participants.
type ParticipantType string

const (
	ParticipantBusiness ParticipantType = "business"
	ParticipantCustomer ParticipantType = "customer"
)

// Business is a marketplace seller profile. Immutable during a run except
// through full re-registration of the owning agent.
type Business struct {
	ID                 string             `json:"id" yaml:"id"`
	Name               string             `json:"name" yaml:"name"`
	Description        string             `json:"description" yaml:"description"`
	Rating             float64            `json:"rating" yaml:"rating"`
	ProgenitorCustomer string             `json:"progenitor_customer" yaml:"progenitor_customer"`
	MenuFeatures       map[string]float64 `json:"menu_features" yaml:"menu_features"`
	AmenityFeatures    map[string]bool    `json:"amenity_features" yaml:"amenity_features"`
	MinPriceFactor     float64            `json:"min_price_factor" yaml:"min_price_factor"`
}

// SearchableTextOptions selects which business fields feed the text-similarity
// search strategies. Name, description and menu item names are always indexed.
type SearchableTextOptions struct {
	IndexMenuPrices bool
	IndexAmenities  bool
}

// SearchableText formats the business for ranking: name and description,
// followed by menu items (optionally with prices) and optionally the
// amenities that are present. Map keys are emitted in sorted order so the
// text, and every score derived from it, is stable across calls.
func (b *Business) SearchableText(opts SearchableTextOptions) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(b.Name))
	sb.WriteString(", ")
	sb.WriteString(strings.TrimSpace(b.Description))
	sb.WriteString(", ")
	for _, item := range sortedKeys(b.MenuFeatures) {
		if opts.IndexMenuPrices {
			fmt.Fprintf(&sb, "(%s: %g), ", strings.TrimSpace(item), b.MenuFeatures[item])
		} else {
			sb.WriteString(strings.TrimSpace(item))
			sb.WriteString(", ")
		}
	}
	if opts.IndexAmenities {
		for _, amenity := range sortedKeys(b.AmenityFeatures) {
			if b.AmenityFeatures[amenity] {
				sb.WriteString(strings.TrimSpace(amenity))
				sb.WriteString(", ")
			}
		}
	}
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Customer is a marketplace buyer profile, read-only during a simulation.
// MenuFeatures maps desired item names to the customer's reference price;
// AmenityFeatures lists desired amenity names in preference order.
type Customer struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name" yaml:"name"`
	Request         string             `json:"request" yaml:"request"`
	MenuFeatures    map[string]float64 `json:"menu_features" yaml:"menu_features"`
	AmenityFeatures []string           `json:"amenity_features" yaml:"amenity_features"`
}

// AgentProfile is a registered marketplace participant. Exactly one of
// Business or Customer is set, as indicated by Type. Re-registering an
// existing ID replaces the whole payload, including the discriminant.
type AgentProfile struct {
	ID       string                 `json:"id"`
	Type     ParticipantType        `json:"type"`
	Business *Business              `json:"business,omitempty"`
	Customer *Customer              `json:"customer,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewBusinessProfile wraps a Business in an AgentProfile keyed by the
// business id.
func NewBusinessProfile(b Business) AgentProfile {
	return AgentProfile{ID: b.ID, Type: ParticipantBusiness, Business: &b}
}

// NewCustomerProfile wraps a Customer in an AgentProfile keyed by the
// customer id.
func NewCustomerProfile(c Customer) AgentProfile {
	return AgentProfile{ID: c.ID, Type: ParticipantCustomer, Customer: &c}
}

// Validate checks that the discriminant matches the populated payload.
func (p *AgentProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("agent profile: missing id")
	}
	switch p.Type {
	case ParticipantBusiness:
		if p.Business == nil {
			return fmt.Errorf("agent profile %q: type is business but business payload is missing", p.ID)
		}
		if p.Customer != nil {
			return fmt.Errorf("agent profile %q: type is business but customer payload is set", p.ID)
		}
		if p.Business.MinPriceFactor <= 0 || p.Business.MinPriceFactor > 1 {
			return fmt.Errorf("agent profile %q: min_price_factor %g outside (0, 1]", p.ID, p.Business.MinPriceFactor)
		}
	case ParticipantCustomer:
		if p.Customer == nil {
			return fmt.Errorf("agent profile %q: type is customer but customer payload is missing", p.ID)
		}
		if p.Business != nil {
			return fmt.Errorf("agent profile %q: type is customer but business payload is set", p.ID)
		}
	default:
		return fmt.Errorf("agent profile %q: unknown participant type %q", p.ID, p.Type)
	}
	return nil
}

// DecodeAgentProfile parses and validates a JSON agent profile.
func DecodeAgentProfile(data []byte) (AgentProfile, error) {
	var p AgentProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return AgentProfile{}, fmt.Errorf("decode agent profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return AgentProfile{}, err
	}
	return p, nil
}

// SearchConstraints are optional hard filters for business search. All
// fields are independent; nil or empty fields do not constrain.
type SearchConstraints struct {
	RatingThreshold *float64 `json:"rating_threshold,omitempty"`
	AmenityFeatures []string `json:"amenity_features,omitempty"`
	MenuItems       []string `json:"menu_items,omitempty"`
}
