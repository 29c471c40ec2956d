// Package search implements the interchangeable ranking strategies behind
// the marketplace search action. Strategies are pure functions over the
// currently registered business set; the shared entry point handles
// pagination and result totals.
package search

import (
	"fmt"
	"sort"
	"sync"

	"bazaar/internal/models"
)

// DefaultLimit caps a page when the caller does not ask for a size.
const DefaultLimit = 10

// Request carries everything a strategy may consult. Searcher is the profile
// of the agent performing the search; only some strategies use it.
type Request struct {
	Query       string
	Constraints *models.SearchConstraints
	Searcher    *models.AgentProfile
	Limit       int
	Page        int
}

// Strategy ranks the registered businesses for one request. Implementations
// must be deterministic for a fixed business set and must not mutate it.
type Strategy interface {
	Name() string
	Rank(req Request, businesses []models.AgentProfile) []models.AgentProfile
}

// Registry holds the named strategies available to the search action.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns a registry preloaded with the built-in strategies,
// using opts to shape the searchable text of the text-similarity strategies.
func NewRegistry(opts models.SearchableTextOptions) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(simpleStrategy{})
	r.Register(filteredStrategy{})
	r.Register(&lexicalStrategy{opts: opts})
	r.Register(optimalStrategy{})
	r.Register(newSemanticStrategy(opts))
	return r
}

// Register adds or replaces a strategy under its own name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Run looks up the named strategy, ranks the full business set and returns
// the requested page together with the unpaginated totals.
func (r *Registry) Run(algorithm string, req Request, businesses []models.AgentProfile) (models.SearchResponse, error) {
	r.mu.RLock()
	strategy, ok := r.strategies[algorithm]
	r.mu.RUnlock()
	if !ok {
		return models.SearchResponse{}, fmt.Errorf("unknown search algorithm %q", algorithm)
	}

	ranked := strategy.Rank(req, businesses)

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	total := len(ranked)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return models.SearchResponse{
		Businesses:           append([]models.AgentProfile{}, ranked[start:end]...),
		Algorithm:            strategy.Name(),
		TotalPossibleResults: total,
		TotalPages:           totalPages,
	}, nil
}

// sortByRating orders businesses by rating descending, ties by id ascending.
// The input slice is copied.
func sortByRating(businesses []models.AgentProfile) []models.AgentProfile {
	out := append([]models.AgentProfile{}, businesses...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Business.Rating, out[j].Business.Rating
		if ri != rj {
			return ri > rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}
