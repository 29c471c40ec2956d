package search

import "bazaar/internal/models"

// simpleStrategy ignores the query and constraints entirely and returns the
// market sorted by rating.
type simpleStrategy struct{}

func (simpleStrategy) Name() string { return "simple" }

func (simpleStrategy) Rank(_ Request, businesses []models.AgentProfile) []models.AgentProfile {
	return sortByRating(businesses)
}
