package search

import "bazaar/internal/models"

// filteredStrategy applies the request's hard constraints and sorts the
// survivors by rating. Each constraint is optional and combines with the
// others conjunctively.
type filteredStrategy struct{}

func (filteredStrategy) Name() string { return "filtered" }

func (filteredStrategy) Rank(req Request, businesses []models.AgentProfile) []models.AgentProfile {
	c := req.Constraints
	if c == nil {
		return sortByRating(businesses)
	}
	var survivors []models.AgentProfile
	for _, p := range businesses {
		if satisfiesConstraints(p.Business, c) {
			survivors = append(survivors, p)
		}
	}
	return sortByRating(survivors)
}

func satisfiesConstraints(b *models.Business, c *models.SearchConstraints) bool {
	if c.RatingThreshold != nil && b.Rating < *c.RatingThreshold {
		return false
	}
	for _, amenity := range c.AmenityFeatures {
		if !b.AmenityFeatures[amenity] {
			return false
		}
	}
	for _, item := range c.MenuItems {
		if _, ok := b.MenuFeatures[item]; !ok {
			return false
		}
	}
	return true
}
