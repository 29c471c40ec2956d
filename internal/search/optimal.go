package search

import "bazaar/internal/models"

// optimalStrategy keeps only businesses whose menu covers every item the
// searching customer asked for, then sorts by rating. Non-customer searchers
// and customers with no requested items match the whole market.
type optimalStrategy struct{}

func (optimalStrategy) Name() string { return "optimal" }

func (optimalStrategy) Rank(req Request, businesses []models.AgentProfile) []models.AgentProfile {
	var wanted []string
	if req.Searcher != nil && req.Searcher.Customer != nil {
		for item := range req.Searcher.Customer.MenuFeatures {
			wanted = append(wanted, item)
		}
	}
	if len(wanted) == 0 {
		return sortByRating(businesses)
	}
	var survivors []models.AgentProfile
	for _, p := range businesses {
		if menuCovers(p.Business.MenuFeatures, wanted) {
			survivors = append(survivors, p)
		}
	}
	return sortByRating(survivors)
}

func menuCovers(menu map[string]float64, wanted []string) bool {
	for _, item := range wanted {
		if _, ok := menu[item]; !ok {
			return false
		}
	}
	return true
}
