package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/models"
)

func market() []models.AgentProfile {
	return []models.AgentProfile{
		models.NewBusinessProfile(models.Business{
			ID:          "bakery-1",
			Name:        "Sweet Dreams Bakery",
			Description: "Fresh pastries and cakes",
			Rating:      4.5,
			MenuFeatures: map[string]float64{
				"croissant": 3.5,
				"cake":      18.0,
			},
			AmenityFeatures: map[string]bool{"outdoor_seating": true},
			MinPriceFactor:  0.8,
		}),
		models.NewBusinessProfile(models.Business{
			ID:          "sushi-1",
			Name:        "Sushi Paradise",
			Description: "Traditional sushi and sashimi",
			Rating:      4.8,
			MenuFeatures: map[string]float64{
				"nigiri": 12.0,
				"ramen":  14.0,
			},
			AmenityFeatures: map[string]bool{"delivery": true},
			MinPriceFactor:  0.7,
		}),
	}
}

func ids(profiles []models.AgentProfile) []string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.ID
	}
	return out
}

func TestSimpleSortsByRating(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	res, err := reg.Run("simple", Request{Query: "anything"}, market())
	require.NoError(t, err)
	assert.Equal(t, []string{"sushi-1", "bakery-1"}, ids(res.Businesses))
	assert.Equal(t, 2, res.TotalPossibleResults)
	assert.Equal(t, 1, res.TotalPages)
}

func TestLexicalRanksMatchingBusinessFirst(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	res, err := reg.Run("lexical", Request{Query: "bakery"}, market())
	require.NoError(t, err)
	assert.Equal(t, []string{"bakery-1", "sushi-1"}, ids(res.Businesses))
}

func TestLexicalEmptyQueryFallsBackToRating(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	res, err := reg.Run("lexical", Request{Query: "  "}, market())
	require.NoError(t, err)
	assert.Equal(t, []string{"sushi-1", "bakery-1"}, ids(res.Businesses))
}

func TestFilteredRatingThreshold(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	threshold := 5.0
	res, err := reg.Run("filtered", Request{
		Constraints: &models.SearchConstraints{RatingThreshold: &threshold},
	}, market())
	require.NoError(t, err)
	assert.Empty(t, res.Businesses)
	assert.Equal(t, 0, res.TotalPossibleResults)
	assert.Equal(t, 0, res.TotalPages)
}

func TestFilteredCombinesConstraints(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	threshold := 4.0
	res, err := reg.Run("filtered", Request{
		Constraints: &models.SearchConstraints{
			RatingThreshold: &threshold,
			MenuItems:       []string{"nigiri"},
			AmenityFeatures: []string{"delivery"},
		},
	}, market())
	require.NoError(t, err)
	assert.Equal(t, []string{"sushi-1"}, ids(res.Businesses))
}

func TestOptimalFiltersByCustomerMenu(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	customer := models.NewCustomerProfile(models.Customer{
		ID:           "carol",
		Name:         "Carol",
		MenuFeatures: map[string]float64{"croissant": 4.0},
	})
	res, err := reg.Run("optimal", Request{Searcher: &customer}, market())
	require.NoError(t, err)
	assert.Equal(t, []string{"bakery-1"}, ids(res.Businesses))

	// No requested items matches the whole market, rating first.
	empty := models.NewCustomerProfile(models.Customer{ID: "dave", Name: "Dave"})
	res, err = reg.Run("optimal", Request{Searcher: &empty}, market())
	require.NoError(t, err)
	assert.Equal(t, []string{"sushi-1", "bakery-1"}, ids(res.Businesses))
}

func TestSemanticIsDeterministicAndCached(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	first, err := reg.Run("semantic", Request{Query: "fresh pastries"}, market())
	require.NoError(t, err)
	second, err := reg.Run("semantic", Request{Query: "fresh pastries"}, market())
	require.NoError(t, err)
	assert.Equal(t, ids(first.Businesses), ids(second.Businesses))
	assert.Equal(t, "bakery-1", first.Businesses[0].ID)
}

func TestSemanticEmptyQueryFallsBackToRating(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	res, err := reg.Run("semantic", Request{}, market())
	require.NoError(t, err)
	assert.Equal(t, []string{"sushi-1", "bakery-1"}, ids(res.Businesses))
}

func TestRunPagination(t *testing.T) {
	businesses := market()
	reg := NewRegistry(models.SearchableTextOptions{})

	page1, err := reg.Run("simple", Request{Limit: 1, Page: 1}, businesses)
	require.NoError(t, err)
	require.Len(t, page1.Businesses, 1)
	assert.Equal(t, "sushi-1", page1.Businesses[0].ID)
	assert.Equal(t, 2, page1.TotalPossibleResults)
	assert.Equal(t, 2, page1.TotalPages)

	page2, err := reg.Run("simple", Request{Limit: 1, Page: 2}, businesses)
	require.NoError(t, err)
	require.Len(t, page2.Businesses, 1)
	assert.Equal(t, "bakery-1", page2.Businesses[0].ID)

	beyond, err := reg.Run("simple", Request{Limit: 1, Page: 5}, businesses)
	require.NoError(t, err)
	assert.Empty(t, beyond.Businesses)
}

func TestRunUnknownAlgorithm(t *testing.T) {
	reg := NewRegistry(models.SearchableTextOptions{})
	_, err := reg.Run("mystery", Request{}, market())
	assert.Error(t, err)
}

func TestSearchableTextOptions(t *testing.T) {
	b := models.Business{
		Name:            "Cafe",
		Description:     "Coffee",
		MenuFeatures:    map[string]float64{"latte": 4.5},
		AmenityFeatures: map[string]bool{"wifi": true, "parking": false},
	}

	plain := b.SearchableText(models.SearchableTextOptions{})
	assert.Contains(t, plain, "Cafe")
	assert.Contains(t, plain, "latte")
	assert.NotContains(t, plain, "4.5")
	assert.NotContains(t, plain, "wifi")

	rich := b.SearchableText(models.SearchableTextOptions{IndexMenuPrices: true, IndexAmenities: true})
	assert.Contains(t, rich, "4.5")
	assert.Contains(t, rich, "wifi")
	assert.NotContains(t, rich, "parking")
}
