package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/database"
	"bazaar/internal/models"
	"bazaar/internal/server"
)

func startMarketplace(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "roundtrip.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := server.New(store, nil, server.Options{AuthSecret: "test-secret"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestRegisterAndExecuteRoundTrip(t *testing.T) {
	ts := startMarketplace(t)
	ctx := context.Background()

	business := New(ts.URL, DefaultRetryPolicy())
	require.NoError(t, business.Connect())
	defer business.Close()

	_, err := business.Register(ctx, models.NewBusinessProfile(models.Business{
		ID:             "bakery-1",
		Name:           "Sweet Dreams Bakery",
		Rating:         4.5,
		MenuFeatures:   map[string]float64{"croissant": 3.5},
		MinPriceFactor: 0.8,
	}))
	require.NoError(t, err)
	assert.Equal(t, "bakery-1", business.AgentID())

	customer := New(ts.URL, DefaultRetryPolicy())
	require.NoError(t, customer.Connect())
	defer customer.Close()

	_, err = customer.Register(ctx, models.NewCustomerProfile(models.Customer{
		ID: "carol", Name: "Carol",
	}))
	require.NoError(t, err)

	result, err := customer.ExecuteAction(ctx, models.SearchAction{
		Query:     "bakery",
		Algorithm: "lexical",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var searchResp models.SearchResponse
	require.NoError(t, json.Unmarshal(result.Content, &searchResp))
	require.Len(t, searchResp.Businesses, 1)
	assert.Equal(t, "bakery-1", searchResp.Businesses[0].ID)

	page, err := customer.ListAgents(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, page.Agents, 2)

	profile, err := customer.GetAgent(ctx, "bakery-1")
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantBusiness, profile.Type)

	require.NoError(t, customer.CreateLog(ctx, models.Log{
		Level: models.LogInfo,
		Name:  "step",
	}))
}
