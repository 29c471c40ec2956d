package agents

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"bazaar/internal/client"
	"bazaar/internal/database"
	"bazaar/internal/models"
	"bazaar/internal/server"
)

// MockLLM is a mock implementation of the LLM interface
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	args := m.Called(ctx, messages)
	if resp := args.Get(0); resp != nil {
		return resp.(*llms.ContentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func contentResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

// idleDecisions never acts and never finishes; business loops in tests use
// it to run until shutdown.
type idleDecisions struct{}

func (idleDecisions) Decide(context.Context, StepContext) (Decision, error) {
	return Decision{}, nil
}

func startMarketplace(t *testing.T) (*httptest.Server, database.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "agents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := server.New(store, nil, server.Options{AuthSecret: "test-secret"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func fastClient(url string) *client.Client {
	policy := client.DefaultRetryPolicy()
	policy.BaseDelay = time.Millisecond
	policy.MaxDelay = 10 * time.Millisecond
	return client.New(url, policy)
}

func TestScriptedDecisionsExhaustion(t *testing.T) {
	script := NewScriptedDecisions(
		Decision{Action: models.SearchAction{Algorithm: "simple"}},
	)

	d, err := script.Decide(context.Background(), StepContext{})
	require.NoError(t, err)
	require.NotNil(t, d.Action)
	assert.False(t, d.Done)

	d, err = script.Decide(context.Background(), StepContext{})
	require.NoError(t, err)
	assert.True(t, d.Done)
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision(`{"done": false, "action": {"name": "search", "parameters": {"query": "sushi", "algorithm": "lexical"}}}`)
	require.NoError(t, err)
	require.NotNil(t, d.Action)
	assert.Equal(t, models.ActionNameSearch, d.Action.ActionName())

	// Fenced output is tolerated.
	d, err = parseDecision("```json\n{\"done\": true, \"reason\": \"bought\", \"action\": null}\n```")
	require.NoError(t, err)
	assert.True(t, d.Done)
	assert.Nil(t, d.Action)

	_, err = parseDecision(`{"action": {"name": "teleport", "parameters": {}}}`)
	assert.Error(t, err)

	_, err = parseDecision("I think I should search for sushi")
	assert.Error(t, err)
}

func TestLLMDecisionRetriesUntilWellFormed(t *testing.T) {
	model := new(MockLLM)
	model.On("GenerateContent", mock.Anything, mock.Anything).
		Return(contentResponse("not json"), nil).Once()
	model.On("GenerateContent", mock.Anything, mock.Anything).
		Return(contentResponse(`{"done": true, "reason": "finished", "action": null}`), nil).Once()

	c := NewLLMDecisionClient(model, 3)
	d, err := c.Decide(context.Background(), StepContext{Profile: models.NewCustomerProfile(models.Customer{ID: "carol"})})
	require.NoError(t, err)
	assert.True(t, d.Done)
	model.AssertNumberOfCalls(t, "GenerateContent", 2)
}

func TestLLMDecisionAggregatesFailures(t *testing.T) {
	model := new(MockLLM)
	model.On("GenerateContent", mock.Anything, mock.Anything).
		Return(contentResponse("still not json"), nil)

	c := NewLLMDecisionClient(model, 2)
	_, err := c.Decide(context.Background(), StepContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 attempts")
	assert.Contains(t, err.Error(), "attempt 1")
	assert.Contains(t, err.Error(), "attempt 2")
	model.AssertNumberOfCalls(t, "GenerateContent", 2)
}

func TestCustomerRuntimeStopsAtStepLimit(t *testing.T) {
	ts, _ := startMarketplace(t)

	runtime := NewCustomerRuntime(
		fastClient(ts.URL),
		models.NewCustomerProfile(models.Customer{ID: "carol", Name: "Carol"}),
		idleDecisions{},
		time.Millisecond,
		3,
	)

	done := make(chan error, 1)
	go func() { done <- runtime.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not stop at its step limit")
	}
}

func TestLauncherOrderingAndShutdown(t *testing.T) {
	ts, store := startMarketplace(t)

	business := NewBusinessRuntime(
		fastClient(ts.URL),
		models.NewBusinessProfile(models.Business{
			ID:             "bakery-1",
			Name:           "Sweet Dreams Bakery",
			Rating:         4.5,
			MenuFeatures:   map[string]float64{"croissant": 3.5},
			MinPriceFactor: 0.8,
		}),
		idleDecisions{},
		time.Millisecond,
	)
	customer := NewCustomerRuntime(
		fastClient(ts.URL),
		models.NewCustomerProfile(models.Customer{ID: "carol", Name: "Carol"}),
		NewScriptedDecisions(
			Decision{Action: models.SearchAction{Query: "bakery", Algorithm: "lexical"}},
			Decision{Done: true, Reason: "found it"},
		),
		time.Millisecond,
		10,
	)

	launcher := NewLauncher()
	launcher.AddDependent(business)
	launcher.AddPrimary(customer)

	done := make(chan error, 1)
	go func() { done <- launcher.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("launcher did not terminate")
	}

	// The customer's search ran against a populated market: the business
	// registered before any primary started.
	rows, err := store.Actions().GetAll(database.RangeParams{}, 0)
	require.NoError(t, err)
	var searched bool
	for _, row := range rows {
		if row.Data.Request.Name != models.ActionNameSearch || row.Data.AgentID != "carol" {
			continue
		}
		searched = true
		require.False(t, row.Data.Result.IsError)
		var resp models.SearchResponse
		require.NoError(t, json.Unmarshal(row.Data.Result.Content, &resp))
		assert.Equal(t, 1, resp.TotalPossibleResults)
	}
	assert.True(t, searched, "customer search was never recorded")
}
