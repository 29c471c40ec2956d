// Package server exposes the marketplace over HTTP: agent registration with
// upsert semantics, agent lookup, action execution, the durable log stream,
// and a websocket feed of recorded actions. The server keeps no state
// outside the persistence layer, so it can restart and resume against an
// existing store.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bazaar/internal/database"
	"bazaar/internal/models"
	"bazaar/internal/monitoring"
	"bazaar/internal/protocol"
	"bazaar/internal/search"
)

const contextKeyAgentID = "agent_id"

// Options configure a Server beyond its store.
type Options struct {
	AuthSecret       string
	FetchPersistence protocol.FetchPersistence
	SearchableText   models.SearchableTextOptions
}

// Server ties persistence, protocol, and search together behind gin routes.
type Server struct {
	router   *gin.Engine
	store    database.Store
	executor *protocol.Executor
	metrics  *monitoring.Metrics
	hub      *feedHub
	secret   []byte
}

// New builds the server and its routes.
func New(store database.Store, metrics *monitoring.Metrics, opts Options) *Server {
	s := &Server{
		router:  gin.New(),
		store:   store,
		metrics: metrics,
		hub:     newFeedHub(metrics),
		secret:  []byte(opts.AuthSecret),
	}

	registry := search.NewRegistry(opts.SearchableText)
	executorOpts := []protocol.Option{
		protocol.WithRecordHook(s.hub.Broadcast),
	}
	if opts.FetchPersistence != "" {
		executorOpts = append(executorOpts, protocol.WithFetchPersistence(opts.FetchPersistence))
	}
	s.executor = protocol.NewExecutor(store, registry, executorOpts...)

	s.router.Use(gin.Recovery())
	if metrics != nil {
		s.router.Use(metrics.Middleware())
	}
	s.setupRoutes()
	return s
}

// Router returns the underlying handler for http.Server or tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/ws", s.handleActionFeed)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/agents", s.registerAgent)
		v1.GET("/agents/:id", s.getAgent)
		v1.GET("/agents", s.listAgents)

		authed := v1.Group("", s.authMiddleware())
		authed.POST("/actions/execute", s.executeAction)
		authed.POST("/logs", s.createLog)
		v1.GET("/logs", s.listLogs)
	}
}

// registerResponse is returned by POST /agents.
type registerResponse struct {
	Agent models.AgentProfile `json:"agent"`
	Token string              `json:"token"`
}

// registerAgent upserts the posted profile and issues the caller's token.
// Re-registering an existing id replaces the whole payload.
func (s *Server) registerAgent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := models.DecodeAgentProfile(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.store.Agents().Upsert(database.AgentRow{ID: profile.ID, Data: profile}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	token, err := s.issueToken(profile.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("agent_id", profile.ID).Str("type", string(profile.Type)).Msg("agent registered")
	c.JSON(http.StatusOK, registerResponse{Agent: profile, Token: token})
}

func (s *Server) getAgent(c *gin.Context) {
	row, err := s.store.Agents().GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, row.Data)
}

// listResponse pages through agents or logs.
type listResponse struct {
	Agents  []models.AgentProfile `json:"agents,omitempty"`
	Logs    []database.LogRow     `json:"logs,omitempty"`
	HasMore bool                  `json:"has_more"`
}

func (s *Server) listAgents(c *gin.Context) {
	params := rangeFromQuery(c)
	probe := params
	if probe.Limit > 0 {
		probe.Limit++
	}
	rows, err := s.store.Agents().GetAll(probe, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	hasMore := params.Limit > 0 && len(rows) > params.Limit
	if hasMore {
		rows = rows[:params.Limit]
	}
	agents := make([]models.AgentProfile, len(rows))
	for i, row := range rows {
		agents[i] = row.Data
	}
	c.JSON(http.StatusOK, listResponse{Agents: agents, HasMore: hasMore})
}

// executeRequest is the body of POST /actions/execute. The caller's identity
// comes from the token, never from the body.
type executeRequest struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

// executeAction runs one action for the authenticated agent. The attempt is
// durably recorded before the response is written.
func (s *Server) executeAction(c *gin.Context) {
	agentID := callerAgentID(c)
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	started := time.Now()
	result, err := s.executor.Execute(agentID, models.ActionRequest{
		Name:       req.Name,
		Parameters: req.Parameters,
	})
	if err != nil {
		log.Error().Err(err).Str("agent_id", agentID).Str("action", req.Name).Msg("action execution failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveAction(req.Name, result.IsError, time.Since(started))
	}
	c.JSON(http.StatusOK, result)
}

// createLog appends one diagnostic record to the durable log stream.
func (s *Server) createLog(c *gin.Context) {
	var entry models.Log
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row, err := s.store.Logs().Create(database.LogRow{ID: uuid.NewString(), Data: entry})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": row.ID, "row_index": row.RowIndex})
}

func (s *Server) listLogs(c *gin.Context) {
	params := rangeFromQuery(c)
	probe := params
	if probe.Limit > 0 {
		probe.Limit++
	}
	rows, err := s.store.Logs().GetAll(probe, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	hasMore := params.Limit > 0 && len(rows) > params.Limit
	if hasMore {
		rows = rows[:params.Limit]
	}
	c.JSON(http.StatusOK, listResponse{Logs: rows, HasMore: hasMore})
}

// rangeFromQuery maps limit/offset/after_index query params onto the
// persistence range contract.
func rangeFromQuery(c *gin.Context) database.RangeParams {
	atoi := func(name string) int {
		v, _ := strconv.Atoi(c.Query(name))
		return v
	}
	after, _ := strconv.ParseInt(c.Query("after_index"), 10, 64)
	return database.RangeParams{
		Limit:      atoi("limit"),
		Offset:     atoi("offset"),
		AfterIndex: after,
	}
}
