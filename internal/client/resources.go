package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"bazaar/internal/models"
)

// registerResponse mirrors the server's registration payload.
type registerResponse struct {
	Agent models.AgentProfile `json:"agent"`
	Token string              `json:"token"`
}

// Register upserts the profile and stores the returned token on the handle;
// subsequent action and log calls authenticate as this agent.
func (c *Client) Register(ctx context.Context, profile models.AgentProfile) (models.AgentProfile, error) {
	if err := profile.Validate(); err != nil {
		return models.AgentProfile{}, err
	}
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/agents", profile, &resp); err != nil {
		return models.AgentProfile{}, fmt.Errorf("register agent %s: %w", profile.ID, err)
	}
	c.setIdentity(resp.Agent.ID, resp.Token)
	return resp.Agent, nil
}

// GetAgent fetches one registered profile by id.
func (c *Client) GetAgent(ctx context.Context, id string) (models.AgentProfile, error) {
	var profile models.AgentProfile
	if err := c.do(ctx, http.MethodGet, "/api/v1/agents/"+url.PathEscape(id), nil, &profile); err != nil {
		return models.AgentProfile{}, fmt.Errorf("get agent %s: %w", id, err)
	}
	return profile, nil
}

// AgentPage is one page of registered agents.
type AgentPage struct {
	Agents  []models.AgentProfile `json:"agents"`
	HasMore bool                  `json:"has_more"`
}

// ListAgents pages through the registered agents.
func (c *Client) ListAgents(ctx context.Context, limit, offset int) (AgentPage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/agents"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var page AgentPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return AgentPage{}, fmt.Errorf("list agents: %w", err)
	}
	return page, nil
}

// ExecuteAction runs one marketplace action as the registered agent. A
// structured error result is not a Go error; the caller inspects IsError.
func (c *Client) ExecuteAction(ctx context.Context, action models.Action) (models.ExecutionResult, error) {
	req, err := models.EncodeAction(action)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	var result models.ExecutionResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/actions/execute", req, &result); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("execute %s: %w", req.Name, err)
	}
	return result, nil
}

// CreateLog appends one record to the durable log stream.
func (c *Client) CreateLog(ctx context.Context, entry models.Log) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/logs", entry, nil); err != nil {
		return fmt.Errorf("create log %s: %w", entry.Name, err)
	}
	return nil
}
