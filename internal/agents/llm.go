package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"bazaar/internal/models"
)

// DefaultDecisionAttempts bounds the retry-until-well-formed loop.
const DefaultDecisionAttempts = 3

const decisionSystemPrompt = `You are an agent in a marketplace simulation.
Each turn, reply with a single JSON object and nothing else:
{"done": bool, "reason": string, "action": {"name": string, "parameters": object} | null}
The action name must be one of "search", "send_message", "fetch_messages".`

// LLMDecisionClient produces decisions from a language model, re-prompting
// with a corrective message on every malformed reply up to a fixed attempt
// count, then failing with an aggregated error listing the inner failures.
type LLMDecisionClient struct {
	model       llms.LLM
	maxAttempts int
}

// NewLLMDecisionClient wraps the model. attempts <= 0 selects the default.
func NewLLMDecisionClient(model llms.LLM, attempts int) *LLMDecisionClient {
	if attempts <= 0 {
		attempts = DefaultDecisionAttempts
	}
	return &LLMDecisionClient{model: model, maxAttempts: attempts}
}

// decisionPayload is the wire shape the model must produce.
type decisionPayload struct {
	Done   bool   `json:"done"`
	Reason string `json:"reason"`
	Action *struct {
		Name       string          `json:"name"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"action"`
}

// Decide implements DecisionClient.
func (c *LLMDecisionClient) Decide(ctx context.Context, step StepContext) (Decision, error) {
	conversation := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, decisionSystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, formatStepPrompt(step)),
	}

	var failures []string
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.model.GenerateContent(ctx, conversation)
		if err != nil {
			failures = append(failures, fmt.Sprintf("attempt %d: %v", attempt, err))
			continue
		}
		if len(resp.Choices) == 0 {
			failures = append(failures, fmt.Sprintf("attempt %d: empty response", attempt))
			continue
		}
		text := resp.Choices[0].Content

		decision, err := parseDecision(text)
		if err == nil {
			return decision, nil
		}
		failures = append(failures, fmt.Sprintf("attempt %d: %v", attempt, err))
		conversation = append(conversation,
			llms.TextParts(schema.ChatMessageTypeAI, text),
			llms.TextParts(schema.ChatMessageTypeHuman,
				fmt.Sprintf("That reply was not a valid decision (%v). Reply with only the JSON object.", err)),
		)
	}
	return Decision{}, fmt.Errorf("no well-formed decision after %d attempts: %s",
		c.maxAttempts, strings.Join(failures, "; "))
}

// parseDecision validates the model output into a typed decision.
func parseDecision(text string) (Decision, error) {
	text = strings.TrimSpace(text)
	// Tolerate fenced output, a common model tic.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload decisionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Decision{}, fmt.Errorf("parse decision: %w", err)
	}
	decision := Decision{Done: payload.Done, Reason: payload.Reason}
	if payload.Action != nil {
		action, err := models.DecodeAction(payload.Action.Name, payload.Action.Parameters)
		if err != nil {
			return Decision{}, err
		}
		decision.Action = action
	}
	return decision, nil
}

func formatStepPrompt(step StepContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %q (%s), step %d.\n", step.Profile.ID, step.Profile.Type, step.Step)
	if step.Profile.Customer != nil && step.Profile.Customer.Request != "" {
		fmt.Fprintf(&sb, "Your goal: %s\n", step.Profile.Customer.Request)
	}
	if len(step.Inbox) == 0 {
		sb.WriteString("Inbox: empty.\n")
	} else {
		fmt.Fprintf(&sb, "Inbox (%d new):\n", len(step.Inbox))
		for _, m := range step.Inbox {
			fmt.Fprintf(&sb, "- from %s: %s\n", m.FromAgentID, string(m.Message))
		}
	}
	if step.LastResult != nil {
		fmt.Fprintf(&sb, "Previous action result: %s\n", string(step.LastResult.Content))
	}
	sb.WriteString("Decide your next action.")
	return sb.String()
}
