// Package llm suggests job policy for issues via the Anthropic API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skybridgehq/skybridge/internal/models"
)

// Triage is the LLM's recommendation for handling one issue.
type Triage struct {
	AutonomyLevel string `json:"autonomy_level"`
	Skill         string `json:"skill"`
	Rationale     string `json:"rationale"`
}

// Autonomy parses the recommended level, falling back to analysis when the
// model returned something outside the enum.
func (t Triage) Autonomy() models.AutonomyLevel {
	level, err := models.ParseAutonomyLevel(t.AutonomyLevel)
	if err != nil {
		return models.AutonomyAnalysis
	}
	return level
}

// Client wraps the Anthropic API for issue triage.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildTriagePrompt constructs the system and user prompts for triage.
func buildTriagePrompt(title, body string) (system string, user string) {
	system = `You triage GitHub issues for an automation platform that runs AI coding agents. Return ONLY a JSON object with these fields:
- "autonomy_level": one of "analysis", "development", "review", "publish"
  - "analysis": the issue needs investigation only, no code changes
  - "development": the agent should change code but a human commits
  - "review": the agent should change code and a human must review before merge
  - "publish": the change is trivial and safe enough to commit automatically
- "skill": one of "analyze-issue", "resolve-issue", "review-issue"
- "rationale": one sentence explaining the recommendation

Rules:
- Prefer the least autonomy that gets the work done
- Recommend "publish" only for mechanical changes (typos, dependency bumps, formatting)
- Vague or underspecified issues get "analysis"
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Triage this issue:\n\n")
	fmt.Fprintf(&sb, "Title: %s\n\n", title)
	if body != "" {
		fmt.Fprintf(&sb, "Body:\n%s\n", body)
	}
	user = sb.String()
	return
}

// TriageIssue asks the model for an autonomy level and skill recommendation.
func (c *Client) TriageIssue(ctx context.Context, title, body string) (*Triage, error) {
	systemPrompt, userPrompt := buildTriagePrompt(title, body)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseTriage(text)
}

// parseTriage decodes the model's JSON, tolerating markdown fencing.
func parseTriage(text string) (*Triage, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var triage Triage
	if err := json.Unmarshal([]byte(text), &triage); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &triage, nil
}
