// Package webhook turns GitHub and Trello deliveries into queued jobs and
// serves the read-only status API.
package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/skybridgehq/skybridge/internal/models"
)

// GitHubIssueEvent is the slice of a GitHub issues payload Skybridge reads.
type GitHubIssueEvent struct {
	Action string `json:"action"`
	Issue  struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	} `json:"issue"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ParseGitHubEvent converts a GitHub webhook delivery into a WebhookEvent.
// Only "issues" deliveries are actionable; everything else returns
// (nil, 0, nil) so the handler can acknowledge without enqueueing.
func ParseGitHubEvent(eventName, deliveryID string, body []byte) (*models.WebhookEvent, int, error) {
	if eventName != "issues" {
		return nil, 0, nil
	}
	if deliveryID == "" {
		return nil, 0, fmt.Errorf("missing delivery ID")
	}

	var payload GitHubIssueEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, 0, fmt.Errorf("parse issues payload: %w", err)
	}
	if payload.Action == "" {
		return nil, 0, fmt.Errorf("issues payload has no action")
	}

	eventType := "issues." + payload.Action
	ev := models.NewWebhookEvent(models.SourceGitHub, eventType, deliveryID, json.RawMessage(body))
	return &ev, payload.Issue.Number, nil
}

// TrelloAction is the slice of a Trello webhook payload Skybridge reads.
type TrelloAction struct {
	Action struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Card struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"card"`
			ListAfter struct {
				Name string `json:"name"`
			} `json:"listAfter"`
			ListBefore struct {
				Name string `json:"name"`
			} `json:"listBefore"`
		} `json:"data"`
	} `json:"action"`
}

// ParseTrelloEvent converts a Trello webhook delivery into a WebhookEvent.
// Only card moves between lists are actionable; other action types return
// (nil, "", "", nil).
func ParseTrelloEvent(body []byte) (*models.WebhookEvent, string, string, error) {
	var payload TrelloAction
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", "", fmt.Errorf("parse trello payload: %w", err)
	}
	if payload.Action.Type != "updateCard" || payload.Action.Data.ListAfter.Name == "" {
		return nil, "", "", nil
	}
	if payload.Action.ID == "" {
		return nil, "", "", fmt.Errorf("trello action has no ID")
	}

	ev := models.NewWebhookEvent(models.SourceTrello, "card.moved", payload.Action.ID, json.RawMessage(body))
	return &ev, payload.Action.Data.Card.ID, payload.Action.Data.ListAfter.Name, nil
}
