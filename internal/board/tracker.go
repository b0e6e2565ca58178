package board

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skybridgehq/skybridge/internal/models"
)

// CardClient is the narrow surface the tracker needs from a board API.
type CardClient interface {
	Comment(ctx context.Context, cardID, text string) error
}

// CardTracker posts job progress as card comments. It satisfies the
// orchestrator's ProgressReporter; errors it returns are logged by the
// caller and never fail the job.
type CardTracker struct {
	client CardClient
	logger *slog.Logger
}

// NewCardTracker creates a tracker posting through the given client.
func NewCardTracker(client CardClient, logger *slog.Logger) *CardTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CardTracker{client: client, logger: logger}
}

// Report comments on the job's card, if the job carries one. Jobs without a
// card annotation are silently skipped.
func (t *CardTracker) Report(ctx context.Context, job *models.Job, stage, detail string) error {
	cardID := job.Metadata[models.MetaTrelloCardID]
	if cardID == "" {
		return nil
	}
	text := fmt.Sprintf("[skybridge] %s: %s (job %s)", stage, detail, job.JobID)
	t.logger.Debug("posting card comment", "card_id", cardID, "stage", stage)
	return t.client.Comment(ctx, cardID, text)
}

// TrelloClient posts comments through the Trello REST API.
type TrelloClient struct {
	baseURL string
	key     string
	token   string
	http    *http.Client
}

// NewTrelloClient creates a client authenticated with an API key and token.
func NewTrelloClient(key, token string) *TrelloClient {
	return &TrelloClient{
		baseURL: "https://api.trello.com/1",
		key:     key,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Comment adds a comment action to a card.
func (c *TrelloClient) Comment(ctx context.Context, cardID, text string) error {
	endpoint := fmt.Sprintf("%s/cards/%s/actions/comments", c.baseURL, url.PathEscape(cardID))
	form := url.Values{
		"key":   {c.key},
		"token": {c.token},
		"text":  {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build comment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post card comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post card comment: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// LoggingClient is the fallback when no board credentials are configured:
// comments land in the log instead of on a card.
type LoggingClient struct {
	logger *slog.Logger
}

// NewLoggingClient creates the log-only client.
func NewLoggingClient(logger *slog.Logger) *LoggingClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingClient{logger: logger}
}

func (c *LoggingClient) Comment(_ context.Context, cardID, text string) error {
	c.logger.Info("card comment", "card_id", cardID, "text", text)
	return nil
}
