package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybridgehq/skybridge/internal/models"
)

func TestListMappingAutonomy(t *testing.T) {
	m := DefaultListMapping()

	tests := []struct {
		list string
		want models.AutonomyLevel
	}{
		{"Backlog", models.AutonomyAnalysis},
		{"In Progress", models.AutonomyDevelopment},
		{"  review ", models.AutonomyReview},
		{"PUBLISH", models.AutonomyPublish},
		{"Some Custom List", models.AutonomyAnalysis},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, m.Autonomy(tc.list), tc.list)
	}
}

func TestCardTrackerSkipsJobsWithoutCard(t *testing.T) {
	called := false
	tracker := NewCardTracker(commentFunc(func(context.Context, string, string) error {
		called = true
		return nil
	}), nil)

	job := models.NewJob(models.NewWebhookEvent(models.SourceGitHub, "issues.opened", "d-1", json.RawMessage(`{}`)))
	require.NoError(t, tracker.Report(context.Background(), job, "started", "x"))
	assert.False(t, called)
}

func TestCardTrackerPostsComment(t *testing.T) {
	var gotCard, gotText string
	tracker := NewCardTracker(commentFunc(func(_ context.Context, cardID, text string) error {
		gotCard, gotText = cardID, text
		return nil
	}), nil)

	job := models.NewJob(models.NewWebhookEvent(models.SourceTrello, "card.moved", "d-2", json.RawMessage(`{}`)))
	job.SetMeta(models.MetaTrelloCardID, "card-99")

	require.NoError(t, tracker.Report(context.Background(), job, "completed", "skill resolve-issue finished"))
	assert.Equal(t, "card-99", gotCard)
	assert.Contains(t, gotText, "completed")
	assert.Contains(t, gotText, job.JobID)
}

type commentFunc func(ctx context.Context, cardID, text string) error

func (f commentFunc) Comment(ctx context.Context, cardID, text string) error {
	return f(ctx, cardID, text)
}

func TestTrelloClientComment(t *testing.T) {
	var gotPath, gotText, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotText = r.FormValue("text")
		gotKey = r.FormValue("key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewTrelloClient("k", "tok")
	c.baseURL = srv.URL

	require.NoError(t, c.Comment(context.Background(), "abc", "hello"))
	assert.Equal(t, "/cards/abc/actions/comments", gotPath)
	assert.Equal(t, "hello", gotText)
	assert.Equal(t, "k", gotKey)
}

func TestTrelloClientCommentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewTrelloClient("k", "tok")
	c.baseURL = srv.URL

	err := c.Comment(context.Background(), "abc", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
