package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	ev := NewWebhookEvent(SourceGitHub, "issues.opened", "delivery-1", json.RawMessage(`{"issue":{"number":42}}`))
	job := NewJob(ev)

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, job.JobID, job.CorrelationID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, "issues.opened", job.Event.EventType)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestSetMetaAllocates(t *testing.T) {
	job := &Job{}
	job.SetMeta(MetaSkipped, "true")
	assert.Equal(t, "true", job.Metadata[MetaSkipped])
}

func TestJobJSONRoundTrip(t *testing.T) {
	ev := NewWebhookEvent(SourceTrello, "card.moved", "act-9", json.RawMessage(`{}`))
	job := NewJob(ev)
	job.IssueNumber = 7
	job.Autonomy = AutonomyReview
	job.SetMeta(MetaTrelloCardID, "abc123")

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var got Job
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, 7, got.IssueNumber)
	assert.Equal(t, AutonomyReview, got.Autonomy)
	assert.Equal(t, "abc123", got.Metadata[MetaTrelloCardID])
}

func TestAddThinkingCapsLength(t *testing.T) {
	r := &AgentResult{}
	long := make([]byte, maxThinkingLen+500)
	for i := range long {
		long[i] = 'x'
	}
	r.AddThinking(string(long))
	r.AddThinking("short")

	require.Len(t, r.Thinkings, 2)
	assert.Len(t, r.Thinkings[0], maxThinkingLen)
	assert.Equal(t, "short", r.Thinkings[1])
}
