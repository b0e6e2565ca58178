package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybridgehq/skybridge/internal/models"
)

func TestBuildTriagePrompt(t *testing.T) {
	system, user := buildTriagePrompt("Fix typo in README", "s/teh/the/")
	assert.Contains(t, system, "autonomy_level")
	assert.Contains(t, system, "analyze-issue")
	assert.Contains(t, user, "Fix typo in README")
	assert.Contains(t, user, "s/teh/the/")

	_, user = buildTriagePrompt("Title only", "")
	assert.False(t, strings.Contains(user, "Body:"))
}

func TestParseTriage(t *testing.T) {
	triage, err := parseTriage(`{"autonomy_level":"development","skill":"resolve-issue","rationale":"clear bug"}`)
	require.NoError(t, err)
	assert.Equal(t, models.AutonomyDevelopment, triage.Autonomy())
	assert.Equal(t, "resolve-issue", triage.Skill)
}

func TestParseTriageStripsFencing(t *testing.T) {
	triage, err := parseTriage("```json\n{\"autonomy_level\":\"publish\",\"skill\":\"resolve-issue\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, models.AutonomyPublish, triage.Autonomy())
}

func TestParseTriageInvalid(t *testing.T) {
	_, err := parseTriage("not json at all")
	assert.Error(t, err)
}

func TestTriageAutonomyFallback(t *testing.T) {
	triage := Triage{AutonomyLevel: "yolo"}
	assert.Equal(t, models.AutonomyAnalysis, triage.Autonomy())
}
