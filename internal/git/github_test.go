package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIssue(t *testing.T) {
	out := `{"number":42,"title":"Login broken","body":"Steps to reproduce...","state":"OPEN",
		"labels":[{"name":"bug"},{"name":"auth"}],"url":"https://github.com/o/r/issues/42"}`

	issue, err := parseIssue(out)
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "Login broken", issue.Title)
	assert.Equal(t, "OPEN", issue.State)
	assert.Equal(t, []string{"bug", "auth"}, issue.Labels)
}

func TestParseIssueInvalid(t *testing.T) {
	_, err := parseIssue("not json")
	assert.Error(t, err)
}
