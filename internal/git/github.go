// Package git wraps the gh CLI for the GitHub lookups Skybridge needs.
package git

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Issue represents a GitHub issue.
type Issue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	State  string   `json:"state"`
	Labels []string `json:"-"`
	URL    string   `json:"url"`
}

// GitHubClient fetches issue data.
type GitHubClient interface {
	Issue(repo string, number int) (*Issue, error)
}

// RealGitHubClient implements GitHubClient using the gh CLI, which carries
// its own authentication.
type RealGitHubClient struct{}

// NewGitHubClient returns a new RealGitHubClient.
func NewGitHubClient() *RealGitHubClient {
	return &RealGitHubClient{}
}

func ghCmd(args ...string) (string, error) {
	out, err := exec.Command("gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Issue fetches one issue. repo is "owner/name"; empty means the repository
// of the current directory.
func (c *RealGitHubClient) Issue(repo string, number int) (*Issue, error) {
	args := []string{"issue", "view", fmt.Sprintf("%d", number),
		"--json", "number,title,body,state,labels,url"}
	if repo != "" {
		args = append(args, "--repo", repo)
	}

	out, err := ghCmd(args...)
	if err != nil {
		return nil, err
	}
	return parseIssue(out)
}

// parseIssue decodes the gh --json issue payload.
func parseIssue(out string) (*Issue, error) {
	var raw struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse issue: %w", err)
	}

	issue := &Issue{
		Number: raw.Number,
		Title:  raw.Title,
		Body:   raw.Body,
		State:  raw.State,
		URL:    raw.URL,
	}
	for _, l := range raw.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	return issue, nil
}
