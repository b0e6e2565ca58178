package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skybridgehq/skybridge/internal/agent"
	"github.com/skybridgehq/skybridge/internal/models"
)

// SkillNone is the explicit no-skill sentinel. Event types mapped to it
// short-circuit the pipeline: the job completes immediately with a skipped
// annotation and no worktree or agent work happens.
const SkillNone = "none"

// Built-in skill names.
const (
	SkillAnalyzeIssue = "analyze-issue"
	SkillResolveIssue = "resolve-issue"
	SkillReviewIssue  = "review-issue"
)

// SkillSet is the immutable event-type to skill mapping loaded at startup,
// plus the per-skill timeout table handed to the agent facade.
type SkillSet struct {
	Skills   map[string]string  `yaml:"skills"`
	Timeouts agent.TimeoutTable `yaml:"timeouts"`
}

// DefaultSkills returns the built-in mapping. Closed and deleted issues map
// to the no-skill sentinel so agent budget is never spent on them.
func DefaultSkills() SkillSet {
	return SkillSet{
		Skills: map[string]string{
			"issues.opened":   SkillResolveIssue,
			"issues.reopened": SkillResolveIssue,
			"issues.assigned": SkillResolveIssue,
			"issues.labeled":  SkillAnalyzeIssue,
			"issues.edited":   SkillAnalyzeIssue,
			"issues.closed":   SkillNone,
			"issues.deleted":  SkillNone,
			"card.moved":      SkillResolveIssue,
		},
		Timeouts: agent.DefaultTimeouts(),
	}
}

// LoadSkillsFile overlays a YAML skills file on top of the defaults. Entries
// replace defaults key by key; absent sections keep the built-ins.
func LoadSkillsFile(path string) (SkillSet, error) {
	set := DefaultSkills()

	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("read skills file: %w", err)
	}

	var overlay SkillSet
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return set, fmt.Errorf("parse skills file: %w", err)
	}

	for eventType, skill := range overlay.Skills {
		set.Skills[eventType] = skill
	}
	for skill, secs := range overlay.Timeouts.Seconds {
		if set.Timeouts.Seconds == nil {
			set.Timeouts.Seconds = map[string]int{}
		}
		set.Timeouts.Seconds[skill] = secs
	}
	if overlay.Timeouts.DefaultSeconds > 0 {
		set.Timeouts.DefaultSeconds = overlay.Timeouts.DefaultSeconds
	}
	return set, nil
}

// Resolve maps an event type to the skill to run, narrowed by the job's
// autonomy level. Unknown event types resolve to the no-skill sentinel:
// events nothing asked for get no agent budget. An autonomy level that does
// not permit code changes downgrades code-changing skills to analysis.
func (s SkillSet) Resolve(eventType string, autonomy models.AutonomyLevel) string {
	skill, ok := s.Skills[eventType]
	if !ok || skill == SkillNone || skill == "" {
		return SkillNone
	}
	if autonomy != "" && !autonomy.AllowsCodeChanges() && skill != SkillAnalyzeIssue {
		return SkillAnalyzeIssue
	}
	if autonomy.RequiresHumanReview() && skill == SkillResolveIssue {
		return SkillReviewIssue
	}
	return skill
}
