package models

import "fmt"

// AutonomyLevel gates how much unsupervised action an agent may take on one
// job. Levels form a strict total order of increasing permission.
type AutonomyLevel string

const (
	AutonomyAnalysis    AutonomyLevel = "analysis"
	AutonomyDevelopment AutonomyLevel = "development"
	AutonomyReview      AutonomyLevel = "review"
	AutonomyPublish     AutonomyLevel = "publish"
)

var autonomyRanks = map[AutonomyLevel]int{
	AutonomyAnalysis:    0,
	AutonomyDevelopment: 1,
	AutonomyReview:      2,
	AutonomyPublish:     3,
}

// ParseAutonomyLevel validates a string autonomy level.
func ParseAutonomyLevel(s string) (AutonomyLevel, error) {
	l := AutonomyLevel(s)
	if _, ok := autonomyRanks[l]; !ok {
		return "", fmt.Errorf("unknown autonomy level: %q", s)
	}
	return l, nil
}

// Rank returns the level's position in the permission order (analysis lowest).
// Unknown levels rank below analysis.
func (l AutonomyLevel) Rank() int {
	if r, ok := autonomyRanks[l]; ok {
		return r
	}
	return -1
}

// AllowsCodeChanges reports whether the agent may modify files.
func (l AutonomyLevel) AllowsCodeChanges() bool {
	return l == AutonomyDevelopment || l == AutonomyReview || l == AutonomyPublish
}

// AllowsAutoCommit reports whether the agent may commit and publish without
// a human in the loop.
func (l AutonomyLevel) AllowsAutoCommit() bool {
	return l == AutonomyPublish
}

// RequiresHumanReview reports whether a human must approve the result.
func (l AutonomyLevel) RequiresHumanReview() bool {
	return l == AutonomyReview
}
