package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutonomyPredicates(t *testing.T) {
	tests := []struct {
		level       AutonomyLevel
		codeChanges bool
		autoCommit  bool
		humanReview bool
	}{
		{AutonomyAnalysis, false, false, false},
		{AutonomyDevelopment, true, false, false},
		{AutonomyReview, true, false, true},
		{AutonomyPublish, true, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.codeChanges, tt.level.AllowsCodeChanges())
			assert.Equal(t, tt.autoCommit, tt.level.AllowsAutoCommit())
			assert.Equal(t, tt.humanReview, tt.level.RequiresHumanReview())
		})
	}
}

func TestAutonomyOrdering(t *testing.T) {
	assert.Less(t, AutonomyAnalysis.Rank(), AutonomyDevelopment.Rank())
	assert.Less(t, AutonomyDevelopment.Rank(), AutonomyReview.Rank())
	assert.Less(t, AutonomyReview.Rank(), AutonomyPublish.Rank())
	assert.Equal(t, -1, AutonomyLevel("bogus").Rank())
}

func TestParseAutonomyLevel(t *testing.T) {
	l, err := ParseAutonomyLevel("development")
	assert.NoError(t, err)
	assert.Equal(t, AutonomyDevelopment, l)

	_, err = ParseAutonomyLevel("root")
	assert.Error(t, err)
}
