// Package board maps Kanban board state to job policy and reports job
// progress back onto cards.
package board

import (
	"strings"

	"github.com/skybridgehq/skybridge/internal/models"
)

// ListMapping maps board list names (lowercased) to autonomy levels. Moving
// a card between lists is how humans dial agent permission up and down.
type ListMapping map[string]models.AutonomyLevel

// DefaultListMapping covers the conventional board layout.
func DefaultListMapping() ListMapping {
	return ListMapping{
		"backlog":     models.AutonomyAnalysis,
		"analysis":    models.AutonomyAnalysis,
		"to do":       models.AutonomyDevelopment,
		"development": models.AutonomyDevelopment,
		"in progress": models.AutonomyDevelopment,
		"review":      models.AutonomyReview,
		"publish":     models.AutonomyPublish,
		"ship":        models.AutonomyPublish,
	}
}

// Autonomy resolves a list name to its autonomy level. Unknown lists fall
// back to analysis, the least permissive level.
func (m ListMapping) Autonomy(listName string) models.AutonomyLevel {
	if level, ok := m[strings.ToLower(strings.TrimSpace(listName))]; ok {
		return level
	}
	return models.AutonomyAnalysis
}
