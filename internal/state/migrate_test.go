package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeep-go/internal/config"
	"gatekeep-go/internal/sessions"
)

func TestMigrateNormalizesLegacyKeys(t *testing.T) {
	legacy := "f81d4fae-7dec-11d0-a765-00a0c91e6bf6"
	doc := &Document{
		Version: 1,
		Branch:  "main",
		Requirements: map[string]*RequirementRecord{
			"commit_plan": {
				Scope: config.ScopeSession,
				Sessions: map[string]*SessionSatisfaction{
					legacy: {Satisfied: true, Triggered: true},
				},
			},
		},
	}

	changed := Migrate(doc)
	assert.True(t, changed)
	assert.Equal(t, SchemaVersion, doc.Version)

	normalized := sessions.Normalize(legacy)
	rec := doc.Requirements["commit_plan"]
	require.Contains(t, rec.Sessions, normalized)
	assert.NotContains(t, rec.Sessions, legacy)
	assert.True(t, rec.Sessions[normalized].Satisfied)
}

func TestMigrateIdempotent(t *testing.T) {
	legacy := "some-very-long-session-identifier-from-before"
	doc := &Document{
		Version: 1,
		Branch:  "main",
		Requirements: map[string]*RequirementRecord{
			"commit_plan": {
				Scope: config.ScopeSession,
				Sessions: map[string]*SessionSatisfaction{
					legacy: {Satisfied: true},
				},
			},
		},
	}

	require.True(t, Migrate(doc))
	assert.False(t, Migrate(doc), "second run must be a no-op")
}

func TestMigrateCollisionKeepsNewest(t *testing.T) {
	legacy := "f81d4fae-7dec-11d0-a765-00a0c91e6bf6"
	normalized := sessions.Normalize(legacy)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	doc := &Document{
		Version: 1,
		Branch:  "main",
		Requirements: map[string]*RequirementRecord{
			"commit_plan": {
				Scope: config.ScopeSession,
				Sessions: map[string]*SessionSatisfaction{
					normalized: {Satisfied: true, SatisfiedAt: &older, SatisfiedBy: SatisfiedByCLI},
					legacy:     {Satisfied: true, SatisfiedAt: &newer, SatisfiedBy: SatisfiedBySkill},
				},
			},
		},
	}

	Migrate(doc)

	rec := doc.Requirements["commit_plan"]
	require.Len(t, rec.Sessions, 1)
	assert.Equal(t, SatisfiedBySkill, rec.Sessions[normalized].SatisfiedBy)
	assert.Equal(t, newer, *rec.Sessions[normalized].SatisfiedAt)
}

func TestMigrateEmptyDocument(t *testing.T) {
	doc := NewDocument("main")
	assert.False(t, Migrate(doc))
}
