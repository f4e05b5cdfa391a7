// Package state persists requirement satisfaction per (repository,
// branch). One JSON document holds every requirement's state for a
// branch; concurrent hook processes serialize through the exclusive
// lock on the document's backing file.
package state

import (
	"time"

	"gatekeep-go/internal/config"
)

// SchemaVersion is the current document schema. Version 1 documents
// may contain unnormalized session keys; loading migrates them.
const SchemaVersion = 2

// SatisfiedBy values recorded on satisfaction.
const (
	SatisfiedByCLI   = "cli"
	SatisfiedBySkill = "skill"
	SatisfiedByAuto  = "auto"
)

// SessionSatisfaction is one session's standing on one requirement.
type SessionSatisfaction struct {
	Satisfied   bool              `json:"satisfied"`
	Triggered   bool              `json:"triggered"`
	SatisfiedAt *time.Time        `json:"satisfied_at,omitempty"`
	SatisfiedBy string            `json:"satisfied_by,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// RequirementRecord is one requirement's state on a branch. Root-like
// scopes (branch, permanent) use the top-level satisfaction fields.
// Session-like scopes (session, single_use) use the Sessions map; a
// top-level Satisfied=true on a session-like record is the branch-wide
// override and short-circuits every per-session lookup.
type RequirementRecord struct {
	Scope       config.Scope      `json:"scope"`
	Satisfied   bool              `json:"satisfied,omitempty"`
	SatisfiedAt *time.Time        `json:"satisfied_at,omitempty"`
	SatisfiedBy string            `json:"satisfied_by,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`

	Sessions map[string]*SessionSatisfaction `json:"sessions,omitempty"`
}

// Document is the persisted state of one branch.
type Document struct {
	Version      int                           `json:"version"`
	Branch       string                        `json:"branch"`
	UpdatedAt    time.Time                     `json:"updated_at"`
	Requirements map[string]*RequirementRecord `json:"requirements"`
}

// NewDocument returns an empty document for a branch.
func NewDocument(branch string) *Document {
	return &Document{
		Version:      SchemaVersion,
		Branch:       branch,
		Requirements: map[string]*RequirementRecord{},
	}
}

// record returns the requirement's record, creating it when create is
// set. A freshly created record adopts the caller-supplied scope.
func (d *Document) record(name string, scope config.Scope, create bool) *RequirementRecord {
	rec, ok := d.Requirements[name]
	if ok {
		return rec
	}
	if !create {
		return nil
	}
	rec = &RequirementRecord{Scope: scope}
	if scope.SessionScoped() {
		rec.Sessions = map[string]*SessionSatisfaction{}
	}
	d.Requirements[name] = rec
	return rec
}

// expired reports whether t is set and in the past.
func expired(t *time.Time, now time.Time) bool {
	return t != nil && now.After(*t)
}
