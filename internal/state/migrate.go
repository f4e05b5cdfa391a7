package state

import (
	"gatekeep-go/internal/sessions"
)

// Migrate rewrites legacy-format content into the current schema and
// reports whether anything changed. It is pure and idempotent: running
// it on an already-migrated document changes nothing. It runs once on
// every load so business logic never sees legacy shapes.
//
// The only legacy shape in the wild is version-1 session keys: long
// unnormalized identifiers recorded before ids were normalized to the
// fixed-width form. They are rewritten through the same normalization;
// when two keys collapse to one, the entry with the most recent
// satisfaction timestamp wins.
func Migrate(doc *Document) bool {
	changed := false

	if doc.Requirements == nil {
		doc.Requirements = map[string]*RequirementRecord{}
		changed = true
	}

	for _, rec := range doc.Requirements {
		if rec.Sessions == nil {
			continue
		}
		for key, sess := range rec.Sessions {
			normalized := sessions.Normalize(key)
			if normalized == key {
				continue
			}
			changed = true
			delete(rec.Sessions, key)
			if existing, ok := rec.Sessions[normalized]; ok {
				rec.Sessions[normalized] = newerSatisfaction(existing, sess)
			} else {
				rec.Sessions[normalized] = sess
			}
		}
	}

	if doc.Version != SchemaVersion {
		doc.Version = SchemaVersion
		changed = true
	}
	return changed
}

// newerSatisfaction picks the entry with the later satisfaction
// timestamp; entries without one lose to entries with one.
func newerSatisfaction(a, b *SessionSatisfaction) *SessionSatisfaction {
	switch {
	case a.SatisfiedAt == nil && b.SatisfiedAt == nil:
		return a
	case a.SatisfiedAt == nil:
		return b
	case b.SatisfiedAt == nil:
		return a
	case b.SatisfiedAt.After(*a.SatisfiedAt):
		return b
	default:
		return a
	}
}
