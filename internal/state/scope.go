package state

import (
	"time"

	"gatekeep-go/internal/config"
)

// Resolver maps a requirement's abstract scope onto concrete reads and
// writes against one document. It is bound to a single (requirement,
// session) pair; mutations mark the resolver dirty so callers know
// whether the document needs writing.
//
// The configured scope always wins over the scope stored on the
// record: when they disagree (the requirement's configuration changed
// between sessions) the record is converted in place to the configured
// shape, dropping state that has no meaning under the new scope.
type Resolver struct {
	doc       *Document
	name      string
	scope     config.Scope
	sessionID string
	now       func() time.Time
	dirty     bool
}

// NewResolver binds a resolver to one requirement and session.
func NewResolver(doc *Document, name string, scope config.Scope, sessionID string) *Resolver {
	return &Resolver{
		doc:       doc,
		name:      name,
		scope:     scope,
		sessionID: sessionID,
		now:       time.Now,
	}
}

// Dirty reports whether any mutation changed the document.
func (r *Resolver) Dirty() bool {
	return r.dirty
}

// IsSatisfied reports whether the requirement is satisfied for this
// resolver's scope and session. Per-session satisfaction never leaks
// between sessions: a session that has not explicitly satisfied a
// session-scoped requirement reads unsatisfied, even if another
// session on the same branch satisfied it. The root override flag on a
// session-like record is the one exception and covers every session.
func (r *Resolver) IsSatisfied() bool {
	rec := r.lookup()
	if rec == nil {
		return false
	}
	now := r.now()

	if !r.scope.SessionScoped() {
		return rec.Satisfied && !expired(rec.ExpiresAt, now)
	}

	// Branch-wide override on a session-like record.
	if rec.Satisfied && !expired(rec.ExpiresAt, now) {
		return true
	}

	sess := rec.Sessions[r.sessionID]
	if sess == nil {
		return false
	}
	return sess.Satisfied && !expired(sess.ExpiresAt, now)
}

// IsTriggered reports whether this session has triggered the
// requirement. Only meaningful for session-like scopes; root-like
// scopes report false (stop-time verification does not apply to them).
func (r *Resolver) IsTriggered() bool {
	rec := r.lookup()
	if rec == nil || !r.scope.SessionScoped() {
		return false
	}
	sess := rec.Sessions[r.sessionID]
	return sess != nil && sess.Triggered
}

// MarkTriggered records that this session hit the requirement.
func (r *Resolver) MarkTriggered() {
	if !r.scope.SessionScoped() {
		return
	}
	rec := r.materialize()
	sess := r.session(rec)
	if sess.Triggered {
		return
	}
	sess.Triggered = true
	r.dirty = true
}

// Satisfy marks the requirement satisfied for this resolver's scope.
// method is one of the SatisfiedBy constants; ttl of zero means no
// expiry. Idempotent aside from the refreshed timestamp.
func (r *Resolver) Satisfy(method string, metadata map[string]string, ttl time.Duration) {
	rec := r.materialize()
	now := r.now().UTC()

	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}

	if r.scope.SessionScoped() {
		sess := r.session(rec)
		sess.Satisfied = true
		sess.SatisfiedAt = &now
		sess.SatisfiedBy = method
		sess.Metadata = metadata
		sess.ExpiresAt = expiresAt
	} else {
		rec.Satisfied = true
		rec.SatisfiedAt = &now
		rec.SatisfiedBy = method
		rec.Metadata = metadata
		rec.ExpiresAt = expiresAt
	}
	r.dirty = true
}

// SatisfyForBranch sets the branch-wide override on a session-like
// record: every session on this branch reads satisfied until cleared.
// For root-like scopes it is identical to Satisfy.
func (r *Resolver) SatisfyForBranch(method string) {
	rec := r.materialize()
	now := r.now().UTC()
	rec.Satisfied = true
	rec.SatisfiedAt = &now
	rec.SatisfiedBy = method
	rec.ExpiresAt = nil
	r.dirty = true
}

// Clear resets satisfaction. For session-like scopes it clears this
// session's flags and the branch-wide override; for root-like scopes
// it clears the root flags.
func (r *Resolver) Clear() {
	rec := r.lookup()
	if rec == nil {
		return
	}

	if rec.Satisfied {
		rec.Satisfied = false
		rec.SatisfiedAt = nil
		rec.SatisfiedBy = ""
		rec.ExpiresAt = nil
		r.dirty = true
	}

	if r.scope.SessionScoped() {
		if sess := rec.Sessions[r.sessionID]; sess != nil && sess.Satisfied {
			sess.Satisfied = false
			sess.SatisfiedAt = nil
			sess.SatisfiedBy = ""
			sess.ExpiresAt = nil
			r.dirty = true
		}
	}
}

// ClearSingleUse deletes this session's record entirely, not just the
// satisfied flag, so the next trigger starts clean: no stale triggered
// marker, no leftover metadata.
func (r *Resolver) ClearSingleUse() {
	rec := r.lookup()
	if rec == nil || rec.Sessions == nil {
		return
	}
	if _, ok := rec.Sessions[r.sessionID]; !ok {
		return
	}
	delete(rec.Sessions, r.sessionID)
	r.dirty = true
}

// lookup returns the record reconciled to the configured scope, or nil
// if absent.
func (r *Resolver) lookup() *RequirementRecord {
	rec := r.doc.record(r.name, r.scope, false)
	if rec == nil {
		return nil
	}
	r.reconcileScope(rec)
	return rec
}

// materialize returns the record, creating it if needed.
func (r *Resolver) materialize() *RequirementRecord {
	rec := r.doc.record(r.name, r.scope, true)
	r.reconcileScope(rec)
	return rec
}

// session returns this session's entry on the record, creating it.
func (r *Resolver) session(rec *RequirementRecord) *SessionSatisfaction {
	if rec.Sessions == nil {
		rec.Sessions = map[string]*SessionSatisfaction{}
	}
	sess := rec.Sessions[r.sessionID]
	if sess == nil {
		sess = &SessionSatisfaction{}
		rec.Sessions[r.sessionID] = sess
	}
	return sess
}

// reconcileScope converts a record whose stored scope disagrees with
// the configured one. Converting to a session-like scope drops root
// satisfaction (it would otherwise act as an unintended branch-wide
// override); converting to a root-like scope drops per-session
// records.
func (r *Resolver) reconcileScope(rec *RequirementRecord) {
	if rec.Scope == r.scope {
		if r.scope.SessionScoped() && rec.Sessions == nil {
			rec.Sessions = map[string]*SessionSatisfaction{}
		}
		return
	}

	storedSessionScoped := rec.Scope.SessionScoped()
	rec.Scope = r.scope
	r.dirty = true

	if r.scope.SessionScoped() {
		if !storedSessionScoped {
			rec.Satisfied = false
			rec.SatisfiedAt = nil
			rec.SatisfiedBy = ""
			rec.Metadata = nil
			rec.ExpiresAt = nil
		}
		if rec.Sessions == nil {
			rec.Sessions = map[string]*SessionSatisfaction{}
		}
	} else {
		rec.Sessions = nil
	}
}
