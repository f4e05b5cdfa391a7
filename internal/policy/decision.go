package policy

import "gatekeep-go/internal/config"

// Outcome represents the result of evaluating one requirement.
type Outcome int

const (
	// OutcomeAllow permits the tool call to proceed.
	OutcomeAllow Outcome = iota

	// OutcomeDeny blocks the tool call until the requirement is
	// satisfied.
	OutcomeDeny
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeDeny:
		return "deny"
	default:
		return "allow"
	}
}

// Decision is the structured result of one requirement evaluation.
// The engine never formats user-facing text; callers render Reason and
// Remediation however their surface requires.
type Decision struct {
	Requirement string       `json:"requirement"`
	Scope       config.Scope `json:"scope"`
	SessionID   string       `json:"session_id"`
	Outcome     Outcome      `json:"outcome"`

	// Reason explains a deny. Empty for allows.
	Reason string `json:"reason,omitempty"`

	// Remediation is the command that would satisfy the requirement.
	Remediation string `json:"remediation,omitempty"`

	// Value and Threshold carry the measured number for dynamic
	// denies.
	Value     int64 `json:"value,omitempty"`
	Threshold int64 `json:"threshold,omitempty"`

	// Deduplicated marks a deny whose full payload was already
	// delivered within the dedup window; callers emit a minimal
	// still-waiting marker instead of the full text.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// Denied reports whether the decision blocks the call.
func (d Decision) Denied() bool {
	return d.Outcome == OutcomeDeny
}

// Allow builds an allow decision for a requirement.
func Allow(req *config.Requirement, sessionID string) Decision {
	return Decision{
		Requirement: req.Name,
		Scope:       req.Scope,
		SessionID:   sessionID,
		Outcome:     OutcomeAllow,
	}
}

// Deny builds a deny decision with reason and remediation.
func Deny(req *config.Requirement, sessionID, reason, remediation string) Decision {
	return Decision{
		Requirement: req.Name,
		Scope:       req.Scope,
		SessionID:   sessionID,
		Outcome:     OutcomeDeny,
		Reason:      reason,
		Remediation: remediation,
	}
}
