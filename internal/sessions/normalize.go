package sessions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"gatekeep-go/internal/hash"
)

// Session ids are normalized to a fixed 8-hex-char form. Ids derived
// locally (no external id available) carry a "g-" prefix so the two
// forms can never collide: external normalization always yields bare
// hex.
const idWidth = 8

var (
	normalizedExternal = regexp.MustCompile(`^[0-9a-f]{8}$`)
	normalizedLocal    = regexp.MustCompile(`^g-[0-9a-f]{8}$`)
)

// Normalize produces the canonical fixed-width session id for a raw
// externally supplied identifier. It is deterministic and idempotent:
// an already-normalized id passes through unchanged.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if normalizedExternal.MatchString(raw) || normalizedLocal.MatchString(raw) {
		return raw
	}
	return hash.ShortHash(raw, idWidth)
}

// DeriveFromPID builds a session id from the owning process id. Every
// hook fired by the same agent process derives the same id, which is
// what stands in for a session when the host supplies none.
func DeriveFromPID(pid int) string {
	return "g-" + hash.ShortHash(fmt.Sprintf("pid:%d", pid), idWidth)
}

// NewLocalID returns a fresh random session id for callers that are
// starting a session explicitly rather than inheriting one.
func NewLocalID() string {
	return "g-" + hash.ShortHash(uuid.NewString(), idWidth)
}

// IsNormalized reports whether id is already in canonical form.
func IsNormalized(id string) bool {
	return normalizedExternal.MatchString(id) || normalizedLocal.MatchString(id)
}
