package filestore

import "errors"

// Sentinel errors for the failure classes callers dispatch on. The
// engine's fail-open policy lives above this package: here every
// failure is reported, never swallowed.
var (
	// ErrNotFound means the target file does not exist.
	ErrNotFound = errors.New("filestore: file not found")

	// ErrLockTimeout means the flock could not be acquired within the
	// configured timeout.
	ErrLockTimeout = errors.New("filestore: lock acquisition timed out")

	// ErrCorrupt marks an undecodable document. The store itself never
	// decodes; callers wrap their decode failures with this sentinel so
	// upper layers can treat corruption uniformly.
	ErrCorrupt = errors.New("filestore: corrupt document")
)
