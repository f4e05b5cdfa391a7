package main

// Exit codes for gatekeep to enable specific error handling by wrapping
// scripts and agent skills

import (
	"errors"

	"gatekeep-go/internal/filestore"
)

const (
	// ExitCodeSuccess indicates normal program termination
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates a generic error (default)
	ExitCodeGeneralError = 1

	// ExitCodeNotARepo indicates the working directory is not inside a
	// git repository
	ExitCodeNotARepo = 2

	// ExitCodeUnknownRequirement indicates the named requirement is not
	// in the configuration
	ExitCodeUnknownRequirement = 3

	// ExitCodeLockTimeout indicates a state file lock could not be
	// acquired in time
	ExitCodeLockTimeout = 4

	// ExitCodeAmbiguousSession indicates multiple active sessions match
	// and --session is required
	ExitCodeAmbiguousSession = 5
)

var (
	errNoGitRepo        = errors.New("not inside a git repository")
	errUnknownReq       = errors.New("unknown requirement")
	errAmbiguousSession = errors.New("multiple active sessions")
)

// exitCodeFor maps a command error to its process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, errNoGitRepo):
		return ExitCodeNotARepo
	case errors.Is(err, errUnknownReq):
		return ExitCodeUnknownRequirement
	case errors.Is(err, filestore.ErrLockTimeout):
		return ExitCodeLockTimeout
	case errors.Is(err, errAmbiguousSession):
		return ExitCodeAmbiguousSession
	default:
		return ExitCodeGeneralError
	}
}
