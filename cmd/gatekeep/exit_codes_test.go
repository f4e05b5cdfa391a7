package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"gatekeep-go/internal/filestore"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"generic", errors.New("boom"), ExitCodeGeneralError},
		{"no repo", fmt.Errorf("%w: blah", errNoGitRepo), ExitCodeNotARepo},
		{"unknown requirement", fmt.Errorf("%w: %q", errUnknownReq, "x"), ExitCodeUnknownRequirement},
		{"lock timeout", fmt.Errorf("state: %w", filestore.ErrLockTimeout), ExitCodeLockTimeout},
		{"ambiguous session", fmt.Errorf("%w on main", errAmbiguousSession), ExitCodeAmbiguousSession},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}
