package policy

import (
	"fmt"

	"gatekeep-go/internal/gitinfo"
)

// Calculator computes a numeric value for a dynamic requirement. The
// engine treats calculators as opaque: it only compares the returned
// value against the configured threshold.
type Calculator func(workDir, baseBranch string) (int64, error)

// DefaultCalculators returns the built-in calculator registry.
func DefaultCalculators() map[string]Calculator {
	return map[string]Calculator{
		"diff_size": func(workDir, baseBranch string) (int64, error) {
			if baseBranch == "" {
				baseBranch = "main"
			}
			return gitinfo.DiffSize(workDir, baseBranch)
		},
	}
}

// ErrUnknownCalculator reports a calculator id with no registration.
type ErrUnknownCalculator struct {
	ID string
}

func (e *ErrUnknownCalculator) Error() string {
	return fmt.Sprintf("unknown calculator: %q", e.ID)
}
