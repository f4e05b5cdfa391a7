package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gatekeep-go/internal/state"
)

var (
	satisfyCmd = &cobra.Command{
		Use:   "satisfy <requirement>",
		Short: "Mark a requirement satisfied",
		Long: `Mark a requirement satisfied for the active session on the current
branch.

With --branch the satisfaction covers every session on the branch,
which is how a session-scoped requirement is waived branch-wide. With
--ttl the satisfaction expires on its own, which is the usual form for
dynamic requirement approvals:

  gatekeep satisfy commit_plan
  gatekeep satisfy diff_review --ttl 30m
  gatekeep satisfy commit_plan --branch`,
		Args:         cobra.ExactArgs(1),
		RunE:         runSatisfy,
		SilenceUsage: true,
	}

	satisfyBranchWide bool
	satisfyTTL        time.Duration
	satisfySession    string

	clearCmd = &cobra.Command{
		Use:          "clear <requirement>",
		Short:        "Reset a requirement to unsatisfied",
		Args:         cobra.ExactArgs(1),
		RunE:         runClear,
		SilenceUsage: true,
	}

	clearSession string

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove state left behind by dead sessions",
		Long: `Remove registry entries whose owning process has died, and drop
per-session satisfaction records on the current branch that no longer
belong to any live session.`,
		RunE:         runPrune,
		SilenceUsage: true,
	}
)

func init() {
	satisfyCmd.Flags().BoolVar(&satisfyBranchWide, "branch", false, "Satisfy for every session on this branch")
	satisfyCmd.Flags().DurationVar(&satisfyTTL, "ttl", 0, "Expire the satisfaction after this duration (e.g. 30m)")
	satisfyCmd.Flags().StringVar(&satisfySession, "session", "", "Session to satisfy for (default: the active session)")

	clearCmd.Flags().StringVar(&clearSession, "session", "", "Session to clear (default: the active session)")
}

func runSatisfy(_ *cobra.Command, args []string) error {
	logger := commandLogger()
	defer func() { _ = logger.Sync() }()

	project, err := loadProjectContext(logger)
	if err != nil {
		return err
	}
	req, err := project.requirement(args[0])
	if err != nil {
		return err
	}
	sessionID, err := project.resolveSessionID(satisfySession)
	if err != nil {
		return err
	}

	err = project.states.Mutate(project.statePath(), project.git.Branch, func(doc *state.Document) (bool, error) {
		resolver := state.NewResolver(doc, req.Name, req.Scope, sessionID)
		if satisfyBranchWide {
			resolver.SatisfyForBranch(state.SatisfiedByCLI)
		} else {
			resolver.Satisfy(state.SatisfiedByCLI, nil, satisfyTTL)
		}
		return resolver.Dirty(), nil
	})
	if err != nil {
		return err
	}

	switch {
	case satisfyBranchWide:
		fmt.Printf("Satisfied %s for every session on %s\n", req.Name, project.git.Branch)
	case req.Scope.SessionScoped():
		fmt.Printf("Satisfied %s for session %s on %s\n", req.Name, sessionID, project.git.Branch)
	default:
		fmt.Printf("Satisfied %s on %s\n", req.Name, project.git.Branch)
	}
	if satisfyTTL > 0 {
		fmt.Printf("Expires in %s\n", satisfyTTL)
	}
	return nil
}

func runClear(_ *cobra.Command, args []string) error {
	logger := commandLogger()
	defer func() { _ = logger.Sync() }()

	project, err := loadProjectContext(logger)
	if err != nil {
		return err
	}
	req, err := project.requirement(args[0])
	if err != nil {
		return err
	}
	sessionID, err := project.resolveSessionID(clearSession)
	if err != nil {
		return err
	}

	err = project.states.Mutate(project.statePath(), project.git.Branch, func(doc *state.Document) (bool, error) {
		resolver := state.NewResolver(doc, req.Name, req.Scope, sessionID)
		resolver.Clear()
		return resolver.Dirty(), nil
	})
	if err != nil {
		return err
	}

	if req.Scope.SessionScoped() {
		fmt.Printf("Cleared %s for session %s on %s\n", req.Name, sessionID, project.git.Branch)
	} else {
		fmt.Printf("Cleared %s on %s\n", req.Name, project.git.Branch)
	}
	return nil
}

func runPrune(_ *cobra.Command, _ []string) error {
	logger := commandLogger()
	defer func() { _ = logger.Sync() }()

	project, err := loadProjectContext(logger)
	if err != nil {
		return err
	}

	removedSessions := project.registry.Prune()

	alive := map[string]bool{}
	for _, entry := range project.registry.ListActive("", "") {
		alive[entry.SessionID] = true
	}

	removedRecords := 0
	err = project.states.Mutate(project.statePath(), project.git.Branch, func(doc *state.Document) (bool, error) {
		for _, rec := range doc.Requirements {
			for id := range rec.Sessions {
				if !alive[id] {
					delete(rec.Sessions, id)
					removedRecords++
				}
			}
		}
		return removedRecords > 0, nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d dead session(s) from the registry\n", removedSessions)
	fmt.Printf("Removed %d stale session record(s) on %s\n", removedRecords, project.git.Branch)
	return nil
}
