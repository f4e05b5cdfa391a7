package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gatekeep-go/internal/filestore"
	"gatekeep-go/internal/gitinfo"
	"gatekeep-go/internal/sessions"
)

var (
	sessionsCmd = &cobra.Command{
		Use:          "sessions",
		Short:        "Manage tracked agent sessions",
		RunE:         runSessionsList,
		SilenceUsage: true,
	}

	sessionsListCmd = &cobra.Command{
		Use:          "list",
		Short:        "List active sessions",
		RunE:         runSessionsList,
		SilenceUsage: true,
	}

	sessionsBeginCmd = &cobra.Command{
		Use:   "begin",
		Short: "Register a new session and print its id",
		Long: `Register a fresh session owned by the invoking terminal and print
its id. Useful for driving gatekeep from scripts or a shell where no
agent supplies a session id.`,
		RunE:         runSessionsBegin,
		SilenceUsage: true,
	}

	sessionsEndCmd = &cobra.Command{
		Use:          "end <session-id>",
		Short:        "Remove a session from the registry",
		Args:         cobra.ExactArgs(1),
		RunE:         runSessionsEnd,
		SilenceUsage: true,
	}

	sessionsAll bool
)

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsAll, "all", false, "List sessions across every project")
	sessionsCmd.Flags().BoolVar(&sessionsAll, "all", false, "List sessions across every project")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsBeginCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
}

func globalRegistry() *sessions.Registry {
	return sessions.NewRegistry(filestore.New(), sessions.DefaultPath(), commandLogger())
}

func runSessionsList(_ *cobra.Command, _ []string) error {
	registry := globalRegistry()

	projectDir, branch := "", ""
	if !sessionsAll {
		workDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		git, err := gitinfo.Resolve(workDir)
		if err != nil {
			return fmt.Errorf("%w: %v (use --all to list every project)", errNoGitRepo, err)
		}
		projectDir, branch = workDir, git.Branch
	}

	entries := registry.ListActive(projectDir, branch)
	if len(entries) == 0 {
		fmt.Println("No active sessions")
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tPID\tBRANCH\tSTARTED\tLAST ACTIVE\tPROJECT")
	now := time.Now()
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			entry.SessionID,
			entry.OwnerPID,
			entry.Branch,
			formatAge(now.Sub(entry.StartedAt)),
			formatAge(now.Sub(entry.LastActive)),
			entry.ProjectDir)
	}
	return tw.Flush()
}

func runSessionsBegin(_ *cobra.Command, _ []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	git, err := gitinfo.Resolve(workDir)
	if err != nil {
		return fmt.Errorf("%w: %v", errNoGitRepo, err)
	}

	id := sessions.NewLocalID()
	globalRegistry().Upsert(id, workDir, git.Branch, os.Getppid())
	fmt.Println(id)
	return nil
}

func runSessionsEnd(_ *cobra.Command, args []string) error {
	id := sessions.Normalize(args[0])
	globalRegistry().Remove(id)
	fmt.Printf("Removed session %s\n", id)
	return nil
}

// formatAge renders a duration as a compact "how long ago" string.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
