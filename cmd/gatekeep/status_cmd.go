package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gatekeep-go/internal/policy"
	"gatekeep-go/internal/state"
)

var (
	statusCmd = &cobra.Command{
		Use:          "status",
		Short:        "Show requirement status for the current branch",
		RunE:         runStatus,
		SilenceUsage: true,
	}

	statusJSON    bool
	statusSession string
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().StringVar(&statusSession, "session", "", "Session to report on (default: the active session)")
}

// Status colors follow the terminal's light/dark background.
var (
	statusHeaderStyle    = lipgloss.NewStyle().Bold(true)
	statusSatisfiedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})   // green
	statusPendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"}) // red
	statusMutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "244"}) // gray
)

type requirementStatus struct {
	Name      string `json:"name"`
	Strategy  string `json:"strategy"`
	Scope     string `json:"scope"`
	Satisfied bool   `json:"satisfied"`
	Triggered bool   `json:"triggered"`
}

type statusReport struct {
	Branch       string              `json:"branch"`
	SessionID    string              `json:"session_id"`
	Requirements []requirementStatus `json:"requirements"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	logger := commandLogger()
	defer func() { _ = logger.Sync() }()

	project, err := loadProjectContext(logger)
	if err != nil {
		return err
	}
	sessionID, err := project.resolveSessionID(statusSession)
	if err != nil {
		return err
	}

	doc, err := project.states.Load(project.statePath(), project.git.Branch)
	if err != nil {
		return err
	}

	report := statusReport{Branch: project.git.Branch, SessionID: sessionID}
	for _, name := range project.requirementNames() {
		req := project.cfg.Requirements[name]
		resolver := state.NewResolver(doc, req.Name, req.Scope, sessionID)
		report.Requirements = append(report.Requirements, requirementStatus{
			Name:      req.Name,
			Strategy:  string(req.Strategy),
			Scope:     string(req.Scope),
			Satisfied: resolver.IsSatisfied() || policy.GuardDefaultSatisfied(req, project.git.Branch),
			Triggered: resolver.IsTriggered(),
		})
	}

	if statusJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	colored := term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
	renderStatus(os.Stdout, report, colored)
	return nil
}

// renderStatus writes the human-readable status table. Colors are only
// applied when stdout is an interactive terminal.
func renderStatus(w io.Writer, report statusReport, colored bool) {
	style := func(s lipgloss.Style, text string) string {
		if !colored {
			return text
		}
		return s.Render(text)
	}

	fmt.Fprintf(w, "%s %s\n", style(statusHeaderStyle, "Branch:"), report.Branch)
	fmt.Fprintf(w, "%s %s\n\n", style(statusHeaderStyle, "Session:"), report.SessionID)

	if len(report.Requirements) == 0 {
		fmt.Fprintln(w, "No requirements configured")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
		style(statusHeaderStyle, "REQUIREMENT"),
		style(statusHeaderStyle, "STRATEGY"),
		style(statusHeaderStyle, "SCOPE"),
		style(statusHeaderStyle, "STATUS"))

	for _, row := range report.Requirements {
		status := style(statusPendingStyle, "pending")
		if row.Satisfied {
			status = style(statusSatisfiedStyle, "satisfied")
		} else if !row.Triggered {
			status = style(statusMutedStyle, "pending (not yet triggered)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Name, row.Strategy, row.Scope, status)
	}
	tw.Flush()
}
