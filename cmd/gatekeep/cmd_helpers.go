package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"gatekeep-go/internal/config"
	"gatekeep-go/internal/filestore"
	"gatekeep-go/internal/gitinfo"
	"gatekeep-go/internal/sessions"
	"gatekeep-go/internal/state"
)

// projectContext bundles the facts every management command needs:
// where we are, what is configured, and handles to the stores.
type projectContext struct {
	workDir  string
	cfg      *config.Config
	git      *gitinfo.Info
	states   *state.Store
	registry *sessions.Registry
	logger   *zap.Logger
}

// loadProjectContext resolves the current project: working directory,
// configuration, and git facts. Management commands require a git
// repository because state is keyed on branch.
func loadProjectContext(logger *zap.Logger) (*projectContext, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.LoadForProject(workDir)
	if err != nil {
		return nil, err
	}

	git, err := gitinfo.Resolve(workDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNoGitRepo, err)
	}

	files := filestore.New()
	return &projectContext{
		workDir:  workDir,
		cfg:      cfg,
		git:      git,
		states:   state.NewStore(files, logger),
		registry: sessions.NewRegistry(files, sessions.DefaultPath(), logger),
		logger:   logger,
	}, nil
}

// statePath returns the branch state file for the current checkout.
func (p *projectContext) statePath() string {
	return state.PathFor(p.git.CommonDir, p.git.Branch)
}

// requirement looks up a configured requirement by name.
func (p *projectContext) requirement(name string) (*config.Requirement, error) {
	if req, ok := p.cfg.Requirements[name]; ok {
		return req, nil
	}
	known := p.requirementNames()
	if len(known) == 0 {
		return nil, fmt.Errorf("%w: %q (no requirements configured in %s)",
			errUnknownReq, name, config.DefaultFileName)
	}
	return nil, fmt.Errorf("%w: %q (configured: %s)",
		errUnknownReq, name, strings.Join(known, ", "))
}

func (p *projectContext) requirementNames() []string {
	names := make([]string, 0, len(p.cfg.Requirements))
	for name := range p.cfg.Requirements {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveSessionID picks the session a management command acts on. An
// explicit flag wins; otherwise the registry decides: exactly one
// active session on this branch means that session, none means the
// invoking terminal stands in as its own session, several means the
// caller has to disambiguate.
func (p *projectContext) resolveSessionID(flagValue string) (string, error) {
	if flagValue != "" {
		return sessions.Normalize(flagValue), nil
	}

	active := p.registry.ListActive(p.workDir, p.git.Branch)
	switch len(active) {
	case 0:
		return sessions.DeriveFromPID(os.Getppid()), nil
	case 1:
		return active[0].SessionID, nil
	default:
		ids := make([]string, len(active))
		for i, entry := range active {
			ids[i] = entry.SessionID
		}
		sort.Strings(ids)
		return "", fmt.Errorf("%w on %s (%s), pass --session",
			errAmbiguousSession, p.git.Branch, strings.Join(ids, ", "))
	}
}
