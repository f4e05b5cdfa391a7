package hook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"gatekeep-go/internal/cache"
	"gatekeep-go/internal/config"
	"gatekeep-go/internal/gitinfo"
	"gatekeep-go/internal/hash"
	"gatekeep-go/internal/policy"
	"gatekeep-go/internal/sessions"
	"gatekeep-go/internal/state"
)

// Runner glues one hook invocation together: session resolution, git
// facts, state access, evaluation, aggregation. Run is total — every
// internal failure resolves to allow, because this process sits
// between the user and their agent.
type Runner struct {
	Config   *config.Config
	States   *state.Store
	Registry *sessions.Registry
	Engine   *policy.Engine
	Dedup    *cache.DB
	Logger   *zap.Logger

	// OwnerPID identifies the agent process for registry entries and
	// for deriving a session id when the host supplies none. Hook
	// processes pass their parent pid.
	OwnerPID int
}

// Run evaluates one hook invocation and returns the aggregate result.
func (r *Runner) Run(event string, input *Input) Result {
	invocationID := ulid.Make().String()
	logger := r.Logger.With(
		zap.String("invocation_id", invocationID),
		zap.String("event", event),
		zap.String("tool", input.ToolName),
	)

	sessionID := r.resolveSession(input)
	logger = logger.With(zap.String("session_id", sessionID))

	git, err := gitinfo.Resolve(input.Cwd)
	if err != nil {
		// Outside a git repository there is no branch to key state on,
		// so there is nothing to enforce.
		logger.Debug("no git context, allowing", zap.Error(err))
		return allowResult
	}
	logger = logger.With(zap.String("branch", git.Branch))

	r.Registry.Upsert(sessionID, input.Cwd, git.Branch, r.OwnerPID)

	ctx := runContext{
		input:     input,
		sessionID: sessionID,
		branch:    git.Branch,
		statePath: state.PathFor(git.CommonDir, git.Branch),
		logger:    logger,
	}

	switch event {
	case EventPreToolUse:
		return r.runPreToolUse(ctx)
	case EventPostToolUse:
		return r.runPostToolUse(ctx)
	case EventStop:
		return r.runStop(ctx)
	default:
		logger.Debug("unknown hook event, allowing")
		return allowResult
	}
}

type runContext struct {
	input     *Input
	sessionID string
	branch    string
	statePath string
	logger    *zap.Logger
}

// resolveSession normalizes the host-supplied session id, or derives
// one from the owning process when the host supplies none.
func (r *Runner) resolveSession(input *Input) string {
	if input.SessionID != "" {
		return sessions.Normalize(input.SessionID)
	}
	return sessions.DeriveFromPID(r.OwnerPID)
}

// runPreToolUse evaluates every applicable requirement against one
// consistent document snapshot, marking triggers as it goes, and
// aggregates deny-wins.
func (r *Runner) runPreToolUse(ctx runContext) Result {
	if SkipTool(ctx.input.ToolName) {
		return allowResult
	}

	applicable := r.applicable(ctx.input.ToolName, ctx.input.Path())
	if len(applicable) == 0 {
		return allowResult
	}

	var decisions []policy.Decision
	err := r.States.Mutate(ctx.statePath, ctx.branch, func(doc *state.Document) (bool, error) {
		changed := false
		decisions = decisions[:0]
		for _, req := range applicable {
			resolver := state.NewResolver(doc, req.Name, req.Scope, ctx.sessionID)
			resolver.MarkTriggered()
			changed = changed || resolver.Dirty()

			decisions = append(decisions, r.Engine.Evaluate(policy.EvalContext{
				Doc:         doc,
				Requirement: req,
				SessionID:   ctx.sessionID,
				Branch:      ctx.branch,
				ProjectDir:  ctx.input.Cwd,
				WorkDir:     ctx.input.Cwd,
			}))
		}
		return changed, nil
	})
	if err != nil {
		ctx.logger.Warn("state access failed, failing open", zap.Error(err))
		return allowResult
	}

	denies := denied(decisions)
	if len(denies) == 0 {
		return allowResult
	}

	r.dedupe(ctx, denies)
	return Result{Allowed: false, Reason: r.renderDenials(denies)}
}

// runPostToolUse completes single-use requirements: once the
// triggering action went through, the session's record is deleted so
// the next trigger starts clean.
func (r *Runner) runPostToolUse(ctx runContext) Result {
	if SkipTool(ctx.input.ToolName) {
		return allowResult
	}

	applicable := r.applicable(ctx.input.ToolName, ctx.input.Path())
	singleUse := applicable[:0]
	for _, req := range applicable {
		if req.Scope == config.ScopeSingleUse {
			singleUse = append(singleUse, req)
		}
	}
	if len(singleUse) == 0 {
		return allowResult
	}

	err := r.States.Mutate(ctx.statePath, ctx.branch, func(doc *state.Document) (bool, error) {
		changed := false
		for _, req := range singleUse {
			resolver := state.NewResolver(doc, req.Name, req.Scope, ctx.sessionID)
			resolver.ClearSingleUse()
			changed = changed || resolver.Dirty()
		}
		return changed, nil
	})
	if err != nil {
		ctx.logger.Warn("single-use cleanup failed", zap.Error(err))
	}
	return allowResult
}

// runStop verifies session-scoped requirements at session end. Only
// requirements this session actually triggered count: "never invoked"
// skips, "invoked but unresolved" blocks the stop with detail.
func (r *Runner) runStop(ctx runContext) Result {
	doc, err := r.States.Load(ctx.statePath, ctx.branch)
	if err != nil {
		ctx.logger.Warn("stop verification load failed, allowing", zap.Error(err))
		return allowResult
	}

	var unresolved []string
	for _, req := range r.sortedRequirements() {
		if req.Strategy != config.StrategyBlocking || !req.Scope.SessionScoped() {
			continue
		}
		resolver := state.NewResolver(doc, req.Name, req.Scope, ctx.sessionID)
		if resolver.IsTriggered() && !resolver.IsSatisfied() {
			unresolved = append(unresolved, req.Name)
		}
	}

	if len(unresolved) == 0 {
		return allowResult
	}
	return Result{
		Allowed: false,
		Reason: fmt.Sprintf("unresolved requirements for this session: %s",
			strings.Join(unresolved, ", ")),
	}
}

// applicable returns the requirements triggered by a tool call, in
// stable name order.
func (r *Runner) applicable(tool, path string) []*config.Requirement {
	var matched []*config.Requirement
	for _, req := range r.sortedRequirements() {
		if req.AppliesTo(tool, path) {
			matched = append(matched, req)
		}
	}
	return matched
}

func (r *Runner) sortedRequirements() []*config.Requirement {
	reqs := make([]*config.Requirement, 0, len(r.Config.Requirements))
	for _, req := range r.Config.Requirements {
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Name < reqs[j].Name })
	return reqs
}

// dedupe marks denies whose identical payload already went out within
// the dedup window. Outcomes never change; only verbosity does.
func (r *Runner) dedupe(ctx runContext, denies []policy.Decision) {
	for i := range denies {
		key := cache.DedupKey(ctx.input.Cwd, ctx.branch, ctx.sessionID, denies[i].Requirement)
		digest := hash.ShortHash(denies[i].Reason+"\x00"+denies[i].Remediation, 16)
		if r.Dedup.SeenRecently(key, digest, cache.DefaultDedupTTL) {
			denies[i].Deduplicated = true
		}
	}
}

// renderDenials formats the aggregate deny reason. Deduplicated denies
// collapse to a minimal still-waiting marker.
func (r *Runner) renderDenials(denies []policy.Decision) string {
	var full, waiting []string
	for _, d := range denies {
		if d.Deduplicated {
			waiting = append(waiting, d.Requirement)
			continue
		}
		line := d.Reason
		if d.Remediation != "" {
			line += " (run: " + d.Remediation + ")"
		}
		full = append(full, line)
	}

	if len(full) == 0 {
		return "still waiting on: " + strings.Join(waiting, ", ")
	}
	if len(waiting) > 0 {
		full = append(full, "still waiting on: "+strings.Join(waiting, ", "))
	}
	return strings.Join(full, "; ")
}

func denied(decisions []policy.Decision) []policy.Decision {
	var out []policy.Decision
	for _, d := range decisions {
		if d.Denied() {
			out = append(out, d)
		}
	}
	return out
}
