// Package policy evaluates requirements against branch state and
// produces Allow/Deny decisions. Evaluate is the system's fail-open
// boundary: whatever goes wrong underneath — unreadable state, lock
// timeouts, calculator failures — the caller gets a Decision, never an
// error. Blocking the user on an internal fault is the one outcome
// this system must not produce.
package policy

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"gatekeep-go/internal/cache"
	"gatekeep-go/internal/config"
	"gatekeep-go/internal/state"
)

// EvalContext carries everything one evaluation needs. The document is
// loaded (and locked) by the caller so that a hook invocation
// evaluating several requirements reads one consistent snapshot.
type EvalContext struct {
	Doc         *state.Document
	Requirement *config.Requirement
	SessionID   string
	Branch      string
	ProjectDir  string
	WorkDir     string
}

// Engine dispatches requirement evaluation by strategy.
type Engine struct {
	calcCache   *cache.DB
	calculators map[string]Calculator
	calcTTL     time.Duration
	logger      *zap.Logger
}

// NewEngine creates an engine. calcCache may be nil (uncached).
func NewEngine(calcCache *cache.DB, calculators map[string]Calculator, logger *zap.Logger) *Engine {
	if calculators == nil {
		calculators = DefaultCalculators()
	}
	return &Engine{
		calcCache:   calcCache,
		calculators: calculators,
		calcTTL:     cache.DefaultCalcTTL,
		logger:      logger,
	}
}

// Evaluate returns the decision for one requirement. Total: any
// internal error degrades to Allow and is logged with enough context
// to diagnose later.
func (e *Engine) Evaluate(ctx EvalContext) Decision {
	decision, err := e.evaluate(ctx)
	if err != nil {
		e.logger.Warn("evaluation failed, failing open",
			zap.String("requirement", ctx.Requirement.Name),
			zap.String("branch", ctx.Branch),
			zap.String("session_id", ctx.SessionID),
			zap.Error(err))
		return Allow(ctx.Requirement, ctx.SessionID)
	}
	return decision
}

func (e *Engine) evaluate(ctx EvalContext) (Decision, error) {
	req := ctx.Requirement
	resolver := state.NewResolver(ctx.Doc, req.Name, req.Scope, ctx.SessionID)

	switch req.Strategy {
	case config.StrategyBlocking:
		return e.evaluateBlocking(ctx, resolver), nil
	case config.StrategyDynamic:
		return e.evaluateDynamic(ctx, resolver)
	case config.StrategyGuard:
		return e.evaluateGuard(ctx, resolver), nil
	default:
		// Config validation rejects unknown strategies before they get
		// here; treat a slipped-through value as an internal error.
		return Decision{}, fmt.Errorf("unsupported strategy %q", req.Strategy)
	}
}

// evaluateBlocking denies until the requirement has been explicitly
// satisfied. The engine never satisfies a blocking requirement itself.
func (e *Engine) evaluateBlocking(ctx EvalContext, resolver *state.Resolver) Decision {
	req := ctx.Requirement
	if resolver.IsSatisfied() {
		return Allow(req, ctx.SessionID)
	}
	reason := req.Message
	if reason == "" {
		reason = fmt.Sprintf("requirement %q is not satisfied for this session", req.Name)
	}
	return Deny(req, ctx.SessionID, reason,
		fmt.Sprintf("gatekeep satisfy %s", req.Name))
}

// evaluateDynamic compares a calculator value against the threshold,
// honoring a still-valid session approval. Results are memoized per
// (branch, calculator) so a burst of parallel hooks runs the expensive
// computation once.
func (e *Engine) evaluateDynamic(ctx EvalContext, resolver *state.Resolver) (Decision, error) {
	req := ctx.Requirement

	if resolver.IsSatisfied() {
		return Allow(req, ctx.SessionID), nil
	}

	value, ok := e.calcCache.GetCalc(ctx.Branch, req.Calculator)
	if !ok {
		calculator, exists := e.calculators[req.Calculator]
		if !exists {
			return Decision{}, &ErrUnknownCalculator{ID: req.Calculator}
		}
		var err error
		value, err = calculator(ctx.WorkDir, req.BaseBranch)
		if err != nil {
			return Decision{}, fmt.Errorf("calculator %q: %w", req.Calculator, err)
		}
		e.calcCache.PutCalc(ctx.Branch, req.Calculator, value, e.calcTTL)
	}

	if value <= req.Threshold {
		return Allow(req, ctx.SessionID), nil
	}

	reason := req.Message
	if reason == "" {
		reason = fmt.Sprintf("%s is %d, over the limit of %d", req.Calculator, value, req.Threshold)
	}
	decision := Deny(req, ctx.SessionID, reason,
		fmt.Sprintf("gatekeep satisfy %s --ttl %s", req.Name, approvalTTL(req)))
	decision.Value = value
	decision.Threshold = req.Threshold
	return decision, nil
}

// evaluateGuard checks the protected-branch condition directly from
// context; stored state only matters as a session-scoped approval
// override, which dies with the session.
func (e *Engine) evaluateGuard(ctx EvalContext, resolver *state.Resolver) Decision {
	req := ctx.Requirement

	if !branchProtected(req, ctx.Branch) {
		return Allow(req, ctx.SessionID)
	}

	if resolver.IsSatisfied() {
		return Allow(req, ctx.SessionID)
	}

	reason := req.Message
	if reason == "" {
		reason = fmt.Sprintf("branch %q is protected", ctx.Branch)
	}
	return Deny(req, ctx.SessionID, reason,
		fmt.Sprintf("gatekeep satisfy %s", req.Name))
}

// GuardDefaultSatisfied reports a guard's zero-state standing: off a
// protected branch a guard reads satisfied with no stored state at
// all. Used by status display.
func GuardDefaultSatisfied(req *config.Requirement, branch string) bool {
	return req.Strategy == config.StrategyGuard && !branchProtected(req, branch)
}

func branchProtected(req *config.Requirement, branch string) bool {
	for _, protected := range req.ProtectedBranches {
		if protected == branch {
			return true
		}
	}
	return false
}

func approvalTTL(req *config.Requirement) time.Duration {
	if req.ApprovalTTL > 0 {
		return req.ApprovalTTL
	}
	return time.Hour
}
