package config

import (
	"fmt"
	"time"
)

// Strategy selects the evaluation algorithm for a requirement.
type Strategy string

const (
	StrategyBlocking Strategy = "blocking"
	StrategyDynamic  Strategy = "dynamic"
	StrategyGuard    Strategy = "guard"
)

// ParseStrategy converts a string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyBlocking, StrategyDynamic, StrategyGuard:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy: %q", s)
	}
}

// Scope is the lifetime of a requirement's satisfaction.
type Scope string

const (
	ScopeSession   Scope = "session"
	ScopeBranch    Scope = "branch"
	ScopePermanent Scope = "permanent"
	ScopeSingleUse Scope = "single_use"
)

// ParseScope converts a string to a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeSession, ScopeBranch, ScopePermanent, ScopeSingleUse:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope: %q", s)
	}
}

// SessionScoped reports whether satisfaction is tracked per session
// rather than once at the record root.
func (s Scope) SessionScoped() bool {
	return s == ScopeSession || s == ScopeSingleUse
}

// Trigger decides whether a requirement applies to a given tool call.
// Tools match by exact name or "*"; an empty PathPrefixes list matches
// any path.
type Trigger struct {
	Tools        []string `yaml:"tools"`
	PathPrefixes []string `yaml:"path_prefixes,omitempty"`
}

// Matches reports whether the trigger covers the given tool and path.
func (t Trigger) Matches(tool, path string) bool {
	toolOK := false
	for _, name := range t.Tools {
		if name == "*" || name == tool {
			toolOK = true
			break
		}
	}
	if !toolOK {
		return false
	}
	if len(t.PathPrefixes) == 0 {
		return true
	}
	if path == "" {
		return false
	}
	for _, prefix := range t.PathPrefixes {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Requirement is one fully resolved workflow policy. The configuration
// cascade that produces it lives outside this module; by the time a
// Requirement reaches the engine every field has been validated.
type Requirement struct {
	Name     string   `yaml:"-"`
	Strategy Strategy `yaml:"strategy"`
	Scope    Scope    `yaml:"scope"`
	Triggers []Trigger `yaml:"triggers,omitempty"`

	// Guard strategy: branches the guard protects.
	ProtectedBranches []string `yaml:"protected_branches,omitempty"`

	// Dynamic strategy: calculator id, deny threshold, and how long a
	// session approval holds before the calculation is re-checked.
	// BaseBranch is the comparison base for diff calculators.
	Calculator  string        `yaml:"calculator,omitempty"`
	Threshold   int64         `yaml:"threshold,omitempty"`
	ApprovalTTL time.Duration `yaml:"approval_ttl,omitempty"`
	BaseBranch  string        `yaml:"base_branch,omitempty"`

	// Message is an opaque remediation template rendered by callers.
	Message string `yaml:"message,omitempty"`
}

// AppliesTo reports whether any trigger matches the tool call. A
// requirement with no triggers applies to every call.
func (r *Requirement) AppliesTo(tool, path string) bool {
	if len(r.Triggers) == 0 {
		return true
	}
	for _, trigger := range r.Triggers {
		if trigger.Matches(tool, path) {
			return true
		}
	}
	return false
}

// Validate checks fields that the YAML layer cannot.
func (r *Requirement) Validate() error {
	if _, err := ParseStrategy(string(r.Strategy)); err != nil {
		return fmt.Errorf("requirement %q: %w", r.Name, err)
	}
	if _, err := ParseScope(string(r.Scope)); err != nil {
		return fmt.Errorf("requirement %q: %w", r.Name, err)
	}
	if r.Strategy == StrategyDynamic {
		if r.Calculator == "" {
			return fmt.Errorf("requirement %q: dynamic strategy needs a calculator", r.Name)
		}
		if r.Threshold <= 0 {
			return fmt.Errorf("requirement %q: dynamic strategy needs a positive threshold", r.Name)
		}
	}
	if r.Strategy == StrategyGuard && len(r.ProtectedBranches) == 0 {
		return fmt.Errorf("requirement %q: guard strategy needs protected_branches", r.Name)
	}
	return nil
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level         string `yaml:"level"`
	EnableFile    bool   `yaml:"enable_file"`
	EnableConsole bool   `yaml:"enable_console"`
	Filename      string `yaml:"filename"`
	LogDir        string `yaml:"log_dir,omitempty"`
	MaxSize       int    `yaml:"max_size"`    // MB
	MaxBackups    int    `yaml:"max_backups"` // number of backup files
	MaxAge        int    `yaml:"max_age"`     // days
	Compress      bool   `yaml:"compress"`
	JSONFormat    bool   `yaml:"json_format"`
}

// Config is the resolved configuration consumed by the engine.
type Config struct {
	Version      int                     `yaml:"version"`
	Requirements map[string]*Requirement `yaml:"requirements"`
	Logging      *LogConfig              `yaml:"logging,omitempty"`
}

// Validate checks every requirement and fills in names from map keys.
func (c *Config) Validate() error {
	for name, req := range c.Requirements {
		if req == nil {
			return fmt.Errorf("requirement %q: empty definition", name)
		}
		req.Name = name
		if err := req.Validate(); err != nil {
			return err
		}
	}
	return nil
}
