// Package gitinfo resolves the git facts the state layer keys on: the
// current branch and the repository's common directory. State is keyed
// on the common dir rather than the worktree so that worktrees sharing
// a repository share requirement state.
package gitinfo

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const gitTimeout = 5 * time.Second

// Info holds the resolved git facts for a working directory.
type Info struct {
	// Branch is the current branch name, or "detached-<short-sha>"
	// when HEAD is detached.
	Branch string

	// CommonDir is the absolute git common directory (shared across
	// worktrees).
	CommonDir string
}

// Resolve runs git in workDir to determine branch and common dir.
func Resolve(workDir string) (*Info, error) {
	commonDir, err := runGit(workDir, "rev-parse", "--git-common-dir")
	if err != nil {
		return nil, fmt.Errorf("resolve git common dir: %w", err)
	}
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(workDir, commonDir)
	}
	commonDir = filepath.Clean(commonDir)

	branch, err := runGit(workDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve branch: %w", err)
	}
	if branch == "HEAD" {
		// Detached HEAD: fall back to the short SHA so state still has
		// a stable key for the duration of the checkout.
		sha, err := runGit(workDir, "rev-parse", "--short", "HEAD")
		if err != nil {
			return nil, fmt.Errorf("resolve detached head: %w", err)
		}
		branch = "detached-" + sha
	}

	return &Info{Branch: branch, CommonDir: commonDir}, nil
}

// DiffSize returns added+deleted line counts against the merge base
// with the given base branch, via `git diff --numstat`. Binary files
// count as zero lines.
func DiffSize(workDir, baseBranch string) (int64, error) {
	out, err := runGit(workDir, "diff", "--numstat", baseBranch+"...HEAD")
	if err != nil {
		// Shallow clones and missing base branches land here; try the
		// plain two-dot form before giving up.
		out, err = runGit(workDir, "diff", "--numstat", baseBranch)
		if err != nil {
			return 0, fmt.Errorf("git diff --numstat: %w", err)
		}
	}

	var total int64
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		total += parseNumstat(fields[0]) + parseNumstat(fields[1])
	}
	return total, nil
}

// parseNumstat parses one numstat count; "-" (binary file) is zero.
func parseNumstat(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

// SanitizeBranch converts a branch name into a filesystem-safe token.
// Slashes and other separators become dashes; anything outside
// [a-zA-Z0-9._-] is dropped.
func SanitizeBranch(branch string) string {
	var b strings.Builder
	for _, c := range branch {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			b.WriteRune(c)
		case c == '/', c == ' ', c == ':':
			b.WriteRune('-')
		}
	}
	s := b.String()
	if s == "" {
		return "unknown"
	}
	return s
}

func runGit(workDir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
