package gitinfo

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func gitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func TestResolve(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir := initRepo(t)

	info, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, "main", info.Branch)
	assert.True(t, filepath.IsAbs(info.CommonDir))
	assert.Contains(t, info.CommonDir, ".git")
}

func TestResolveDetachedHead(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir := initRepo(t)

	cmd := exec.Command("git", "checkout", "--detach", "HEAD")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	info, err := Resolve(dir)
	require.NoError(t, err)
	assert.Contains(t, info.Branch, "detached-")
}

func TestResolveNonRepo(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	_, err := Resolve(t.TempDir())
	assert.Error(t, err)
}

func TestDiffSize(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not available")
	}
	dir := initRepo(t)

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("checkout", "-b", "feature/x")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("two\nthree\nfour\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "add b")

	size, err := DiffSize(dir, "main")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestSanitizeBranch(t *testing.T) {
	tests := map[string]string{
		"main":            "main",
		"feature/x":       "feature-x",
		"feature/a b":     "feature-a-b",
		"weird~^?*branch": "weirdbranch",
		"":                "unknown",
		"///":             "---",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeBranch(in), "input %q", in)
	}
}

func TestParseNumstat(t *testing.T) {
	assert.Equal(t, int64(42), parseNumstat("42"))
	assert.Equal(t, int64(0), parseNumstat("-"))
	assert.Equal(t, int64(0), parseNumstat(""))
}
