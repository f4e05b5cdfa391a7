package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatekeep-go/internal/config"
	"gatekeep-go/internal/filestore"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	store := NewStore(filestore.New(filestore.WithLockTimeout(10*time.Second)), zap.NewNop())
	path := filepath.Join(t.TempDir(), "branch-main.json")
	return store, path
}

func TestPathFor(t *testing.T) {
	path := PathFor("/repo/.git", "feature/x")
	assert.Equal(t, "/repo/.git/gatekeep/branch-feature-x.json", path)
}

func TestLoadMissingYieldsFreshDocument(t *testing.T) {
	store, path := newTestStore(t)

	doc, err := store.Load(path, "main")
	require.NoError(t, err)
	assert.Equal(t, "main", doc.Branch)
	assert.Equal(t, SchemaVersion, doc.Version)
	assert.Empty(t, doc.Requirements)
}

func TestMutateRoundTrip(t *testing.T) {
	store, path := newTestStore(t)

	err := store.Mutate(path, "main", func(doc *Document) (bool, error) {
		r := NewResolver(doc, "commit_plan", config.ScopeSession, "abc12345")
		r.Satisfy(SatisfiedByCLI, map[string]string{"note": "ok"}, 0)
		return r.Dirty(), nil
	})
	require.NoError(t, err)

	doc, err := store.Load(path, "main")
	require.NoError(t, err)
	r := NewResolver(doc, "commit_plan", config.ScopeSession, "abc12345")
	assert.True(t, r.IsSatisfied())
	assert.Equal(t, "ok", doc.Requirements["commit_plan"].Sessions["abc12345"].Metadata["note"])
	assert.False(t, doc.UpdatedAt.IsZero())
}

func TestMutateNoChangeSkipsWrite(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Mutate(path, "main", func(doc *Document) (bool, error) {
		NewResolver(doc, "x", config.ScopeSession, "abc12345").MarkTriggered()
		return true, nil
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	modTime := info.ModTime()

	require.NoError(t, store.Mutate(path, "main", func(doc *Document) (bool, error) {
		return false, nil
	}))

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, modTime, info.ModTime())
}

func TestLoadCorruptDocument(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 2, "requirem`), 0o644))

	_, err := store.Load(path, "main")
	assert.ErrorIs(t, err, filestore.ErrCorrupt)
}

func TestLoadMigratesAndPersists(t *testing.T) {
	store, path := newTestStore(t)
	legacy := "f81d4fae-7dec-11d0-a765-00a0c91e6bf6"

	raw := fmt.Sprintf(`{
		"version": 1,
		"branch": "main",
		"requirements": {
			"commit_plan": {
				"scope": "session",
				"sessions": {%q: {"satisfied": true, "triggered": true}}
			}
		}
	}`, legacy)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	doc, err := store.Load(path, "main")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, doc.Version)
	assert.NotContains(t, doc.Requirements["commit_plan"].Sessions, legacy)

	// The migrated form was written back.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Document
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, SchemaVersion, onDisk.Version)
	assert.NotContains(t, onDisk.Requirements["commit_plan"].Sessions, legacy)
}

// N concurrent writers each adding a unique session record must all
// survive, and the final document must parse.
func TestConcurrentSessionWriters(t *testing.T) {
	store, path := newTestStore(t)

	const writers = 12
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("sess%04d", id)
			err := store.Mutate(path, "main", func(doc *Document) (bool, error) {
				r := NewResolver(doc, "commit_plan", config.ScopeSession, sessionID)
				r.Satisfy(SatisfiedByCLI, nil, 0)
				return r.Dirty(), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	doc, err := store.Load(path, "main")
	require.NoError(t, err)
	require.Contains(t, doc.Requirements, "commit_plan")
	assert.Len(t, doc.Requirements["commit_plan"].Sessions, writers)
}

// The full scenario from the workflow this system exists for.
func TestScenarioCommitPlan(t *testing.T) {
	store, path := newTestStore(t)

	satisfied := func(sessionID string) bool {
		doc, err := store.Load(path, "feature/x")
		require.NoError(t, err)
		return NewResolver(doc, "commit_plan", config.ScopeSession, sessionID).IsSatisfied()
	}

	require.NoError(t, store.Mutate(path, "feature/x", func(doc *Document) (bool, error) {
		r := NewResolver(doc, "commit_plan", config.ScopeSession, "abc12345")
		r.Satisfy(SatisfiedByCLI, nil, 0)
		return r.Dirty(), nil
	}))

	assert.True(t, satisfied("abc12345"))
	assert.False(t, satisfied("def67890"), "new session does not inherit")

	require.NoError(t, store.Mutate(path, "feature/x", func(doc *Document) (bool, error) {
		r := NewResolver(doc, "commit_plan", config.ScopeSession, "abc12345")
		r.SatisfyForBranch(SatisfiedByCLI)
		return r.Dirty(), nil
	}))

	assert.True(t, satisfied("abc12345"))
	assert.True(t, satisfied("def67890"), "branch override covers everyone")
}
