// Package sessions tracks the agent sessions currently alive on this
// machine. The registry is one machine-global JSON file; any process
// may prune entries whose owning process has died. Every operation is
// fail-open: a broken registry degrades to "no sessions known", never
// to an error the caller has to handle.
package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gatekeep-go/internal/filestore"
)

const registrySchemaVersion = 1

// Entry is one live agent session.
type Entry struct {
	SessionID  string    `json:"session_id"`
	OwnerPID   int       `json:"owner_pid"`
	ProjectDir string    `json:"project_dir"`
	Branch     string    `json:"branch"`
	StartedAt  time.Time `json:"started_at"`
	LastActive time.Time `json:"last_active"`
}

// document is the on-disk registry shape.
type document struct {
	Version  int              `json:"version"`
	Sessions map[string]Entry `json:"sessions"`
}

// Registry is the machine-global session registry.
type Registry struct {
	store  *filestore.Store
	path   string
	logger *zap.Logger
	now    func() time.Time
	alive  func(pid int) bool
}

// DefaultPath returns the global registry file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gatekeep", "sessions.json")
	}
	return filepath.Join(home, ".gatekeep", "sessions.json")
}

// NewRegistry creates a registry backed by the given file.
func NewRegistry(store *filestore.Store, path string, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		path:   path,
		logger: logger,
		now:    time.Now,
		alive:  pidAlive,
	}
}

// Upsert records the session as active, creating or refreshing its
// entry, and opportunistically prunes entries owned by dead processes.
// Fail-open: errors are logged, never returned.
func (r *Registry) Upsert(sessionID, projectDir, branch string, ownerPID int) {
	err := r.store.Update(r.path, func(current []byte) ([]byte, error) {
		doc := r.decode(current)

		now := r.now()
		entry, exists := doc.Sessions[sessionID]
		if !exists {
			entry = Entry{SessionID: sessionID, StartedAt: now}
		}
		entry.OwnerPID = ownerPID
		entry.ProjectDir = projectDir
		entry.Branch = branch
		entry.LastActive = now
		doc.Sessions[sessionID] = entry

		r.pruneDead(doc)

		return json.MarshalIndent(doc, "", "  ")
	})
	if err != nil {
		r.logger.Warn("session registry upsert failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// Remove deletes the session's entry. Idempotent and fail-open.
func (r *Registry) Remove(sessionID string) {
	err := r.store.Update(r.path, func(current []byte) ([]byte, error) {
		doc := r.decode(current)
		if _, exists := doc.Sessions[sessionID]; !exists {
			return nil, nil
		}
		delete(doc.Sessions, sessionID)
		return json.MarshalIndent(doc, "", "  ")
	})
	if err != nil {
		r.logger.Warn("session registry remove failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// ListActive returns live entries, optionally filtered by project dir
// and branch (empty filter matches everything). Entries owned by dead
// processes are excluded from the result but only removed from disk by
// the next write. Fail-open: errors yield an empty list.
func (r *Registry) ListActive(projectDir, branch string) []Entry {
	data, err := r.store.Read(r.path)
	if err != nil {
		if !isNotFound(err) {
			r.logger.Warn("session registry read failed", zap.Error(err))
		}
		return nil
	}

	doc := r.decode(data)

	var entries []Entry
	for _, entry := range doc.Sessions {
		if !r.alive(entry.OwnerPID) {
			continue
		}
		if projectDir != "" && entry.ProjectDir != projectDir {
			continue
		}
		if branch != "" && entry.Branch != branch {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Prune removes every entry whose owning process is dead. Returns the
// number of entries removed; fail-open.
func (r *Registry) Prune() int {
	removed := 0
	err := r.store.Update(r.path, func(current []byte) ([]byte, error) {
		doc := r.decode(current)
		removed = r.pruneDead(doc)
		if removed == 0 {
			return nil, nil
		}
		return json.MarshalIndent(doc, "", "  ")
	})
	if err != nil {
		r.logger.Warn("session registry prune failed", zap.Error(err))
		return 0
	}
	return removed
}

// decode parses the registry, treating missing or corrupt content as
// an empty registry. Corruption is logged and the next write replaces
// the file wholesale.
func (r *Registry) decode(data []byte) *document {
	doc := &document{Version: registrySchemaVersion, Sessions: map[string]Entry{}}
	if len(data) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		r.logger.Warn("session registry corrupt, starting fresh",
			zap.String("path", r.path),
			zap.Error(fmt.Errorf("%w: %v", filestore.ErrCorrupt, err)))
		return &document{Version: registrySchemaVersion, Sessions: map[string]Entry{}}
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]Entry{}
	}
	return doc
}

func (r *Registry) pruneDead(doc *document) int {
	removed := 0
	for id, entry := range doc.Sessions {
		if !r.alive(entry.OwnerPID) {
			delete(doc.Sessions, id)
			removed++
		}
	}
	return removed
}

func isNotFound(err error) bool {
	return errors.Is(err, filestore.ErrNotFound) || os.IsNotExist(err)
}

// pidAlive checks process liveness with signal 0. ESRCH means the
// process does not exist; EPERM means it exists but belongs to another
// user, which still counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
