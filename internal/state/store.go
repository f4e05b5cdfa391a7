package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"gatekeep-go/internal/filestore"
	"gatekeep-go/internal/gitinfo"
)

// stateDirName is the subdirectory of the git common dir holding
// branch state files. Keying on the common dir means worktrees of the
// same repository share state.
const stateDirName = "gatekeep"

// PathFor returns the state file path for a branch of a repository.
func PathFor(gitCommonDir, branch string) string {
	return filepath.Join(gitCommonDir, stateDirName,
		"branch-"+gitinfo.SanitizeBranch(branch)+".json")
}

// Store loads and mutates branch state documents through the locked
// file store.
type Store struct {
	files  *filestore.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a Store.
func NewStore(files *filestore.Store, logger *zap.Logger) *Store {
	return &Store{files: files, logger: logger, now: time.Now}
}

// Load reads the document under a shared lock. A missing file yields a
// fresh document. If the on-disk content needed migration the migrated
// form is persisted back best-effort; the returned document is always
// migrated either way.
func (s *Store) Load(path, branch string) (*Document, error) {
	data, err := s.files.Read(path)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return NewDocument(branch), nil
		}
		return nil, err
	}

	doc, err := decode(data, branch)
	if err != nil {
		return nil, err
	}

	if Migrate(doc) {
		s.logger.Info("migrated branch state document",
			zap.String("path", path),
			zap.String("branch", branch))
		if err := s.persistMigration(path, branch); err != nil {
			s.logger.Warn("could not persist migration", zap.String("path", path), zap.Error(err))
		}
	}
	return doc, nil
}

// Mutate runs fn against the document under the exclusive lock. fn
// returns whether it changed anything; untouched documents skip the
// write entirely (unless loading itself migrated the document).
func (s *Store) Mutate(path, branch string, fn func(doc *Document) (bool, error)) error {
	return s.files.Update(path, func(current []byte) ([]byte, error) {
		var doc *Document
		if current == nil {
			doc = NewDocument(branch)
		} else {
			var err error
			doc, err = decode(current, branch)
			if err != nil {
				return nil, err
			}
		}

		migrated := Migrate(doc)

		changed, err := fn(doc)
		if err != nil {
			return nil, err
		}
		if !changed && !migrated {
			return nil, nil
		}

		doc.UpdatedAt = s.now().UTC()
		return json.MarshalIndent(doc, "", "  ")
	})
}

// persistMigration re-runs the migration under the exclusive lock and
// writes the result. Racing processes all produce the same document;
// whichever wins the lock last wins the write.
func (s *Store) persistMigration(path, branch string) error {
	return s.Mutate(path, branch, func(*Document) (bool, error) {
		return false, nil
	})
}

func decode(data []byte, branch string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: branch %s: %v", filestore.ErrCorrupt, branch, err)
	}
	if doc.Branch == "" {
		doc.Branch = branch
	}
	if doc.Requirements == nil {
		doc.Requirements = map[string]*RequirementRecord{}
	}
	return &doc, nil
}
