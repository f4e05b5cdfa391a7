// Package filestore provides locked, atomic access to single JSON
// files shared between short-lived processes. It is the only layer
// that touches flock; everything above it works in terms of locked
// reads and locked read-modify-write cycles.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// DefaultLockTimeout bounds exclusive lock acquisition. The caller
	// is blocking an interactive agent, so this stays in low single
	// digits.
	DefaultLockTimeout = 3 * time.Second

	// DefaultReadLockTimeout bounds shared lock acquisition.
	DefaultReadLockTimeout = 2 * time.Second

	// lockPollInterval is the retry cadence for non-blocking flock
	// attempts.
	lockPollInterval = 25 * time.Millisecond
)

// Store performs locked reads and atomic writes against individual
// files. The zero value is not usable; construct with New.
type Store struct {
	lockTimeout     time.Duration
	readLockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout overrides the exclusive-lock timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithReadLockTimeout overrides the shared-lock timeout.
func WithReadLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.readLockTimeout = d }
}

// New creates a Store with default timeouts.
func New(opts ...Option) *Store {
	s := &Store{
		lockTimeout:     DefaultLockTimeout,
		readLockTimeout: DefaultReadLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the file's contents under a shared lock. A missing file
// reports ErrNotFound.
func (s *Store) Read(path string) ([]byte, error) {
	lock, err := s.acquireLock(path, unix.LOCK_SH, s.readLockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Update runs fn under an exclusive lock held across both the read and
// the write. fn receives the current contents (nil if the file does
// not exist yet) and returns the new contents; returning nil bytes
// with a nil error means "no change, skip the write". The write goes
// to a temp file in the same directory, is fsynced, then renamed over
// the target so readers never observe a torn document.
func (s *Store) Update(path string, fn func(current []byte) ([]byte, error)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	lock, err := s.acquireLock(path, unix.LOCK_EX, s.lockTimeout)
	if err != nil {
		return err
	}
	defer lock.release()

	current, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		current = nil
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	return writeAtomic(path, updated)
}

// WriteAtomic replaces the file's contents under an exclusive lock.
func (s *Store) WriteAtomic(path string, data []byte) error {
	return s.Update(path, func([]byte) ([]byte, error) {
		return data, nil
	})
}

// writeAtomic writes data to a temp file in the target's directory,
// fsyncs it, then renames it over the target. Callers must hold the
// exclusive lock.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file over %s: %w", path, err)
	}
	return nil
}

// fileLock is a held flock on the sidecar lock file. The lock file is
// separate from the data file because the data file is replaced by
// rename, which would otherwise drop the lock association.
type fileLock struct {
	file *os.File
}

func (l *fileLock) release() {
	if l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}

// acquireLock opens the sidecar lock file and polls a non-blocking
// flock until it succeeds or the timeout elapses. Polling instead of a
// blocking flock keeps the timeout honest: a blocking flock has no
// deadline, and the calling process is holding up the agent.
func (s *Store) acquireLock(path string, how int, timeout time.Duration) (*fileLock, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", lockPath, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(file.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &fileLock{file: file}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			file.Close()
			return nil, fmt.Errorf("flock %s: %w", lockPath, err)
		}
		if time.Now().After(deadline) {
			file.Close()
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, lockPath, timeout)
		}
		time.Sleep(lockPollInterval)
	}
}
