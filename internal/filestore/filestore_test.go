package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingFile(t *testing.T) {
	store := New()
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := store.Read(path)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteThenRead(t *testing.T) {
	store := New()
	path := filepath.Join(t.TempDir(), "doc.json")

	content := []byte(`{"hello":"world"}`)
	require.NoError(t, store.WriteAtomic(path, content))

	got, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUpdateCreatesFile(t *testing.T) {
	store := New()
	path := filepath.Join(t.TempDir(), "nested", "dir", "doc.json")

	err := store.Update(path, func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return []byte("created"), nil
	})
	require.NoError(t, err)

	got, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("created"), got)
}

func TestUpdateSkipWrite(t *testing.T) {
	store := New()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, store.WriteAtomic(path, []byte("original")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	originalModTime := info.ModTime()

	// Returning nil means no change: the file must not be rewritten.
	err = store.Update(path, func(current []byte) ([]byte, error) {
		assert.Equal(t, []byte("original"), current)
		return nil, nil
	})
	require.NoError(t, err)

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, originalModTime, info.ModTime())

	got, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestUpdatePropagatesFnError(t *testing.T) {
	store := New()
	path := filepath.Join(t.TempDir(), "doc.json")

	wantErr := errors.New("fn failed")
	err := store.Update(path, func([]byte) ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestNoTempFileLeftBehind(t *testing.T) {
	store := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, store.WriteAtomic(path, []byte("a")))
	require.NoError(t, store.WriteAtomic(path, []byte("b")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp-"),
			"temp file left behind: %s", entry.Name())
	}
}

func TestLockTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	slow := New(WithLockTimeout(10 * time.Second))
	fast := New(WithLockTimeout(150 * time.Millisecond))

	held := make(chan struct{})
	releaseHold := make(chan struct{})
	go func() {
		_ = slow.Update(path, func([]byte) ([]byte, error) {
			close(held)
			<-releaseHold
			return []byte("slow"), nil
		})
	}()

	<-held
	err := fast.Update(path, func([]byte) ([]byte, error) {
		return []byte("fast"), nil
	})
	close(releaseHold)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

// Concurrent read-modify-write cycles must serialize: every writer's
// record survives and the document is never torn.
func TestConcurrentUpdates(t *testing.T) {
	store := New(WithLockTimeout(10 * time.Second))
	path := filepath.Join(t.TempDir(), "doc.json")

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := store.Update(path, func(current []byte) ([]byte, error) {
				doc := map[string]string{}
				if current != nil {
					if err := json.Unmarshal(current, &doc); err != nil {
						return nil, err
					}
				}
				doc[fmt.Sprintf("writer-%d", id)] = "present"
				return json.Marshal(doc)
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	data, err := store.Read(path)
	require.NoError(t, err)

	doc := map[string]string{}
	require.NoError(t, json.Unmarshal(data, &doc), "document must never be torn")
	assert.Len(t, doc, writers)
	for i := 0; i < writers; i++ {
		assert.Contains(t, doc, fmt.Sprintf("writer-%d", i))
	}
}

func TestSharedReadsDoNotBlockEachOther(t *testing.T) {
	store := New(WithReadLockTimeout(2 * time.Second))
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, store.WriteAtomic(path, []byte("data")))

	const readers = 8
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := store.Read(path)
			assert.NoError(t, err)
			assert.Equal(t, []byte("data"), data)
		}()
	}
	wg.Wait()
}
