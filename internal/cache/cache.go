// Package cache provides the two disk-backed TTL caches: calculation
// memoization for dynamic requirements, and deny-message dedup. Both
// are advisory: losing or failing to open a cache changes noise and
// speed, never a decision. Every method degrades silently to a miss.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	calcBucket  = "calculations"
	dedupBucket = "dedup"

	// DefaultCalcTTL keeps calculator results warm across the burst of
	// hook invocations a single agent turn produces.
	DefaultCalcTTL = 30 * time.Second

	// DefaultDedupTTL is the window in which repeated identical deny
	// payloads collapse to a minimal marker.
	DefaultDedupTTL = 5 * time.Second

	// openTimeout bounds the bbolt file lock. A second process holding
	// the cache open just means we run uncached.
	openTimeout = 500 * time.Millisecond
)

// DefaultDir returns the cache directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gatekeep", "cache")
	}
	return filepath.Join(home, ".gatekeep", "cache")
}

// DB wraps the bolt database holding both cache domains.
type DB struct {
	db     *bbolt.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (or creates) the cache database. Returns nil on any
// failure: a nil *DB is a valid always-miss cache, so callers never
// branch on cache availability.
func Open(dir string, logger *zap.Logger) *DB {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Debug("cache dir unavailable, running uncached", zap.Error(err))
		return nil
	}

	db, err := bbolt.Open(filepath.Join(dir, "cache.db"), 0o644, &bbolt.Options{
		Timeout: openTimeout,
	})
	if err != nil {
		logger.Debug("cache db unavailable, running uncached", zap.Error(err))
		return nil
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(calcBucket)); err != nil {
			return fmt.Errorf("create calc bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(dedupBucket)); err != nil {
			return fmt.Errorf("create dedup bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Debug("cache init failed, running uncached", zap.Error(err))
		db.Close()
		return nil
	}

	return &DB{db: db, logger: logger, now: time.Now}
}

// Close closes the database. Safe on nil.
func (c *DB) Close() {
	if c == nil {
		return
	}
	_ = c.db.Close()
}

// CalcKey builds the calculation cache key.
func CalcKey(branch, calculator string) string {
	return strings.Join([]string{branch, calculator}, "\x00")
}

// DedupKey builds the dedup cache key.
func DedupKey(project, branch, sessionID, requirement string) string {
	return strings.Join([]string{project, branch, sessionID, requirement}, "\x00")
}

// GetCalc returns a cached calculator value if present and fresh.
func (c *DB) GetCalc(branch, calculator string) (int64, bool) {
	if c == nil {
		return 0, false
	}

	var record CalcRecord
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(calcBucket)).Get([]byte(CalcKey(branch, calculator)))
		if data == nil {
			return nil
		}
		if err := record.UnmarshalBinary(data); err != nil {
			return nil // treat undecodable as a miss
		}
		found = true
		return nil
	})
	if err != nil || !found || record.IsExpired(c.now()) {
		return 0, false
	}
	return record.Value, true
}

// PutCalc stores a calculator value with the given TTL.
func (c *DB) PutCalc(branch, calculator string, value int64, ttl time.Duration) {
	if c == nil {
		return
	}

	now := c.now()
	record := CalcRecord{
		Key:        CalcKey(branch, calculator),
		Calculator: calculator,
		Branch:     branch,
		Value:      value,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	err := c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(calcBucket))
		cleanupExpired(bucket, c.now())
		data, err := record.MarshalBinary()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(record.Key), data)
	})
	if err != nil {
		c.logger.Debug("calc cache write failed", zap.Error(err))
	}
}

// SeenRecently atomically checks whether an identical deny was
// delivered within the TTL and marks it delivered. The first call in a
// window returns false (send the full payload); subsequent calls with
// the same key and digest return true (send the minimal marker).
// A changed digest counts as new: the deny's content differs, so the
// full payload goes out again.
func (c *DB) SeenRecently(key, digest string, ttl time.Duration) bool {
	if c == nil {
		return false
	}

	seen := false
	now := c.now()
	err := c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(dedupBucket))
		cleanupExpired(bucket, now)

		if data := bucket.Get([]byte(key)); data != nil {
			var record DedupRecord
			if record.UnmarshalBinary(data) == nil &&
				!record.IsExpired(now) && record.Digest == digest {
				seen = true
				return nil
			}
		}

		record := DedupRecord{
			Key:       key,
			Digest:    digest,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		data, err := record.MarshalBinary()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
	if err != nil {
		c.logger.Debug("dedup cache update failed", zap.Error(err))
		return false
	}
	return seen
}

// cleanupExpired removes expired records from a bucket. Runs inside
// write transactions; buckets stay small so a full scan is cheap.
func cleanupExpired(bucket *bbolt.Bucket, now time.Time) {
	type expirable struct {
		ExpiresAt time.Time `json:"expires_at"`
	}

	var stale [][]byte
	cursor := bucket.Cursor()
	for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
		var record expirable
		if json.Unmarshal(value, &record) != nil || now.After(record.ExpiresAt) {
			stale = append(stale, append([]byte(nil), key...))
		}
	}
	for _, key := range stale {
		_ = bucket.Delete(key)
	}
}
