package logs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetLogDir(t *testing.T) {
	dir, err := GetLogDir()
	if err != nil {
		t.Fatalf("GetLogDir failed: %v", err)
	}
	if dir == "" {
		t.Fatal("GetLogDir returned empty path")
	}
	if !strings.Contains(dir, "gatekeep") {
		t.Errorf("Expected log dir to contain 'gatekeep', got %s", dir)
	}
}

func TestGetLogFilePathWithDir(t *testing.T) {
	tmpDir := t.TempDir()

	path, err := GetLogFilePathWithDir(tmpDir, "gatekeep.log")
	if err != nil {
		t.Fatalf("GetLogFilePathWithDir failed: %v", err)
	}
	if path != filepath.Join(tmpDir, "gatekeep.log") {
		t.Errorf("Unexpected log path: %s", path)
	}

	// Directory should exist afterwards
	if _, err := os.Stat(tmpDir); err != nil {
		t.Errorf("Log dir missing: %v", err)
	}
}

func TestGetLogFilePathWithDirCreatesNested(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "a", "b")

	path, err := GetLogFilePathWithDir(tmpDir, "gatekeep.log")
	if err != nil {
		t.Fatalf("GetLogFilePathWithDir failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("Nested log dir not created: %v", err)
	}
}

func TestSetupHookLoggerNeverNil(t *testing.T) {
	logger := SetupHookLogger("debug", t.TempDir())
	if logger == nil {
		t.Fatal("SetupHookLogger returned nil")
	}
	logger.Info("hook logger smoke test")
	_ = logger.Sync()
}
