package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSplitsByLevel(t *testing.T) {
	t.Setenv(EnvLogFile, "")
	var info, warn bytes.Buffer
	log, closeFn, err := New(Options{Level: "debug", Info: &info, Warn: &warn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()

	log.Debug("receipt polled")
	log.Warn("tracker down")
	if !strings.Contains(info.String(), "receipt polled") || strings.Contains(info.String(), "tracker down") {
		t.Fatalf("info stream = %q", info.String())
	}
	if !strings.Contains(warn.String(), "tracker down") || strings.Contains(warn.String(), "receipt polled") {
		t.Fatalf("warn stream = %q", warn.String())
	}
}

func TestNewRespectsLevel(t *testing.T) {
	t.Setenv(EnvLogFile, "")
	var info bytes.Buffer
	log, _, err := New(Options{Level: "warn", Info: &info, Warn: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hidden")
	if info.Len() != 0 {
		t.Fatalf("info should be suppressed at warn level: %q", info.String())
	}
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "verinews.log")
	t.Setenv(EnvLogFile, path)
	var info bytes.Buffer
	log, closeFn, err := New(Options{Info: &info, Warn: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Error("submission failed")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), "submission failed") || !strings.Contains(info.String(), "submission failed") {
		t.Fatalf("expected entry in file and stream")
	}
}
