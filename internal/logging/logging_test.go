package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "debug", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = Init(Options{}) })

	L("catalog").WithField(KeyPackage, "modA").Debug("fetched")

	out := buf.String()
	if !strings.Contains(out, "component=catalog") {
		t.Errorf("missing component field: %q", out)
	}
	if !strings.Contains(out, "package=modA") {
		t.Errorf("missing package field: %q", out)
	}
}

func TestInitRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "warn", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = Init(Options{}) })

	L("test").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if err := Init(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestInitTruncatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "log.txt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("stale contents\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Init(Options{File: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	L("test").Info("fresh entry")
	Close()
	t.Cleanup(func() { _ = Init(Options{}) })

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "stale contents") {
		t.Error("log file should be truncated on Init")
	}
	if !strings.Contains(string(data), "fresh entry") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestDefaultLogPath(t *testing.T) {
	orig := getLogPath
	t.Cleanup(func() { getLogPath = orig })
	getLogPath = func() (string, error) { return "/tmp/x/modupdater.log", nil }

	got, err := DefaultLogPath()
	if err != nil || got != "/tmp/x/modupdater.log" {
		t.Fatalf("DefaultLogPath = %q, %v", got, err)
	}
}
