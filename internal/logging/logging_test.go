package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "rows", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "rows=3") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestSetupCreatesFileAndPrunes(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "starload-2001-01-01.log")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger, err := Setup("info", dir, 30)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	logger.Debug("not written")

	today := filepath.Join(dir, "starload-"+time.Now().Format("2006-01-02")+".log")
	if _, err := os.Stat(today); err != nil {
		t.Errorf("expected log file %s: %v", today, err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("expected %s to be pruned", old)
	}
}

func TestSetupToWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := SetupTo(&console, "info", dir, 0)
	if err != nil {
		t.Fatalf("SetupTo: %v", err)
	}
	logger.Info("batch committed", "batch", 2)

	if !strings.Contains(console.String(), "batch committed") {
		t.Errorf("console missing message: %q", console.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "starload-"+time.Now().Format("2006-01-02")+".log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "batch=2") {
		t.Errorf("log file missing message: %q", data)
	}
}
