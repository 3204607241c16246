package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starload/starload/internal/config"
)

// Setup initializes the logger with file and stdout output. Log files older
// than retentionDays are removed; zero keeps everything.
func Setup(level, directory string, retentionDays int) (*slog.Logger, error) {
	return SetupTo(os.Stdout, level, directory, retentionDays)
}

// SetupTo is Setup with console output going to console instead of stdout.
// Pass io.Discard to log to the file only.
func SetupTo(console io.Writer, level, directory string, retentionDays int) (*slog.Logger, error) {
	if directory == "" {
		directory = config.ExpandHome("~/.starload/logs/")
	} else {
		directory = config.ExpandHome(directory)
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	now := time.Now()
	if retentionDays > 0 {
		prune(directory, now.AddDate(0, 0, -retentionDays))
	}

	logPath := filepath.Join(directory, fmt.Sprintf("starload-%s.log", now.Format("2006-01-02")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	return New(io.MultiWriter(console, file), level), nil
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func prune(directory string, cutoff time.Time) {
	matches, err := filepath.Glob(filepath.Join(directory, "starload-*.log"))
	if err != nil {
		return
	}
	for _, path := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "starload-"), ".log")
		t, err := time.ParseInLocation("2006-01-02", day, time.Local)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}
