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

func TestDailyFileHandlerWritesFileAndStdout(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer

	h, err := newDailyFileHandler(dir, "craftvid", &stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	if err != nil {
		t.Fatalf("newDailyFileHandler() error = %v", err)
	}
	defer h.Close()

	logger := slog.New(h).With(slog.String("scene_id", "s1"))
	logger.Info("preview rendered", slog.Float64("duration", 4.2))

	name := "craftvid-" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for _, want := range []string{"preview rendered", "scene_id=s1", "duration=4.2"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q: %s", want, data)
		}
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout missing %q: %s", want, stdout.String())
		}
	}
}

func TestDailyFileHandlerRotates(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer

	h, err := newDailyFileHandler(dir, "craftvid", &stdout, nil)
	if err != nil {
		t.Fatalf("newDailyFileHandler() error = %v", err)
	}
	defer h.Close()

	day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	h.file.now = func() time.Time { return day }
	logger := slog.New(h)
	logger.Info("first")

	day = day.Add(2 * time.Minute)
	logger.Info("second")

	for _, name := range []string{"craftvid-2024-03-01.log", "craftvid-2024-03-02.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
