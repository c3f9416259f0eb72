package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// dailyFile is shared by every handler derived through WithAttrs/WithGroup
// so that they all rotate and write through the same descriptor.
type dailyFile struct {
	mutex       sync.Mutex
	logDir      string
	prefix      string
	currentFile *os.File
	currentName string
	now         func() time.Time
}

type DailyFileHandler struct {
	file           *dailyFile
	fileHandler    slog.Handler
	defaultHandler slog.Handler
}

// NewDailyFileHandler writes records to <logDir>/<prefix>-YYYY-MM-DD.log and
// mirrors them to stdout.
func NewDailyFileHandler(logDir, prefix string, opts *slog.HandlerOptions) (*DailyFileHandler, error) {
	return newDailyFileHandler(logDir, prefix, os.Stdout, opts)
}

func newDailyFileHandler(logDir, prefix string, stdout io.Writer, opts *slog.HandlerOptions) (*DailyFileHandler, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f := &dailyFile{logDir: logDir, prefix: prefix, now: time.Now}
	if err := f.rotateIfNeeded(); err != nil {
		return nil, err
	}

	return &DailyFileHandler{
		file:           f,
		fileHandler:    slog.NewTextHandler(f, opts),
		defaultHandler: slog.NewTextHandler(stdout, opts),
	}, nil
}

func (f *dailyFile) rotateIfNeeded() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.rotateLocked()
}

func (f *dailyFile) rotateLocked() error {
	fileName := fmt.Sprintf("%s-%s.log", f.prefix, f.now().Format("2006-01-02"))
	if fileName == f.currentName {
		return nil
	}

	if f.currentFile != nil {
		f.currentFile.Close()
	}

	file, err := os.OpenFile(filepath.Join(f.logDir, fileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	f.currentFile = file
	f.currentName = fileName
	return nil
}

// Write implements io.Writer for the file side of the handler.
func (f *dailyFile) Write(p []byte) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err := f.rotateLocked(); err != nil {
		return 0, err
	}
	return f.currentFile.Write(p)
}

func (h *DailyFileHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.fileHandler.Handle(ctx, r)

	// Also log to default handler (stdout)
	if err2 := h.defaultHandler.Handle(ctx, r); err2 != nil && err == nil {
		err = err2
	}
	return err
}

func (h *DailyFileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DailyFileHandler{
		file:           h.file,
		fileHandler:    h.fileHandler.WithAttrs(attrs),
		defaultHandler: h.defaultHandler.WithAttrs(attrs),
	}
}

func (h *DailyFileHandler) WithGroup(name string) slog.Handler {
	return &DailyFileHandler{
		file:           h.file,
		fileHandler:    h.fileHandler.WithGroup(name),
		defaultHandler: h.defaultHandler.WithGroup(name),
	}
}

func (h *DailyFileHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.defaultHandler.Enabled(ctx, level)
}

// Close releases the current log file.
func (h *DailyFileHandler) Close() error {
	h.file.mutex.Lock()
	defer h.file.mutex.Unlock()
	if h.file.currentFile == nil {
		return nil
	}
	err := h.file.currentFile.Close()
	h.file.currentFile = nil
	h.file.currentName = ""
	return err
}

// ParseLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the service logger.
func New(logDir, level string) (*slog.Logger, *DailyFileHandler, error) {
	handler, err := NewDailyFileHandler(logDir, "craftvid", &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	if err != nil {
		return nil, nil, err
	}
	return slog.New(handler), handler, nil
}
