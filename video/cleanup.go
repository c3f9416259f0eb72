package video

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// staleAfter is how old an orphaned temporary file must be before cleanup
// removes it. Renders in progress refresh their files well within it.
const staleAfter = 6 * time.Hour

// CleanupService removes orphaned render leftovers and old thumbnails.
type CleanupService struct {
	logger        *slog.Logger
	tempDir       string
	mediaRoot     string
	retentionDays int
	now           func() time.Time
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(logger *slog.Logger, tempDir, mediaRoot string, retentionDays int) *CleanupService {
	return &CleanupService{
		logger:        logger,
		tempDir:       tempDir,
		mediaRoot:     mediaRoot,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// StartCleanupSchedule begins regular cleanup until ctx is done.
func (s *CleanupService) StartCleanupSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.PerformCleanup()
			}
		}
	}()

	s.logger.Info("Video cleanup service started",
		slog.Int("retention_days", s.retentionDays),
		slog.Duration("interval", interval))
}

// PerformCleanup removes stale temporary files and partial outputs, and
// thumbnails older than the retention period.
func (s *CleanupService) PerformCleanup() int {
	now := s.now()
	removed := 0

	if s.tempDir != "" {
		entries, err := os.ReadDir(s.tempDir)
		if err != nil && !os.IsNotExist(err) {
			s.logger.Error("Error reading temp directory", slog.String("error", err.Error()))
		}
		for _, e := range entries {
			name := e.Name()
			if !strings.HasPrefix(name, "assemble-") && !strings.HasPrefix(name, "watermark-") {
				continue
			}
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) < staleAfter {
				continue
			}
			if s.remove(filepath.Join(s.tempDir, name), info.ModTime(), true) {
				removed++
			}
		}
	}

	if s.mediaRoot == "" {
		return removed
	}
	cutoff := now.AddDate(0, 0, -s.retentionDays)
	err := filepath.Walk(s.mediaRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		switch {
		case strings.HasPrefix(name, ".") && filepath.Ext(name) == ".mp4" && now.Sub(info.ModTime()) >= staleAfter:
			// Partial output left behind by an interrupted render.
		case s.retentionDays > 0 && filepath.Ext(name) == ".jpg" && strings.Contains(path, string(filepath.Separator)+"thumbnails"+string(filepath.Separator)) && info.ModTime().Before(cutoff):
		default:
			return nil
		}
		if s.remove(path, info.ModTime(), false) {
			removed++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		s.logger.Error("Error during video cleanup",
			slog.String("error", err.Error()))
	}
	return removed
}

func (s *CleanupService) remove(path string, modified time.Time, all bool) bool {
	s.logger.Info("Removing stale file",
		slog.String("path", path),
		slog.Time("modified_time", modified))
	var err error
	if all {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		s.logger.Error("Failed to remove stale file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
