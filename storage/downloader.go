package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/serisow/craftvid/failure"
)

// Downloader fetches remote provider output into storage.
type Downloader struct {
	logger  *slog.Logger
	client  *http.Client
	storage Storage
}

func NewDownloader(logger *slog.Logger, s Storage) *Downloader {
	return &Downloader{
		logger:  logger,
		client:  &http.Client{Timeout: 60 * time.Second},
		storage: s,
	}
}

// Download saves fileURL at rel and returns the size in bytes.
func (d *Downloader) Download(ctx context.Context, fileURL, rel string) (int64, error) {
	d.logger.Debug("Downloading file", slog.String("url", fileURL), slog.String("to", rel))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, failure.Provider("download", fmt.Errorf("failed to download file: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retry, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return 0, failure.RateLimited("download", time.Duration(retry)*time.Second,
			fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return 0, failure.Provider("download", fmt.Errorf("failed to download file, status: %d", resp.StatusCode))
	}

	n, err := Write(d.storage, rel, resp.Body)
	if err != nil {
		return 0, err
	}
	d.logger.Info("Successfully downloaded file", slog.String("path", rel), slog.Int64("size", n))
	return n, nil
}
