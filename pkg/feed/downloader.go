package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"time"
)

type Downloader struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(url string, timeout time.Duration, logger *slog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Downloader{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "feed_downloader"),
	}
}

// Download fetches the feed archive and returns it as a filesystem together
// with the raw bytes for fingerprinting.
func (d *Downloader) Download(ctx context.Context) (fs.FS, []byte, error) {
	start := time.Now()
	d.logger.Info("starting feed download", "url", d.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "RailSim-Backend/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("failed to download feed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, fmt.Errorf("download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Error("unexpected HTTP status",
			"status_code", resp.StatusCode,
			"status", resp.Status,
		)
		return nil, nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	fsys, err := OpenArchive(data)
	if err != nil {
		return nil, nil, err
	}

	d.logger.Info("feed download completed",
		"size_mb", fmt.Sprintf("%.2f", float64(len(data))/(1024*1024)),
		"total_duration_ms", time.Since(start).Milliseconds(),
	)

	return fsys, data, nil
}

// OpenArchive opens a zip feed. When every file sits under one top-level
// directory, that directory becomes the root.
func OpenArchive(data []byte) (fs.FS, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if _, err := fs.Stat(reader, StationsFile); err == nil {
		return reader, nil
	}

	matches, err := fs.Glob(reader, path.Join("*", StationsFile))
	if err != nil || len(matches) != 1 {
		return reader, nil
	}
	sub, err := fs.Sub(reader, path.Dir(matches[0]))
	if err != nil {
		return nil, fmt.Errorf("open zip root: %w", err)
	}
	return sub, nil
}
