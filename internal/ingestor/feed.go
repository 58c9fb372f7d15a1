// Package ingestor loads the network dataset at startup and enriches its
// track segments with speed limits from OpenStreetMap.
package ingestor

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"railsim/internal/config"
	"railsim/internal/dataset"
	"railsim/pkg/feed"
)

// FeedIngestor resolves the dataset from, in order of preference, a remote
// zip feed, a local directory or the embedded default network.
type FeedIngestor struct {
	url        string
	dataDir    string
	cacheDir   string
	downloader *feed.Downloader
	parser     *feed.Parser
	logger     *slog.Logger
}

func NewFeedIngestor(cfg *config.Config, logger *slog.Logger) *FeedIngestor {
	i := &FeedIngestor{
		url:      cfg.FeedURL,
		dataDir:  cfg.DataDir,
		cacheDir: feed.ParsedCacheDir(cfg.FeedCacheDir),
		parser:   feed.NewParser(logger),
		logger:   logger.With("component", "feed_ingestor"),
	}
	if cfg.FeedURL != "" {
		i.downloader = feed.NewDownloader(cfg.FeedURL, cfg.FeedDownloadWait, logger)
	}
	return i
}

// Load returns the dataset. A failing remote feed falls back to the local
// source; a failing local source is an error.
func (i *FeedIngestor) Load(ctx context.Context) (*feed.Dataset, error) {
	start := time.Now()

	if i.downloader != nil {
		ds, err := i.loadRemote(ctx)
		if err == nil {
			i.logger.Info("feed loaded",
				"source", "remote",
				"stations", len(ds.Stations),
				"corridors", len(ds.Corridors),
				"schedules", len(ds.Schedules),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return ds, nil
		}
		i.logger.Error("remote feed unavailable, using local dataset", "error", err)
	}

	fsys, source := i.localFS()
	ds, err := i.parser.Parse(fsys)
	if err != nil {
		return nil, fmt.Errorf("parse %s dataset: %w", source, err)
	}

	i.logger.Info("feed loaded",
		"source", source,
		"stations", len(ds.Stations),
		"corridors", len(ds.Corridors),
		"schedules", len(ds.Schedules),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

func (i *FeedIngestor) localFS() (fs.FS, string) {
	if i.dataDir != "" {
		return os.DirFS(i.dataDir), "directory"
	}
	return dataset.FS(), "embedded"
}

func (i *FeedIngestor) loadRemote(ctx context.Context) (*feed.Dataset, error) {
	fsys, data, err := i.downloader.Download(ctx)
	if err != nil {
		return nil, err
	}

	fingerprint := feed.DataFingerprint(data)
	i.logger.Info("feed fingerprint calculated", "sha256", fingerprint, "cache_dir", i.cacheDir)

	ds, cachePath, cacheErr := feed.LoadParsedResult(i.cacheDir, fingerprint)
	if cacheErr == nil {
		i.logger.Info("loaded parsed feed cache", "path", cachePath)
		return ds, nil
	}

	i.logger.Info("parsed feed cache miss, parsing archive", "path", cachePath, "error", cacheErr)
	ds, err = i.parser.Parse(fsys)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if savedPath, saveErr := feed.SaveParsedResult(i.cacheDir, fingerprint, ds); saveErr != nil {
		i.logger.Warn("failed to persist parsed feed cache", "error", saveErr)
	} else {
		i.logger.Info("persisted parsed feed cache", "path", savedPath)
	}
	return ds, nil
}
