package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// UploadJanitor deletes uploaded files left behind in the upload directory
// once they are older than maxAge.
type UploadJanitor struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewUploadJanitor creates a janitor for dir.
func NewUploadJanitor(dir string, maxAge, interval time.Duration, logger *slog.Logger) *UploadJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadJanitor{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Start runs a sweep every interval until ctx is cancelled or Stop is
// called.
func (j *UploadJanitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-j.stop:
				return
			case <-ticker.C:
				j.Sweep()
			}
		}
	}()
}

// Stop halts the janitor and waits for a running sweep to finish.
func (j *UploadJanitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	j.wg.Wait()
}

// Sweep deletes expired regular files directly in the upload directory and
// returns how many were removed. A missing directory is not an error.
func (j *UploadJanitor) Sweep() int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			j.logger.Warn("upload directory not found, skipping cleanup", "dir", j.dir)
		} else {
			j.logger.Error("failed to read upload directory", "dir", j.dir, "error", err)
		}
		return 0
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed concurrently.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			j.logger.Error("failed to delete expired upload", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("deleted expired uploads", "dir", j.dir, "removed", removed)
	}
	return removed
}
