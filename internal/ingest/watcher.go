// Package ingest watches a spool directory and analyzes captures dropped
// into it, so collectors can deliver files over scp/rsync without talking
// to the HTTP API.
package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/perfstack/nmon-insight/internal/services"
)

// settleDelay gives writers time to finish before a spooled file is read.
const settleDelay = 500 * time.Millisecond

// Watcher analyzes .nmon files as they appear in the spool directory.
type Watcher struct {
	logger   *slog.Logger
	analyzer *services.Analyzer
	dir      string
}

// NewWatcher builds a spool watcher over dir.
func NewWatcher(logger *slog.Logger, analyzer *services.Analyzer, dir string) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{logger: logger, analyzer: analyzer, dir: dir}
}

// Run processes files already present in the spool, then blocks watching
// for new ones until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	w.drainExisting(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching spool directory", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isCapture(event.Name) {
				continue
			}
			// Writers rarely land a capture atomically; let it settle.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(settleDelay):
			}
			w.process(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("spool watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("spool scan failed", slog.String("dir", w.dir), slog.Any("error", err))
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() || !isCapture(entry.Name()) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

// process analyzes one spooled capture and removes it on success. Failed
// files stay behind for inspection.
func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if _, err := w.analyzer.AnalyzeFile(ctx, path); err != nil {
		w.logger.Warn("spooled capture rejected", slog.String("path", path), slog.Any("error", err))
		return
	}
	if err := os.Remove(path); err != nil {
		w.logger.Warn("failed to remove spooled capture", slog.String("path", path), slog.Any("error", err))
	}
}

func isCapture(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".nmon")
}
