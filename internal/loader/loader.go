// Package loader bootstraps a table store from columnar snapshot files and
// keeps it current when the snapshots change on disk.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/store"
)

// debounce collapses the burst of write events a snapshot export produces
// into one re-import.
const debounce = 500 * time.Millisecond

// Bootstrap probes the store for the snapshot tables and imports from
// dataDir when they are absent. Returns true when an import ran.
func Bootstrap(s *store.Store, dataDir string, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.HasTables() {
		logger.Info("snapshot tables present, skipping import")
		return false, nil
	}
	logger.Info("importing snapshots", zap.String("dir", dataDir))
	if err := s.LoadAll(dataDir); err != nil {
		return false, fmt.Errorf("bootstrap: %w", err)
	}
	return true, nil
}

// Watch re-imports snapshots whenever a parquet file in dataDir is written,
// then calls onReload. It blocks until ctx is cancelled.
func Watch(ctx context.Context, s *store.Store, dataDir string, logger *zap.Logger, onReload func()) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch snapshots: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dataDir); err != nil {
		return fmt.Errorf("watch %s: %w", dataDir, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	reload := func() {
		logger.Info("snapshot change detected, re-importing", zap.String("dir", dataDir))
		if err := s.LoadAll(dataDir); err != nil {
			logger.Warn("snapshot re-import failed", zap.Error(err))
			return
		}
		if onReload != nil {
			onReload()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".parquet") {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			reload()
		case <-watcher.Errors:
			// Transient watch errors are not fatal to the repl.
		}
	}
}
