package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchPlan watches the directory holding params.json. Atomic updates replace
// the file by rename, which a watch on the file itself would lose.
func (s *Server) watchPlan() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create plan watcher: %w", err)
	}
	dir := filepath.Dir(s.paramsPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.logger.WithField("dir", dir).Info("Watching plan for changes")
	return watcher, nil
}

// runWatcher reloads the plan after writes to params.json settle. It closes
// watcher when ctx is cancelled.
func (s *Server) runWatcher(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(s.paramsPath)
	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				s.logger.WithField("event", event.String()).Debug("Plan file changed")
				settle = time.After(s.config.WatchDelay)
			}
		case <-settle:
			settle = nil
			if err := s.Reload(ctx); err != nil {
				s.logger.WithError(err).Warn("Failed to reload changed plan, keeping the previous one")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Error("Plan watcher error")
		}
	}
}
