package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch rescans s.Dir on every filesystem event and hands each fresh Snapshot
// to publish. It blocks until ctx is cancelled.
//
// Events are not debounced: a burst of writes produces one rescan per event.
func Watch(ctx context.Context, s *Scanner, publish func(Snapshot)) error {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.Dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: %w", s.Dir, ErrNotDirectory)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close() //nolint:errcheck // best-effort on shutdown
	}()

	if err := watcher.Add(s.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.Dir, err)
	}
	s.logger.Info("watching for conversation changes", "dir", s.Dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.logger.Debug("change detected", "file", filepath.Base(event.Name), "op", event.Op.String())
			publish(s.Scan())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "dir", s.Dir, "error", err)
		}
	}
}
