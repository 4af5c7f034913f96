package registry

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gonka-ai/inference-gateway/internal/log"
)

// Watch starts an fsnotify watcher on the registry's catalog file and calls
// Reload on every write/create/rename event, until ctx is canceled. Callers
// that don't set GONKA_MODELS_WATCH never call this; the registry works
// fine with Reload invoked only at startup and via an admin trigger.
func (r *Registry) Watch(ctx context.Context) error {
	logger := log.WithComponent("registry")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(r.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if _, err := r.Reload(); err != nil {
					logger.Error().Err(err).Msg("model catalog hot-reload failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("fsnotify watch error")
			}
		}
	}()

	return nil
}
