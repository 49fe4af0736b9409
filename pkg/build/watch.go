package build

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/chazu/burl/pkg/engine"
)

// Watch builds the node script at path, then watches every
// contributing source file and rebuilds on change. It returns when ctx
// is canceled. A script that fails to load or build keeps being
// watched; the next change retries.
func (d *Driver) Watch(ctx context.Context, path string) error {
	for {
		files := []string{path}

		n, err := engine.LoadNode(path, d.cfg.BuildRoot, d.logger)
		if err != nil {
			d.logger.Error().Err(err).Str("script", path).Msg("load failed")
		} else {
			if err := d.BuildAll(n); err != nil {
				d.logger.Error().Err(err).Str("node", n.Name()).Msg("build failed")
			}
			files = n.Files()
		}

		changed, err := d.awaitChange(ctx, files)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

// awaitChange blocks until one of files is written to, or ctx is
// canceled. It reports whether a change occurred.
func (d *Driver) awaitChange(ctx context.Context, files []string) (bool, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	for _, f := range files {
		if err := watcher.Add(f); err != nil {
			return false, fmt.Errorf("watch %s: %w", f, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return false, fmt.Errorf("watch: event channel closed")
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				d.logger.Info().Str("file", ev.Name).Msg("changed, reloading")
				return true, nil
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return false, fmt.Errorf("watch: error channel closed")
			}
			d.logger.Warn().Err(werr).Msg("watcher error")
		}
	}
}
