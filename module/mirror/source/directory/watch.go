package directory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zerocat/extension-mirror/module/mirror/source"
)

// DefaultSettle is how long the watcher waits for a burst of file events to
// end before handling the changed files.
const DefaultSettle = 500 * time.Millisecond

// HandleFunc is called once per changed extension file.
type HandleFunc = source.HandleFunc

var _ source.Watcher = (*Directory)(nil)

// Watch reports changed extension files to handle until ctx is done. Files
// are handled one at a time in name order after events settle.
func (d *Directory) Watch(ctx context.Context, settle time.Duration, handle HandleFunc) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(d.codeDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.codeDir, err)
	}
	d.logger.Info().Str("path", d.codeDir).Msg("Watching extension files")

	pending := map[string]struct{}{}
	timer := time.NewTimer(settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !d.matches(filepath.Base(ev.Name)) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Error().Err(err).Msg("Watcher error")
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = map[string]struct{}{}

			for _, p := range paths {
				if ctx.Err() != nil {
					return nil
				}
				desc, err := d.Describe(p)
				if err != nil {
					d.logger.Warn().Err(err).Str("file", filepath.Base(p)).Msg("Skipping changed extension file")
					continue
				}
				d.logger.Info().Str("file", filepath.Base(p)).Str("id", desc.ID).Msg("Detected extension change")
				handle(ctx, desc)
			}
		}
	}
}
