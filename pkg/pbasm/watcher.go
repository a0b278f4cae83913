package pbasm

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a set of compiled PBASM files for edits while a
// session is running. Each coalesced change re-parses the full document
// set so authoring mistakes surface immediately, and the caller's
// onChange hook runs with the re-parse outcome.
type Watcher struct {
	paths   []string
	watcher *fsnotify.Watcher
}

// OnSourceChange receives the outcome of re-parsing the watched paths
// after an edit: the freshly parsed program, or the parse error that a
// restart would hit.
type OnSourceChange func(changedPath string, reparsed *Program, parseErr error)

// Watch begins watching every path's parent directory (some platforms
// do not support watching files directly) and invokes onChange for each
// debounced write to one of the watched files. It returns once the
// watcher is registered; the watch loop runs until ctx is done.
func Watch(ctx context.Context, paths []string, onChange OnSourceChange) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pbasm: create watcher: %w", err)
	}

	abs := make([]string, len(paths))
	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			a = p
		}
		abs[i] = a
		watched[a] = true
		dirs[filepath.Dir(a)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("pbasm: watch %s: %w", dir, err)
		}
	}

	w := &Watcher{paths: abs, watcher: fsw}
	go w.loop(ctx, watched, onChange)
	return w, nil
}

// Close stops the watch loop and releases its file handles.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context, watched map[string]bool, onChange OnSourceChange) {
	// Editors often emit several writes per save; coalesce them.
	const debounceDelay = 100 * time.Millisecond
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				name = event.Name
			}
			if !watched[name] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			changed := name
			debounce = time.AfterFunc(debounceDelay, func() {
				prog, parseErr := Load(w.paths)
				onChange(changed, prog, parseErr)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("playbook source watcher error", "error", err)
		}
	}
}
