// Package watcher publishes file-change events for the workspace.
//
// External tools (CLI coding agents in particular) modify files behind
// Axiom's back; the watcher turns those modifications into FileChanged
// events so viewers refresh.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
)

// ignoredPatterns filters out build artifacts, VCS internals, and editor
// droppings.
var ignoredPatterns = []string{
	"/target/",
	"/node_modules/",
	"/.git/",
	"/__pycache__/",
	"/.venv/",
	"/venv/",
	"/dist/",
	"/build/",
	".pyc",
	".pyo",
	".class",
	".o",
	".a",
	".so",
	".dylib",
	".lock",
	".log",
	".tmp",
	".swp",
	".swo",
	"~",
}

// Watcher monitors a directory tree and publishes FileChanged events.
type Watcher struct {
	watcher *fsnotify.Watcher
	bus     *bus.Bus
	logger  *logger.Logger
	done    chan struct{}
}

// New creates a watcher rooted at watchPath and starts its event loop.
// fsnotify watches are not recursive, so every subdirectory is registered
// up front and new directories are added as they appear.
func New(watchPath string, b *bus.Bus, log *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		bus:     b,
		logger:  log.WithFields(zap.String("component", "watcher")),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(watchPath); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if shouldIgnore(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// New directory: start watching it so nested changes surface.
		if event.Has(fsnotify.Create) {
			_ = w.addRecursive(event.Name)
		}
		return
	}

	_ = w.bus.Send(events.FileChanged{Path: event.Name})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldIgnore(path+"/") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func shouldIgnore(path string) bool {
	base := filepath.Base(strings.TrimRight(path, "/"))
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, pattern := range ignoredPatterns {
		if strings.Contains(path, pattern) || strings.HasSuffix(path, pattern) {
			return true
		}
	}
	return false
}
