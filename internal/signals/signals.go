// Package signals delivers out-of-process abort requests through the
// filesystem. A second helmsman process (or the user) drops a signal file
// into the workspace's signal directory; the watcher picks it up and cancels
// the matching conversation through the abort registry.
package signals

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/helmsman/internal/registry"
)

const (
	stateDirName   = ".helmsman"
	signalsDirName = "signals"
	abortPrefix    = "abort-"
)

// SignalsDir returns the signal directory for a workspace root.
func SignalsDir(root string) string {
	return filepath.Join(root, stateDirName, signalsDirName)
}

// SendAbort drops an abort signal file for the given session. It is the
// cross-process counterpart of AbortRegistry.Abort.
func SendAbort(root, sessionID string) error {
	dir := SignalsDir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, abortPrefix+sessionID), nil, 0644)
}

// Watcher monitors the signal directory and forwards abort requests to the
// registry. Signal files are consumed: each is removed once acted on.
type Watcher struct {
	dir     string
	aborts  *registry.AbortRegistry
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching the workspace's signal directory. Signal files
// already present are processed immediately, covering signals sent before
// the watcher came up.
func NewWatcher(root string, aborts *registry.AbortRegistry) (*Watcher, error) {
	dir := SignalsDir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		aborts:  aborts,
		watcher: fw,
		done:    make(chan struct{}),
	}

	w.sweep()
	go w.watch()
	return w, nil
}

// sweep processes signal files that predate the watcher.
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.consume(filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.consume(event.Name)
			}
		case <-w.watcher.Errors:
			// Keep watching.
		}
	}
}

// consume acts on one signal file and removes it. Unknown file names are
// ignored and left in place.
func (w *Watcher) consume(path string) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, abortPrefix) {
		return
	}
	sessionID := strings.TrimPrefix(name, abortPrefix)
	if sessionID == "" {
		return
	}

	w.aborts.Abort(sessionID)
	os.Remove(path)
}

// Close stops the watcher.
func (w *Watcher) Close() {
	close(w.done)
	w.watcher.Close()
}
