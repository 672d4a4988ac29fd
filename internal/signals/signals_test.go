package signals

import (
	"context"
	"testing"
	"time"

	"github.com/ShayCichocki/helmsman/internal/registry"
)

func TestWatcherAbortsOnSignalFile(t *testing.T) {
	root := t.TempDir()
	aborts := registry.NewAbortRegistry()
	ctx := aborts.Register(context.Background(), "sess-1")

	w, err := NewWatcher(root, aborts)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	if err := SendAbort(root, "sess-1"); err != nil {
		t.Fatalf("send abort: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("abort signal not delivered")
	}
	if aborts.Has("sess-1") {
		t.Error("abort handle still registered")
	}
}

func TestWatcherSweepsPreexistingSignals(t *testing.T) {
	root := t.TempDir()
	aborts := registry.NewAbortRegistry()
	ctx := aborts.Register(context.Background(), "sess-2")

	// Signal sent before the watcher starts.
	if err := SendAbort(root, "sess-2"); err != nil {
		t.Fatalf("send abort: %v", err)
	}

	w, err := NewWatcher(root, aborts)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	select {
	case <-ctx.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("preexisting signal not processed")
	}
}

func TestWatcherIgnoresUnknownFiles(t *testing.T) {
	root := t.TempDir()
	aborts := registry.NewAbortRegistry()
	aborts.Register(context.Background(), "sess-3")

	w, err := NewWatcher(root, aborts)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	// Files without a session id after the prefix are noise.
	if err := SendAbort(root, ""); err != nil {
		t.Fatalf("write signal file: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if !aborts.Has("sess-3") {
		t.Error("unrelated signal canceled a session")
	}
}
