package scan

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"sourcefs/internal/event"
	"sourcefs/internal/metrics"
	"sourcefs/internal/roots"
)

func newTestSet(t *testing.T, dirs ...string) *roots.Set {
	t.Helper()
	specs := make([]roots.Spec, len(dirs))
	for i, dir := range dirs {
		specs[i] = roots.Spec{Dir: dir}
	}
	set, err := roots.New(specs)
	if err != nil {
		t.Fatalf("new root set: %v", err)
	}
	return set
}

func startWorker(t *testing.T, set *roots.Set, options Options) *Worker {
	t.Helper()
	if options.Registry == nil {
		options.Registry = &metrics.Registry{}
	}
	worker, err := NewWorker(set, options)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	t.Cleanup(func() {
		if err := worker.Stop(); err != nil {
			t.Errorf("stop worker: %v", err)
		}
	})
	return worker
}

func waitForResult(t *testing.T, worker *Worker) Result {
	t.Helper()
	select {
	case result, ok := <-worker.Results():
		if !ok {
			t.Fatal("result channel closed")
		}
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	return nil
}

func writeMemFile(t *testing.T, fs billy.Filesystem, path, text string) {
	t.Helper()
	if err := util.WriteFile(fs, path, []byte(text), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func rootFor(t *testing.T, set *roots.Set, dir string) roots.ID {
	t.Helper()
	for _, id := range set.IDs() {
		if set.Dir(id) == dir {
			return id
		}
	}
	t.Fatalf("root %s not registered", dir)
	return 0
}

func TestWorkerScanIsDeterministic(t *testing.T) {
	fs := memfs.New()
	writeMemFile(t, fs, "/src/zeta.go", "package zeta")
	writeMemFile(t, fs, "/src/alpha.go", "package alpha")
	writeMemFile(t, fs, "/src/mid/inner.go", "package mid")

	set := newTestSet(t, "/src")
	worker := startWorker(t, set, Options{Filesystem: fs})
	worker.Scan(rootFor(t, set, "/src"))

	result := waitForResult(t, worker)
	scanned, ok := result.(RootScanned)
	if !ok {
		t.Fatalf("expected RootScanned, got %T", result)
	}

	want := []ScannedFile{
		{Path: "alpha.go", Text: "package alpha"},
		{Path: "mid/inner.go", Text: "package mid"},
		{Path: "zeta.go", Text: "package zeta"},
	}
	if !reflect.DeepEqual(scanned.Files, want) {
		t.Fatalf("unexpected scan result:\n got %v\nwant %v", scanned.Files, want)
	}
}

func TestWorkerPrunesNestedRootsAndIgnoredDirs(t *testing.T) {
	fs := memfs.New()
	writeMemFile(t, fs, "/src/main.go", "package main")
	writeMemFile(t, fs, "/src/lib/core.go", "package lib")
	writeMemFile(t, fs, "/src/.git/hook.go", "ignored")
	writeMemFile(t, fs, "/src/target/out.go", "ignored")
	writeMemFile(t, fs, "/src/readme.md", "ignored")

	set := newTestSet(t, "/src", "/src/lib")
	worker := startWorker(t, set, Options{Filesystem: fs})
	outer := rootFor(t, set, "/src")
	worker.Scan(outer)

	result := waitForResult(t, worker)
	scanned := result.(RootScanned)
	if scanned.Root != outer {
		t.Fatalf("expected result for root %d, got %d", outer, scanned.Root)
	}
	want := []ScannedFile{{Path: "main.go", Text: "package main"}}
	if !reflect.DeepEqual(scanned.Files, want) {
		t.Fatalf("expected nested root and ignored dirs pruned, got %v", scanned.Files)
	}
}

func TestWorkerPublishesScanLifecycle(t *testing.T) {
	fs := memfs.New()
	writeMemFile(t, fs, "/src/a.go", "package a")

	bus := event.NewBus[event.ScanEvent](context.Background(), event.BusOptions{
		Name:     "scan",
		Registry: &metrics.Registry{},
	})
	t.Cleanup(bus.Close)
	ch, cancel := bus.Subscribe()
	defer cancel()

	set := newTestSet(t, "/src")
	worker := startWorker(t, set, Options{Filesystem: fs, Bus: bus})
	worker.Scan(rootFor(t, set, "/src"))

	started := event.ReceiveWithTimeout(t, ch, 5*time.Second)
	if started.Type() != event.TypeScanStarted || started.Root != "/src" {
		t.Fatalf("unexpected first event: %+v", started)
	}
	completed := event.ReceiveWithTimeout(t, ch, 5*time.Second)
	if completed.Type() != event.TypeScanCompleted || completed.Files != 1 {
		t.Fatalf("unexpected second event: %+v", completed)
	}
}

func TestWorkerWatchReportsWriteAndRemove(t *testing.T) {
	dir := t.TempDir()
	set := newTestSet(t, dir)
	worker := startWorker(t, set, Options{Debounce: 10 * time.Millisecond})
	root := rootFor(t, set, dir)
	worker.Scan(root)

	if _, ok := waitForResult(t, worker).(RootScanned); !ok {
		t.Fatal("expected initial bulk result")
	}

	path := filepath.Join(dir, "live.go")
	if err := os.WriteFile(path, []byte("package live"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result := waitForResult(t, worker)
	changed, ok := result.(FileChanged)
	if !ok {
		t.Fatalf("expected FileChanged, got %#v", result)
	}
	if changed.Root != root || changed.Path != "live.go" || changed.Text != "package live" {
		t.Fatalf("unexpected change result: %+v", changed)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove file: %v", err)
	}

	result = waitForResult(t, worker)
	removed, ok := result.(FileRemoved)
	if !ok {
		t.Fatalf("expected FileRemoved, got %#v", result)
	}
	if removed.Root != root || removed.Path != "live.go" {
		t.Fatalf("unexpected remove result: %+v", removed)
	}
}

func TestWorkerWatchDiscoversMovedInSubtree(t *testing.T) {
	dir := t.TempDir()
	staging := t.TempDir()

	stagedDir := filepath.Join(staging, "pkg")
	if err := os.Mkdir(stagedDir, 0o755); err != nil {
		t.Fatalf("mkdir staging: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stagedDir, "new.go"), []byte("package pkg"), 0o644); err != nil {
		t.Fatalf("write staged file: %v", err)
	}

	set := newTestSet(t, dir)
	worker := startWorker(t, set, Options{Debounce: 10 * time.Millisecond})
	root := rootFor(t, set, dir)
	worker.Scan(root)

	if _, ok := waitForResult(t, worker).(RootScanned); !ok {
		t.Fatal("expected initial bulk result")
	}

	// Moving a prepared subtree into the root is atomic, so the new
	// directory's walk must find the file without per-file events.
	if err := os.Rename(stagedDir, filepath.Join(dir, "pkg")); err != nil {
		t.Fatalf("move subtree: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		var result Result
		select {
		case received, ok := <-worker.Results():
			if !ok {
				t.Fatal("result channel closed")
			}
			result = received
		case <-deadline:
			t.Fatal("timed out waiting for subtree discovery")
		}
		switch typed := result.(type) {
		case FileAdded:
			if typed.Root != root || typed.Path != "pkg/new.go" || typed.Text != "package pkg" {
				t.Fatalf("unexpected add result: %+v", typed)
			}
			return
		case FileChanged:
			// The watch may settle the file again after the walk
			// already reported it; the reconciler treats both alike.
			if typed.Path == "pkg/new.go" && typed.Text == "package pkg" {
				return
			}
		}
	}
}

func TestWorkerRetractsRemovedSubtree(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"a.go", "b.go"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("package sub"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	set := newTestSet(t, dir)
	worker := startWorker(t, set, Options{Debounce: 10 * time.Millisecond})
	root := rootFor(t, set, dir)
	worker.Scan(root)

	scanned, ok := waitForResult(t, worker).(RootScanned)
	if !ok || len(scanned.Files) != 2 {
		t.Fatalf("expected bulk result with 2 files, got %+v", scanned)
	}

	if err := os.RemoveAll(sub); err != nil {
		t.Fatalf("remove subtree: %v", err)
	}

	// Per-file flushes and the directory retraction race; removes may
	// arrive duplicated, which the reconciler treats as no-ops.
	removed := make(map[string]bool)
	deadline := time.After(5 * time.Second)
	for len(removed) < 2 {
		select {
		case result, ok := <-worker.Results():
			if !ok {
				t.Fatal("result channel closed")
			}
			if gone, isRemove := result.(FileRemoved); isRemove && gone.Root == root {
				removed[gone.Path] = true
			}
		case <-deadline:
			t.Fatalf("timed out, removals so far: %v", removed)
		}
	}
	if !removed["sub/a.go"] || !removed["sub/b.go"] {
		t.Fatalf("expected both files retracted, got %v", removed)
	}
}

func TestWorkerStopClosesResults(t *testing.T) {
	fs := memfs.New()
	set := newTestSet(t, "/src")
	worker, err := NewWorker(set, Options{Filesystem: fs, Registry: &metrics.Registry{}})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := worker.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := worker.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-worker.Results():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for result channel to close")
		}
	}
}

func TestWorkerScanAfterStopIsIgnored(t *testing.T) {
	fs := memfs.New()
	writeMemFile(t, fs, "/src/a.go", "package a")
	set := newTestSet(t, "/src")
	worker, err := NewWorker(set, Options{Filesystem: fs, Registry: &metrics.Registry{}})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := worker.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Scan(rootFor(t, set, "/src"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scan blocked after stop")
	}
}
