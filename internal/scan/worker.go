// Package scan owns the background side of the virtual file system:
// bulk directory scans, disk reads and change watching. One worker
// goroutine serves one consumer; instructions arrive on a task channel
// and results leave on a result channel in FIFO order, so the consumer
// side never needs locks.
package scan

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"sourcefs/internal/event"
	"sourcefs/internal/fsutil"
	"sourcefs/internal/logging"
	"sourcefs/internal/metrics"
	"sourcefs/internal/roots"
)

const (
	defaultDebounce     = 50 * time.Millisecond
	defaultResultBuffer = 128
	defaultTaskBuffer   = 16
	flushBuffer         = 64
)

// Options configures a Worker. The zero value scans the operating
// system filesystem with watching enabled.
type Options struct {
	// Filesystem overrides the scanned filesystem. Watching is only
	// supported on the default operating system filesystem.
	Filesystem   billy.Filesystem
	DisableWatch bool
	Debounce     time.Duration
	ResultBuffer int
	Logger       *logging.Logger
	Bus          *event.Bus[event.ScanEvent]
	Registry     *metrics.Registry
}

// Worker walks roots, reads files and watches directories on a single
// goroutine. Fields below the channel block are owned by that
// goroutine and must not be touched from outside.
type Worker struct {
	fs       billy.Filesystem
	set      *roots.Set
	logger   *logging.Logger
	bus      *event.Bus[event.ScanEvent]
	registry *metrics.Registry
	source   *fsnotify.Watcher

	tasks    chan roots.ID
	results  chan Result
	flushes  chan string
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	panicErr error

	debounce *debouncer
	watched  map[string]roots.ID
	reported map[roots.ID]map[string]struct{}
}

// NewWorker starts the scan goroutine for the given root set. The set
// must not change afterwards: worker and consumer rely on resolving
// paths identically.
func NewWorker(set *roots.Set, options Options) (*Worker, error) {
	scanFS := options.Filesystem
	watchable := scanFS == nil && !options.DisableWatch
	if scanFS == nil {
		scanFS = osfs.New("/")
	}
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	resultBuffer := options.ResultBuffer
	if resultBuffer <= 0 {
		resultBuffer = defaultResultBuffer
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	worker := &Worker{
		fs:       scanFS,
		set:      set,
		logger:   options.Logger.With(map[string]string{"component": "scan"}),
		bus:      options.Bus,
		registry: registry,
		tasks:    make(chan roots.ID, defaultTaskBuffer),
		results:  make(chan Result, resultBuffer),
		flushes:  make(chan string, flushBuffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		debounce: newDebouncer(debounce),
		watched:  make(map[string]roots.ID),
		reported: make(map[roots.ID]map[string]struct{}),
	}
	if watchable {
		source, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("start watcher: %w", err)
		}
		worker.source = source
	}

	go worker.run()
	return worker, nil
}

// Results returns the channel the worker reports on. It is closed when
// the worker exits.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Scan schedules a bulk scan of root. The scan result and any watch
// results arrive asynchronously on Results.
func (w *Worker) Scan(root roots.ID) {
	select {
	case w.tasks <- root:
	case <-w.done:
	}
}

// Stop terminates the worker, abandoning a scan in progress, and waits
// for the goroutine to exit. A panic on the worker goroutine is
// surfaced as the returned error.
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.source != nil {
			w.source.Close()
		}
	})
	<-w.finished
	return w.panicErr
}

func (w *Worker) run() {
	defer close(w.finished)
	defer close(w.results)
	defer w.debounce.stop()
	defer func() {
		if value := recover(); value != nil {
			w.panicErr = fmt.Errorf("scan worker panicked: %v", value)
		}
	}()

	var fsEvents chan fsnotify.Event
	var fsErrors chan error
	if w.source != nil {
		fsEvents = w.source.Events
		fsErrors = w.source.Errors
	}

	for {
		select {
		case root := <-w.tasks:
			w.scanRoot(root)
		case fsEvent, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			w.handleFsEvent(fsEvent)
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			w.handleWatchError(err)
		case path := <-w.flushes:
			w.flushPath(path)
		case <-w.done:
			return
		}
	}
}

func (w *Worker) scanRoot(root roots.ID) {
	dir := w.set.Dir(root)
	w.registry.IncScanStarted()
	w.bus.Publish(event.NewScanStarted(dir))
	w.logger.Debug("scan started", map[string]string{"root": dir})

	files := make([]ScannedFile, 0, 64)
	if canceled := w.walk(root, dir, &files); canceled {
		return
	}
	seen := w.reportedFor(root)
	for _, file := range files {
		seen[file.Path] = struct{}{}
	}
	if !w.emit(RootScanned{Root: root, Files: files}) {
		return
	}
	w.registry.IncScanCompleted(len(files))
	w.bus.Publish(event.NewScanCompleted(dir, len(files)))
	w.logger.Debug("scan completed", map[string]string{
		"root":  dir,
		"files": strconv.Itoa(len(files)),
	})
}

// walk descends depth-first with directory entries sorted by name, so
// bulk results are deterministic for a given tree. It reports whether
// the walk was abandoned by shutdown.
func (w *Worker) walk(root roots.ID, dir string, files *[]ScannedFile) bool {
	select {
	case <-w.done:
		return true
	default:
	}

	w.watchDir(root, dir)

	entries, err := w.fs.ReadDir(dir)
	if err != nil {
		w.logger.Warn("read dir failed", map[string]string{"path": dir, "error": err.Error()})
		return false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	filter := w.set.Filter(root)
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if !filter.Traversable(path, true) {
				continue
			}
			if w.walk(root, path, files) {
				return true
			}
			continue
		}
		rel, ok := filter.CanContain(path)
		if !ok {
			continue
		}
		text, err := w.readFile(path)
		if err != nil {
			w.logger.Warn("read file failed", map[string]string{"path": path, "error": err.Error()})
			continue
		}
		*files = append(*files, ScannedFile{Path: rel, Text: text})
	}
	return false
}

func (w *Worker) watchDir(root roots.ID, dir string) {
	if w.source == nil {
		return
	}
	if _, ok := w.watched[dir]; ok {
		return
	}
	if err := w.source.Add(dir); err != nil {
		w.bus.Publish(event.NewWatchError(dir, err))
		w.logger.Warn("watch add failed", map[string]string{"path": dir, "error": err.Error()})
		return
	}
	w.watched[dir] = root
	w.logger.Debug("watch added", map[string]string{"path": dir})
}

func (w *Worker) handleFsEvent(fsEvent fsnotify.Event) {
	w.registry.IncWatchEvent()
	path := filepath.Clean(fsEvent.Name)

	switch {
	case fsEvent.Op.Has(fsnotify.Create):
		if info, err := w.fs.Stat(path); err == nil && info.IsDir() {
			w.scanCreatedDir(path)
			return
		}
		w.scheduleFlush(path)
	case fsEvent.Op.Has(fsnotify.Write):
		w.scheduleFlush(path)
	case fsEvent.Op.Has(fsnotify.Remove) || fsEvent.Op.Has(fsnotify.Rename):
		if root, ok := w.watched[path]; ok {
			w.forgetDir(root, path)
			return
		}
		w.scheduleFlush(path)
	}
}

func (w *Worker) scheduleFlush(path string) {
	if _, _, ok := w.set.Resolve(path); !ok {
		return
	}
	coalesced := w.debounce.schedule(path, func() {
		select {
		case w.flushes <- path:
		case <-w.done:
		}
	})
	if coalesced {
		w.logger.Debug("event coalesced", map[string]string{"path": path})
	}
}

// flushPath settles a debounced path against the current disk state:
// the file's final content wins over the event sequence that led here.
func (w *Worker) flushPath(path string) {
	w.debounce.forget(path)

	root, rel, ok := w.set.Resolve(path)
	if !ok {
		return
	}
	seen := w.reportedFor(root)
	text, err := w.readFile(path)
	if err != nil {
		if _, statErr := w.fs.Stat(path); statErr != nil {
			delete(seen, rel)
			w.emit(FileRemoved{Root: root, Path: rel})
			return
		}
		w.logger.Warn("read file failed", map[string]string{"path": path, "error": err.Error()})
		return
	}
	seen[rel] = struct{}{}
	w.emit(FileChanged{Root: root, Path: rel, Text: text})
}

// scanCreatedDir walks a directory that appeared after the bulk scan,
// registering watches before reading so nothing slips between them.
func (w *Worker) scanCreatedDir(dir string) {
	for _, id := range w.set.IDs() {
		if w.set.Filter(id).Traversable(dir, true) {
			w.scanSubtree(id, dir)
			return
		}
	}
}

func (w *Worker) scanSubtree(root roots.ID, dir string) {
	files := make([]ScannedFile, 0, 8)
	if canceled := w.walk(root, dir, &files); canceled {
		return
	}
	seen := w.reportedFor(root)
	for _, file := range files {
		if _, ok := seen[file.Path]; ok {
			continue
		}
		seen[file.Path] = struct{}{}
		if !w.emit(FileAdded{Root: root, Path: file.Path, Text: file.Text}) {
			return
		}
	}
}

// forgetDir handles a watched directory disappearing: watches under it
// are dropped and every file reported from it is retracted, covering
// moves where no per-file events arrive.
func (w *Worker) forgetDir(root roots.ID, dir string) {
	delete(w.watched, dir)
	for watchedDir := range w.watched {
		if fsutil.IsDescendant(dir, watchedDir) {
			delete(w.watched, watchedDir)
		}
	}

	rootDir := w.set.Dir(root)
	prefix := ""
	if dir != rootDir {
		rel, ok := fsutil.RelativeTo(rootDir, dir)
		if !ok {
			return
		}
		prefix = rel + "/"
	}

	seen := w.reportedFor(root)
	removed := make([]string, 0, len(seen))
	for reported := range seen {
		if prefix != "" && !strings.HasPrefix(reported, prefix) {
			continue
		}
		removed = append(removed, reported)
	}
	sort.Strings(removed)
	for _, rel := range removed {
		delete(seen, rel)
		if !w.emit(FileRemoved{Root: root, Path: rel}) {
			return
		}
	}
}

func (w *Worker) handleWatchError(err error) {
	if err == nil {
		return
	}
	w.bus.Publish(event.NewWatchError("", err))
	w.logger.Warn("watch error", map[string]string{"error": err.Error()})
}

func (w *Worker) reportedFor(root roots.ID) map[string]struct{} {
	seen, ok := w.reported[root]
	if !ok {
		seen = make(map[string]struct{})
		w.reported[root] = seen
	}
	return seen
}

func (w *Worker) readFile(path string) (string, error) {
	file, err := w.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *Worker) emit(result Result) bool {
	select {
	case w.results <- result:
		w.registry.IncResultEmitted(result.Kind())
		return true
	case <-w.done:
		return false
	}
}
