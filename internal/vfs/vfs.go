// Package vfs keeps the current text of every tracked source file in
// memory and reconciles three producers of that text: bulk background
// scans, single-file disk events and editor overlays. Overlay text
// always wins over disk-origin events until the overlay is released.
//
// All state is owned by the goroutine that created the Vfs. The scan
// worker never touches it; its results arrive as messages the owner
// feeds through HandleResult one at a time, so no locks are involved.
// Reconciliation appends semantic changes to a pending log that Commit
// drains atomically, giving consumers an ordered, replayable record.
package vfs

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"sourcefs/internal/arena"
	"sourcefs/internal/event"
	"sourcefs/internal/logging"
	"sourcefs/internal/metrics"
	"sourcefs/internal/roots"
	"sourcefs/internal/scan"
)

// FileID identifies a tracked file. Handles are never freed: a removed
// file keeps its handle with emptied text, and a later add of the same
// root and path revives the handle instead of allocating a fresh one,
// so identifiers held by consumers stay meaningful across remove and
// re-add cycles.
type FileID uint32

// fileRecord is the arena slot behind a FileID. Text snapshots are Go
// strings, immutable once published: a change installs a new snapshot
// and anything still holding the old one keeps reading the old text.
type fileRecord struct {
	root    roots.ID
	path    string
	text    string
	overlay bool
	live    bool
}

// Options configures a Vfs. The zero value scans the operating system
// filesystem with watching enabled and default filter rules.
type Options struct {
	// Filesystem overrides the filesystem for scans and synchronous
	// reads. Watching is only available on the default OS filesystem.
	Filesystem   billy.Filesystem
	DisableWatch bool
	Debounce     time.Duration
	ResultBuffer int
	Logger       *logging.Logger
	Bus          *event.Bus[event.ScanEvent]
	Registry     *metrics.Registry
}

// Vfs is the reconciliation engine. Apart from the worker channels it
// is not safe for concurrent use; one goroutine owns it.
type Vfs struct {
	set      *roots.Set
	fs       billy.Filesystem
	files    *arena.Arena[FileID, fileRecord]
	byPath   map[roots.ID]map[string]FileID
	pending  []Change
	worker   *scan.Worker
	logger   *logging.Logger
	registry *metrics.Registry
}

// New builds a Vfs over the given root directories with default
// options and schedules a bulk scan of every root. Returned root
// handles are in resolution order, nested roots first.
func New(dirs ...string) (*Vfs, []roots.ID, error) {
	specs := make([]roots.Spec, len(dirs))
	for i, dir := range dirs {
		specs[i] = roots.Spec{Dir: dir}
	}
	return NewWithOptions(specs, Options{})
}

// NewWithOptions builds a Vfs over the given root specs, starts the
// scan worker and instructs it to scan and watch every root. The
// initial bulk results arrive asynchronously on Results.
func NewWithOptions(specs []roots.Spec, options Options) (*Vfs, []roots.ID, error) {
	set, err := roots.New(specs)
	if err != nil {
		return nil, nil, err
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	worker, err := scan.NewWorker(set, scan.Options{
		Filesystem:   options.Filesystem,
		DisableWatch: options.DisableWatch,
		Debounce:     options.Debounce,
		ResultBuffer: options.ResultBuffer,
		Logger:       options.Logger,
		Bus:          options.Bus,
		Registry:     registry,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start scan worker: %w", err)
	}

	readFS := options.Filesystem
	if readFS == nil {
		readFS = osfs.New("/")
	}

	v := &Vfs{
		set:      set,
		fs:       readFS,
		files:    arena.New[FileID, fileRecord](),
		byPath:   make(map[roots.ID]map[string]FileID, set.Len()),
		worker:   worker,
		logger:   options.Logger.With(map[string]string{"component": "vfs"}),
		registry: registry,
	}
	ids := set.IDs()
	for _, id := range ids {
		v.byPath[id] = make(map[string]FileID)
		worker.Scan(id)
	}
	return v, ids, nil
}

// RootPath returns the absolute directory of a root.
func (v *Vfs) RootPath(root roots.ID) string {
	return v.set.Dir(root)
}

// FileForPath resolves an absolute path to the handle of a live file.
// It never creates anything: unknown, removed and out-of-root paths
// all report false.
func (v *Vfs) FileForPath(path string) (FileID, bool) {
	root, rel, ok := v.set.Resolve(path)
	if !ok {
		return 0, false
	}
	return v.liveFile(root, rel)
}

// FilePath projects a handle back to its absolute path. It stays total
// after a remove: the record keeps its path until a later add revives
// it.
func (v *Vfs) FilePath(file FileID) string {
	record := v.files.Get(file)
	return filepath.Join(v.set.Dir(record.root), filepath.FromSlash(record.path))
}

// Load resolves path and returns the live file's handle, reading the
// file synchronously if the background scan has not delivered it yet.
// A failed read still creates the file, with empty text; the scan or a
// watch event supplies the real content later. Paths outside every
// root report false.
func (v *Vfs) Load(path string) (FileID, bool) {
	root, rel, ok := v.set.Resolve(path)
	if !ok {
		return 0, false
	}
	if file, ok := v.liveFile(root, rel); ok {
		return file, true
	}
	text, err := v.readFile(path)
	if err != nil {
		v.logger.Warn("load read failed", map[string]string{"path": path, "error": err.Error()})
		text = ""
	}
	v.logger.Debug("file loaded", map[string]string{"path": path})
	return v.addFile(root, rel, text, false), true
}

// OverlayAdd installs editor text for path, creating the file when it
// is unknown. From here on disk-origin events for the file are
// suppressed until OverlayRemove releases it.
func (v *Vfs) OverlayAdd(path, text string) (FileID, bool) {
	root, rel, ok := v.set.Resolve(path)
	if !ok {
		return 0, false
	}
	if file, ok := v.liveFile(root, rel); ok {
		v.changeFile(file, text, true)
		return file, true
	}
	return v.addFile(root, rel, text, true), true
}

// OverlayChange replaces the editor text of an already-tracked file.
// Calling it for a file that was never added is a caller bug and
// panics; an editor cannot change what it never opened. Paths outside
// every root are silently ignored.
func (v *Vfs) OverlayChange(path, text string) {
	root, rel, ok := v.set.Resolve(path)
	if !ok {
		return
	}
	file, ok := v.liveFile(root, rel)
	if !ok {
		panic(fmt.Sprintf("sourcefs: overlay change for unknown file %q", path))
	}
	v.changeFile(file, text, true)
}

// OverlayRemove releases the editor text of a tracked file, modelling
// a closed buffer. The file reverts to current disk content when the
// read succeeds, with the overlay flag cleared, so this usually emits
// a change. Only when the disk copy is gone is the file removed.
// Calling it for a file that was never added panics.
func (v *Vfs) OverlayRemove(path string) (FileID, bool) {
	root, rel, ok := v.set.Resolve(path)
	if !ok {
		return 0, false
	}
	file, ok := v.liveFile(root, rel)
	if !ok {
		panic(fmt.Sprintf("sourcefs: overlay remove for unknown file %q", path))
	}
	text, err := v.readFile(path)
	if err != nil {
		v.removeFile(file)
		return file, true
	}
	v.changeFile(file, text, false)
	return file, true
}

// Results returns the worker's result channel. The owner drains it at
// its own pace and feeds each message through HandleResult; the
// channel closes when the worker exits.
func (v *Vfs) Results() <-chan scan.Result {
	return v.worker.Results()
}

// HandleResult reconciles one worker message into the current state.
// Disk-origin events lose against a live overlay: the event is dropped
// and counted, nothing else happens. Messages must be applied in the
// order received.
func (v *Vfs) HandleResult(result scan.Result) {
	switch result := result.(type) {
	case scan.RootScanned:
		v.reconcileRoot(result)
	case scan.FileAdded:
		if _, ok := v.liveFile(result.Root, result.Path); ok {
			// A forced load or an earlier event won the race.
			return
		}
		v.addFile(result.Root, result.Path, result.Text, false)
	case scan.FileChanged:
		file, ok := v.liveFile(result.Root, result.Path)
		if !ok {
			v.addFile(result.Root, result.Path, result.Text, false)
			return
		}
		if v.files.Get(file).overlay {
			v.suppress(result.Root, result.Path, result.Kind())
			return
		}
		v.changeFile(file, result.Text, false)
	case scan.FileRemoved:
		file, ok := v.liveFile(result.Root, result.Path)
		if !ok {
			return
		}
		if v.files.Get(file).overlay {
			v.suppress(result.Root, result.Path, result.Kind())
			return
		}
		v.removeFile(file)
	}
}

// reconcileRoot merges a bulk scan with whatever reached the root
// first. Files that are already live keep their current text: a load
// or overlay that beat the scan is newer than the scan's snapshot.
// Removed records revive under their old handle, fresh paths allocate.
// The consumer sees one AddRoot change with the full reconciled list
// instead of one add per file.
func (v *Vfs) reconcileRoot(result scan.RootScanned) {
	files := make([]RootFile, 0, len(result.Files))
	for _, scanned := range result.Files {
		file, known := v.byPath[result.Root][scanned.Path]
		switch {
		case known && v.files.Get(file).live:
			files = append(files, RootFile{File: file, Path: scanned.Path, Text: v.files.Get(file).text})
			continue
		case known:
			record := v.files.Get(file)
			record.live = true
			record.text = scanned.Text
			record.overlay = false
		default:
			file = v.allocFile(result.Root, scanned.Path, scanned.Text, false)
		}
		files = append(files, RootFile{File: file, Path: scanned.Path, Text: scanned.Text})
	}
	v.pending = append(v.pending, AddRoot{Root: result.Root, Files: files})
}

// Commit atomically takes and clears the pending change log. Each
// change is delivered exactly once, in production order, as long as
// Commit is the only drain.
func (v *Vfs) Commit() []Change {
	changes := v.pending
	v.pending = nil
	v.registry.AddChangesCommitted(len(changes))
	return changes
}

// Shutdown stops the scan worker, abandoning any scan in progress, and
// waits for its goroutine to exit. A worker panic surfaces here as the
// returned error; the Vfs is not usable afterwards.
func (v *Vfs) Shutdown() error {
	return v.worker.Stop()
}

func (v *Vfs) liveFile(root roots.ID, rel string) (FileID, bool) {
	file, ok := v.byPath[root][rel]
	if !ok || !v.files.Get(file).live {
		return 0, false
	}
	return file, true
}

// addFile makes root+rel live with the given text and emits an add.
// A dead record for the path is revived in place so the handle stays
// stable across remove and re-add.
func (v *Vfs) addFile(root roots.ID, rel, text string, overlay bool) FileID {
	file, known := v.byPath[root][rel]
	if known {
		record := v.files.Get(file)
		record.live = true
		record.text = text
		record.overlay = overlay
	} else {
		file = v.allocFile(root, rel, text, overlay)
	}
	v.pending = append(v.pending, AddFile{Root: root, File: file, Path: rel, Text: text})
	return file
}

func (v *Vfs) allocFile(root roots.ID, rel, text string, overlay bool) FileID {
	file := v.files.Alloc(fileRecord{
		root:    root,
		path:    rel,
		text:    text,
		overlay: overlay,
		live:    true,
	})
	v.byPath[root][rel] = file
	return file
}

// changeFile installs a new snapshot unconditionally; overlay
// precedence is the caller's concern. Overlay release passes
// overlay=false to revert a file to disk ownership.
func (v *Vfs) changeFile(file FileID, text string, overlay bool) {
	record := v.files.Get(file)
	record.text = text
	record.overlay = overlay
	v.pending = append(v.pending, ChangeFile{File: file, Text: text})
}

// removeFile empties the record but keeps handle and path: consumers
// may still project the handle, and a later add revives it.
func (v *Vfs) removeFile(file FileID) {
	record := v.files.Get(file)
	record.text = ""
	record.overlay = false
	record.live = false
	v.pending = append(v.pending, RemoveFile{Root: record.root, File: file, Path: record.path})
}

func (v *Vfs) suppress(root roots.ID, rel, kind string) {
	v.registry.IncDiskEventSuppressed()
	v.logger.Debug("disk event suppressed by overlay", map[string]string{
		"root": v.set.Dir(root),
		"path": rel,
		"kind": kind,
	})
}

func (v *Vfs) readFile(path string) (string, error) {
	file, err := v.fs.Open(path)
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
