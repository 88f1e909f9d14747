package scan

import "sourcefs/internal/roots"

// Result kinds as reported to metrics.
const (
	KindRootScanned = "root_scanned"
	KindFileAdded   = "file_added"
	KindFileChanged = "file_changed"
	KindFileRemoved = "file_removed"
)

// Result is a message from the worker to its consumer. Paths are
// root-relative slash paths; text is the file content at read time.
type Result interface {
	Kind() string
	isResult()
}

// ScannedFile is one file collected by a bulk scan.
type ScannedFile struct {
	Path string
	Text string
}

// RootScanned reports a completed bulk scan, files in walk order.
type RootScanned struct {
	Root  roots.ID
	Files []ScannedFile
}

// FileAdded reports a file discovered after the bulk scan.
type FileAdded struct {
	Root roots.ID
	Path string
	Text string
}

// FileChanged reports fresh content for a file inside a root.
type FileChanged struct {
	Root roots.ID
	Path string
	Text string
}

// FileRemoved reports that a file inside a root is gone from disk.
type FileRemoved struct {
	Root roots.ID
	Path string
}

func (RootScanned) Kind() string { return KindRootScanned }
func (FileAdded) Kind() string   { return KindFileAdded }
func (FileChanged) Kind() string { return KindFileChanged }
func (FileRemoved) Kind() string { return KindFileRemoved }

func (RootScanned) isResult() {}
func (FileAdded) isResult()   {}
func (FileChanged) isResult() {}
func (FileRemoved) isResult() {}
