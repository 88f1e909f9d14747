package vfs

import "sourcefs/internal/roots"

// Change kinds as reported to metrics and consumers.
const (
	KindAddRoot    = "add_root"
	KindAddFile    = "add_file"
	KindChangeFile = "change_file"
	KindRemoveFile = "remove_file"
)

// Change is one entry of the pending change log. Changes carry full
// text snapshots, so a consumer can rebuild its view by replaying a
// committed batch in order without ever querying the Vfs back.
type Change interface {
	Kind() string
	isChange()
}

// RootFile is one file carried by an AddRoot change.
type RootFile struct {
	File FileID
	Path string
	Text string
}

// AddRoot reports a completed bulk scan: the full reconciled file list
// of one root, in walk order. Files the consumer already saw through
// earlier adds reappear here with their current text.
type AddRoot struct {
	Root  roots.ID
	Files []RootFile
}

// AddFile reports a single file entering the Vfs.
type AddFile struct {
	Root roots.ID
	File FileID
	Path string
	Text string
}

// ChangeFile reports a new text snapshot for a live file.
type ChangeFile struct {
	File FileID
	Text string
}

// RemoveFile reports a file leaving the Vfs. The handle stays valid
// for path projection and is revived if the same path returns.
type RemoveFile struct {
	Root roots.ID
	File FileID
	Path string
}

func (AddRoot) Kind() string    { return KindAddRoot }
func (AddFile) Kind() string    { return KindAddFile }
func (ChangeFile) Kind() string { return KindChangeFile }
func (RemoveFile) Kind() string { return KindRemoveFile }

func (AddRoot) isChange()    {}
func (AddFile) isChange()    {}
func (ChangeFile) isChange() {}
func (RemoveFile) isChange() {}
