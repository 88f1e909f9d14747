package event

import "time"

// Event is a typed notification with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

const (
	TypeScanStarted   = "scan_started"
	TypeScanCompleted = "scan_completed"
	TypeWatchError    = "watch_error"
)

// ScanEvent reports worker progress: bulk scans starting and
// finishing, and watch registration failures. Scan events never feed
// the reconciliation path; hosts subscribe to them for logging.
type ScanEvent struct {
	EventType  string
	Root       string
	Files      int
	Error      string
	OccurredAt time.Time
}

func NewScanStarted(root string) ScanEvent {
	return ScanEvent{
		EventType:  TypeScanStarted,
		Root:       root,
		OccurredAt: time.Now().UTC(),
	}
}

func NewScanCompleted(root string, files int) ScanEvent {
	return ScanEvent{
		EventType:  TypeScanCompleted,
		Root:       root,
		Files:      files,
		OccurredAt: time.Now().UTC(),
	}
}

func NewWatchError(root string, err error) ScanEvent {
	scanEvent := ScanEvent{
		EventType:  TypeWatchError,
		Root:       root,
		OccurredAt: time.Now().UTC(),
	}
	if err != nil {
		scanEvent.Error = err.Error()
	}
	return scanEvent
}

func (e ScanEvent) Type() string {
	return e.EventType
}

func (e ScanEvent) Timestamp() time.Time {
	return e.OccurredAt
}
