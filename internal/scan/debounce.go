package scan

import "time"

// debouncer coalesces rapid events on the same path. Only the worker
// goroutine touches the entries map; timer callbacks hand control back
// through the worker's flush channel instead of sharing state.
type debouncer struct {
	duration time.Duration
	entries  map[string]*time.Timer
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]*time.Timer),
	}
}

// schedule arms the timer for path, or re-arms it when one is already
// pending. It reports whether an earlier event was coalesced.
func (d *debouncer) schedule(path string, notify func()) bool {
	if timer, ok := d.entries[path]; ok {
		timer.Reset(d.duration)
		return true
	}
	d.entries[path] = time.AfterFunc(d.duration, notify)
	return false
}

// forget drops the entry for path once its flush message arrives.
func (d *debouncer) forget(path string) {
	delete(d.entries, path)
}

func (d *debouncer) stop() {
	for _, timer := range d.entries {
		timer.Stop()
	}
	d.entries = make(map[string]*time.Timer)
}
