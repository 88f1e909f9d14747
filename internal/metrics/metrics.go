package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type Registry struct {
	scansStarted     atomic.Int64
	scansCompleted   atomic.Int64
	filesScanned     atomic.Int64
	changesCommitted atomic.Int64
	diskSuppressed   atomic.Int64
	watchEvents      atomic.Int64
	results          sync.Map
	buses            sync.Map
	busEvents        sync.Map
}

type resultStats struct {
	emitted atomic.Int64
}

type busStats struct {
	filteredSubs   atomic.Int64
	unfilteredSubs atomic.Int64
}

type busEventStats struct {
	published atomic.Int64
	dropped   atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncScanStarted() {
	if r == nil {
		return
	}
	r.scansStarted.Add(1)
}

func (r *Registry) IncScanCompleted(files int) {
	if r == nil {
		return
	}
	r.scansCompleted.Add(1)
	r.filesScanned.Add(int64(files))
}

func (r *Registry) IncResultEmitted(kind string) {
	if r == nil {
		return
	}
	if strings.TrimSpace(kind) == "" {
		kind = "unknown"
	}
	r.resultStats(kind).emitted.Add(1)
}

func (r *Registry) AddChangesCommitted(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.changesCommitted.Add(int64(count))
}

func (r *Registry) IncDiskEventSuppressed() {
	if r == nil {
		return
	}
	r.diskSuppressed.Add(1)
}

func (r *Registry) IncWatchEvent() {
	if r == nil {
		return
	}
	r.watchEvents.Add(1)
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.busEventStats(bus, eventType).published.Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.busEventStats(bus, eventType).dropped.Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	stats := r.busStats(bus)
	stats.filteredSubs.Store(int64(filtered))
	stats.unfilteredSubs.Store(int64(unfiltered))
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "sourcefs_scans_started_total", "Total root scans started", r.scansStarted.Load())
	writeCounter(writer, "sourcefs_scans_completed_total", "Total root scans completed", r.scansCompleted.Load())
	writeCounter(writer, "sourcefs_files_scanned_total", "Total files collected by scans", r.filesScanned.Load())
	writeCounter(writer, "sourcefs_changes_committed_total", "Total changes drained by commit", r.changesCommitted.Load())
	writeCounter(writer, "sourcefs_disk_events_suppressed_total", "Disk events dropped because an overlay shadows the file", r.diskSuppressed.Load())
	writeCounter(writer, "sourcefs_watch_events_total", "Raw watch notifications observed", r.watchEvents.Load())

	resultKinds := sortedKeys(&r.results)
	writeHelp(writer, "sourcefs_results_emitted_total", "Worker results emitted by kind")
	fmt.Fprintln(writer, "# TYPE sourcefs_results_emitted_total counter")
	for _, kind := range resultKinds {
		stats := r.resultStats(kind)
		fmt.Fprintf(writer, "sourcefs_results_emitted_total{kind=%s} %d\n", formatLabel(kind), stats.emitted.Load())
	}

	busKeys := sortedKeys(&r.busEvents)
	writeHelp(writer, "sourcefs_events_published_total", "Bus events published")
	fmt.Fprintln(writer, "# TYPE sourcefs_events_published_total counter")
	writeHelp(writer, "sourcefs_events_dropped_total", "Bus events dropped on full subscriber buffers")
	fmt.Fprintln(writer, "# TYPE sourcefs_events_dropped_total counter")
	for _, key := range busKeys {
		bus, eventType := splitBusKey(key)
		stats := r.busEventStats(bus, eventType)
		fmt.Fprintf(writer, "sourcefs_events_published_total{bus=%s,type=%s} %d\n", formatLabel(bus), formatLabel(eventType), stats.published.Load())
		fmt.Fprintf(writer, "sourcefs_events_dropped_total{bus=%s,type=%s} %d\n", formatLabel(bus), formatLabel(eventType), stats.dropped.Load())
	}

	busNames := sortedKeys(&r.buses)
	writeHelp(writer, "sourcefs_event_subscribers", "Current bus subscribers")
	fmt.Fprintln(writer, "# TYPE sourcefs_event_subscribers gauge")
	for _, name := range busNames {
		stats := r.busStats(name)
		fmt.Fprintf(writer, "sourcefs_event_subscribers{bus=%s,kind=\"filtered\"} %d\n", formatLabel(name), stats.filteredSubs.Load())
		fmt.Fprintf(writer, "sourcefs_event_subscribers{bus=%s,kind=\"unfiltered\"} %d\n", formatLabel(name), stats.unfilteredSubs.Load())
	}

	return nil
}

func (r *Registry) resultStats(kind string) *resultStats {
	value, _ := r.results.LoadOrStore(kind, &resultStats{})
	return value.(*resultStats)
}

func (r *Registry) busStats(bus string) *busStats {
	if strings.TrimSpace(bus) == "" {
		bus = "unknown"
	}
	value, _ := r.buses.LoadOrStore(bus, &busStats{})
	return value.(*busStats)
}

func (r *Registry) busEventStats(bus, eventType string) *busEventStats {
	if strings.TrimSpace(bus) == "" {
		bus = "unknown"
	}
	if strings.TrimSpace(eventType) == "" {
		eventType = "unknown"
	}
	value, _ := r.busEvents.LoadOrStore(bus+"\x00"+eventType, &busEventStats{})
	return value.(*busEventStats)
}

func splitBusKey(key string) (string, string) {
	parts := strings.SplitN(key, "\x00", 2)
	if len(parts) != 2 {
		return key, "unknown"
	}
	return parts[0], parts[1]
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, _ interface{}) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return "\"" + escaped + "\""
}
