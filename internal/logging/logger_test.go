package logging

import (
	"io"
	"strings"
	"testing"
)

func TestLoggerWritesToHistory(t *testing.T) {
	history := NewHistory(10)
	logger := NewWithOptions(Options{Output: io.Discard, MinLevel: LevelInfo, History: history})

	logger.Info("scan started", map[string]string{"root": "/src"})

	entries := history.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "scan started" {
		t.Fatalf("expected message scan started, got %q", entry.Message)
	}
	if entry.Fields["root"] != "/src" {
		t.Fatalf("expected field root=/src, got %v", entry.Fields)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	history := NewHistory(10)
	logger := NewWithOptions(Options{Output: io.Discard, MinLevel: LevelWarning, History: history})

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := history.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestWithAddsBaseFields(t *testing.T) {
	history := NewHistory(10)
	logger := NewWithOptions(Options{Output: io.Discard, MinLevel: LevelDebug, History: history})

	scoped := logger.With(map[string]string{"component": "scan"})
	scoped.Debug("walk finished", map[string]string{"files": "3"})

	entries := history.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].Fields
	if fields["component"] != "scan" {
		t.Fatalf("expected base field component=scan, got %v", fields)
	}
	if fields["files"] != "3" {
		t.Fatalf("expected call field files=3, got %v", fields)
	}
}

func TestLoggerWritesRenderedOutput(t *testing.T) {
	var sink strings.Builder
	logger := NewWithOptions(Options{Output: &sink, MinLevel: LevelInfo})

	logger.Info("committed", map[string]string{"changes": "4"})

	got := sink.String()
	if !strings.Contains(got, `level=info msg="committed" changes="4"`) {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestFormatEntrySortsFieldKeys(t *testing.T) {
	entry := Entry{
		Level:   LevelInfo,
		Message: "ok",
		Fields:  map[string]string{"zeta": "1", "alpha": "2"},
	}
	got := formatEntry(entry)
	want := `level=info msg="ok" alpha="2" zeta="1"`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestColoredRenderKeepsContent(t *testing.T) {
	entry := Entry{
		Level:   LevelError,
		Message: "read failed",
		Fields:  map[string]string{"path": "a.go"},
	}
	got := formatEntryColored(entry)
	if !strings.Contains(got, `msg="read failed"`) {
		t.Fatalf("expected message in colored output, got %q", got)
	}
	if !strings.Contains(got, `path="a.go"`) {
		t.Fatalf("expected fields in colored output, got %q", got)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", nil)
	if logger.Enabled(LevelError) {
		t.Fatalf("expected nil logger to report disabled")
	}
	if scoped := logger.With(map[string]string{"k": "v"}); scoped != nil {
		t.Fatalf("expected nil logger to stay nil")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
		ok    bool
	}{
		{input: "debug", want: LevelDebug, ok: true},
		{input: "INFO", want: LevelInfo, ok: true},
		{input: " warn ", want: LevelWarning, ok: true},
		{input: "warning", want: LevelWarning, ok: true},
		{input: "error", want: LevelError, ok: true},
		{input: "verbose", ok: false},
		{input: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseLevel(%q) ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseLevel(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
