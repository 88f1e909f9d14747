package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultHistorySize = 1000

type Logger struct {
	history     *History
	output      *log.Logger
	minLevel    Level
	baseContext map[string]string
	render      func(Entry) string
}

// Options configures a Logger. Zero values select stdout output, info
// level, a fresh history buffer and plain rendering.
type Options struct {
	Output      io.Writer
	MinLevel    Level
	History     *History
	HistorySize int
	Color       bool
}

func New(minLevel Level) *Logger {
	return NewWithOptions(Options{MinLevel: minLevel})
}

func NewWithOptions(options Options) *Logger {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if options.HistorySize <= 0 {
		options.HistorySize = DefaultHistorySize
	}
	if options.History == nil {
		options.History = NewHistory(options.HistorySize)
	}
	render := formatEntry
	if options.Color {
		render = formatEntryColored
	}
	return &Logger{
		history:  options.History,
		output:   log.New(options.Output, "", log.LstdFlags),
		minLevel: normalizeLevel(options.MinLevel),
		render:   render,
	}
}

func (l *Logger) History() *History {
	if l == nil {
		return nil
	}
	return l.history
}

func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	return &Logger{
		history:     l.history,
		output:      l.output,
		minLevel:    l.minLevel,
		baseContext: cloneFields(l.baseContext, fields),
		render:      l.render,
	}
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.minLevel)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if l == nil || !l.Enabled(level) {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Fields:    cloneFields(l.baseContext, fields),
	}
	if l.history != nil {
		l.history.Add(entry)
	}
	if l.output != nil {
		render := l.render
		if render == nil {
			render = formatEntry
		}
		l.output.Print(render(entry))
	}
}

func normalizeLevel(level Level) Level {
	switch level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return level
	default:
		return LevelInfo
	}
}

func levelRank(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	default:
		return "", false
	}
}

func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	combined := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		combined[key] = value
	}
	for key, value := range extra {
		combined[key] = value
	}
	return combined
}

func formatEntry(entry Entry) string {
	builder := strings.Builder{}
	builder.WriteString("level=")
	builder.WriteString(string(entry.Level))
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))
	builder.WriteString(formatFields(entry.Fields))
	return builder.String()
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	for _, key := range keys {
		builder.WriteString(" ")
		builder.WriteString(fmt.Sprintf("%s=%s", key, strconv.Quote(fields[key])))
	}
	return builder.String()
}
