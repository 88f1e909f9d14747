package logging

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
)

var levelPaint = map[Level]func(a ...interface{}) string{
	LevelDebug:   color.New(color.FgCyan).SprintFunc(),
	LevelInfo:    color.New(color.FgGreen).SprintFunc(),
	LevelWarning: color.New(color.FgYellow).SprintFunc(),
	LevelError:   color.New(color.FgRed).SprintFunc(),
}

// formatEntryColored renders like formatEntry with the level token
// colored by severity. Color degrades to plain text on non-terminal
// outputs.
func formatEntryColored(entry Entry) string {
	paint := levelPaint[entry.Level]
	if paint == nil {
		return formatEntry(entry)
	}
	builder := strings.Builder{}
	builder.WriteString("level=")
	builder.WriteString(paint(string(entry.Level)))
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))
	builder.WriteString(formatFields(entry.Fields))
	return builder.String()
}
