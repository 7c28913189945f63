// Package observability provides the structured logger shared by the
// pipeline, the queue consumer and the HTTP surface.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// LogLevel defines the logging verbosity level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LogFormat defines the output format for logs.
type LogFormat int

const (
	LogFormatHuman LogFormat = iota
	LogFormatJSON
)

// Logger is the structured logging contract the rest of the application
// depends on. Field maps carry run IDs, report IDs and diagnostics.
type Logger interface {
	LogDebug(ctx context.Context, message string, fields map[string]interface{})
	LogInfo(ctx context.Context, message string, fields map[string]interface{})
	LogWarning(ctx context.Context, message string, fields map[string]interface{})
	LogError(ctx context.Context, message string, fields map[string]interface{})
}

// DefaultLogger writes structured logs to the standard logger in either
// human-readable or JSON format.
type DefaultLogger struct {
	level  LogLevel
	format LogFormat
	now    func() time.Time
}

// NewDefaultLogger creates a logger with the specified level and format.
func NewDefaultLogger(level LogLevel, format LogFormat) *DefaultLogger {
	return &DefaultLogger{level: level, format: format, now: time.Now}
}

// ParseLevel maps a configuration string to a log level, defaulting to info.
func ParseLevel(value string) LogLevel {
	switch strings.ToLower(value) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ParseFormat maps a configuration string to a log format, defaulting to human.
func ParseFormat(value string) LogFormat {
	if strings.EqualFold(value, "json") {
		return LogFormatJSON
	}
	return LogFormatHuman
}

func (l *DefaultLogger) LogDebug(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelDebug, "debug", message, fields)
}

func (l *DefaultLogger) LogInfo(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelInfo, "info", message, fields)
}

func (l *DefaultLogger) LogWarning(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelWarn, "warn", message, fields)
}

func (l *DefaultLogger) LogError(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelError, "error", message, fields)
}

func (l *DefaultLogger) emit(level LogLevel, label, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	if l.format == LogFormatJSON {
		entry := map[string]interface{}{
			"level":     label,
			"message":   message,
			"timestamp": l.now().Format(time.RFC3339),
		}
		for key, value := range fields {
			entry[key] = value
		}
		encoded, err := json.Marshal(entry)
		if err != nil {
			log.Printf(`{"level":"error","message":"log entry not serializable: %v"}`, err)
			return
		}
		log.Print(string(encoded))
		return
	}

	log.Printf("[%s] %s%s", strings.ToUpper(label), message, formatFields(fields))
}

// formatFields renders fields deterministically for the human format.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(" (")
	for i, key := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(fmt.Sprintf("%s=%v", key, fields[key]))
	}
	builder.WriteString(")")
	return builder.String()
}
