// internal/logging/logger.go
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// LogLevel represents logging severity
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func parseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "WARNING", "WARN":
		return WARNING
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger writes leveled log lines in text or JSON format
type Logger struct {
	mu     *sync.Mutex
	level  LogLevel
	output io.Writer
	json   bool
	exit   func(int)
}

// NewLogger creates a logger writing to stderr. Unknown levels default to INFO.
func NewLogger(level string) *Logger {
	return &Logger{
		mu:     &sync.Mutex{},
		level:  parseLevel(level),
		output: os.Stderr,
		exit:   os.Exit,
	}
}

// SetOutput changes the destination of log lines
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetJSONFormat switches between text and JSON lines
func (l *Logger) SetJSONFormat(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.json = enabled
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.level
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, "", nil, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, "", nil, format, args...)
}

func (l *Logger) Warning(format string, args ...interface{}) {
	l.logf(WARNING, "", nil, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, "", nil, format, args...)
}

// Fatal logs the message and exits the process with status 1
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.logf(FATAL, "", nil, format, args...)
	l.exit(1)
}

// WithFields returns a logger that attaches fields to every line
func (l *Logger) WithFields(fields map[string]interface{}) *FieldLogger {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &FieldLogger{logger: l, fields: copied}
}

// GetLogr exposes the logger as a logr.Logger for controller-runtime
func (l *Logger) GetLogr() logr.Logger {
	return logr.New(&logrSink{logger: l})
}

func (l *Logger) logf(level LogLevel, name string, fields map[string]interface{}, format string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.write(level, name, fields, msg)
}

func (l *Logger) write(level LogLevel, name string, fields map[string]interface{}, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	if l.json {
		entry := map[string]string{
			"timestamp": now,
			"level":     level.String(),
			"message":   msg,
		}
		if name != "" {
			entry["logger"] = name
		}
		for k, v := range fields {
			entry[k] = fmt.Sprint(v)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(l.output, "%s [ERROR] failed to encode log entry: %v\n", now, err)
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] ", now, level)
	if name != "" {
		b.WriteString(name)
		b.WriteString(": ")
	}
	b.WriteString(msg)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	fmt.Fprintln(l.output, b.String())
}

// FieldLogger is a Logger with fixed fields
type FieldLogger struct {
	logger *Logger
	fields map[string]interface{}
}

func (f *FieldLogger) Debug(format string, args ...interface{}) {
	f.logger.logf(DEBUG, "", f.fields, format, args...)
}

func (f *FieldLogger) Info(format string, args ...interface{}) {
	f.logger.logf(INFO, "", f.fields, format, args...)
}

func (f *FieldLogger) Warning(format string, args ...interface{}) {
	f.logger.logf(WARNING, "", f.fields, format, args...)
}

func (f *FieldLogger) Error(format string, args ...interface{}) {
	f.logger.logf(ERROR, "", f.fields, format, args...)
}

// logrSink adapts Logger to logr.LogSink. V(0) maps to INFO, anything more
// verbose maps to DEBUG.
type logrSink struct {
	logger *Logger
	name   string
	values []interface{}
}

func (s *logrSink) Init(logr.RuntimeInfo) {}

func (s *logrSink) Enabled(level int) bool {
	if level > 0 {
		return s.logger.shouldLog(DEBUG)
	}
	return s.logger.shouldLog(INFO)
}

func (s *logrSink) Info(level int, msg string, keysAndValues ...interface{}) {
	lvl := INFO
	if level > 0 {
		lvl = DEBUG
	}
	if !s.logger.shouldLog(lvl) {
		return
	}
	s.logger.write(lvl, s.name, s.fields(keysAndValues), msg)
}

func (s *logrSink) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := s.fields(keysAndValues)
	if err != nil {
		fields["error"] = err.Error()
	}
	s.logger.write(ERROR, s.name, fields, msg)
}

func (s *logrSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	values := make([]interface{}, 0, len(s.values)+len(keysAndValues))
	values = append(values, s.values...)
	values = append(values, keysAndValues...)
	return &logrSink{logger: s.logger, name: s.name, values: values}
}

func (s *logrSink) WithName(name string) logr.LogSink {
	full := name
	if s.name != "" {
		full = s.name + "." + name
	}
	return &logrSink{logger: s.logger, name: full, values: s.values}
}

func (s *logrSink) fields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, (len(s.values)+len(keysAndValues))/2)
	add := func(kv []interface{}) {
		for i := 0; i+1 < len(kv); i += 2 {
			fields[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	add(s.values)
	add(keysAndValues)
	return fields
}
