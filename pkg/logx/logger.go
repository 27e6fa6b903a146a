package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Formatter turns an entry into the bytes written to the output
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// sink is shared by a logger and every child created with With.
type sink struct {
	mu       sync.Mutex
	level    Level
	writer   io.Writer
	exitFunc func(int)
}

// Logger writes records through a Formatter. Children created with With
// share the level, output and exit function of their parent.
type Logger struct {
	config    *Config
	formatter Formatter
	out       *sink
	base      Fields
}

// NewLogger creates a new logger with the given config
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var formatter Formatter
	switch config.Format {
	case FormatJSON:
		formatter = NewJSONFormatter(config)
	default:
		formatter = NewConsoleFormatter(config)
	}

	writer := config.Output
	if writer == nil {
		writer = os.Stdout
	}

	l := &Logger{
		config:    config,
		formatter: formatter,
		out:       &sink{level: config.Level, writer: writer, exitFunc: os.Exit},
	}
	if config.Service != "" {
		l.base = Fields{FieldService: config.Service}
	}
	return l
}

// With returns a child logger that adds fields to every record.
func (l *Logger) With(fields Fields) *Logger {
	child := *l
	child.base = merge(l.base, fields)
	return &child
}

// Component is With for the "component" field.
func (l *Logger) Component(name string) *Logger {
	return l.With(Fields{FieldComponent: name})
}

func (l *Logger) SetLevel(level Level) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

func (l *Logger) GetLevel() Level {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.writer = w
}

// SetExitFunc replaces os.Exit for Fatal calls
func (l *Logger) SetExitFunc(fn func(int)) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.exitFunc = fn
}

func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	l.logAt(callerDepth, level, msg, fields, err)
}

// callerDepth skips caller, logAt, the log or emit helper and the public
// logging method.
const callerDepth = 4

func (l *Logger) logAt(depth int, level Level, msg string, fields Fields, err error) {
	if !l.GetLevel().Enabled(level) {
		return
	}

	entry := &LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    merge(l.base, fields),
		Error:     err,
		Timestamp: time.Now(),
	}
	if l.config.EnableCaller {
		entry.Caller = caller(depth)
	}

	formatted, formatErr := l.formatter.Format(entry)
	if formatErr != nil {
		fmt.Fprintf(os.Stderr, "logx: format entry: %v\n", formatErr)
		return
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if _, writeErr := l.out.writer.Write(formatted); writeErr != nil {
		fmt.Fprintf(os.Stderr, "logx: write entry: %v\n", writeErr)
	}
}

func (l *Logger) WithField(key string, value interface{}) *Entry {
	return newEntry(l).WithField(key, value)
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return newEntry(l).WithFields(fields)
}

func (l *Logger) WithError(err error) *Entry {
	return newEntry(l).WithError(err)
}

func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg, nil, nil) }
func (l *Logger) Info(msg string)  { l.log(LevelInfo, msg, nil, nil) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, msg, nil, nil) }
func (l *Logger) Error(msg string) { l.log(LevelError, msg, nil, nil) }

func (l *Logger) exit(code int) {
	l.out.mu.Lock()
	fn := l.out.exitFunc
	l.out.mu.Unlock()
	fn(code)
}

// merge never mutates its inputs; a nil result means no fields.
func merge(a, b Fields) Fields {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
