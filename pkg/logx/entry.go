package logx

import "time"

// Fields is a map of structured data
type Fields map[string]interface{}

// Reserved field names set by the logger itself.
const (
	FieldService   = "service"
	FieldComponent = "component"
)

// LogEntry is a single formatted record
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Error     error
	Timestamp time.Time
	Caller    string
}

// Component returns the record's component field, or "".
func (e *LogEntry) Component() string {
	if s, ok := e.Fields[FieldComponent].(string); ok {
		return s
	}
	return ""
}

// Entry builds up a record before it is written. It is not safe for
// concurrent use; build one per log call.
type Entry struct {
	logger *Logger
	fields Fields
	err    error
}

func newEntry(logger *Logger) *Entry {
	return &Entry{logger: logger, fields: make(Fields)}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	e.fields[key] = value
	return e
}

func (e *Entry) WithFields(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

func (e *Entry) WithError(err error) *Entry {
	e.err = err
	return e
}

func (e *Entry) emit(level Level, msg string) {
	e.logger.logAt(callerDepth, level, msg, e.fields, e.err)
}

func (e *Entry) Debug(msg string) { e.emit(LevelDebug, msg) }
func (e *Entry) Info(msg string)  { e.emit(LevelInfo, msg) }
func (e *Entry) Warn(msg string)  { e.emit(LevelWarn, msg) }
func (e *Entry) Error(msg string) { e.emit(LevelError, msg) }

// Fatal logs at fatal level and calls the logger's exit function with 1.
func (e *Entry) Fatal(msg string) {
	e.emit(LevelFatal, msg)
	e.logger.exit(1)
}
