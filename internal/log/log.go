// Package log provides structured logging for nsstore.
// Entries carry a level, a category and key=value fields. Logging stays off
// until Init runs; the CLI calls it for --debug or NSSTORE_DEBUG.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/nsstore/internal/pubsub"
)

// Level represents log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config level name to a Level. Unknown names map to
// LevelDebug and ok=false.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToLower(name) {
	case "debug", "":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelDebug, false
	}
}

// Category groups related log messages.
type Category string

const (
	CatEngine    Category = "engine"    // Reducing engine and registry
	CatStore     Category = "store"     // Dispatch, commits, onDelete hooks
	CatPipeline  Category = "pipeline"  // Middleware stages
	CatProcessor Category = "processor" // Async dispatch queue
	CatJournal   Category = "journal"   // Lifecycle journal (SQLite)
	CatConfig    Category = "config"    // Configuration loading/saving
	CatCache     Category = "cache"
	CatTrace     Category = "trace"
)

// Field is one key=value pair of an entry.
type Field struct {
	Key   string
	Value string
}

// Entry is one log record. Listeners receive it unformatted.
type Entry struct {
	Time     time.Time
	Level    Level
	Category Category
	Message  string
	Fields   []Field
}

// Field returns the value of key and whether it was set.
func (e Entry) Field(key string) (string, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// String renders the entry as one line:
//
//	2025-12-06T10:45:00.123 [ERROR] [store] message key=value other="with space"
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02T15:04:05.000"))
	fmt.Fprintf(&b, " [%s] [%s] %s", e.Level, e.Category, e.Message)
	for _, f := range e.Fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(quote(f.Value))
	}
	return b.String()
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		return strconv.Quote(v)
	}
	return v
}

// Logger writes entries to one destination and fans them out to listeners.
type Logger struct {
	mu     sync.Mutex // serializes writes
	writer io.Writer
	closer io.Closer

	enabled  atomic.Bool
	minLevel atomic.Int32

	broker *pubsub.Broker[Entry]
}

func newLogger(w io.Writer, c io.Closer) *Logger {
	l := &Logger{
		writer: w,
		closer: c,
		broker: pubsub.NewBroker[Entry](),
	}
	l.enabled.Store(true)
	l.minLevel.Store(int32(LevelDebug))
	return l
}

var current atomic.Pointer[Logger]

// Init sends log output to the file at path, appending. It replaces any
// earlier logger. The returned func closes the file.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: user-chosen debug log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l := newLogger(f, f)
	install(l)
	return func() {
		// Leave a newer logger alone.
		current.CompareAndSwap(l, nil)
		l.close()
	}, nil
}

// InitWriter sends log output to w instead of a file. It replaces any
// logger set up earlier and is mostly useful in tests.
func InitWriter(w io.Writer) {
	install(newLogger(w, nil))
}

func install(l *Logger) {
	if prev := current.Swap(l); prev != nil {
		prev.close()
	}
}

func (l *Logger) close() {
	l.broker.Close()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		_ = l.closer.Close()
		l.closer = nil
	}
	l.writer = nil
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current.Load(); l != nil {
		l.enabled.Store(enabled)
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current.Load(); l != nil {
		l.minLevel.Store(int32(level))
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields)
}

// ErrorErr logs at error level with err under the "error" key.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	write(LevelError, cat, msg, append(fields, "error", errText))
}

func write(level Level, cat Category, msg string, fields []any) {
	l := current.Load()
	if l == nil || !l.enabled.Load() || int32(level) < l.minLevel.Load() {
		return
	}

	entry := Entry{
		Time:     time.Now(),
		Level:    level,
		Category: cat,
		Message:  msg,
		Fields:   pairs(fields),
	}

	l.mu.Lock()
	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry.String()+"\n")
	}
	l.mu.Unlock()

	l.broker.Publish(pubsub.CreatedEvent, entry)
}

// pairs turns alternating keys and values into fields. A trailing key
// without a value is kept with "<missing>".
func pairs(kv []any) []Field {
	fields := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields = append(fields, Field{Key: key, Value: "<missing>"})
			break
		}
		fields = append(fields, Field{Key: key, Value: fmt.Sprint(kv[i+1])})
	}
	return fields
}

// Listener streams entries as they are written.
type Listener = pubsub.Listener[Entry]

// NewListener subscribes to entries at or above minLevel for the lifetime of ctx.
// It returns nil when logging was never initialized.
func NewListener(ctx context.Context, minLevel Level) *Listener {
	l := current.Load()
	if l == nil {
		return nil
	}
	return pubsub.NewListener[Entry](ctx, l.broker,
		pubsub.Where(func(e pubsub.Event[Entry]) bool { return e.Payload.Level >= minLevel }),
	)
}
