package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Logger writes timestamped, levelled lines with trailing key=value pairs:
//
//	2025-01-01T00:00:00Z [LEVEL] msg key=value ...
//
// The zero value is not usable; construct with New.
type Logger struct {
	mu       sync.Mutex
	out      *stdlog.Logger
	minLevel Level
	now      func() time.Time
}

var (
	std     *Logger
	stdOnce sync.Once
)

// New returns a Logger writing to w that drops entries below level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		out:      stdlog.New(w, "", 0),
		minLevel: level,
		now:      time.Now,
	}
}

// Default returns the process-wide logger, writing to stderr at INFO.
func Default() *Logger {
	stdOnce.Do(func() {
		std = New(os.Stderr, LevelInfo)
	})
	return std
}

// ParseLevel maps a config string onto a Level. Unknown values yield INFO
// and ok=false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO", "":
		return LevelInfo, true
	case "ERROR":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

func SetLevel(l Level) {
	Default().SetLevel(l)
}

func Debug(msg string, kv ...any) {
	Default().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	Default().Info(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	Default().Error(msg, err, kv...)
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.logWithLevel(LevelDebug, msg, kv...)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.logWithLevel(LevelInfo, msg, kv...)
}

func (l *Logger) Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	l.logWithLevel(LevelError, msg, extended...)
}

func (l *Logger) logWithLevel(level Level, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !enabled(l.minLevel, level) {
		return
	}

	line := l.now().Format(time.RFC3339Nano) + " [" + string(level) + "] " + msg
	if len(kv) > 0 {
		line += formatKVs(kv...)
	}

	l.out.Println(line)
}

func enabled(minLevel, level Level) bool {
	switch minLevel {
	case LevelDebug:
		return true
	case LevelInfo:
		return level == LevelInfo || level == LevelError
	case LevelError:
		return level == LevelError
	default:
		return true
	}
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}
	// If odd number of args, last one is ignored.
	return b.String()
}
