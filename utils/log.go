package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a flag value to a level; unknown names fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "critical":
		return CRITICAL
	default:
		return INFO
	}
}

// sink is shared by a logger and every Named child.
type sink struct {
	mu         sync.Mutex
	minLevel   LogLevel
	file       *os.File
	out        io.Writer
	alsoStdout bool
	now        func() time.Time
}

type Logger struct {
	*sink
	component string
}

func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Logger{sink: &sink{
		minLevel:   minLevel,
		file:       f,
		out:        f,
		alsoStdout: alsoStdout,
		now:        time.Now,
	}}, nil
}

// NewLogger writes to w only. Used for stdout-only runs and tests.
func NewLogger(w io.Writer, minLevel LogLevel) *Logger {
	return &Logger{sink: &sink{minLevel: minLevel, out: w, now: time.Now}}
}

// Named returns a logger sharing l's output that tags lines with component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{sink: l.sink, component: component}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.out = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Enabled reports whether level would be written. The CAN bridge checks it
// before slicing frame payloads for its per-frame TRACE lines.
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minLevel
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	ts := l.now().Format(time.RFC3339Nano)
	var line string
	if l.component != "" {
		line = fmt.Sprintf("%s [%s] [%s] %s\n", ts, level.String(), l.component, fmt.Sprintf(msg, args...))
	} else {
		line = fmt.Sprintf("%s [%s] %s\n", ts, level.String(), fmt.Sprintf(msg, args...))
	}

	if l.out != nil {
		_, _ = io.WriteString(l.out, line)
	}
	if l.file != nil && level >= ERROR {
		_ = l.file.Sync()
	}
	if l.alsoStdout {
		_, _ = os.Stdout.WriteString(line)
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
