package logger

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// logEntry is a single formatted log line together with the level it was
// written at, so that per-writer level filtering can happen in the backend.
type logEntry struct {
	log   []byte
	level Level
}

// Logger is a subsystem logger. It is safe for concurrent use by multiple
// goroutines.
type Logger struct {
	lvl       uint32 // atomic; holds a Level
	tag       string
	b         *Backend
	writeChan chan<- logEntry
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.lvl))
}

// SetLevel changes the logging level to the passed level.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.lvl, uint32(level))
}

// Backend returns the backend this logger writes to.
func (l *Logger) Backend() *Backend {
	return l.b
}

// print formats the message using the default formats for its operands and
// writes it to the backend.
func (l *Logger) print(level Level, args ...interface{}) {
	l.write(level, fmt.Sprint(args...))
}

// printf formats the message according to the format specifier and writes it
// to the backend.
func (l *Logger) printf(level Level, format string, args ...interface{}) {
	l.write(level, fmt.Sprintf(format, args...))
}

func (l *Logger) write(level Level, msg string) {
	if !l.b.IsRunning() {
		// Backend not started yet (or already closed). Fall back to
		// stderr so early failures aren't silently swallowed.
		fmt.Fprintln(os.Stderr, l.formatEntry(level, msg))
		return
	}
	l.writeChan <- logEntry{
		log:   []byte(l.formatEntry(level, msg) + "\n"),
		level: level,
	}
}

func (l *Logger) formatEntry(level Level, msg string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	if site := callsite(l.b.flag); site != "" {
		return fmt.Sprintf("%s [%s] %s %s: %s", timestamp, level, l.tag, site, msg)
	}
	return fmt.Sprintf("%s [%s] %s: %s", timestamp, level, l.tag, msg)
}

// callsite returns the file and line of the logging callsite according to the
// backend flags, or an empty string when callsite logging is disabled.
func callsite(flag uint32) string {
	if flag&(LogFlagShortFile|LogFlagLongFile) == 0 {
		return ""
	}
	_, file, line, ok := runtime.Caller(5)
	if !ok {
		return "???:0"
	}
	if flag&LogFlagShortFile != 0 {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Trace formats the message using the default formats for its operands and
// writes it at the trace level.
func (l *Logger) Trace(args ...interface{}) {
	if l.Level() <= LevelTrace {
		l.print(LevelTrace, args...)
	}
}

// Tracef formats the message according to the format specifier and writes it
// at the trace level.
func (l *Logger) Tracef(format string, args ...interface{}) {
	if l.Level() <= LevelTrace {
		l.printf(LevelTrace, format, args...)
	}
}

// Debug formats the message using the default formats for its operands and
// writes it at the debug level.
func (l *Logger) Debug(args ...interface{}) {
	if l.Level() <= LevelDebug {
		l.print(LevelDebug, args...)
	}
}

// Debugf formats the message according to the format specifier and writes it
// at the debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.Level() <= LevelDebug {
		l.printf(LevelDebug, format, args...)
	}
}

// Info formats the message using the default formats for its operands and
// writes it at the info level.
func (l *Logger) Info(args ...interface{}) {
	if l.Level() <= LevelInfo {
		l.print(LevelInfo, args...)
	}
}

// Infof formats the message according to the format specifier and writes it
// at the info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.Level() <= LevelInfo {
		l.printf(LevelInfo, format, args...)
	}
}

// Warn formats the message using the default formats for its operands and
// writes it at the warn level.
func (l *Logger) Warn(args ...interface{}) {
	if l.Level() <= LevelWarn {
		l.print(LevelWarn, args...)
	}
}

// Warnf formats the message according to the format specifier and writes it
// at the warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.Level() <= LevelWarn {
		l.printf(LevelWarn, format, args...)
	}
}

// Error formats the message using the default formats for its operands and
// writes it at the error level.
func (l *Logger) Error(args ...interface{}) {
	if l.Level() <= LevelError {
		l.print(LevelError, args...)
	}
}

// Errorf formats the message according to the format specifier and writes it
// at the error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.Level() <= LevelError {
		l.printf(LevelError, format, args...)
	}
}

// Critical formats the message using the default formats for its operands and
// writes it at the critical level.
func (l *Logger) Critical(args ...interface{}) {
	if l.Level() <= LevelCritical {
		l.print(LevelCritical, args...)
	}
}

// Criticalf formats the message according to the format specifier and writes
// it at the critical level.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	if l.Level() <= LevelCritical {
		l.printf(LevelCritical, format, args...)
	}
}
