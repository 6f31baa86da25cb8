// Package logger provides leveled logging for the server and console drivers.
// The economy engine itself never logs; drivers report what it returns.
package logger

import (
	"io"
	"log"
	"os"
)

// Logger writes prefixed lines per level.
type Logger struct {
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debug       bool
}

// NewLogger creates a logger writing info/debug/warn to stdout and errors to stderr.
func NewLogger(debug bool) *Logger {
	return newLogger(os.Stdout, os.Stderr, debug, log.Ldate|log.Ltime|log.Lshortfile)
}

// NewWriterLogger sends every level to w. Used by tests and the console.
func NewWriterLogger(w io.Writer, debug bool) *Logger {
	return newLogger(w, w, debug, 0)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger(io.Discard, false)
}

func newLogger(out, errOut io.Writer, debug bool, flags int) *Logger {
	return &Logger{
		debugLogger: log.New(out, "[MOAI-DEBUG] ", flags),
		infoLogger:  log.New(out, "[MOAI-INFO] ", flags),
		warnLogger:  log.New(out, "[MOAI-WARN] ", flags),
		errorLogger: log.New(errOut, "[MOAI-ERROR] ", flags),
		debug:       debug,
	}
}

// Debugf logs only when debug output is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.debug {
		return
	}
	l.debugLogger.Printf(format, args...)
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Println(msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...any) {
	l.infoLogger.Printf(format, args...)
}

// Warnf logs a formatted warning.
func (l *Logger) Warnf(format string, args ...any) {
	l.warnLogger.Printf(format, args...)
}

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, args ...any) {
	l.errorLogger.Printf(format, args...)
}

// Event logs a game event with the actor that caused it.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.infoLogger.Printf("[EVENT:%s] Actor:%s | %s", eventType, actorID, details)
}
