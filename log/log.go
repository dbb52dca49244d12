// Package log provides a channel-serialized logger. Workers enqueue
// messages instead of writing to stdout directly, so concurrent transfers
// never interleave partial lines.
package log

import (
	"fmt"
	"os"
)

// output is a structure for std logs.
type output struct {
	std     *os.File
	message string
}

var globalLogger *logger

// Init inits global logger.
func Init(level string, json bool) {
	globalLogger = newLogger(level, json)
}

// logLevel is the level of Logger.
type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarning
	levelError
)

// String returns the string representation of logLevel.
func (l logLevel) String() string {
	switch l {
	case levelInfo:
		return ""
	case levelError:
		return "ERROR "
	case levelWarning:
		return "WARNING "
	case levelDebug:
		return "DEBUG "
	default:
		return "UNKNOWN "
	}
}

// levelFromString returns logLevel for given string. It
// returns `levelInfo` as a default.
func levelFromString(s string) logLevel {
	switch s {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warning":
		return levelWarning
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// logger is a structure for logging messages.
type logger struct {
	outputCh chan output
	donech   chan struct{}
	json     bool
	level    logLevel
}

// newLogger creates new logger.
func newLogger(level string, json bool) *logger {
	logger := &logger{
		// room for a couple of log lines per worker before enqueuing
		// blocks on a slow terminal
		outputCh: make(chan output, 128),
		donech:   make(chan struct{}),
		json:     json,
		level:    levelFromString(level),
	}
	go logger.out()
	return logger
}

// printf prints message according to the given level, message and std mode.
// It is safe to call before Init; messages are dropped until a logger exists.
func (l *logger) printf(level logLevel, message Message, std *os.File) {
	if l == nil {
		return
	}
	if level < l.level {
		return
	}

	if l.json {
		l.outputCh <- output{
			message: message.JSON(),
			std:     std,
		}
	} else {
		l.outputCh <- output{
			message: fmt.Sprintf("%v%v", level, message.String()),
			std:     std,
		}
	}
}

// Debug prints message in debug mode.
func Debug(msg Message) {
	globalLogger.printf(levelDebug, msg, os.Stdout)
}

// Info prints message in info mode.
func Info(msg Message) {
	globalLogger.printf(levelInfo, msg, os.Stdout)
}

// Warning prints message in warning mode.
func Warning(msg Message) {
	globalLogger.printf(levelWarning, msg, os.Stderr)
}

// Error prints message in error mode.
func Error(msg Message) {
	globalLogger.printf(levelError, msg, os.Stderr)
}

// out listens for outputCh and logs messages.
func (l *logger) out() {
	defer close(l.donech)

	for output := range l.outputCh {
		_, _ = fmt.Fprintln(output.std, output.message)
	}
}

// Close drains and closes the logger. Init may be called again afterwards.
func Close() {
	if globalLogger == nil {
		return
	}
	close(globalLogger.outputCh)
	<-globalLogger.donech
	globalLogger = nil
}
