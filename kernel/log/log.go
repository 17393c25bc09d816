// Package log provides a level-filtered logger that fans out formatted
// records to any number of sinks (serial port, E9 debug port, the active
// framebuffer console, a FAT32 log file). It sits above kernel/kfmt the way
// kfmt/early sits below the heap: kfmt.Fprintf does the actual formatting,
// log.Logger decides which sinks see which levels.
package log

import (
	"io"

	"github.com/Ewogijk/runeOS-sub002/kernel/kfmt"
)

// Level identifies the severity of a log record.
type Level uint8

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
)

var levelName = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

// String returns the upper-case name of the level.
func (l Level) String() string {
	if int(l) >= len(levelName) {
		return "UNKNOWN"
	}
	return levelName[l]
}

// sink pairs a writer with the minimum level it should receive.
type sink struct {
	w        io.Writer
	minLevel Level
}

// Logger fans out level-filtered, level-prefixed records to a set of sinks.
// The zero value logs nothing; use New.
type Logger struct {
	module string
	sinks  []sink
}

// New returns a Logger that tags every record with module.
func New(module string) *Logger {
	return &Logger{module: module}
}

// AddSink registers w to receive every record at level >= minLevel. Each
// sink gets its own kfmt.PrefixWriter so interleaved writers never corrupt
// each other's line-prefix state.
func (l *Logger) AddSink(w io.Writer, minLevel Level) {
	l.sinks = append(l.sinks, sink{w: w, minLevel: minLevel})
}

// Logf formats and fans out a record at the given level. Records below a
// sink's configured minimum level are dropped for that sink, not globally:
// a serial sink can carry Trace while the framebuffer only shows Warn+.
func (l *Logger) Logf(level Level, format string, args ...interface{}) {
	if len(l.sinks) == 0 {
		return
	}

	prefix := "[" + level.String() + "] [" + l.module + "] "
	for _, s := range l.sinks {
		if level < s.minLevel {
			continue
		}
		pw := &kfmt.PrefixWriter{Sink: s.w, Prefix: []byte(prefix)}
		kfmt.Fprintf(pw, format, args...)
		pw.Write([]byte{'\n'})
	}
}

func (l *Logger) Trace(format string, args ...interface{}) { l.Logf(Trace, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.Logf(Debug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.Logf(Info, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.Logf(Warn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.Logf(Error, format, args...) }
