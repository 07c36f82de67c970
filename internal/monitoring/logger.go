package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
// The levelled helpers below all write through it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level is a log verbosity threshold.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

// ParseLevel maps debug, info, warn or error to a Level.
func ParseLevel(s string) (Level, error) {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

var threshold atomic.Int32

func init() { threshold.Store(int32(LevelInfo)) }

// SetLevel sets the minimum level the helpers emit.
func SetLevel(l Level) { threshold.Store(int32(l)) }

// Enabled reports whether messages at l are emitted.
func Enabled(l Level) bool { return int32(l) >= threshold.Load() }

// Debugf logs at debug level.
func Debugf(format string, v ...interface{}) {
	if Enabled(LevelDebug) {
		Logf("DEBUG: "+format, v...)
	}
}

// Infof logs at info level.
func Infof(format string, v ...interface{}) {
	if Enabled(LevelInfo) {
		Logf(format, v...)
	}
}

// Warnf logs at warn level.
func Warnf(format string, v ...interface{}) {
	if Enabled(LevelWarn) {
		Logf("WARNING: "+format, v...)
	}
}

// Errorf logs at error level.
func Errorf(format string, v ...interface{}) {
	if Enabled(LevelError) {
		Logf("ERROR: "+format, v...)
	}
}
