// Package monitoring holds the diagnostic logger shared by the navigation loops.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is the printf-style signature used by every component logger.
type LogFunc func(format string, v ...interface{})

var current atomic.Pointer[LogFunc]

func init() {
	f := LogFunc(log.Printf)
	current.Store(&f)
}

// Logf writes through the currently installed logger. It defaults to
// log.Printf and may be replaced by SetLogger.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
// The loops log from several goroutines, so the swap is atomic.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(&f)
}

// Component returns a logger that prefixes every line with "[name] ".
// The prefix is resolved at call time so later SetLogger calls still apply.
func Component(name string) LogFunc {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
