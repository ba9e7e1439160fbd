// Package logging wraps a process-wide zap logger (SPEC_FULL.md's ambient
// stack), replacing the teacher's bare log.Printf call sites in server/task/vm.
package logging

import "go.uber.org/zap"

var base *zap.SugaredLogger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l.Sugar()
}

// Logger is a named child of the process-wide sugared logger.
type Logger = zap.SugaredLogger

// Named returns a logger scoped to name (e.g. "server", "task").
func Named(name string) *Logger {
	return base.Named(name)
}

// Sync flushes any buffered log entries; called once at process shutdown.
func Sync() {
	_ = base.Sync()
}
