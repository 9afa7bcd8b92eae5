// Package log routes the standard slog default logger through the process
// logger and recovers panics at goroutine boundaries.
package log

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
)

// Setup makes h the slog default handler. Only the first call has effect.
func Setup(h slog.Handler) {
	initOnce.Do(func() {
		slog.SetDefault(slog.New(h))
		initialized.Store(true)
	})
}

func Initialized() bool {
	return initialized.Load()
}

// RecoverPanic is deferred by main and by background commands. It logs the
// panic with its stack and runs cleanup.
func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
