// Package safego launches goroutines that recover from panics instead of
// crashing the process, used for the credential managers' background
// refresh loops, the credential file watcher and the HTTP listener.
package safego

import "go.uber.org/zap"

// Go launches fn in a goroutine with panic recovery. If fn panics, the
// panic value and stack are logged and the goroutine exits cleanly.
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panicked",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}
