package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with its stack trace.
// It must be called directly in a defer statement; the panic is not re-raised.
//
//	func worker() {
//	    defer observability.RecoverPanic(log, "worker goroutine")
//	    // ... code that might panic
//	}
func RecoverPanic(log *logrus.Entry, context string) {
	if r := recover(); r != nil {
		LogPanic(log, context, r)
	}
}

// LogPanic logs an already recovered panic value
func LogPanic(log *logrus.Entry, context string, r interface{}) {
	log.WithFields(logrus.Fields{
		"panic":   r,
		"stack":   string(debug.Stack()),
		"context": context,
	}).Error("PANIC recovered")
}

// MustRecover converts a recovered panic value to an error
//
//	func parseData() (result Data, err error) {
//	    defer func() {
//	        if r := recover(); r != nil {
//	            err = observability.MustRecover(r)
//	        }
//	    }()
//	    // ... code that might panic
//	}
//
// If r is nil, returns nil.
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
