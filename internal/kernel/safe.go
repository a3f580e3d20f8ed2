package kernel

import (
	"fmt"
	"runtime/debug"
)

// panicError is a recovered panic together with the goroutine stack at the
// point of recovery.
type panicError struct {
	scope string
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%s: panic recovered: %v", e.scope, e.value)
}

// runSafely executes fn and converts panics into returned errors tagged with scope.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &panicError{scope: scope, value: recovered, stack: debug.Stack()}
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}
