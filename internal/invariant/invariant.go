// Package invariant gives every internal layer a single typed panic
// for "this should be impossible" conditions — corrupt on-disk state,
// a caller bypassing the lock discipline, a quota a well-behaved
// caller could never exceed. These are bugs, not handled faults: the
// source this module is grounded on treats them identically (PANIC()),
// and recovering from one mid-operation would risk committing
// half-applied state to disk.
package invariant

import "fmt"

// Error names the invariant that was violated, letting a caller at a
// process boundary log something more useful than "panic: runtime
// error".
type Error struct {
	Name   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violated: %s", e.Name)
	}
	return fmt.Sprintf("invariant violated: %s: %s", e.Name, e.Detail)
}

// Violate panics with a typed *Error carrying name and an optional
// formatted detail.
func Violate(name, format string, args ...any) {
	panic(&Error{Name: name, Detail: fmt.Sprintf(format, args...)})
}
