package common

import "fmt"

// Assert checks a caller contract.
//
// In builds tagged aedebug a failed check panics with the formatted message. In release builds the
// failure is logged at debug level and Assert returns false so the caller can clamp or ignore the
// offending input.
//
// Parameters:
//   - cond: the condition that must hold
//   - msg: a short description of the contract
//   - args: optional slog-style key/value pairs describing the offending values
//
// Returns:
//   - bool: cond, unchanged
func Assert(cond bool, msg string, args ...any) bool {
	if cond {
		return true
	}
	contractViolation(msg, args...)
	return false
}

// ClampIndex clamps v into [0, n-1], reporting a contract violation when it was out of range.
//
// Parameters:
//   - v: the index to check
//   - n: the exclusive upper bound (must be > 0)
//   - msg: contract description used when v is out of range
//
// Returns:
//   - int: v, or the nearest valid index
func ClampIndex(v, n int, msg string) int {
	if v >= 0 && v < n {
		return v
	}
	contractViolation(msg, "value", v, "limit", n)
	if v < 0 {
		return 0
	}
	return n - 1
}

func formatViolation(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf("%s %v", msg, args)
}
