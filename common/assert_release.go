//go:build !aedebug

package common

// DebugBuild reports whether contract checks panic.
const DebugBuild = false

func contractViolation(msg string, args ...any) {
	Logger().Debug("contract violation", append([]any{"msg", msg}, args...)...)
}
