//go:build aedebug

package common

// DebugBuild reports whether contract checks panic.
const DebugBuild = true

func contractViolation(msg string, args ...any) {
	Logger().Error("contract violation", append([]any{"msg", msg}, args...)...)
	panic(formatViolation(msg, args...))
}
