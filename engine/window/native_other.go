//go:build !windows && !((linux || freebsd || netbsd || openbsd) && !wayland)

package window

import "github.com/go-gl/glfw/v3.3/glfw"

// nativeHandles reports no handles: the hal Metal and Wayland surfaces need a layer or display the
// GLFW window does not expose, so these platforms present through the WebGPU backend.
func nativeHandles(*glfw.Window) (uintptr, uintptr, bool) {
	return 0, 0, false
}
