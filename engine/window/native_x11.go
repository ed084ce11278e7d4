//go:build (linux && !wayland) || (freebsd && !wayland) || (netbsd && !wayland) || (openbsd && !wayland)

package window

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles returns the X11 Display* and Window of win.
func nativeHandles(win *glfw.Window) (uintptr, uintptr, bool) {
	display := uintptr(unsafe.Pointer(glfw.GetX11Display()))
	handle := uintptr(win.GetX11Window())
	return display, handle, display != 0 && handle != 0
}
