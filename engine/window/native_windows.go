package window

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles returns the HWND of win. Win32 surfaces take no display handle.
func nativeHandles(win *glfw.Window) (uintptr, uintptr, bool) {
	hwnd := uintptr(unsafe.Pointer(win.GetWin32Window()))
	return 0, hwnd, hwnd != 0
}
