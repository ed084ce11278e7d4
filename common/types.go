// package common contains plain helper types and functions shared by every engine package.
package common

// TextureStagingData holds RGBA8 pixel data pending GPU upload.
type TextureStagingData struct {
	// Pixels is tightly packed RGBA data, 4 bytes per pixel, row-major.
	Pixels []byte
	// Width is the texture width in pixels.
	Width uint32
	// Height is the texture height in pixels.
	Height uint32
}

// RowPitch returns the number of bytes per row of the staged pixels.
func (t TextureStagingData) RowPitch() uint32 {
	return t.Width * 4
}

// Magenta returns a 1x1 opaque magenta texture used when a texture cannot be loaded.
//
// Returns:
//   - TextureStagingData: the fallback texel
func Magenta() TextureStagingData {
	return TextureStagingData{Pixels: []byte{255, 0, 255, 255}, Width: 1, Height: 1}
}
