package renderer

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/gogpu/gputypes"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxTextureSize is the largest texture edge LoadTexture uploads; larger images are downscaled.
const MaxTextureSize = 4096

func (r *renderContext) CreateTexture(label string, data common.TextureStagingData) (resource.Resource, error) {
	if data.Width == 0 || data.Height == 0 || uint64(len(data.Pixels)) < uint64(data.RowPitch())*uint64(data.Height) {
		return nil, fmt.Errorf("renderer: texture %q: %d bytes for %dx%d pixels", label, len(data.Pixels), data.Width, data.Height)
	}
	tex, err := r.backend.CreateTexture(backend.TextureDescriptor{
		Label:       label,
		Width:       data.Width,
		Height:      data.Height,
		Layers:      1,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		Usage:       gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		SampleCount: 1,
	})
	if err != nil {
		return nil, r.check(fmt.Errorf("renderer: texture %q: %w", label, err))
	}
	if err := r.backend.WriteTexture(tex, 0, data.Pixels, data.Width, data.Height); err != nil {
		tex.Destroy()
		return nil, r.check(fmt.Errorf("renderer: texture %q: %w", label, err))
	}
	r.arena.Add(tex)
	return tex, nil
}

func (r *renderContext) LoadTexture(path string) resource.Resource {
	data, err := DecodeTexture(path)
	if err != nil {
		common.Logger().Warn("texture load failed, using fallback", "path", path, "err", err)
		return r.magenta
	}
	tex, err := r.CreateTexture(path, data)
	if err != nil {
		common.Logger().Warn("texture upload failed, using fallback", "path", path, "err", err)
		return r.magenta
	}
	common.Logger().Debug("texture loaded", "path", path, "width", data.Width, "height", data.Height)
	return tex
}

// DecodeTexture reads a PNG, JPEG, BMP, TIFF or WebP file into RGBA8 pixels. Images with an edge above
// MaxTextureSize are scaled down keeping their aspect ratio.
//
// Parameters:
//   - path: the image file
//
// Returns:
//   - common.TextureStagingData: the decoded pixels
//   - error: open or decode error
func DecodeTexture(path string) (common.TextureStagingData, error) {
	f, err := os.Open(path)
	if err != nil {
		return common.TextureStagingData{}, err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("decode %s: %w", path, err)
	}
	rgba := ToRGBA(src)
	common.Logger().Debug("texture decoded", "path", path, "format", format)
	return common.TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(rgba.Bounds().Dx()),
		Height: uint32(rgba.Bounds().Dy()),
	}, nil
}

// ToRGBA converts an image to tightly packed RGBA8, downscaling it when an edge exceeds MaxTextureSize.
func ToRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > MaxTextureSize || h > MaxTextureSize {
		scale := float64(MaxTextureSize) / float64(max(w, h))
		w, h = max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		return dst
	}
	if rgba, ok := src.(*image.RGBA); ok && rgba.Stride == w*4 && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
