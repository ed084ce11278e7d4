package renderer

import (
	"fmt"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/gogpu/gputypes"
)

// DepthNormalsFormat is the color format of depth/normal prepass targets: view-space normal in xyz and
// linear view depth in w.
const DepthNormalsFormat = gputypes.TextureFormatRGBA16Float

// RenderTargetDescriptor describes an offscreen render target.
type RenderTargetDescriptor struct {
	Label         string
	Width, Height int
	// Format is the color format, RGBA8Unorm when undefined.
	Format gputypes.TextureFormat
	// Cube creates six square faces selected with SetRenderTarget's face argument.
	Cube bool
	// Layers is the array layer count of non-cube targets, 1 when unset.
	Layers int
}

// DepthNormalsTarget describes a depth/normal prepass target of the given size.
//
// Parameters:
//   - width, height: the target size, normally the back buffer size
//
// Returns:
//   - RenderTargetDescriptor: the descriptor
func DepthNormalsTarget(width, height int) RenderTargetDescriptor {
	return RenderTargetDescriptor{Label: "depth normals", Width: width, Height: height, Format: DepthNormalsFormat}
}

// renderTarget is the implementation of the RenderTarget interface.
type renderTarget struct {
	desc   RenderTargetDescriptor
	arena  resource.Arena
	color  resource.Handle
	depth  resource.Handle
	layers int
}

// RenderTarget is an offscreen color texture with a Depth32Float attachment. The color texture can be
// sampled after rendering. Cube and array targets share one depth layer between their faces.
type RenderTarget interface {
	// Label returns the debug label.
	Label() string

	// Color returns the color texture.
	Color() resource.Resource

	// Depth returns the depth texture.
	Depth() resource.Resource

	// Size returns the size in pixels.
	Size() (width, height int)

	// Format returns the color format.
	Format() gputypes.TextureFormat

	// Layers returns the number of faces or array layers.
	Layers() int

	// Cube reports whether the target is a cube map.
	Cube() bool

	// Destroy releases both textures.
	Destroy()

	// Destroyed reports whether Destroy has been called.
	Destroyed() bool
}

var _ RenderTarget = &renderTarget{}

func (r *renderContext) CreateRenderTarget(desc RenderTargetDescriptor) (RenderTarget, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("renderer: render target %q: invalid size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if !common.Assert(!backend.IsDepthFormat(desc.Format), "renderer: render target color format is a depth format", "format", desc.Format) {
		desc.Format = gputypes.TextureFormatRGBA8Unorm
	}
	layers := max(desc.Layers, 1)
	if desc.Cube {
		if !common.Assert(desc.Width == desc.Height, "renderer: cube render target faces must be square", "width", desc.Width, "height", desc.Height) {
			desc.Height = desc.Width
		}
		layers = 6
	}
	if desc.Label == "" {
		desc.Label = "render target"
	}

	color, err := r.backend.CreateTexture(backend.TextureDescriptor{
		Label:       desc.Label + " color",
		Width:       uint32(desc.Width),
		Height:      uint32(desc.Height),
		Layers:      uint32(layers),
		Format:      desc.Format,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc,
		SampleCount: 1,
		Cube:        desc.Cube,
	})
	if err != nil {
		return nil, r.check(fmt.Errorf("renderer: render target %q: %w", desc.Label, err))
	}
	depth, err := r.backend.CreateTexture(backend.TextureDescriptor{
		Label:       desc.Label + " depth",
		Width:       uint32(desc.Width),
		Height:      uint32(desc.Height),
		Layers:      1,
		Format:      gputypes.TextureFormatDepth32Float,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		SampleCount: 1,
	})
	if err != nil {
		color.Destroy()
		return nil, r.check(fmt.Errorf("renderer: render target %q depth: %w", desc.Label, err))
	}

	return &renderTarget{
		desc:   desc,
		arena:  r.arena,
		color:  r.arena.Add(color),
		depth:  r.arena.Add(depth),
		layers: layers,
	}, nil
}

func (t *renderTarget) Label() string {
	return t.desc.Label
}

func (t *renderTarget) Color() resource.Resource {
	res, _ := t.arena.Get(t.color)
	return res
}

func (t *renderTarget) Depth() resource.Resource {
	res, _ := t.arena.Get(t.depth)
	return res
}

func (t *renderTarget) Size() (int, int) {
	return t.desc.Width, t.desc.Height
}

func (t *renderTarget) Format() gputypes.TextureFormat {
	return t.desc.Format
}

func (t *renderTarget) Layers() int {
	return t.layers
}

func (t *renderTarget) Cube() bool {
	return t.desc.Cube
}

func (t *renderTarget) Destroy() {
	t.arena.Destroy(t.color)
	t.arena.Destroy(t.depth)
}

func (t *renderTarget) Destroyed() bool {
	_, ok := t.arena.Get(t.color)
	return !ok
}
