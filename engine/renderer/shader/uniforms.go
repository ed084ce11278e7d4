package shader

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
)

// UniformsSize is the packed size of the per-draw uniform block in bytes.
const UniformsSize = 160

// UniformsSource is the WGSL declaration of the per-draw uniform block bound at @group(0) @binding(0).
// Render shaders that use the block prepend this source.
//
//go:embed assets/uniforms.wgsl
var UniformsSource string

// Uniforms is the per-draw uniform block. Matches the WGSL DrawUniforms struct (see UniformsSource).
type Uniforms struct {
	MVP       common.Mat4 // offset   0
	ModelView common.Mat4 // offset  64
	Tint      [4]float32  // offset 128
	// Light culling state, filled by the renderer from the last CullLights call.
	TileCountX       uint32 // offset 144
	LightCounts      uint32 // offset 148: packed (spot << 16) | point
	MaxLightsPerTile uint32 // offset 152
	WindowHeight     uint32 // offset 156

	// Texture is sampled by shaders that declare a texture binding. It is not part of the GPU block;
	// nil binds the renderer's white texture.
	Texture resource.Resource
}

// NewUniforms creates a uniform block with identity matrices and a white tint.
//
// Returns:
//   - *Uniforms: the uniform block
func NewUniforms() *Uniforms {
	return &Uniforms{
		MVP:       common.Identity(),
		ModelView: common.Identity(),
		Tint:      [4]float32{1, 1, 1, 1},
	}
}

// Size returns the size of the uniform block in bytes.
//
// Returns:
//   - int: the block size in bytes (160)
func (u *Uniforms) Size() int {
	return UniformsSize
}

// Marshal serializes the uniform block for GPU upload.
//
// Returns:
//   - []byte: 160-byte buffer ready for GPU upload
func (u *Uniforms) Marshal() []byte {
	buf := make([]byte, UniformsSize)
	off := 0
	putF := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	putU := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
		off += 4
	}
	for _, v := range u.MVP {
		putF(v)
	}
	for _, v := range u.ModelView {
		putF(v)
	}
	for _, v := range u.Tint {
		putF(v)
	}
	putU(u.TileCountX)
	putU(u.LightCounts)
	putU(u.MaxLightsPerTile)
	putU(u.WindowHeight)
	return buf
}
