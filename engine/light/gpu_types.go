package light

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/bioglaze/aether3d-sub000/common"
)

//go:embed assets/light_cull.wgsl
var lightCullSource string

// GPUPointLightSize is the std430 size of one GPUPointLight record.
const GPUPointLightSize = 32

// GPUSpotLightSize is the std430 size of one GPUSpotLight record.
const GPUSpotLightSize = 48

// GPUCullUniformsSize is the size of the culling uniform block.
const GPUCullUniformsSize = 160

// GPUPointLight is one point light record. Matches the WGSL PointLight struct in light_cull.wgsl.
type GPUPointLight struct {
	Center [3]float32 // offset  0
	Radius float32    // offset 12
	Color  [3]float32 // offset 16
	_      float32    // offset 28
}

// GPUSpotLight is one spot light record. Matches the WGSL SpotLight struct in light_cull.wgsl.
type GPUSpotLight struct {
	Center          [3]float32 // offset  0
	Radius          float32    // offset 12
	Color           [3]float32 // offset 16
	ConeAngleCosine float32    // offset 28
	Axis            [3]float32 // offset 32
	_               float32    // offset 44
}

// GPUCullUniforms is the uniform block read by the culling pass.
type GPUCullUniforms struct {
	InvProjection    common.Mat4 // offset   0
	View             common.Mat4 // offset  64
	TileCountX       uint32      // offset 128
	TileCountY       uint32      // offset 132
	WindowWidth      uint32      // offset 136
	WindowHeight     uint32      // offset 140
	LightCounts      uint32      // offset 144: packed, see PackLightCounts
	MaxLightsPerTile uint32      // offset 148
	Near             float32     // offset 152
	Far              float32     // offset 156
}

// Marshal serializes the uniform block for GPU upload.
//
// Returns:
//   - []byte: a 160-byte buffer ready for GPU upload
func (u *GPUCullUniforms) Marshal() []byte {
	buf := make([]byte, GPUCullUniformsSize)
	off := 0
	putF := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	putU := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
		off += 4
	}
	for _, v := range u.InvProjection {
		putF(v)
	}
	for _, v := range u.View {
		putF(v)
	}
	putU(u.TileCountX)
	putU(u.TileCountY)
	putU(u.WindowWidth)
	putU(u.WindowHeight)
	putU(u.LightCounts)
	putU(u.MaxLightsPerTile)
	putF(u.Near)
	putF(u.Far)
	return buf
}

// LightInfo is the light culling state every shaded draw needs to walk its tile's index list.
type LightInfo struct {
	TileCountX       uint32
	LightCounts      uint32
	MaxLightsPerTile uint32
}
