package renderer

import (
	_ "embed"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
)

//go:embed assets/forward_plus.wgsl
var forwardPlusBody string

//go:embed assets/depth_normals.wgsl
var depthNormalsBody string

//go:embed assets/unlit.wgsl
var unlitBody string

// Built-in WGSL render shaders, all using the DrawUniforms block and the draw binding indices.
var (
	// ForwardPlusSource shades VertexLayoutPTN meshes with the lights of each fragment's tile.
	ForwardPlusSource = shader.UniformsSource + forwardPlusBody

	// DepthNormalsSource writes view-space normals and linear depth for a DepthNormalsTarget.
	DepthNormalsSource = shader.UniformsSource + depthNormalsBody

	// UnlitSource draws VertexLayoutPTC meshes with texture, vertex color and tint.
	UnlitSource = shader.UniformsSource + unlitBody
)
