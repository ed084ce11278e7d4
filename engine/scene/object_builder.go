package scene

import (
	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
)

// ObjectBuilderOption is a functional option for configuring an Object.
type ObjectBuilderOption func(o *objectImpl)

// WithTransform sets the initial position, Euler rotation in radians and scale.
//
// Parameters:
//   - position, rotation, scale: the transform components
//
// Returns:
//   - ObjectBuilderOption: option function to apply
func WithTransform(position, rotation, scale common.Vec3) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.position, o.rotation, o.scale = position, rotation, scale
	}
}

// WithTexture sets the texture sampled by the shaded pass.
func WithTexture(tex resource.Resource) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.texture = tex
	}
}

// WithTint sets the tint color.
func WithTint(r, g, b, a float32) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.tint = [4]float32{r, g, b, a}
	}
}

// WithBoundingRadius sets the local-space bounding sphere radius around the mesh origin.
//
// Parameters:
//   - radius: the radius before scaling
//
// Returns:
//   - ObjectBuilderOption: option function to apply
func WithBoundingRadius(radius float32) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.bounds = radius
	}
}

// WithFaces limits draws to a range of faces of the mesh.
func WithFaces(faces renderer.FaceRange) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.faces = faces
	}
}

// WithBlend sets the blend mode. Blended objects skip the depth/normal prepass, are drawn after opaque
// objects sorted back to front, and do not write depth unless WithDepth says otherwise.
//
// Parameters:
//   - blend: the blend mode
//
// Returns:
//   - ObjectBuilderOption: option function to apply
func WithBlend(blend pipeline.BlendMode) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.blend = blend
		if blend != pipeline.BlendOff && o.depth == pipeline.DepthLessOrEqualWriteOn {
			o.depth = pipeline.DepthLessOrEqualWriteOff
		}
	}
}

// WithDepth sets the depth test and write mode.
func WithDepth(depth pipeline.DepthMode) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.depth = depth
	}
}

// WithCull sets the face culling mode.
func WithCull(cull pipeline.CullMode) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.cull = cull
	}
}

// WithFill sets solid or wireframe fill.
func WithFill(fill pipeline.FillMode) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.fill = fill
	}
}

// WithTopology sets the primitive topology.
func WithTopology(topology pipeline.Topology) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.topology = topology
	}
}

// WithVisible sets the initial visibility.
func WithVisible(visible bool) ObjectBuilderOption {
	return func(o *objectImpl) {
		o.visible = visible
	}
}
