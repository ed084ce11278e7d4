// Package pipeline resolves structural pipeline keys to backend pipeline objects, building each distinct
// key exactly once.
package pipeline

import (
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	key          Key
	shader       shader.Shader
	// native is the backend pipeline object, set once by the cache build func.
	native any

	depthFormat gputypes.TextureFormat
	frontFace   gputypes.FrontFace
	writeMask   gputypes.ColorWriteMask
	depthBias   int32
	slopeScale  float32
}

// Pipeline defines the interface for a cached GPU pipeline. All fixed-function state is derived from the
// pipeline Key, so two pipelines with equal keys are interchangeable.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// Key returns the structural key this pipeline was built for.
	//
	// Returns:
	//   - Key: the pipeline key
	Key() Key

	// Shader returns the shader the pipeline was built from.
	//
	// Returns:
	//   - shader.Shader: the shader
	Shader() shader.Shader

	// Native returns the backend pipeline object. The caller type asserts it to the backend's type.
	//
	// Returns:
	//   - any: the backend pipeline object, nil before the pipeline is built
	Native() any

	// VertexBuffers returns the vertex buffer layouts of a render pipeline.
	//
	// Returns:
	//   - []gputypes.VertexBufferLayout: one layout derived from the key's vertex layout
	VertexBuffers() []gputypes.VertexBufferLayout

	// Primitive returns the primitive assembly state. Wireframe fill maps to a line list topology.
	//
	// Returns:
	//   - gputypes.PrimitiveState: the primitive state
	Primitive() gputypes.PrimitiveState

	// DepthStencil returns the depth state, or nil when the pipeline has no depth attachment.
	//
	// Returns:
	//   - *gputypes.DepthStencilState: the depth state
	DepthStencil() *gputypes.DepthStencilState

	// ColorTarget returns the single color target state, including the blend equation.
	//
	// Returns:
	//   - gputypes.ColorTargetState: the color target
	ColorTarget() gputypes.ColorTargetState

	// Multisample returns the multisample state.
	//
	// Returns:
	//   - gputypes.MultisampleState: the multisample state
	Multisample() gputypes.MultisampleState
}

var _ Pipeline = &pipeline{}

// NewPipeline creates an unbuilt Pipeline for the key. The cache assigns the native object after the build
// func succeeds.
//
// Parameters:
//   - key: the structural key
//   - s: the shader referenced by key.Shader
//   - options: functional options
//
// Returns:
//   - Pipeline: the pipeline
func NewPipeline(key Key, s shader.Shader, options ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineType: PipelineTypeRender,
		key:          key,
		shader:       s,
		depthFormat:  gputypes.TextureFormatDepth32Float,
		frontFace:    gputypes.FrontFaceCCW,
		writeMask:    gputypes.ColorWriteMaskAll,
	}
	if s != nil && s.Type() == shader.ShaderTypeCompute {
		p.pipelineType = PipelineTypeCompute
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) Key() Key {
	return p.key
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) Native() any {
	return p.native
}

func (p *pipeline) VertexBuffers() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{p.key.VertexLayout.BufferLayout()}
}

func (p *pipeline) Primitive() gputypes.PrimitiveState {
	state := gputypes.PrimitiveState{
		Topology:  gputypes.PrimitiveTopologyTriangleList,
		FrontFace: p.frontFace,
	}
	if p.key.Topology == TopologyLines || p.key.Fill == FillWireframe {
		state.Topology = gputypes.PrimitiveTopologyLineList
	}
	// Culling has no meaning for lines.
	if state.Topology == gputypes.PrimitiveTopologyTriangleList {
		switch p.key.Cull {
		case CullBack:
			state.CullMode = gputypes.CullModeBack
		case CullFront:
			state.CullMode = gputypes.CullModeFront
		default:
			state.CullMode = gputypes.CullModeNone
		}
	}
	return state
}

func (p *pipeline) DepthStencil() *gputypes.DepthStencilState {
	if p.depthFormat == gputypes.TextureFormatUndefined {
		return nil
	}
	state := gputypes.DefaultDepthStencilState(p.depthFormat)
	state.DepthBias = p.depthBias
	state.DepthBiasSlopeScale = p.slopeScale
	switch p.key.Depth {
	case DepthLessOrEqualWriteOn:
		state.DepthCompare = gputypes.CompareFunctionLessEqual
		state.DepthWriteEnabled = true
	case DepthLessOrEqualWriteOff:
		state.DepthCompare = gputypes.CompareFunctionLessEqual
		state.DepthWriteEnabled = false
	default:
		state.DepthCompare = gputypes.CompareFunctionAlways
		state.DepthWriteEnabled = false
	}
	return &state
}

func (p *pipeline) ColorTarget() gputypes.ColorTargetState {
	target := gputypes.ColorTargetState{
		Format:    p.key.TargetFormat,
		WriteMask: p.writeMask,
	}
	switch p.key.Blend {
	case BlendAlpha:
		blend := gputypes.BlendStateAlpha()
		target.Blend = &blend
	case BlendAdditive:
		add := gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		}
		target.Blend = &gputypes.BlendState{Color: add, Alpha: add}
	}
	return target
}

func (p *pipeline) Multisample() gputypes.MultisampleState {
	state := gputypes.DefaultMultisampleState()
	if p.key.SampleCount > 1 {
		state.Count = p.key.SampleCount
	}
	return state
}
