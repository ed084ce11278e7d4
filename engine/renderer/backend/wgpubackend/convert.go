package wgpubackend

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

// The cogentcore bindings follow an older webgpu.h numbering than gputypes, so every enum crosses
// the boundary through an explicit table.

var textureFormats = map[gputypes.TextureFormat]wgpu.TextureFormat{
	gputypes.TextureFormatR8Unorm:             wgpu.TextureFormatR8Unorm,
	gputypes.TextureFormatR32Float:            wgpu.TextureFormatR32Float,
	gputypes.TextureFormatR32Uint:             wgpu.TextureFormatR32Uint,
	gputypes.TextureFormatRG16Float:           wgpu.TextureFormatRG16Float,
	gputypes.TextureFormatRGBA8Unorm:          wgpu.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:      wgpu.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatBGRA8Unorm:          wgpu.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:      wgpu.TextureFormatBGRA8UnormSrgb,
	gputypes.TextureFormatRGBA16Float:         wgpu.TextureFormatRGBA16Float,
	gputypes.TextureFormatRGBA32Float:         wgpu.TextureFormatRGBA32Float,
	gputypes.TextureFormatDepth16Unorm:        wgpu.TextureFormatDepth16Unorm,
	gputypes.TextureFormatDepth24Plus:         wgpu.TextureFormatDepth24Plus,
	gputypes.TextureFormatDepth24PlusStencil8: wgpu.TextureFormatDepth24PlusStencil8,
	gputypes.TextureFormatDepth32Float:        wgpu.TextureFormatDepth32Float,
}

func textureFormat(f gputypes.TextureFormat) wgpu.TextureFormat {
	if v, ok := textureFormats[f]; ok {
		return v
	}
	return wgpu.TextureFormatUndefined
}

func fromTextureFormat(f wgpu.TextureFormat) gputypes.TextureFormat {
	for k, v := range textureFormats {
		if v == f {
			return k
		}
	}
	return gputypes.TextureFormatUndefined
}

func bufferUsage(u gputypes.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	for _, m := range []struct {
		from gputypes.BufferUsage
		to   wgpu.BufferUsage
	}{
		{gputypes.BufferUsageMapRead, wgpu.BufferUsageMapRead},
		{gputypes.BufferUsageMapWrite, wgpu.BufferUsageMapWrite},
		{gputypes.BufferUsageCopySrc, wgpu.BufferUsageCopySrc},
		{gputypes.BufferUsageCopyDst, wgpu.BufferUsageCopyDst},
		{gputypes.BufferUsageIndex, wgpu.BufferUsageIndex},
		{gputypes.BufferUsageVertex, wgpu.BufferUsageVertex},
		{gputypes.BufferUsageUniform, wgpu.BufferUsageUniform},
		{gputypes.BufferUsageStorage, wgpu.BufferUsageStorage},
	} {
		if u&m.from != 0 {
			out |= m.to
		}
	}
	return out
}

func textureUsage(u gputypes.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	for _, m := range []struct {
		from gputypes.TextureUsage
		to   wgpu.TextureUsage
	}{
		{gputypes.TextureUsageCopySrc, wgpu.TextureUsageCopySrc},
		{gputypes.TextureUsageCopyDst, wgpu.TextureUsageCopyDst},
		{gputypes.TextureUsageTextureBinding, wgpu.TextureUsageTextureBinding},
		{gputypes.TextureUsageStorageBinding, wgpu.TextureUsageStorageBinding},
		{gputypes.TextureUsageRenderAttachment, wgpu.TextureUsageRenderAttachment},
	} {
		if u&m.from != 0 {
			out |= m.to
		}
	}
	return out
}

func shaderStages(s gputypes.ShaderStages) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if s&gputypes.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gputypes.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&gputypes.ShaderStageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func viewDimension(d gputypes.TextureViewDimension) wgpu.TextureViewDimension {
	switch d {
	case gputypes.TextureViewDimension2DArray:
		return wgpu.TextureViewDimension2DArray
	case gputypes.TextureViewDimensionCube:
		return wgpu.TextureViewDimensionCube
	default:
		return wgpu.TextureViewDimension2D
	}
}

func compareFunction(c gputypes.CompareFunction) wgpu.CompareFunction {
	switch c {
	case gputypes.CompareFunctionNever:
		return wgpu.CompareFunctionNever
	case gputypes.CompareFunctionLess:
		return wgpu.CompareFunctionLess
	case gputypes.CompareFunctionEqual:
		return wgpu.CompareFunctionEqual
	case gputypes.CompareFunctionLessEqual:
		return wgpu.CompareFunctionLessEqual
	case gputypes.CompareFunctionGreater:
		return wgpu.CompareFunctionGreater
	case gputypes.CompareFunctionNotEqual:
		return wgpu.CompareFunctionNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	default:
		return wgpu.CompareFunctionAlways
	}
}

func blendFactor(f gputypes.BlendFactor) wgpu.BlendFactor {
	switch f {
	case gputypes.BlendFactorOne:
		return wgpu.BlendFactorOne
	case gputypes.BlendFactorSrcAlpha:
		return wgpu.BlendFactorSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha
	case gputypes.BlendFactorDstAlpha:
		return wgpu.BlendFactorDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return wgpu.BlendFactorOneMinusDstAlpha
	default:
		return wgpu.BlendFactorZero
	}
}

func blendComponent(c gputypes.BlendComponent) wgpu.BlendComponent {
	op := wgpu.BlendOperationAdd
	switch c.Operation {
	case gputypes.BlendOperationSubtract:
		op = wgpu.BlendOperationSubtract
	case gputypes.BlendOperationReverseSubtract:
		op = wgpu.BlendOperationReverseSubtract
	case gputypes.BlendOperationMin:
		op = wgpu.BlendOperationMin
	case gputypes.BlendOperationMax:
		op = wgpu.BlendOperationMax
	}
	return wgpu.BlendComponent{SrcFactor: blendFactor(c.SrcFactor), DstFactor: blendFactor(c.DstFactor), Operation: op}
}

func colorTarget(t gputypes.ColorTargetState) wgpu.ColorTargetState {
	out := wgpu.ColorTargetState{
		Format:    textureFormat(t.Format),
		WriteMask: wgpu.ColorWriteMask(t.WriteMask),
	}
	if t.Blend != nil {
		out.Blend = &wgpu.BlendState{Color: blendComponent(t.Blend.Color), Alpha: blendComponent(t.Blend.Alpha)}
	}
	return out
}

func primitive(p gputypes.PrimitiveState) wgpu.PrimitiveState {
	out := wgpu.PrimitiveState{
		Topology:  wgpu.PrimitiveTopologyTriangleList,
		FrontFace: wgpu.FrontFaceCCW,
		CullMode:  wgpu.CullModeNone,
	}
	if p.Topology == gputypes.PrimitiveTopologyLineList {
		out.Topology = wgpu.PrimitiveTopologyLineList
	}
	if p.FrontFace == gputypes.FrontFaceCW {
		out.FrontFace = wgpu.FrontFaceCW
	}
	switch p.CullMode {
	case gputypes.CullModeBack:
		out.CullMode = wgpu.CullModeBack
	case gputypes.CullModeFront:
		out.CullMode = wgpu.CullModeFront
	}
	return out
}

func depthStencil(ds *gputypes.DepthStencilState) *wgpu.DepthStencilState {
	if ds == nil {
		return nil
	}
	return &wgpu.DepthStencilState{
		Format:              textureFormat(ds.Format),
		DepthWriteEnabled:   ds.DepthWriteEnabled,
		DepthCompare:        compareFunction(ds.DepthCompare),
		DepthBias:           ds.DepthBias,
		DepthBiasSlopeScale: ds.DepthBiasSlopeScale,
		DepthBiasClamp:      ds.DepthBiasClamp,
		StencilFront:        wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		StencilBack:         wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
	}
}

func vertexFormat(f gputypes.VertexFormat) wgpu.VertexFormat {
	switch f {
	case gputypes.VertexFormatFloat32:
		return wgpu.VertexFormatFloat32
	case gputypes.VertexFormatFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case gputypes.VertexFormatFloat32x3:
		return wgpu.VertexFormatFloat32x3
	default:
		return wgpu.VertexFormatFloat32x4
	}
}

func vertexBuffers(layouts []gputypes.VertexBufferLayout) []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, len(layouts))
	for i, l := range layouts {
		attrs := make([]wgpu.VertexAttribute, len(l.Attributes))
		for j, a := range l.Attributes {
			attrs[j] = wgpu.VertexAttribute{Format: vertexFormat(a.Format), Offset: a.Offset, ShaderLocation: a.ShaderLocation}
		}
		out[i] = wgpu.VertexBufferLayout{ArrayStride: l.ArrayStride, StepMode: wgpu.VertexStepModeVertex, Attributes: attrs}
	}
	return out
}

func layoutEntries(entries []gputypes.BindGroupLayoutEntry) []wgpu.BindGroupLayoutEntry {
	out := make([]wgpu.BindGroupLayoutEntry, len(entries))
	for i, e := range entries {
		entry := wgpu.BindGroupLayoutEntry{Binding: e.Binding, Visibility: shaderStages(e.Visibility)}
		switch {
		case e.Buffer != nil:
			switch e.Buffer.Type {
			case gputypes.BufferBindingTypeUniform:
				entry.Buffer.Type = wgpu.BufferBindingTypeUniform
			case gputypes.BufferBindingTypeStorage:
				entry.Buffer.Type = wgpu.BufferBindingTypeStorage
			default:
				entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
			}
		case e.Sampler != nil:
			entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		case e.Texture != nil:
			entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
			if e.Texture.SampleType == gputypes.TextureSampleTypeDepth {
				entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
			}
			entry.Texture.ViewDimension = viewDimension(e.Texture.ViewDimension)
		case e.StorageTexture != nil:
			entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
			entry.StorageTexture.Format = textureFormat(e.StorageTexture.Format)
			entry.StorageTexture.ViewDimension = viewDimension(e.StorageTexture.ViewDimension)
		}
		out[i] = entry
	}
	return out
}

func addressMode(m gputypes.AddressMode) wgpu.AddressMode {
	switch m {
	case gputypes.AddressModeClampToEdge:
		return wgpu.AddressModeClampToEdge
	case gputypes.AddressModeMirrorRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeRepeat
	}
}

func loadOp(op gputypes.LoadOp) wgpu.LoadOp {
	if op == gputypes.LoadOpLoad {
		return wgpu.LoadOpLoad
	}
	return wgpu.LoadOpClear
}

func indexFormat(f gputypes.IndexFormat) wgpu.IndexFormat {
	if f == gputypes.IndexFormatUint16 {
		return wgpu.IndexFormatUint16
	}
	return wgpu.IndexFormatUint32
}
