package backend

import (
	"fmt"
	"strings"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

// Visibility returns the shader stages that see the bindings of a shader type.
func Visibility(shaderType shader.ShaderType) gputypes.ShaderStages {
	if shaderType == shader.ShaderTypeCompute {
		return gputypes.ShaderStageCompute
	}
	return gputypes.ShaderStagesVertexFragment
}

// LayoutEntries builds the bind group layout entries for one group of bindings.
//
// Parameters:
//   - shaderType: selects the visibility
//   - bindings: the bindings of one group
//
// Returns:
//   - []gputypes.BindGroupLayoutEntry: one entry per binding
func LayoutEntries(shaderType shader.ShaderType, bindings []shader.Binding) []gputypes.BindGroupLayoutEntry {
	visibility := Visibility(shaderType)
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(bindings))
	for _, b := range bindings {
		entry := gputypes.BindGroupLayoutEntry{Binding: b.Binding, Visibility: visibility}
		viewDim := gputypes.TextureViewDimension2D
		if b.Cube {
			viewDim = gputypes.TextureViewDimensionCube
		}
		switch b.Kind {
		case shader.BindingUniformBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case shader.BindingReadBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case shader.BindingStorageBuffer:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case shader.BindingSampler:
			entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		case shader.BindingTexture:
			entry.Texture = &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeFloat, ViewDimension: viewDim}
		case shader.BindingDepthTexture:
			entry.Texture = &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeDepth, ViewDimension: viewDim}
		case shader.BindingStorageTexture:
			entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// LayoutKey returns a string identifying the layout of one group of bindings. Groups with equal keys
// share one bind group layout, which keeps bind groups compatible across pipelines.
func LayoutKey(shaderType shader.ShaderType, bindings []shader.Binding) string {
	var sb strings.Builder
	sb.WriteString(shaderType.String())
	for _, b := range bindings {
		fmt.Fprintf(&sb, "|%d:%s", b.Binding, b.Kind)
		if b.Cube {
			sb.WriteString(":cube")
		}
	}
	return sb.String()
}

// GroupCount returns one past the highest group index used by bindings.
func GroupCount(bindings []shader.Binding) int {
	n := 0
	for _, b := range bindings {
		n = max(n, int(b.Group)+1)
	}
	return n
}
