package backend

import (
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/gogpu/gputypes"
)

// BufferUsageFor maps a tracked state to the buffer usage the GPU API transitions between.
//
// Parameters:
//   - s: the tracked state
//
// Returns:
//   - gputypes.BufferUsage: the usage, BufferUsageNone for StateUndefined
func BufferUsageFor(s resource.State) gputypes.BufferUsage {
	switch s {
	case resource.StateCopySrc:
		return gputypes.BufferUsageCopySrc
	case resource.StateCopyDst:
		return gputypes.BufferUsageCopyDst
	case resource.StateVertexBuffer:
		return gputypes.BufferUsageVertex
	case resource.StateIndexBuffer:
		return gputypes.BufferUsageIndex
	case resource.StateUniform:
		return gputypes.BufferUsageUniform
	case resource.StateShaderRead, resource.StateUnorderedAccess:
		return gputypes.BufferUsageStorage
	default:
		return gputypes.BufferUsageNone
	}
}

// TextureUsageFor maps a tracked state to the texture usage the GPU API transitions between.
// StatePresent maps to TextureUsageNone: the render pass leaves swapchain images in the present layout.
//
// Parameters:
//   - s: the tracked state
//
// Returns:
//   - gputypes.TextureUsage: the usage
func TextureUsageFor(s resource.State) gputypes.TextureUsage {
	switch s {
	case resource.StateCopySrc:
		return gputypes.TextureUsageCopySrc
	case resource.StateCopyDst:
		return gputypes.TextureUsageCopyDst
	case resource.StateShaderRead, resource.StateDepthRead:
		return gputypes.TextureUsageTextureBinding
	case resource.StateUnorderedAccess:
		return gputypes.TextureUsageStorageBinding
	case resource.StateRenderTarget, resource.StateDepthWrite:
		return gputypes.TextureUsageRenderAttachment
	default:
		return gputypes.TextureUsageNone
	}
}

// IsDepthFormat reports whether format is a depth format.
func IsDepthFormat(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}
