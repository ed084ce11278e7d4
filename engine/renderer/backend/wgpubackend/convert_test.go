package wgpubackend

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

func TestTextureFormatRoundTrip(t *testing.T) {
	for in := range textureFormats {
		if got := fromTextureFormat(textureFormat(in)); got != in {
			t.Errorf("round trip of %v = %v", in, got)
		}
	}
	if got := textureFormat(gputypes.TextureFormatUndefined); got != wgpu.TextureFormatUndefined {
		t.Errorf("undefined format maps to %v", got)
	}
}

func TestBufferUsage(t *testing.T) {
	tests := []struct {
		name string
		in   gputypes.BufferUsage
		want wgpu.BufferUsage
	}{
		{"none", gputypes.BufferUsageNone, 0},
		{"vertex", gputypes.BufferUsageVertex, wgpu.BufferUsageVertex},
		{"storage copy", gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst, wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst},
		{"map read", gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst, wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bufferUsage(tt.in); got != tt.want {
				t.Errorf("bufferUsage(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompareFunction(t *testing.T) {
	tests := []struct {
		in   gputypes.CompareFunction
		want wgpu.CompareFunction
	}{
		{gputypes.CompareFunctionLess, wgpu.CompareFunctionLess},
		{gputypes.CompareFunctionLessEqual, wgpu.CompareFunctionLessEqual},
		{gputypes.CompareFunctionAlways, wgpu.CompareFunctionAlways},
	}
	for _, tt := range tests {
		if got := compareFunction(tt.in); got != tt.want {
			t.Errorf("compareFunction(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadOp(t *testing.T) {
	if loadOp(gputypes.LoadOpLoad) != wgpu.LoadOpLoad {
		t.Error("load maps to clear")
	}
	if loadOp(gputypes.LoadOpClear) != wgpu.LoadOpClear {
		t.Error("clear maps to load")
	}
}
