package backend

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

const fillCompute = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x;
}
`

func openNoop(t *testing.T) RendererBackend {
	t.Helper()
	b, err := Open(BackendTypeNoop, Config{Width: 64, Height: 32})
	if err != nil {
		t.Fatalf("Open(noop): %v", err)
	}
	t.Cleanup(b.Destroy)
	return b
}

func TestOpenNoop(t *testing.T) {
	b := openNoop(t)

	caps := b.Capabilities()
	if caps.Type != BackendTypeNoop || !caps.Headless || !caps.ExplicitBarriers || caps.ExecutesCompute || caps.BlockingCompute {
		t.Errorf("capabilities = %+v", caps)
	}
	if w, h := b.BackBufferSize(); w != 64 || h != 32 {
		t.Errorf("back buffer = %dx%d, want 64x32", w, h)
	}
	if b.SurfaceFormat() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("surface format = %v, want RGBA8Unorm", b.SurfaceFormat())
	}
	if b.AdapterInfo().Name == "" {
		t.Error("adapter name is empty")
	}
}

func TestOpenAutoFallsBackToNoop(t *testing.T) {
	// No GPU backend package is linked into this test binary, so only noop can open.
	b, err := Open(BackendTypeAuto, Config{Width: 8, Height: 8})
	if err != nil {
		t.Fatalf("Open(auto): %v", err)
	}
	defer b.Destroy()
	if b.Capabilities().Type != BackendTypeNoop {
		t.Errorf("auto picked %v, want noop", b.Capabilities().Type)
	}
}

func TestOpenUnregistered(t *testing.T) {
	_, err := Open(BackendTypeWGPU, Config{})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Open(wgpu) error = %v, want ErrBackendUnavailable", err)
	}
}

func TestBufferRoundTrip(t *testing.T) {
	b := openNoop(t)

	tests := []struct {
		name        string
		size        uint64
		offset      uint64
		data        []byte
		hostVisible bool
	}{
		{"aligned", 16, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}, false},
		{"unaligned length", 16, 4, []byte{9, 8, 7, 6, 5, 4}, false},
		{"unaligned size", 7, 0, []byte{1, 2, 3, 4, 5, 6, 7}, false},
		{"host visible", 16, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8}, true},
		{"host visible unaligned", 7, 0, []byte{7, 6, 5, 4, 3, 2, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := b.CreateBuffer(BufferDescriptor{Label: tt.name, Size: tt.size, Usage: gputypes.BufferUsageStorage, HostVisible: tt.hostVisible})
			if err != nil {
				t.Fatalf("CreateBuffer: %v", err)
			}
			defer buf.Destroy()

			if err := b.WriteBuffer(buf, tt.offset, tt.data); err != nil {
				t.Fatalf("WriteBuffer: %v", err)
			}
			got, err := b.ReadBuffer(context.Background(), buf, tt.offset, uint64(len(tt.data)))
			if err != nil {
				t.Fatalf("ReadBuffer: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("read %v, want %v", got, tt.data)
			}
		})
	}
}

func TestHostVisibleBufferIsMapped(t *testing.T) {
	b := openNoop(t)

	tests := []struct {
		name        string
		hostVisible bool
	}{
		{"device local", false},
		{"host visible", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := b.CreateBuffer(BufferDescriptor{Label: tt.name, Size: 64, Usage: gputypes.BufferUsageUniform, HostVisible: tt.hostVisible})
			if err != nil {
				t.Fatalf("CreateBuffer: %v", err)
			}
			defer buf.Destroy()

			hb, ok := buf.Native().(*halBuffer)
			if !ok {
				t.Fatalf("native = %T, want *halBuffer", buf.Native())
			}
			if hb.hostVisible != tt.hostVisible {
				t.Errorf("hostVisible = %v, want %v", hb.hostVisible, tt.hostVisible)
			}
			if hb.usage&gputypes.BufferUsageMapWrite != 0 {
				t.Errorf("barrier usage %v carries MapWrite", hb.usage)
			}
			if hb.usage&gputypes.BufferUsageUniform == 0 || hb.usage&gputypes.BufferUsageCopyDst == 0 {
				t.Errorf("barrier usage %v lacks Uniform or CopyDst", hb.usage)
			}

			// Mapped writes never go through the queue, so nothing is submitted.
			before := b.(*halRendererBackendImpl).fence.lastSubmitted()
			if err := b.WriteBuffer(buf, 0, make([]byte, 64)); err != nil {
				t.Fatalf("WriteBuffer: %v", err)
			}
			if after := b.(*halRendererBackendImpl).fence.lastSubmitted(); after != before {
				t.Errorf("submissions %d -> %d after a write", before, after)
			}
		})
	}
}

func TestBufferBounds(t *testing.T) {
	b := openNoop(t)
	buf, err := b.CreateBuffer(BufferDescriptor{Label: "small", Size: 8})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	defer buf.Destroy()

	if err := b.WriteBuffer(buf, 4, make([]byte, 8)); err == nil {
		t.Error("WriteBuffer past the end succeeded")
	}
	if _, err := b.ReadBuffer(context.Background(), buf, 0, 9); err == nil {
		t.Error("ReadBuffer past the end succeeded")
	}
	if _, err := b.CreateBuffer(BufferDescriptor{Label: "empty"}); err == nil {
		t.Error("CreateBuffer with zero size succeeded")
	}
}

func TestCommandListCountsBarriers(t *testing.T) {
	b := openNoop(t)
	buf, err := b.CreateBuffer(BufferDescriptor{Label: "vb", Size: 64, Usage: gputypes.BufferUsageVertex})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	defer buf.Destroy()
	back, err := b.AcquireBackBuffer()
	if err != nil {
		t.Fatalf("AcquireBackBuffer: %v", err)
	}

	cl, err := b.Begin("barriers")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	buf.Transition(cl, resource.StateCopyDst)
	buf.Transition(cl, resource.StateCopyDst)
	buf.Transition(cl, resource.StateVertexBuffer)
	back.Transition(cl, resource.StateRenderTarget)
	back.Transition(cl, resource.StatePresent)

	if cl.Barriers() != 4 {
		t.Errorf("barriers = %d, want 4", cl.Barriers())
	}
	if err := b.Submit(cl); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := b.Present(); err != nil {
		t.Fatalf("Present: %v", err)
	}
}

func TestFenceCompletesAfterSubmit(t *testing.T) {
	b := openNoop(t)
	fence := b.Fence()

	for i := 0; i < 3; i++ {
		cl, err := b.Begin("frame")
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := b.Submit(cl); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		v, err := fence.Signal()
		if err != nil {
			t.Fatalf("Signal: %v", err)
		}
		if v != uint64(i+1) {
			t.Errorf("signal #%d = %d, want %d", i, v, i+1)
		}
		if err := fence.Wait(context.Background(), v); err != nil {
			t.Fatalf("Wait(%d): %v", v, err)
		}
		done, err := fence.Completed()
		if err != nil || done != v {
			t.Errorf("Completed = %d, %v; want %d", done, err, v)
		}
	}
}

func TestComputeDispatchOnNoop(t *testing.T) {
	b := openNoop(t)
	s, err := shader.NewShader("fill", shader.ShaderTypeCompute, shader.Source{Format: shader.SourceWGSL, WGSL: fillCompute})
	if err != nil {
		t.Fatalf("NewShader: %v", err)
	}
	cache := pipeline.NewCache(b.BuildPipeline, b.Release)
	defer cache.Destroy()

	p, err := cache.GetOrCreate(pipeline.ComputeKey(s.ID()), s)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	buf, err := b.CreateBuffer(BufferDescriptor{Label: "data", Size: 256, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	defer buf.Destroy()

	group, err := b.CreateBindGroup("fill", shader.ShaderTypeCompute, []BindingEntry{{Binding: s.Bindings()[0], Buffer: buf}})
	if err != nil {
		t.Fatalf("CreateBindGroup: %v", err)
	}
	defer b.Release(group)

	cl, err := b.Begin("dispatch")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	buf.Transition(cl, resource.StateUnorderedAccess)
	cl.Dispatch(p, []any{group}, 1, 1, 1)
	if err := b.Submit(cl); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := b.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func TestRenderPassOnNoop(t *testing.T) {
	b := openNoop(t)
	s := shader.Fallback(shader.ShaderTypeRender)
	cache := pipeline.NewCache(b.BuildPipeline, b.Release)
	defer cache.Destroy()

	key := pipeline.Key{
		VertexLayout: pipeline.VertexLayoutPTC,
		Shader:       s.ID(),
		Depth:        pipeline.DepthLessOrEqualWriteOn,
		TargetFormat: b.SurfaceFormat(),
		SampleCount:  1,
	}
	p, err := cache.GetOrCreate(key, s)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	depth, err := b.CreateTexture(TextureDescriptor{Label: "depth", Width: 64, Height: 32, Format: gputypes.TextureFormatDepth32Float, Usage: gputypes.TextureUsageRenderAttachment})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	defer depth.Destroy()
	back, err := b.AcquireBackBuffer()
	if err != nil {
		t.Fatalf("AcquireBackBuffer: %v", err)
	}

	cl, err := b.Begin("pass")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	back.Transition(cl, resource.StateRenderTarget)
	depth.Transition(cl, resource.StateDepthWrite)
	err = cl.BeginRenderPass(RenderPassDescriptor{
		Label:       "main",
		Color:       back,
		ColorLoadOp: gputypes.LoadOpClear,
		Depth:       depth,
		DepthLoadOp: gputypes.LoadOpClear,
		ClearDepth:  1,
	})
	if err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	cl.SetPipeline(p)
	cl.EndRenderPass()
	if err := b.Submit(cl); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestUsageMapping(t *testing.T) {
	tests := []struct {
		state   resource.State
		buffer  gputypes.BufferUsage
		texture gputypes.TextureUsage
	}{
		{resource.StateUndefined, gputypes.BufferUsageNone, gputypes.TextureUsageNone},
		{resource.StateCopyDst, gputypes.BufferUsageCopyDst, gputypes.TextureUsageCopyDst},
		{resource.StateUniform, gputypes.BufferUsageUniform, gputypes.TextureUsageNone},
		{resource.StateShaderRead, gputypes.BufferUsageStorage, gputypes.TextureUsageTextureBinding},
		{resource.StateUnorderedAccess, gputypes.BufferUsageStorage, gputypes.TextureUsageStorageBinding},
		{resource.StateRenderTarget, gputypes.BufferUsageNone, gputypes.TextureUsageRenderAttachment},
		{resource.StateDepthWrite, gputypes.BufferUsageNone, gputypes.TextureUsageRenderAttachment},
		{resource.StatePresent, gputypes.BufferUsageNone, gputypes.TextureUsageNone},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := BufferUsageFor(tt.state); got != tt.buffer {
				t.Errorf("BufferUsageFor = %v, want %v", got, tt.buffer)
			}
			if got := TextureUsageFor(tt.state); got != tt.texture {
				t.Errorf("TextureUsageFor = %v, want %v", got, tt.texture)
			}
		})
	}
}

func TestLayoutKey(t *testing.T) {
	a := []shader.Binding{{Binding: 0, Kind: shader.BindingUniformBuffer}, {Binding: 1, Kind: shader.BindingTexture}}
	b := []shader.Binding{{Binding: 0, Kind: shader.BindingUniformBuffer}, {Binding: 1, Kind: shader.BindingTexture, Cube: true}}

	if LayoutKey(shader.ShaderTypeRender, a) == LayoutKey(shader.ShaderTypeRender, b) {
		t.Error("cube and 2D textures share a layout key")
	}
	if LayoutKey(shader.ShaderTypeRender, a) == LayoutKey(shader.ShaderTypeCompute, a) {
		t.Error("render and compute groups share a layout key")
	}
	if got := GroupCount([]shader.Binding{{Group: 0}, {Group: 2}}); got != 3 {
		t.Errorf("GroupCount = %d, want 3", got)
	}
	entries := LayoutEntries(shader.ShaderTypeRender, b)
	if entries[0].Buffer == nil || entries[1].Texture == nil || entries[1].Texture.ViewDimension != gputypes.TextureViewDimensionCube {
		t.Errorf("entries = %+v", entries)
	}
}
