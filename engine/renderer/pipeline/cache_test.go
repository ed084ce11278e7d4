package pipeline

import (
	"errors"
	"testing"

	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

type fakeNative struct{ n int }

func newCountingCache(t *testing.T) (Cache, *int, *[]any) {
	t.Helper()
	built := 0
	released := []any{}
	c := NewCache(func(p Pipeline) (any, error) {
		built++
		return &fakeNative{n: built}, nil
	}, func(native any) {
		released = append(released, native)
	})
	return c, &built, &released
}

func baseKey(s shader.Shader) Key {
	return Key{
		VertexLayout: VertexLayoutPTN,
		Shader:       s.ID(),
		Blend:        BlendOff,
		Depth:        DepthLessOrEqualWriteOn,
		Cull:         CullBack,
		Fill:         FillSolid,
		TargetFormat: gputypes.TextureFormatBGRA8Unorm,
		SampleCount:  1,
		Topology:     TopologyTriangles,
	}
}

func TestCache_SameKeyBuildsOnce(t *testing.T) {
	c, built, _ := newCountingCache(t)
	s := shader.Fallback(shader.ShaderTypeRender)
	key := baseKey(s)

	first, err := c.GetOrCreate(key, s)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < 100; i++ {
		p, err := c.GetOrCreate(key, s)
		if err != nil {
			t.Fatalf("GetOrCreate #%d: %v", i, err)
		}
		if p != first {
			t.Fatalf("GetOrCreate #%d returned a different pipeline", i)
		}
	}
	if *built != 1 || c.Builds() != 1 {
		t.Errorf("builds = %d (cache says %d), want 1", *built, c.Builds())
	}
}

func TestCache_EachFieldIsPartOfTheKey(t *testing.T) {
	s := shader.Fallback(shader.ShaderTypeRender)
	other := shader.Fallback(shader.ShaderTypeRender)
	base := baseKey(s)

	tests := []struct {
		name   string
		mutate func(k *Key)
		s      shader.Shader
	}{
		{"vertex layout", func(k *Key) { k.VertexLayout = VertexLayoutPTC }, s},
		{"shader", func(k *Key) { k.Shader = other.ID() }, other},
		{"blend", func(k *Key) { k.Blend = BlendAdditive }, s},
		{"depth", func(k *Key) { k.Depth = DepthNoneWriteOff }, s},
		{"cull", func(k *Key) { k.Cull = CullFront }, s},
		{"fill", func(k *Key) { k.Fill = FillWireframe }, s},
		{"target format", func(k *Key) { k.TargetFormat = gputypes.TextureFormatRGBA16Float }, s},
		{"sample count", func(k *Key) { k.SampleCount = 4 }, s},
		{"topology", func(k *Key) { k.Topology = TopologyLines }, s},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, built, _ := newCountingCache(t)
			a, err := c.GetOrCreate(base, s)
			if err != nil {
				t.Fatal(err)
			}
			k := base
			tt.mutate(&k)
			b, err := c.GetOrCreate(k, tt.s)
			if err != nil {
				t.Fatal(err)
			}
			if a == b || *built != 2 || c.Len() != 2 {
				t.Errorf("changing %s did not produce a new pipeline (builds=%d len=%d)", tt.name, *built, c.Len())
			}
		})
	}
}

func TestCache_FailedBuildIsNotCached(t *testing.T) {
	fail := true
	c := NewCache(func(p Pipeline) (any, error) {
		if fail {
			return nil, errors.New("device said no")
		}
		return &fakeNative{}, nil
	}, nil)
	s := shader.Fallback(shader.ShaderTypeRender)

	if _, err := c.GetOrCreate(baseKey(s), s); err == nil {
		t.Fatal("expected build error")
	}
	if c.Len() != 0 || c.Builds() != 0 {
		t.Fatalf("failed build cached: len=%d builds=%d", c.Len(), c.Builds())
	}
	fail = false
	if _, err := c.GetOrCreate(baseKey(s), s); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.Builds() != 1 {
		t.Errorf("builds = %d, want 1", c.Builds())
	}
}

func TestCache_DestroyReleasesAll(t *testing.T) {
	c, _, released := newCountingCache(t)
	render := shader.Fallback(shader.ShaderTypeRender)
	compute := shader.Fallback(shader.ShaderTypeCompute)

	if _, err := c.GetOrCreate(baseKey(render), render); err != nil {
		t.Fatal(err)
	}
	p, err := c.GetOrCreate(ComputeKey(compute.ID()), compute)
	if err != nil {
		t.Fatal(err)
	}
	if p.Type() != PipelineTypeCompute {
		t.Errorf("compute shader produced %v pipeline", p.Type())
	}

	c.Destroy()
	if len(*released) != 2 || c.Len() != 0 {
		t.Errorf("released %d, len %d; want 2, 0", len(*released), c.Len())
	}
}

func TestKeyHash_StableAndDistinct(t *testing.T) {
	s := shader.Fallback(shader.ShaderTypeRender)
	a := baseKey(s)
	b := baseKey(s)
	if a.Hash() != b.Hash() {
		t.Error("equal keys hash differently")
	}
	b.Blend = BlendAlpha
	if a.Hash() == b.Hash() {
		t.Error("different keys share a hash")
	}
}

func TestPipelineState(t *testing.T) {
	s := shader.Fallback(shader.ShaderTypeRender)

	tests := []struct {
		name         string
		mutate       func(k *Key)
		wantTopology gputypes.PrimitiveTopology
		wantCull     gputypes.CullMode
		wantWrite    bool
		wantCompare  gputypes.CompareFunction
		wantBlend    bool
	}{
		{"solid back cull", func(k *Key) {}, gputypes.PrimitiveTopologyTriangleList, gputypes.CullModeBack, true, gputypes.CompareFunctionLessEqual, false},
		{"wireframe is lines", func(k *Key) { k.Fill = FillWireframe }, gputypes.PrimitiveTopologyLineList, gputypes.CullModeNone, true, gputypes.CompareFunctionLessEqual, false},
		{"depth read only", func(k *Key) { k.Depth = DepthLessOrEqualWriteOff }, gputypes.PrimitiveTopologyTriangleList, gputypes.CullModeBack, false, gputypes.CompareFunctionLessEqual, false},
		{"no depth alpha blend", func(k *Key) {
			k.Depth = DepthNoneWriteOff
			k.Blend = BlendAlpha
			k.Cull = CullOff
		}, gputypes.PrimitiveTopologyTriangleList, gputypes.CullModeNone, false, gputypes.CompareFunctionAlways, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := baseKey(s)
			tt.mutate(&k)
			p := NewPipeline(k, s)
			prim := p.Primitive()
			if prim.Topology != tt.wantTopology || prim.CullMode != tt.wantCull {
				t.Errorf("primitive = %+v", prim)
			}
			ds := p.DepthStencil()
			if ds == nil || ds.DepthWriteEnabled != tt.wantWrite || ds.DepthCompare != tt.wantCompare {
				t.Errorf("depth = %+v", ds)
			}
			if (p.ColorTarget().Blend != nil) != tt.wantBlend {
				t.Errorf("blend = %+v", p.ColorTarget().Blend)
			}
		})
	}
}

func TestVertexLayoutStrides(t *testing.T) {
	want := map[VertexLayout]uint64{VertexLayoutPTC: 36, VertexLayoutPTN: 32, VertexLayoutPTNTC: 64}
	for layout, stride := range want {
		if got := layout.VertexStride(); got != stride {
			t.Errorf("layout %d stride = %d, want %d", layout, got, stride)
		}
	}
}
