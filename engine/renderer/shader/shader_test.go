package shader

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const testRenderWGSL = `
struct DrawUniforms {
    mvp: mat4x4<f32>,
    tint: vec4<f32>,
}

@group(0) @binding(0) var<uniform> draw: DrawUniforms;
@group(1) @binding(0) var<storage, read> lights: array<vec4<f32>>;
@group(2) @binding(0) var albedo: texture_2d<f32>;
@group(2) @binding(1) var albedo_sampler: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = draw.mvp * vec4<f32>(position, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(v: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(albedo, albedo_sampler, v.uv) * draw.tint + lights[0] * 0.0;
}
`

const testComputeWGSL = `
@group(0) @binding(0) var<storage, read_write> out_data: array<u32>;
@group(0) @binding(1) var depth_tex: texture_depth_2d;

@compute @workgroup_size(16, 16, 1)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    let d = textureLoad(depth_tex, vec2<i32>(id.xy), 0);
    out_data[id.x] = u32(d);
}
`

func TestNewShader_ReflectsRenderBindings(t *testing.T) {
	s, err := NewShader("lit", ShaderTypeRender, Source{Format: SourceWGSL, WGSL: testRenderWGSL})
	if err != nil {
		t.Fatalf("NewShader: %v", err)
	}

	want := []Binding{
		{Group: 0, Binding: 0, Kind: BindingUniformBuffer, Name: "draw"},
		{Group: 1, Binding: 0, Kind: BindingReadBuffer, Name: "lights"},
		{Group: 2, Binding: 0, Kind: BindingTexture, Name: "albedo"},
		{Group: 2, Binding: 1, Kind: BindingSampler, Name: "albedo_sampler"},
	}
	got := s.Bindings()
	if len(got) != len(want) {
		t.Fatalf("bindings = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("binding[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if s.IsFallback() {
		t.Error("valid shader reported as fallback")
	}
}

func TestNewShader_ComputeWorkgroupSize(t *testing.T) {
	s, err := NewShader("cull", ShaderTypeCompute, Source{Format: SourceWGSL, WGSL: testComputeWGSL})
	if err != nil {
		t.Fatalf("NewShader: %v", err)
	}
	if got := s.WorkgroupSize(); got != [3]uint32{16, 16, 1} {
		t.Errorf("WorkgroupSize = %v, want [16 16 1]", got)
	}
	kinds := []BindingKind{BindingStorageBuffer, BindingDepthTexture}
	for i, b := range s.Bindings() {
		if b.Kind != kinds[i] {
			t.Errorf("binding %d kind = %s, want %s", i, b.Kind, kinds[i])
		}
	}
}

func TestNewShader_Errors(t *testing.T) {
	tests := []struct {
		name       string
		shaderType ShaderType
		src        Source
	}{
		{"syntax error", ShaderTypeRender, Source{Format: SourceWGSL, WGSL: "fn broken( {"}},
		{"missing fragment", ShaderTypeRender, Source{Format: SourceWGSL, WGSL: testComputeWGSL}},
		{"missing compute", ShaderTypeCompute, Source{Format: SourceWGSL, WGSL: testRenderWGSL}},
		{"short spirv", ShaderTypeCompute, Source{Format: SourceSPIRV, SPIRV: []uint32{spirvMagic}}},
		{"bad spirv magic", ShaderTypeCompute, Source{Format: SourceSPIRV, SPIRV: []uint32{1, 2, 3, 4, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewShader(tt.name, tt.shaderType, tt.src); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewShader_SPIRVWithDeclaredBindings(t *testing.T) {
	words := []uint32{spirvMagic, 0x00010000, 0, 16, 0}
	s, err := NewShader("blob", ShaderTypeCompute, Source{Format: SourceSPIRV, SPIRV: words},
		WithBindings(Binding{Group: 0, Binding: 3, Kind: BindingStorageBuffer}),
		WithWorkgroupSize(8, 8, 1))
	if err != nil {
		t.Fatalf("NewShader: %v", err)
	}
	if len(s.Bindings()) != 1 || s.Bindings()[0].Binding != 3 {
		t.Errorf("bindings = %+v", s.Bindings())
	}
	if s.WorkgroupSize() != [3]uint32{8, 8, 1} {
		t.Errorf("WorkgroupSize = %v", s.WorkgroupSize())
	}
}

func TestShaderIDsAreUnique(t *testing.T) {
	a := Fallback(ShaderTypeRender)
	b := Fallback(ShaderTypeRender)
	if a.ID() == b.ID() {
		t.Errorf("two shaders share ID %d", a.ID())
	}
}

func TestCompile_FallsBackOnError(t *testing.T) {
	s, err := Compile("broken", ShaderTypeRender, "not wgsl at all")
	if err == nil {
		t.Fatal("expected error")
	}
	if s == nil || !s.IsFallback() || s.Type() != ShaderTypeRender {
		t.Fatalf("expected render fallback, got %+v", s)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	wgslPath := filepath.Join(dir, "cull.wgsl")
	if err := os.WriteFile(wgslPath, []byte(testComputeWGSL), 0o644); err != nil {
		t.Fatal(err)
	}
	spvPath := filepath.Join(dir, "blob.spv")
	spv := make([]byte, 20)
	binary.LittleEndian.PutUint32(spv, spirvMagic)
	if err := os.WriteFile(spvPath, spv, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		path         string
		wantErr      bool
		wantFormat   SourceFormat
		wantFallback bool
	}{
		{"wgsl", wgslPath, false, SourceWGSL, false},
		{"spirv", spvPath, false, SourceSPIRV, false},
		{"missing file", filepath.Join(dir, "nope.wgsl"), true, SourceWGSL, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(tt.name, ShaderTypeCompute, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if s.IsFallback() != tt.wantFallback {
				t.Errorf("IsFallback = %v, want %v", s.IsFallback(), tt.wantFallback)
			}
			if s.Source().Format != tt.wantFormat {
				t.Errorf("format = %v, want %v", s.Source().Format, tt.wantFormat)
			}
		})
	}
}

func TestUniformsMarshal(t *testing.T) {
	u := NewUniforms()
	u.Tint = [4]float32{0.5, 0.25, 1, 1}
	u.TileCountX = 40
	u.LightCounts = 3
	u.MaxLightsPerTile = 64
	u.WindowHeight = 480

	buf := u.Marshal()
	if len(buf) != u.Size() {
		t.Fatalf("len = %d, want %d", len(buf), u.Size())
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	if f(0) != 1 || f(20) != 1 || f(4) != 0 {
		t.Error("MVP identity not at offset 0")
	}
	if f(64) != 1 {
		t.Error("ModelView identity not at offset 64")
	}
	if f(128) != 0.5 || f(132) != 0.25 {
		t.Errorf("tint = %v %v", f(128), f(132))
	}
	for off, want := range map[int]uint32{144: 40, 148: 3, 152: 64, 156: 480} {
		if got := binary.LittleEndian.Uint32(buf[off:]); got != want {
			t.Errorf("u32 at %d = %d, want %d", off, got, want)
		}
	}
}

func TestUniformsSourceValidates(t *testing.T) {
	src := UniformsSource + `
@vertex
fn vs_main(@location(0) p: vec3<f32>) -> @builtin(position) vec4<f32> {
    return draw.mvp * vec4<f32>(p, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return draw.tint;
}
`
	if _, err := NewShader("uniforms", ShaderTypeRender, Source{Format: SourceWGSL, WGSL: src}); err != nil {
		t.Fatalf("uniform block source invalid: %v", err)
	}
}
