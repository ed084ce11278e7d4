package main

import (
	"path/filepath"
	"testing"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine"
	"github.com/bioglaze/aether3d-sub000/engine/light"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    backend.BackendType
		wantErr bool
	}{
		{"auto", backend.BackendTypeAuto, false},
		{"Vulkan", backend.BackendTypeVulkan, false},
		{"wgpu", backend.BackendTypeWGPU, false},
		{"noop", backend.BackendTypeNoop, false},
		{"opengl", backend.BackendTypeAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBackend(tt.name)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("parseBackend(%q) = %v, %v; want %v, error %v", tt.name, got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestBuildCube(t *testing.T) {
	vertices, indices := buildCube()
	if len(vertices) != 24 || len(indices) != 36 {
		t.Fatalf("cube has %d vertices and %d indices, want 24 and 36", len(vertices), len(indices))
	}
	// Every triangle winds counter-clockwise around its face normal.
	for i := 0; i < len(indices); i += 3 {
		a := common.Vec3(vertices[indices[i]].Position)
		b := common.Vec3(vertices[indices[i+1]].Position)
		c := common.Vec3(vertices[indices[i+2]].Position)
		n := common.Vec3(vertices[indices[i]].Normal)
		if b.Sub(a).Cross(c.Sub(a)).Dot(n) <= 0 {
			t.Errorf("triangle %d winds against its normal %v", i/3, n)
		}
	}

	markers, _ := buildMarkerCube()
	if len(markers) != len(vertices) || markers[5].Position != vertices[5].Position {
		t.Error("marker cube does not match the lit cube")
	}
}

func TestChecker(t *testing.T) {
	tex := checker(4, 2, [4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2})
	if len(tex.Pixels) != 4*4*4 {
		t.Fatalf("pixels = %d bytes, want 64", len(tex.Pixels))
	}
	at := func(x, y int) byte { return tex.Pixels[(y*4+x)*4] }
	if at(0, 0) != 1 || at(2, 0) != 2 || at(0, 2) != 2 || at(3, 3) != 1 {
		t.Error("checker cells are misplaced")
	}
}

func TestLightSwarm(t *testing.T) {
	s := newLightSwarm(6, 2, 5, 3, 42)
	lights := s.Lights()
	if len(lights) != 8 {
		t.Fatalf("swarm has %d lights, want 8", len(lights))
	}
	spots := 0
	for _, l := range lights {
		if l.Type() == light.LightTypeSpot {
			spots++
		}
	}
	if spots != 2 {
		t.Errorf("swarm has %d spots, want 2", spots)
	}

	if steps := s.Step(0.001); steps != 0 {
		t.Errorf("Step below one tick took %d steps", steps)
	}
	start := lights[0].Position()
	if steps := s.Step(0.5); steps != 15 {
		t.Errorf("Step(0.5) took %d steps, want 15 (clamped to 0.25s)", steps)
	}
	if lights[0].Position() == start {
		t.Error("light did not move")
	}
	for range 600 {
		s.Step(1.0 / 60)
	}
	for i, l := range lights {
		p := l.Position()
		if p[0] < -5.5 || p[0] > 5.5 || p[2] < -5.5 || p[2] > 5.5 || p[1] < 0 || p[1] > 5.5 {
			t.Errorf("light %d left the box: %v", i, p)
		}
	}
}

func TestHeadlessDemo(t *testing.T) {
	*gridSide, *pointLights, *spotLights = 3, 20, 4
	r, err := renderer.NewRenderer(backend.BackendTypeNoop, nil, renderer.WithHeadlessSize(320, 240))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)

	d, err := newDemo(r)
	if err != nil {
		t.Fatalf("newDemo: %v", err)
	}
	t.Cleanup(d.Destroy)

	eng := engine.NewEngine(engine.WithScene(0, d.scene))
	eng.SetRenderCallback(d.animate)
	if err := runFrames(eng, 3); err != nil {
		t.Fatalf("runFrames: %v", err)
	}
	if got := d.scene.Count(); got != 1+9+2 {
		t.Errorf("scene has %d objects, want ground, 9 cubes and 2 markers", got)
	}
	st := r.Stats()
	if st.PointLights != 20 || st.SpotLights != 4 {
		t.Errorf("collected %d points and %d spots, want 20 and 4", st.PointLights, st.SpotLights)
	}
	if st.Draws == 0 {
		t.Error("nothing was drawn")
	}
}

func TestDemoSkipsMissingModel(t *testing.T) {
	*gridSide, *pointLights, *spotLights = 2, 4, 0
	*modelPath = filepath.Join(t.TempDir(), "missing.glb")
	t.Cleanup(func() { *modelPath = "" })

	r, err := renderer.NewRenderer(backend.BackendTypeNoop, nil, renderer.WithHeadlessSize(160, 120))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)

	d, err := newDemo(r)
	if err != nil {
		t.Fatalf("newDemo: %v", err)
	}
	t.Cleanup(d.Destroy)
	if len(d.model) != 0 {
		t.Errorf("demo placed %d objects for a missing model", len(d.model))
	}
	if got := d.scene.Count(); got != 1+4+1 {
		t.Errorf("scene has %d objects, want ground, 4 cubes and 1 marker", got)
	}
}
