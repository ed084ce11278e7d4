package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/camera"
	"github.com/bioglaze/aether3d-sub000/engine/light"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
)

type fixture struct {
	r     renderer.Renderer
	cam   camera.Camera
	quad  renderer.VertexBuffer
	lit   shader.Shader
	scene Scene
}

func newFixture(t *testing.T, width, height int, options ...SceneBuilderOption) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(backend.BackendTypeNoop, nil,
		renderer.WithHeadlessSize(width, height), renderer.WithRingSize(32))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)

	vertices := []float32{
		-1, -1, 0, 0, 1, 0, 0, 1,
		1, -1, 0, 1, 1, 0, 0, 1,
		1, 1, 0, 1, 0, 0, 0, 1,
		-1, 1, 0, 0, 0, 0, 0, 1,
	}
	quad, err := r.CreateVertexBuffer("quad", pipeline.VertexLayoutPTN, common.SliceToBytes(vertices), []uint16{0, 1, 2, 0, 2, 3})
	if err != nil {
		t.Fatalf("CreateVertexBuffer: %v", err)
	}

	cam := camera.NewCamera(
		camera.WithAspect(float32(width)/float32(height)),
		camera.WithClipPlanes(0.1, 100),
		camera.WithController(camera.NewOrbitController(camera.WithRadius(10), camera.WithAngles(0, 0))),
	)
	s, err := NewScene("test", cam, r, options...)
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	t.Cleanup(s.Destroy)

	return &fixture{
		r:     r,
		cam:   cam,
		quad:  quad,
		lit:   r.CreateShader("forward+", shader.ShaderTypeRender, renderer.ForwardPlusSource),
		scene: s,
	}
}

func (f *fixture) frame(t *testing.T) error {
	t.Helper()
	if err := f.r.BeginFrame(context.Background()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	renderErr := f.scene.Render()
	if err := f.r.Present(context.Background()); err != nil {
		t.Fatalf("Present: %v", err)
	}
	return renderErr
}

func TestRenderForwardPlusFrame(t *testing.T) {
	f := newFixture(t, 640, 480)
	f.scene.Add(NewObject("center", f.quad, f.lit))
	f.scene.Add(NewObject("behind", f.quad, f.lit, WithTransform(common.Vec3{0, 0, 30}, common.Vec3{}, common.Vec3{1, 1, 1})))
	f.scene.Add(NewObject("glass", f.quad, f.lit, WithBlend(pipeline.BlendAlpha), WithTint(1, 1, 1, 0.5),
		WithTransform(common.Vec3{0, 0, 2}, common.Vec3{}, common.Vec3{1, 1, 1})))
	f.scene.AddLight(light.NewLight(light.LightTypePoint, light.WithPosition(0, 0, 1), light.WithRange(3)))
	f.scene.AddLight(light.NewLight(light.LightTypeSpot, light.WithPosition(2, 2, 2), light.WithDirection(0, -1, 0), light.WithRange(4)))
	f.scene.AddLight(light.NewLight(light.LightTypePoint, light.WithEnabled(false)))

	if err := f.frame(t); err != nil {
		t.Fatalf("Render: %v", err)
	}

	got := f.scene.Stats()
	want := Stats{Objects: 3, Visible: 2, FrustumCull: 1, Prepass: 1, Lights: 3}
	if got != want {
		t.Errorf("scene stats = %+v, want %+v", got, want)
	}
	rs := f.r.Stats()
	if rs.Draws != 3 {
		t.Errorf("draws = %d, want 3", rs.Draws)
	}
	if rs.PointLights != 1 || rs.SpotLights != 1 {
		t.Errorf("collected %d point and %d spot lights, want 1 and 1", rs.PointLights, rs.SpotLights)
	}
	// Prepass, shaded opaque and blended draws each need their own pipeline.
	if rs.PipelineBuilds != 3 {
		t.Errorf("pipeline builds = %d, want 3", rs.PipelineBuilds)
	}

	if err := f.frame(t); err != nil {
		t.Fatalf("second Render: %v", err)
	}
	if rs := f.r.Stats(); rs.PipelineBuilds != 3 || rs.PointLights != 1 {
		t.Errorf("second frame stats = %+v", rs)
	}
}

func TestRenderWithCullingDisabled(t *testing.T) {
	f := newFixture(t, 64, 48, WithCullingDisabled(true))
	f.scene.Add(NewObject("behind", f.quad, f.lit, WithTransform(common.Vec3{0, 0, 30}, common.Vec3{}, common.Vec3{1, 1, 1})))
	if err := f.frame(t); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := f.scene.Stats(); got.Visible != 1 || got.FrustumCull != 0 {
		t.Errorf("stats = %+v", got)
	}
}

func TestRenderSkipsHiddenAndDestroyed(t *testing.T) {
	f := newFixture(t, 64, 48)
	hidden := NewObject("hidden", f.quad, f.lit, WithVisible(false))
	f.scene.Add(hidden)

	vertices := make([]float32, 3*8)
	tri, err := f.r.CreateVertexBuffer("tri", pipeline.VertexLayoutPTN, common.SliceToBytes(vertices), []uint16{0, 1, 2})
	if err != nil {
		t.Fatalf("CreateVertexBuffer: %v", err)
	}
	f.scene.Add(NewObject("gone", tri, f.lit))
	tri.Destroy()

	if err := f.frame(t); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := f.scene.Stats(); got.Visible != 0 {
		t.Errorf("visible = %d, want 0", got.Visible)
	}
	if got := f.r.Stats().Draws; got != 0 {
		t.Errorf("draws = %d, want 0", got)
	}

	hidden.SetVisible(true)
	if err := f.frame(t); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := f.r.Stats().Draws; got != 2 {
		t.Errorf("draws = %d, want 2", got)
	}
}

func TestRenderErrors(t *testing.T) {
	f := newFixture(t, 64, 48)
	f.scene.Add(NewObject("center", f.quad, f.lit))

	f.scene.SetCamera(nil)
	if err := f.frame(t); !errors.Is(err, ErrNoCamera) {
		t.Errorf("Render without camera = %v, want ErrNoCamera", err)
	}

	if common.DebugBuild {
		return
	}
	f.scene.SetCamera(f.cam)
	if err := f.scene.Render(); !errors.Is(err, renderer.ErrNoFrame) {
		t.Errorf("Render outside a frame = %v, want ErrNoFrame", err)
	}
}

func TestTransparentObjectsSortBackToFront(t *testing.T) {
	f := newFixture(t, 64, 48)
	at := func(name string, z float32) Object {
		return NewObject(name, f.quad, f.lit, WithBlend(pipeline.BlendAdditive),
			WithTransform(common.Vec3{0, 0, z}, common.Vec3{}, common.Vec3{1, 1, 1}))
	}
	f.scene.Add(at("near", 3))
	f.scene.Add(at("far", -3))
	f.scene.Add(at("middle", 0))

	s := f.scene.(*scene)
	s.gather(f.cam.ViewMatrix())
	var order []float32
	for _, d := range s.transparent {
		order = append(order, d.center[2])
	}
	want := []float32{-3, 0, 3}
	if len(order) != len(want) {
		t.Fatalf("transparent = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("transparent = %v, want %v", order, want)
		}
	}
}

func TestSceneObjects(t *testing.T) {
	f := newFixture(t, 64, 48)
	a := NewObject("a", f.quad, f.lit)
	b := NewObject("b", f.quad, f.lit)
	idA, idB := f.scene.Add(a), f.scene.Add(b)
	if idA == 0 || idB == idA {
		t.Fatalf("ids = %d, %d", idA, idB)
	}
	if f.scene.Get(idB) != b || f.scene.Count() != 2 {
		t.Errorf("Get(%d) = %v, count = %d", idB, f.scene.Get(idB), f.scene.Count())
	}
	f.scene.Remove(idA)
	if f.scene.Get(idA) != nil || a.ID() != 0 || f.scene.Count() != 1 {
		t.Error("Remove left the object in the scene")
	}

	l := light.NewLight(light.LightTypePoint)
	f.scene.AddLight(l)
	f.scene.RemoveLight(l)
	if len(f.scene.Lights()) != 0 {
		t.Error("RemoveLight kept the light")
	}

	f.scene.Clear()
	if f.scene.Count() != 0 || b.ID() != 0 {
		t.Error("Clear kept objects")
	}
}

func TestObjectBoundsAndState(t *testing.T) {
	f := newFixture(t, 64, 48)
	o := NewObject("o", f.quad, f.lit, WithBoundingRadius(2),
		WithTransform(common.Vec3{1, 2, 3}, common.Vec3{}, common.Vec3{1, -3, 2}))
	center, radius := o.BoundingSphere()
	if center != (common.Vec3{1, 2, 3}) || radius != 6 {
		t.Errorf("bounding sphere = %v r=%v, want (1, 2, 3) r=6", center, radius)
	}
	if o.Transparent() {
		t.Error("opaque object reported transparent")
	}
	if !o.state().prepass {
		t.Error("opaque PTN object skipped the prepass")
	}

	blended := NewObject("b", f.quad, f.lit, WithBlend(pipeline.BlendAlpha))
	st := blended.state()
	if st.prepass || st.depth != pipeline.DepthLessOrEqualWriteOff {
		t.Errorf("blended state = prepass %v depth %v", st.prepass, st.depth)
	}
}

func TestSceneResize(t *testing.T) {
	f := newFixture(t, 64, 48)
	if w, h := f.scene.DepthNormals().Size(); w != 64 || h != 48 {
		t.Fatalf("depth normals = %dx%d", w, h)
	}
	old := f.scene.DepthNormals()
	if err := f.r.Resize(128, 32); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if err := f.scene.Resize(128, 32); err != nil {
		t.Fatalf("scene Resize: %v", err)
	}
	if w, h := f.scene.DepthNormals().Size(); w != 128 || h != 32 {
		t.Errorf("depth normals = %dx%d, want 128x32", w, h)
	}
	if !old.Destroyed() {
		t.Error("old depth normals target not destroyed")
	}
	if got := f.cam.Aspect(); got != 4 {
		t.Errorf("aspect = %v, want 4", got)
	}
}
