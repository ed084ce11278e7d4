package light

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
)

func newTestTiler(t *testing.T, width, height int, options ...TilerBuilderOption) (backend.RendererBackend, Tiler) {
	t.Helper()
	b, err := backend.Open(backend.BackendTypeNoop, backend.Config{Width: width, Height: height})
	if err != nil {
		t.Fatalf("Open(noop): %v", err)
	}
	t.Cleanup(b.Destroy)

	tl, err := NewTiler(b, width, height, append([]TilerBuilderOption{WithWorkers(3)}, options...)...)
	if err != nil {
		t.Fatalf("NewTiler: %v", err)
	}
	t.Cleanup(tl.Destroy)
	return b, tl
}

type testCamera struct {
	proj, view common.Mat4
}

func newTestCamera(width, height int) testCamera {
	return testCamera{
		proj: common.Perspective(math.Pi/3, float32(width)/float32(height), 0.1, 100),
		view: common.LookAt(common.Vec3{0, 0, 10}, common.Vec3{}, common.Vec3{0, 1, 0}),
	}
}

// runFrame uploads, culls and consumes in one command list, then submits it and ends the frame on the
// backend fence.
func runFrame(t *testing.T, b backend.RendererBackend, tl Tiler, cam testCamera) backend.CommandList {
	t.Helper()
	cl, err := b.Begin("light frame")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tl.UpdateLightBuffers(cl); err != nil {
		t.Fatalf("UpdateLightBuffers: %v", err)
	}
	if err := tl.CullLights(cl, cam.proj, cam.view, nil); err != nil {
		t.Fatalf("CullLights: %v", err)
	}
	if _, err := tl.Consume(cl); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := b.Submit(cl); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	value, err := b.Fence().Signal()
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	tl.EndFrame(value)
	return cl
}

// readTileLists reads the whole index buffer back and splits it into per-tile lists.
func readTileLists(t *testing.T, b backend.RendererBackend, tl Tiler) [][]uint32 {
	t.Helper()
	buf := tl.IndexBuffer()
	data, err := b.ReadBuffer(context.Background(), buf, 0, buf.Size())
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	tilesX, tilesY := tl.TileCount()
	perTile := tl.MaxLightsPerTile()
	lists := make([][]uint32, tilesX*tilesY)
	for i := range lists {
		for k := 0; k < perTile; k++ {
			v := binary.LittleEndian.Uint32(data[(i*perTile+k)*4:])
			if v == LightListEnd {
				break
			}
			lists[i] = append(lists[i], v)
		}
	}
	return lists
}

// tileProjection narrows a projection to the NDC rectangle of one tile.
func tileProjection(proj common.Mat4, tx, ty uint32, width, height int) common.Mat4 {
	w, h := float32(width), float32(height)
	x0, x1 := float32(tx*TileSize), min(float32((tx+1)*TileSize), w)
	y0, y1 := float32(ty*TileSize), min(float32((ty+1)*TileSize), h)
	left, right := 2*x0/w-1, 2*x1/w-1
	bottom, top := 1-2*y1/h, 1-2*y0/h

	m := common.Identity()
	m[0] = 2 / (right - left)
	m[12] = -(right + left) / (right - left)
	m[5] = 2 / (top - bottom)
	m[13] = -(top + bottom) / (top - bottom)
	return m.Mul(proj)
}

// margin is the smallest signed distance of a sphere's surface from the inside of a frustum.
func margin(f common.Frustum, center common.Vec3, radius float32) float32 {
	m := float32(math.MaxFloat32)
	for _, p := range f.Planes {
		m = min(m, p.SignedDistance(center)+radius)
	}
	return m
}

func TestCullLightsMatchesBruteForce(t *testing.T) {
	const width, height = 640, 480
	b, tl := newTestTiler(t, width, height, WithCPUCulling())
	cam := newTestCamera(width, height)

	tilesX, tilesY := tl.TileCount()
	if tilesX != 40 || tilesY != 30 {
		t.Fatalf("tile grid = %dx%d, want 40x30", tilesX, tilesY)
	}

	lights := []struct {
		center common.Vec3
		radius float32
	}{
		{common.Vec3{0, 0, 0}, 2},
		{common.Vec3{4, 2.5, -3}, 1.5},
		{common.Vec3{-3, -2, 4}, 0.75},
	}
	for _, l := range lights {
		if err := tl.AddPointLight(l.center, l.radius, [3]float32{1, 1, 1}); err != nil {
			t.Fatalf("AddPointLight: %v", err)
		}
	}
	if got := tl.State(); got != TilerStateLightsCollected {
		t.Fatalf("state after collect = %v", got)
	}
	runFrame(t, b, tl, cam)
	if got := tl.State(); got != TilerStateConsumed {
		t.Fatalf("state after consume = %v", got)
	}

	lists := readTileLists(t, b, tl)
	total := 0
	for ty := uint32(0); ty < tilesY; ty++ {
		for tx := uint32(0); tx < tilesX; tx++ {
			f := common.ExtractFrustum(tileProjection(cam.proj, tx, ty, width, height).Mul(cam.view))
			got := lists[ty*tilesX+tx]
			total += len(got)
			for i, l := range lights {
				want := f.IntersectsSphere(l.center, l.radius)
				has := slices.Contains(got, uint32(i))
				if want != has && math.Abs(float64(margin(f, l.center, l.radius))) > 1e-3 {
					t.Errorf("tile (%d, %d) light %d: culled result %v, brute force %v", tx, ty, i, has, want)
				}
			}
		}
	}
	if total == 0 {
		t.Fatal("no tile received a light")
	}
	if got := tl.Assignments(); got != total {
		t.Errorf("Assignments() = %d, want %d", got, total)
	}

	center, err := tl.TileLights(context.Background(), 20, 15)
	if err != nil {
		t.Fatalf("TileLights: %v", err)
	}
	if !slices.Contains(center, 0) {
		t.Errorf("center tile lights = %v, want light 0", center)
	}
	if tl.IndexBuffer().State() != resource.StateShaderRead {
		t.Errorf("index buffer state = %v, want ShaderRead", tl.IndexBuffer().State())
	}
}

func TestCollectDropsPastMaxLights(t *testing.T) {
	_, tl := newTestTiler(t, 64, 64)
	n := tl.MaxLights() + 5
	for i := 0; i < n; i++ {
		if err := tl.AddPointLight(common.Vec3{float32(i), 0, 0}, 1, [3]float32{1, 1, 1}); err != nil {
			t.Fatalf("AddPointLight %d: %v", i, err)
		}
	}
	if got := len(tl.PointLights()); got != DefaultMaxLights {
		t.Errorf("point lights = %d, want %d", got, DefaultMaxLights)
	}
	if got := tl.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
	if p, s := UnpackLightCounts(tl.PackedCounts()); p != DefaultMaxLights || s != 0 {
		t.Errorf("packed counts = %d, %d", p, s)
	}
}

func TestCollectLights(t *testing.T) {
	_, tl := newTestTiler(t, 64, 64)
	err := tl.Collect(
		NewLight(LightTypePoint, WithPosition(1, 2, 3), WithRange(4), WithColor(1, 0.5, 0), WithIntensity(2)),
		NewLight(LightTypeSpot, WithPosition(0, 5, 0), WithDirection(0, -2, 0), WithSpotCone(20, 30)),
		NewLight(LightTypeDirectional),
		NewLight(LightTypePoint, WithEnabled(false)),
		nil,
	)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	points, spots := tl.PointLights(), tl.SpotLights()
	if len(points) != 1 || len(spots) != 1 {
		t.Fatalf("collected %d points, %d spots, want 1, 1", len(points), len(spots))
	}
	if p := points[0]; p.Center != [3]float32{1, 2, 3} || p.Radius != 4 || p.Color != [3]float32{2, 1, 0} {
		t.Errorf("point record = %+v", p)
	}
	if s := spots[0]; s.Axis != [3]float32{0, -1, 0} || math.Abs(float64(s.ConeAngleCosine-cosDeg(30))) > 1e-6 {
		t.Errorf("spot record = %+v", s)
	}
	if got := tl.LightInfo(); got.LightCounts != 1<<16|1 || got.MaxLightsPerTile != DefaultMaxLightsPerTile || got.TileCountX != 4 {
		t.Errorf("LightInfo() = %+v", got)
	}
}

func TestCullLightsSpotIndicesFollowPoints(t *testing.T) {
	const width, height = 128, 128
	b, tl := newTestTiler(t, width, height)
	cam := newTestCamera(width, height)

	if err := tl.AddPointLight(common.Vec3{}, 1, [3]float32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := tl.AddSpotLight(common.Vec3{0, 0, 2}, 3, [3]float32{1, 1, 1}, cosDeg(30), common.Vec3{0, 0, -1}); err != nil {
		t.Fatal(err)
	}
	// Behind the camera.
	if err := tl.AddSpotLight(common.Vec3{0, 0, 20}, 3, [3]float32{1, 1, 1}, cosDeg(30), common.Vec3{0, 0, 1}); err != nil {
		t.Fatal(err)
	}
	runFrame(t, b, tl, cam)

	got, err := tl.TileLights(context.Background(), 4, 4)
	if err != nil {
		t.Fatalf("TileLights: %v", err)
	}
	if !slices.Equal(got, []uint32{0, 1}) {
		t.Errorf("center tile lights = %v, want [0 1]", got)
	}
}

func TestCullLightsPerTileCap(t *testing.T) {
	const width, height = 64, 64
	b, tl := newTestTiler(t, width, height, WithMaxLightsPerTile(2))
	cam := newTestCamera(width, height)
	for i := 0; i < 3; i++ {
		if err := tl.AddPointLight(common.Vec3{0, 0, float32(-i)}, 1, [3]float32{1, 1, 1}); err != nil {
			t.Fatal(err)
		}
	}
	runFrame(t, b, tl, cam)

	got, err := tl.TileLights(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("TileLights: %v", err)
	}
	if !slices.Equal(got, []uint32{0, 1}) {
		t.Errorf("capped tile lights = %v, want [0 1]", got)
	}
}

func TestCullLightsUsesDepthSamples(t *testing.T) {
	const width, height = 32, 32
	b, tl := newTestTiler(t, width, height)
	cam := newTestCamera(width, height)

	collect := func() {
		t.Helper()
		if err := tl.AddPointLight(common.Vec3{}, 1, [3]float32{1, 1, 1}); err != nil {
			t.Fatal(err)
		}
	}

	collect()
	runFrame(t, b, tl, cam)
	if got, _ := tl.TileLights(context.Background(), 1, 1); len(got) != 1 {
		t.Fatalf("without depth samples tile lights = %v, want one light", got)
	}

	// Geometry at view depth 2 hides a light 10 units away.
	depth := make([]float32, width*height)
	for i := range depth {
		depth[i] = 2
	}
	tl.SetDepthSamples(depth)
	collect()
	runFrame(t, b, tl, cam)
	if got, _ := tl.TileLights(context.Background(), 1, 1); len(got) != 0 {
		t.Errorf("occluded tile lights = %v, want none", got)
	}
}

func TestTilerResize(t *testing.T) {
	_, tl := newTestTiler(t, 1920, 1080)
	if x, y := tl.TileCount(); x != 120 || y != 68 {
		t.Fatalf("tile grid = %dx%d", x, y)
	}
	if err := tl.AddPointLight(common.Vec3{}, 1, [3]float32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := tl.Resize(1921, 1080); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if x, y := tl.TileCount(); x != 121 || y != 68 {
		t.Errorf("tile grid after resize = %dx%d, want 121x68", x, y)
	}
	want := uint64(IndexBufferLength(121, 68, DefaultMaxLightsPerTile) * 4)
	if got := tl.IndexBuffer().Size(); got < want {
		t.Errorf("index buffer size = %d, want at least %d", got, want)
	}
	if tl.State() != TilerStateIdle || len(tl.PointLights()) != 0 {
		t.Errorf("resize kept state %v with %d lights", tl.State(), len(tl.PointLights()))
	}
}

func TestTilerResizeGrowsIndexBufferOnly(t *testing.T) {
	b, tl := newTestTiler(t, 640, 480)
	first := tl.IndexBuffer()

	// 40x30 tiles round up to 2048; shrinking and small growth stay inside.
	for _, size := range [][2]int{{320, 240}, {700, 500}, {640, 480}} {
		if err := tl.Resize(size[0], size[1]); err != nil {
			t.Fatalf("Resize(%v): %v", size, err)
		}
		if tl.IndexBuffer() != first || first.Destroyed() {
			t.Fatalf("Resize(%v) replaced the index buffer", size)
		}
	}

	if err := tl.Resize(1920, 1080); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if tl.IndexBuffer() == first || !first.Destroyed() {
		t.Fatal("growing past the capacity kept the old index buffer")
	}
	// Large enough to reach the top rows, which the smaller grid below reuses.
	if err := tl.AddPointLight(common.Vec3{}, 8, [3]float32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	runFrame(t, b, tl, newTestCamera(1920, 1080))
	filled := 0
	for _, list := range readTileLists(t, b, tl)[:20*15] {
		filled += len(list)
	}
	if filled == 0 {
		t.Fatal("the large grid left the reused prefix empty")
	}
	if err := tl.Resize(320, 240); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	// A resize clears every list of the new grid, even ones the previous grid filled.
	for i, list := range readTileLists(t, b, tl) {
		if len(list) != 0 {
			t.Fatalf("tile %d after resize = %v, want empty", i, list)
		}
	}
}

func TestIndexBufferStartsEmpty(t *testing.T) {
	b, tl := newTestTiler(t, 100, 60)
	data, err := b.ReadBuffer(context.Background(), tl.IndexBuffer(), 0, tl.IndexBuffer().Size())
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	for i := 0; i+4 <= len(data); i += 4 {
		if v := binary.LittleEndian.Uint32(data[i:]); v != LightListEnd {
			t.Fatalf("entry %d = %#x before the first cull, want LightListEnd", i/4, v)
		}
	}
}

func TestLightSetsFollowFramesInFlight(t *testing.T) {
	b, tl := newTestTiler(t, 64, 64)
	cam := newTestCamera(64, 64)

	var points []resource.Resource
	for frame := 0; frame < 6; frame++ {
		if err := tl.AddPointLight(common.Vec3{float32(frame), 0, 0}, 1, [3]float32{1, 1, 1}); err != nil {
			t.Fatal(err)
		}
		runFrame(t, b, tl, cam)
		points = append(points, tl.PointLightBuffer())
		if frame > 0 && points[frame] == points[frame-1] {
			t.Fatalf("frame %d rewrote the light buffer of the previous frame", frame)
		}
		if tl.UniformBuffer() == nil || tl.SpotLightBuffer() == nil {
			t.Fatalf("frame %d has no uniform or spot buffer", frame)
		}
	}
	// The noop fence completes every submission, so two sets alternate.
	if got := tl.LightSets(); got != 2 {
		t.Errorf("light sets = %d, want 2", got)
	}

	// The data of the last frame is what the bound buffer holds.
	data, err := b.ReadBuffer(context.Background(), tl.PointLightBuffer(), 0, GPUPointLightSize)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if x := math.Float32frombits(binary.LittleEndian.Uint32(data)); x != 5 {
		t.Errorf("point light x = %v, want 5", x)
	}
}

func TestLightSetsWaitForFence(t *testing.T) {
	b, tl := newTestTiler(t, 64, 64)
	cam := newTestCamera(64, 64)

	// Frames stamped with a value the fence has not reached keep their sets busy.
	for frame := 0; frame < 3; frame++ {
		cl, err := b.Begin("pending")
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := tl.UpdateLightBuffers(cl); err != nil {
			t.Fatalf("UpdateLightBuffers: %v", err)
		}
		if err := tl.CullLights(cl, cam.proj, cam.view, nil); err != nil {
			t.Fatalf("CullLights: %v", err)
		}
		if _, err := tl.Consume(cl); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if err := b.Submit(cl); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		tl.EndFrame(1 << 40)
		tl.Reset()
	}
	if got := tl.LightSets(); got != 3 {
		t.Errorf("light sets = %d, want 3", got)
	}
}

func TestTilerStateViolations(t *testing.T) {
	if common.DebugBuild {
		t.Skip("contract violations panic in debug builds")
	}
	b, tl := newTestTiler(t, 64, 64)
	cam := newTestCamera(64, 64)
	cl, err := b.Begin("violations")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer b.Submit(cl)

	if err := tl.CullLights(cl, cam.proj, cam.view, nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("CullLights in Idle = %v, want ErrInvalidState", err)
	}
	if _, err := tl.Consume(cl); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Consume in Idle = %v, want ErrInvalidState", err)
	}
	if _, err := tl.TileLights(context.Background(), 0, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("TileLights in Idle = %v, want ErrInvalidState", err)
	}

	if err := tl.UpdateLightBuffers(cl); err != nil {
		t.Fatalf("UpdateLightBuffers with no lights: %v", err)
	}
	if err := tl.AddPointLight(common.Vec3{}, 1, [3]float32{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("AddPointLight after upload = %v, want ErrInvalidState", err)
	}
	if err := tl.UpdateLightBuffers(cl); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second UpdateLightBuffers = %v, want ErrInvalidState", err)
	}
	if err := tl.CullLights(cl, common.Mat4{}, cam.view, nil); err == nil {
		t.Error("CullLights with a singular projection succeeded")
	}

	tl.Reset()
	if tl.State() != TilerStateIdle {
		t.Errorf("state after Reset = %v", tl.State())
	}
}

func TestCollectAfterConsumeStartsNewFrame(t *testing.T) {
	b, tl := newTestTiler(t, 64, 64)
	cam := newTestCamera(64, 64)
	if err := tl.AddPointLight(common.Vec3{}, 1, [3]float32{1, 1, 1}); err != nil {
		t.Fatal(err)
	}
	cl := runFrame(t, b, tl, cam)
	if cl.Barriers() == 0 {
		t.Error("frame recorded no barriers")
	}

	if err := tl.AddSpotLight(common.Vec3{}, 2, [3]float32{1, 1, 1}, 0.9, common.Vec3{0, 0, -1}); err != nil {
		t.Fatalf("AddSpotLight after Consume: %v", err)
	}
	if len(tl.PointLights()) != 0 || len(tl.SpotLights()) != 1 {
		t.Errorf("new frame has %d points, %d spots", len(tl.PointLights()), len(tl.SpotLights()))
	}
}
