// Command forwardplus renders a grid of cubes, and optionally a glTF model, lit by a swarm of moving
// point and spot lights through the Forward+ renderer.
//
// Controls: left mouse drag orbits, scroll zooms, WASD pans, Q/E moves up and down, Escape quits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine"
	"github.com/bioglaze/aether3d-sub000/engine/camera"
	"github.com/bioglaze/aether3d-sub000/engine/loader"
	"github.com/bioglaze/aether3d-sub000/engine/profiler"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	_ "github.com/bioglaze/aether3d-sub000/engine/renderer/backend/wgpubackend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/pipeline"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
	"github.com/bioglaze/aether3d-sub000/engine/scene"
	"github.com/bioglaze/aether3d-sub000/engine/window"
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

const (
	// cubeSpacing is the distance between neighbouring cube centers.
	cubeSpacing = 2.5
	// glassEvery makes every n-th cube a translucent one.
	glassEvery = 7
)

var (
	backendName = flag.String("backend", "auto", "GPU backend: "+backendNames())
	width       = flag.Int("width", 1280, "Window width in pixels")
	height      = flag.Int("height", 720, "Window height in pixels")
	gridSide    = flag.Int("grid", 12, "Cubes per side of the grid")
	pointLights = flag.Int("points", 512, "Number of point lights")
	spotLights  = flag.Int("spots", 32, "Number of spot lights")
	lightRange  = flag.Float64("range", 4, "Point light radius")
	texturePath = flag.String("texture", "", "Path to a texture image (PNG, JPEG, BMP, TIFF, WebP)")
	modelPath   = flag.String("model", "", "Path to a glTF or GLB model shown above the grid")
	modelSize   = flag.Float64("model-size", 4, "Diameter the model is scaled to")
	wireframe   = flag.Bool("wireframe", false, "Draw cubes as wireframe")
	vsync       = flag.Bool("vsync", true, "Wait for vertical blank when presenting")
	msaa        = flag.Int("msaa", 1, "Back buffer sample count (1, 4 or 8)")
	cpuCulling  = flag.Bool("cpu-culling", false, "Cull lights on the CPU instead of in a compute shader")
	frames      = flag.Int("frames", 0, "Exit after this many frames (0 runs until the window closes)")
	seed        = flag.Uint64("seed", 1, "Random seed of the light swarm")
	verbose     = flag.Bool("v", false, "Log at debug level")
	profile     = flag.Bool("profile", true, "Log frame statistics every second")
)

func backendNames() string {
	var names []string
	for t := backend.BackendTypeAuto; t <= backend.BackendTypeNoop; t++ {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

func parseBackend(name string) (backend.BackendType, error) {
	for t := backend.BackendTypeAuto; t <= backend.BackendTypeNoop; t++ {
		if strings.EqualFold(name, t.String()) {
			return t, nil
		}
	}
	return backend.BackendTypeAuto, fmt.Errorf("unknown backend %q, want one of %s", name, backendNames())
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(); err != nil {
		common.Logger().Error("forwardplus failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	backendType, err := parseBackend(*backendName)
	if err != nil {
		return err
	}
	headless := backendType == backend.BackendTypeNoop

	var win window.Window
	if !headless {
		win, err = window.NewWindow(
			window.WithTitle("Forward+ | "+backendType.String()),
			window.WithSize(*width, *height),
			window.WithMinWidth(64),
			window.WithMinHeight(64),
		)
		if err != nil {
			return err
		}
		defer func() {
			if err := win.Close(); err != nil && !errors.Is(err, window.ErrClosed) {
				common.Logger().Warn("close window", "err", err)
			}
		}()
	}

	engineOptions := []engine.EngineBuilderOption{
		engine.WithTickRate(60),
		engine.WithProfiling(*profile),
		engine.WithProfiler(profiler.NewProfiler(profiler.WithInterval(time.Second))),
	}
	if win != nil {
		engineOptions = append(engineOptions, engine.WithWindow(win))
	}
	eng := engine.NewEngine(engineOptions...)

	presentMode := backend.PresentModeVSync
	if !*vsync {
		presentMode = backend.PresentModeUncapped
	}
	rendererOptions := []renderer.RendererBuilderOption{
		renderer.WithPresentMode(presentMode),
		renderer.WithMSAA(backend.MSAASampleCount(*msaa)),
		renderer.WithMaxLights(max(*pointLights, *spotLights, 1)),
		renderer.WithFatalHandler(eng.HandleFatal),
		renderer.WithHeadlessSize(*width, *height),
		renderer.WithDebug(*verbose),
	}
	if *cpuCulling {
		rendererOptions = append(rendererOptions, renderer.WithCPULightCulling())
	}
	var surface backend.SurfaceSource
	if win != nil {
		surface = win
	}
	r, err := renderer.NewRenderer(backendType, surface, rendererOptions...)
	if err != nil {
		return err
	}
	defer r.Destroy()
	common.Logger().Info("renderer ready", "backend", r.Backend().Capabilities().Name)

	demo, err := newDemo(r)
	if err != nil {
		return err
	}
	defer demo.Destroy()
	eng.AddScene(0, demo.scene)

	eng.SetRenderCallback(demo.animate)
	if win != nil {
		demo.bindInput(eng, win)
	}

	if headless {
		return runFrames(eng, *frames)
	}
	if *frames > 0 {
		var count int
		eng.SetRenderCallback(func(dt float32) {
			demo.animate(dt)
			if count++; count >= *frames {
				eng.Quit()
			}
		})
	}
	return eng.Run()
}

// runFrames drives a headless engine for n frames, 1 when n is not positive.
func runFrames(eng engine.Engine, n int) error {
	const step = time.Second / 60
	for i := range max(n, 1) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := eng.RenderFrame(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := eng.Err(); err != nil {
			return err
		}
		time.Sleep(step)
	}
	return nil
}

// demo holds the scene content.
type demo struct {
	scene  scene.Scene
	cam    camera.Camera
	models loader.Loader
	swarm  *lightSwarm
	cubes  []scene.Object
	marker []scene.Object
	model  []scene.Object
	spin   float32
}

func newDemo(r renderer.Renderer) (*demo, error) {
	w, h := r.Size()
	half := float32(*gridSide) * cubeSpacing / 2

	cam := camera.NewCamera(
		camera.WithFov(float32(60*math.Pi/180)),
		camera.WithAspect(float32(w)/float32(h)),
		camera.WithClipPlanes(0.1, 200),
		camera.WithController(camera.NewOrbitController(
			camera.WithRadius(half*1.6),
			camera.WithAngles(0.6, 0.5),
			camera.WithRadiusBounds(2, 150),
			camera.WithZoomSpeed(1.5),
			camera.WithPanSpeed(0.3),
		)),
	)

	sc, err := scene.NewScene("forward+ demo", cam, r, scene.WithClearColor(0.02, 0.02, 0.03, 1))
	if err != nil {
		return nil, err
	}
	d := &demo{scene: sc, cam: cam, models: loader.NewLoader(loader.BackendTypeGLTF, loader.WithRenderer(r))}
	if err := d.populate(r, half); err != nil {
		d.Destroy()
		return nil, err
	}
	return d, nil
}

// Destroy releases the scene and the loaded models.
func (d *demo) Destroy() {
	d.scene.Destroy()
	d.models.Destroy()
}

// addModel loads the -model file and places it above the center of the grid. A model that cannot be
// loaded is logged and skipped.
func (d *demo) addModel(lit shader.Shader, fill pipeline.FillMode) {
	m, err := d.models.Load(*modelPath)
	if err != nil {
		common.Logger().Warn("model not loaded", "path", *modelPath, "err", err)
		return
	}
	scale := float32(*modelSize) / 2 / max(m.Radius, 1e-3)
	d.model = m.Objects(lit,
		scene.WithFill(fill),
		scene.WithTransform(common.Vec3{0, float32(*modelSize)/2 + 1.5, 0}, common.Vec3{}, common.Vec3{scale, scale, scale}),
	)
	for _, obj := range d.model {
		d.scene.Add(obj)
	}
	common.Logger().Info("model loaded", "name", m.Name, "parts", len(m.Parts), "faces", m.FaceCount())
}

func (d *demo) populate(r renderer.Renderer, half float32) error {
	lit := r.CreateShader("forward+ lit", shader.ShaderTypeRender, renderer.ForwardPlusSource)
	unlit := r.CreateShader("unlit", shader.ShaderTypeRender, renderer.UnlitSource)
	if lit.IsFallback() {
		common.Logger().Warn("lit shader unavailable, objects will not be drawn")
	}

	var tex resource.Resource
	if *texturePath != "" {
		tex = r.LoadTexture(*texturePath)
	} else {
		tex, _ = r.CreateTexture("checker", checker(64, 8, [4]byte{200, 200, 200, 255}, [4]byte{120, 120, 130, 255}))
	}

	cubeVertices, cubeIndices := buildCube()
	cube, err := uploadMesh(r, "cube", pipeline.VertexLayoutPTN, cubeVertices, cubeIndices)
	if err != nil {
		return err
	}
	groundVertices, groundIndices := buildGround(half + cubeSpacing)
	ground, err := uploadMesh(r, "ground", pipeline.VertexLayoutPTN, groundVertices, groundIndices)
	if err != nil {
		return err
	}

	markerVertices, markerIndices := buildMarkerCube()
	markerMesh, err := uploadMesh(r, "light marker", pipeline.VertexLayoutPTC, markerVertices, markerIndices)
	if err != nil {
		return err
	}

	d.scene.Add(scene.NewObject("ground", ground, lit,
		scene.WithTexture(tex),
		scene.WithBoundingRadius((half+cubeSpacing)*math.Sqrt2),
		scene.WithTransform(common.Vec3{0, -0.5, 0}, common.Vec3{}, common.Vec3{1, 1, 1}),
	))

	fill := pipeline.FillSolid
	if *wireframe {
		fill = pipeline.FillWireframe
	}
	side := *gridSide
	for i := range side * side {
		x := (float32(i%side) - float32(side-1)/2) * cubeSpacing
		z := (float32(i/side) - float32(side-1)/2) * cubeSpacing
		options := []scene.ObjectBuilderOption{
			scene.WithTexture(tex),
			scene.WithFill(fill),
			scene.WithTransform(common.Vec3{x, 0.5, z}, common.Vec3{}, common.Vec3{1, 1, 1}),
		}
		if i%glassEvery == glassEvery-1 {
			options = append(options, scene.WithBlend(pipeline.BlendAlpha), scene.WithTint(0.6, 0.8, 1, 0.35), scene.WithCull(pipeline.CullOff))
		}
		obj := scene.NewObject(fmt.Sprintf("cube %d", i), cube, lit, options...)
		d.scene.Add(obj)
		d.cubes = append(d.cubes, obj)
	}
	if *modelPath != "" {
		d.addModel(lit, fill)
	}

	d.swarm = newLightSwarm(*pointLights, *spotLights, half, float32(*lightRange), *seed)
	for i, l := range d.swarm.Lights() {
		d.scene.AddLight(l)
		// A few small additive markers show where the lights are.
		if i%16 != 0 {
			continue
		}
		c := l.Color()
		m := scene.NewObject(fmt.Sprintf("light %d", i), markerMesh, unlit,
			scene.WithBlend(pipeline.BlendAdditive),
			scene.WithTint(c[0], c[1], c[2], 1),
			scene.WithBoundingRadius(0.2),
			scene.WithTransform(d.swarm.position(i), common.Vec3{}, common.Vec3{0.1, 0.1, 0.1}),
		)
		d.scene.Add(m)
		d.marker = append(d.marker, m)
	}
	common.Logger().Info("scene populated", "cubes", len(d.cubes), "lights", len(d.swarm.lights), "grid", side)
	return nil
}

// animate runs on the render goroutine between the scene render and Present, so light updates are
// picked up by the next frame's collection.
func (d *demo) animate(dt float32) {
	if d.swarm.Step(dt) == 0 {
		return
	}
	for i, m := range d.marker {
		p := d.swarm.position(i * 16)
		m.SetPosition(p[0], p[1], p[2])
	}
	d.spin += dt
	for i, c := range d.cubes {
		if i%3 == 0 {
			c.SetRotation(0, d.spin*0.5+float32(i), 0)
		}
	}
	for _, m := range d.model {
		m.SetRotation(0, d.spin*0.2, 0)
	}
}

// bindInput wires orbit, zoom and pan controls. Window callbacks run on the main thread, the
// controller is safe for concurrent use.
func (d *demo) bindInput(eng engine.Engine, win window.Window) {
	var (
		mu       sync.Mutex
		keys     = make(map[uint32]bool)
		dragging bool
		lastX    int32
		lastY    int32
	)
	ctrl := d.cam.Controller()

	win.SetKeyDownCallback(func(key uint32) {
		mu.Lock()
		defer mu.Unlock()
		keys[key] = true
	})
	win.SetKeyUpCallback(func(key uint32) {
		mu.Lock()
		defer mu.Unlock()
		keys[key] = false
	})
	win.SetMouseButtonCallback(func(button window.MouseButton, pressed bool, x, y int32) {
		if button != window.MouseButtonLeft {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		dragging, lastX, lastY = pressed, x, y
	})
	win.SetMouseMoveCallback(func(x, y int32) {
		mu.Lock()
		defer mu.Unlock()
		if !dragging {
			return
		}
		ctrl.Orbit(float32(x-lastX)*-0.005, float32(y-lastY)*0.005)
		lastX, lastY = x, y
	})
	win.SetScrollCallback(func(delta float32) {
		ctrl.Zoom(delta)
	})

	eng.SetTickCallback(func(float32) {
		mu.Lock()
		var right, up, forward float32
		if keys[common.KeyD] {
			right++
		}
		if keys[common.KeyA] {
			right--
		}
		if keys[common.KeyQ] {
			up++
		}
		if keys[common.KeyE] {
			up--
		}
		if keys[common.KeyW] {
			forward++
		}
		if keys[common.KeyS] {
			forward--
		}
		mu.Unlock()
		if right != 0 || up != 0 || forward != 0 {
			ctrl.Pan(right, up, forward)
		}
		d.cam.Update()
	})
}
