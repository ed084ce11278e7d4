package scene

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/camera"
	"github.com/bioglaze/aether3d-sub000/engine/light"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
)

// ErrNoCamera is returned by Render when the scene has no camera.
var ErrNoCamera = errors.New("scene: no camera")

// Stats describes the last Render call.
type Stats struct {
	Objects     int
	Visible     int
	FrustumCull int
	Prepass     int
	Lights      int
}

// Scene is a set of objects and lights rendered with one camera.
//
// Render records a complete Forward+ frame into the renderer's open frame: lights are collected into
// the tiler, opaque objects are drawn into a depth/normal target, the tiler culls lights against it,
// then every visible object is shaded into the back buffer. Opaque objects draw in insertion order,
// transparent ones after them from back to front. The engine brackets Render with BeginFrame and
// Present; scenes never open or close frames themselves.
type Scene interface {
	// Name returns the scene name.
	Name() string

	// Active reports whether the engine renders the scene.
	Active() bool

	// SetActive enables or disables rendering.
	SetActive(active bool)

	// Camera returns the scene camera.
	Camera() camera.Camera

	// SetCamera replaces the camera.
	SetCamera(cam camera.Camera)

	// Renderer returns the renderer the scene records into.
	Renderer() renderer.Renderer

	// Add inserts an object and assigns it an ID.
	//
	// Parameters:
	//   - obj: the object, which must not belong to another scene
	//
	// Returns:
	//   - uint64: the assigned ID
	Add(obj Object) uint64

	// Get returns the object with the given ID, or nil.
	Get(id uint64) Object

	// Remove deletes the object with the given ID. Its mesh is not destroyed.
	Remove(id uint64)

	// Clear removes every object and light.
	Clear()

	// Count returns the number of objects.
	Count() int

	// AddLight adds a light. Disabled lights stay in the scene but are not collected.
	AddLight(l light.Light)

	// RemoveLight removes a light.
	RemoveLight(l light.Light)

	// Lights returns a copy of the scene lights.
	Lights() []light.Light

	// SetClearColor sets the back buffer clear color of the shaded pass.
	SetClearColor(r, g, b, a float64)

	// CullingDisabled reports whether frustum culling of objects is off.
	CullingDisabled() bool

	// SetCullingDisabled turns frustum culling of objects on or off.
	SetCullingDisabled(disabled bool)

	// DepthNormals returns the depth/normal prepass target.
	DepthNormals() renderer.RenderTarget

	// Render records the prepass, light culling and shaded pass into the open frame.
	//
	// Returns:
	//   - error: ErrNoCamera, renderer.ErrNoFrame, or a recording error
	Render() error

	// Resize recreates the depth/normal target and updates the camera aspect. The renderer must have
	// been resized first.
	//
	// Parameters:
	//   - width, height: the new back buffer size in pixels
	//
	// Returns:
	//   - error: render target creation error
	Resize(width, height int) error

	// Stats returns the counters of the last Render call.
	Stats() Stats

	// Destroy releases the depth/normal target.
	Destroy()
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool

	objects []Object
	byID    map[uint64]Object
	nextID  uint64
	lights  []light.Light

	cam camera.Camera
	r   renderer.Renderer

	depthShader  shader.Shader
	depthNormals renderer.RenderTarget
	clearColor   [4]float64

	cullingDisabled bool
	stats           Stats

	// Reused each frame.
	opaque      []drawState
	transparent []drawState
}

var _ Scene = &scene{}

// NewScene creates a scene that renders through r. The depth/normal target is sized to the renderer's
// back buffer.
//
// Parameters:
//   - name: the scene name
//   - cam: the camera; may be set later with SetCamera
//   - r: the renderer (must not be nil)
//   - options: functional options
//
// Returns:
//   - Scene: the new scene
//   - error: depth/normal target creation error
func NewScene(name string, cam camera.Camera, r renderer.Renderer, options ...SceneBuilderOption) (Scene, error) {
	if r == nil {
		return nil, errors.New("scene: NewScene requires a renderer")
	}
	s := &scene{
		mu:         &sync.RWMutex{},
		name:       name,
		active:     true,
		byID:       make(map[uint64]Object),
		nextID:     1,
		cam:        cam,
		r:          r,
		clearColor: [4]float64{0, 0, 0, 1},
	}
	for _, option := range options {
		option(s)
	}

	s.depthShader = r.CreateShader(name+" depth normals", shader.ShaderTypeRender, renderer.DepthNormalsSource)
	width, height := r.Size()
	if err := s.createDepthNormals(width, height); err != nil {
		return nil, err
	}
	common.Logger().Debug("scene created", "name", name, "width", width, "height", height)
	return s, nil
}

func (s *scene) createDepthNormals(width, height int) error {
	dn, err := s.r.CreateRenderTarget(renderer.DepthNormalsTarget(width, height))
	if err != nil {
		return fmt.Errorf("scene %q: %w", s.name, err)
	}
	if s.depthNormals != nil {
		s.depthNormals.Destroy()
	}
	s.depthNormals = dn
	return nil
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Renderer() renderer.Renderer {
	return s.r
}

func (s *scene) Add(obj Object) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !common.Assert(obj != nil && obj.ID() == 0, "scene: object is nil or already added", "scene", s.name) {
		return 0
	}
	id := s.nextID
	s.nextID++
	obj.setID(id)
	s.objects = append(s.objects, obj)
	s.byID[id] = obj
	return id
}

func (s *scene) Get(id uint64) Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

func (s *scene) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	s.objects = slices.DeleteFunc(s.objects, func(o Object) bool { return o == obj })
	obj.setID(0)
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.objects {
		obj.setID(0)
	}
	s.objects = nil
	s.lights = nil
	clear(s.byID)
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *scene) AddLight(l light.Light) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = slices.DeleteFunc(s.lights, func(x light.Light) bool { return x == l })
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lights)
}

func (s *scene) SetClearColor(r, g, b, a float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearColor = [4]float64{r, g, b, a}
}

func (s *scene) CullingDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cullingDisabled
}

func (s *scene) SetCullingDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cullingDisabled = disabled
}

func (s *scene) DepthNormals() renderer.RenderTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.depthNormals
}

func (s *scene) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *scene) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cam != nil {
		s.cam.SetAspect(float32(width) / float32(height))
	}
	return s.createDepthNormals(width, height)
}

func (s *scene) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depthNormals != nil {
		s.depthNormals.Destroy()
		s.depthNormals = nil
	}
}

func (s *scene) Render() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cam == nil {
		return ErrNoCamera
	}
	view := s.cam.ViewMatrix()
	proj := s.cam.ProjectionMatrix()
	viewProj := proj.Mul(view)

	if err := s.r.Lights().Collect(s.lights...); err != nil {
		return fmt.Errorf("scene %q: collect lights: %w", s.name, err)
	}
	s.gather(view)

	// The prepass clears depth to the far plane so tiles without geometry cull against the full range.
	s.r.SetRenderTarget(s.depthNormals, 0)
	s.r.SetClearColor(0, 0, 0, float64(s.cam.Far()))
	s.r.ClearScreen(renderer.ClearColor | renderer.ClearDepth)
	for i := range s.opaque {
		d := &s.opaque[i]
		if !d.prepass {
			continue
		}
		if err := s.draw(d, s.depthShader, view, viewProj); err != nil {
			return err
		}
		s.stats.Prepass++
	}

	if err := s.r.CullLights(proj, view, s.depthNormals); err != nil {
		return fmt.Errorf("scene %q: cull lights: %w", s.name, err)
	}

	s.r.SetRenderTarget(nil, 0)
	s.r.SetClearColor(s.clearColor[0], s.clearColor[1], s.clearColor[2], s.clearColor[3])
	s.r.ClearScreen(renderer.ClearColor | renderer.ClearDepth)
	for i := range s.opaque {
		if err := s.draw(&s.opaque[i], s.opaque[i].shader, view, viewProj); err != nil {
			return err
		}
	}
	for i := range s.transparent {
		if err := s.draw(&s.transparent[i], s.transparent[i].shader, view, viewProj); err != nil {
			return err
		}
	}
	return nil
}

// gather snapshots the visible objects into the opaque and transparent lists, the latter sorted from
// the farthest to the nearest view depth. Caller must hold the lock.
func (s *scene) gather(view common.Mat4) {
	frustum := s.cam.Frustum()
	s.opaque = s.opaque[:0]
	s.transparent = s.transparent[:0]
	s.stats = Stats{Objects: len(s.objects), Lights: len(s.lights)}

	for _, obj := range s.objects {
		if !obj.Visible() {
			continue
		}
		d := obj.state()
		if d.mesh == nil || d.mesh.Destroyed() || d.shader == nil {
			common.Logger().Debug("scene object skipped", "scene", s.name, "object", obj.Name())
			continue
		}
		if !s.cullingDisabled && !frustum.IntersectsSphere(d.center, d.radius) {
			s.stats.FrustumCull++
			continue
		}
		if obj.Transparent() {
			s.transparent = append(s.transparent, d)
		} else {
			s.opaque = append(s.opaque, d)
		}
	}
	s.stats.Visible = len(s.opaque) + len(s.transparent)

	// View space looks down -Z: the most negative z is the farthest.
	slices.SortStableFunc(s.transparent, func(a, b drawState) int {
		za, zb := view.TransformPoint(a.center)[2], view.TransformPoint(b.center)[2]
		switch {
		case za < zb:
			return -1
		case za > zb:
			return 1
		}
		return 0
	})
}

// draw fills the shader's uniform block for one object and records the draw.
func (s *scene) draw(d *drawState, sh shader.Shader, view, viewProj common.Mat4) error {
	u := sh.Uniforms()
	u.MVP = viewProj.Mul(d.model)
	u.ModelView = view.Mul(d.model)
	u.Tint = d.tint
	u.Texture = d.texture
	err := s.r.Draw(d.mesh, d.faces, sh, d.blend, d.depth, d.cull, d.fill, d.topology)
	if err != nil {
		return fmt.Errorf("scene %q: draw %q: %w", s.name, d.mesh.Label(), err)
	}
	return nil
}
