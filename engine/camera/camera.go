package camera

import (
	"math"
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
)

type cameraImpl struct {
	mu *sync.Mutex

	up common.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix           common.Mat4
	projectionMatrix     common.Mat4
	viewProjectionMatrix common.Mat4
	frustum              common.Frustum

	controller Controller
}

// Camera defines the interface for a perspective camera.
// The camera holds perspective settings and computes view and projection matrices
// from an attached Controller each frame via Update(). The projection uses WebGPU's 0..1
// clip depth, which is what the light tiler expects when it recovers the depth range.
type Camera interface {
	// Up returns the camera's up vector.
	Up() common.Vec3

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// Position returns the world-space eye position, the origin when no controller is attached.
	//
	// Returns:
	//   - common.Vec3: the eye position
	Position() common.Vec3

	// ViewMatrix returns the current view matrix.
	//
	// Returns:
	//   - common.Mat4: the world to view transform
	ViewMatrix() common.Mat4

	// ProjectionMatrix returns the current projection matrix.
	//
	// Returns:
	//   - common.Mat4: the view to clip transform
	ProjectionMatrix() common.Mat4

	// ViewProjectionMatrix returns projection * view.
	//
	// Returns:
	//   - common.Mat4: the combined matrix
	ViewProjectionMatrix() common.Mat4

	// Frustum returns the world-space view frustum of the current matrices.
	// Scenes use it to skip meshes outside the view before drawing them.
	//
	// Returns:
	//   - common.Frustum: six inward facing planes
	Frustum() common.Frustum

	// Controller returns the attached Controller, or nil.
	Controller() Controller

	// Update reads position and target from the controller and recomputes the matrices.
	// Should be called once per frame before the scene is rendered.
	// If no controller is attached, this method does nothing.
	Update()

	// SetUp sets the camera's up vector.
	//
	// Parameters:
	//   - up: the up vector
	SetUp(up common.Vec3)

	// SetFov sets the vertical field of view in radians and recomputes the matrices.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// SetAspect sets the aspect ratio and recomputes the matrices. Engines call it on resize.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// SetClipPlanes sets the near and far plane distances and recomputes the matrices.
	//
	// Parameters:
	//   - near: near plane distance, greater than zero
	//   - far: far plane distance, greater than near
	SetClipPlanes(near, far float32)

	// SetController attaches a Controller to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl Controller)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with a 45 degree field of view and 0.1..100 clip planes.
// Without a controller the view matrix stays at identity.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:               &sync.Mutex{},
		up:               common.Vec3{0, 1, 0},
		fov:              45.0 * (math.Pi / 180.0), // radians
		aspect:           1.0,
		near:             0.1,
		far:              100.0,
		viewMatrix:       common.Identity(),
		projectionMatrix: common.Identity(),
	}
	for _, option := range options {
		option(c)
	}
	if !common.Assert(c.near > 0 && c.far > c.near, "camera: invalid clip planes", "near", c.near, "far", c.far) {
		c.near, c.far = 0.1, 100.0
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Up() common.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Position() common.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return common.Vec3{}
	}
	return c.controller.Position()
}

func (c *cameraImpl) ViewMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frustum
}

func (c *cameraImpl) Controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.updateMatrices()
}

func (c *cameraImpl) SetUp(up common.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = up
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect <= 0 || math.IsNaN(float64(aspect)) {
		return
	}
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetClipPlanes(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !common.Assert(near > 0 && far > near, "camera: invalid clip planes", "near", near, "far", far) {
		return
	}
	c.near, c.far = near, far
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateMatrices()
}

// updateMatrices recalculates the projection, and the view from the controller when one is attached.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if c.controller != nil {
		c.viewMatrix = common.LookAt(c.controller.Position(), c.controller.Target(), c.up)
	}
	c.projectionMatrix = common.Perspective(c.fov, c.aspect, c.near, c.far)
	c.viewProjectionMatrix = c.projectionMatrix.Mul(c.viewMatrix)
	c.frustum = common.ExtractFrustum(c.viewProjectionMatrix)
}
