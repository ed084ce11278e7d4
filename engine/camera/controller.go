package camera

import (
	"math"
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
)

// Controller owns the eye position and look-at target of a Camera.
// The orbit implementation places the eye on a sphere around the target using a radius, an azimuth
// around +Y and an elevation above the horizontal plane. Panning moves eye and target together.
type Controller interface {
	// Position returns the world-space eye position.
	Position() common.Vec3

	// Target returns the look-at point.
	Target() common.Vec3

	// SetTarget moves the pivot and recomputes the eye position.
	//
	// Parameters:
	//   - target: world-space look-at point
	SetTarget(target common.Vec3)

	// Orbit rotates the eye around the target. Elevation is clamped to the configured bounds.
	//
	// Parameters:
	//   - dAzimuth: change of the horizontal angle in radians
	//   - dElevation: change of the vertical angle in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves the eye towards the target by delta * ZoomSpeed, clamped to the radius bounds.
	// Positive delta zooms in.
	//
	// Parameters:
	//   - delta: zoom amount
	Zoom(delta float32)

	// Pan translates eye and target along the camera's right, up and forward axes scaled by PanSpeed.
	//
	// Parameters:
	//   - right, up, forward: movement along each local axis
	Pan(right, up, forward float32)

	// Radius returns the distance between eye and target.
	Radius() float32

	// Azimuth returns the horizontal angle in radians.
	Azimuth() float32

	// Elevation returns the vertical angle in radians.
	Elevation() float32
}

// orbitController is the implementation of the Controller interface.
type orbitController struct {
	mu *sync.Mutex

	position common.Vec3
	target   common.Vec3

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	zoomSpeed float32
	panSpeed  float32
}

var _ Controller = &orbitController{}

// NewOrbitController creates an orbit controller looking at the origin from 10 units away.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - Controller: the newly created controller
func NewOrbitController(options ...ControllerOption) Controller {
	cc := &orbitController{
		mu:           &sync.Mutex{},
		radius:       10.0,
		elevation:    float32(math.Pi / 6),
		minRadius:    0.5,
		maxRadius:    500.0,
		minElevation: float32(-math.Pi/2 + 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),
		zoomSpeed:    1.0,
		panSpeed:     1.0,
	}
	for _, option := range options {
		option(cc)
	}
	cc.radius = clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = clamp(cc.elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
	return cc
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

// updatePosition recomputes the eye from the spherical coordinates. Caller must hold the mutex.
func (cc *orbitController) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position = cc.target.Add(common.Vec3{
		cc.radius * cosElev * sinAzim,
		cc.radius * sinElev,
		cc.radius * cosElev * cosAzim,
	})
}

// axes returns the right, up and forward vectors matching common.LookAt with a +Y world up.
// Caller must hold the mutex.
func (cc *orbitController) axes() (right, up, forward common.Vec3) {
	forward = cc.target.Sub(cc.position).Normalize()
	right = forward.Cross(common.Vec3{0, 1, 0}).Normalize()
	up = right.Cross(forward)
	return right, up, forward
}

func (cc *orbitController) Position() common.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *orbitController) Target() common.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *orbitController) SetTarget(target common.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *orbitController) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth = float32(math.Remainder(float64(cc.azimuth+dAzimuth), 2*math.Pi))
	cc.elevation = clamp(cc.elevation+dElevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *orbitController) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *orbitController) Pan(right, up, forward float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	r, u, f := cc.axes()
	move := r.Scale(right * cc.panSpeed).Add(u.Scale(up * cc.panSpeed)).Add(f.Scale(forward * cc.panSpeed))
	cc.target = cc.target.Add(move)
	cc.position = cc.position.Add(move)
}

func (cc *orbitController) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *orbitController) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *orbitController) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}
