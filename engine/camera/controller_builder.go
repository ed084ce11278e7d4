package camera

import "github.com/bioglaze/aether3d-sub000/common"

// ControllerOption configures an orbit controller.
type ControllerOption func(*orbitController)

// WithRadius sets the initial distance from the target.
//
// Parameters:
//   - radius: distance from target
//
// Returns:
//   - ControllerOption: functional option to set the radius
func WithRadius(radius float32) ControllerOption {
	return func(cc *orbitController) {
		cc.radius = radius
	}
}

// WithAngles sets the initial azimuth and elevation in radians.
//
// Parameters:
//   - azimuth: horizontal angle around +Y
//   - elevation: vertical angle above the horizontal plane
//
// Returns:
//   - ControllerOption: functional option to set both angles
func WithAngles(azimuth, elevation float32) ControllerOption {
	return func(cc *orbitController) {
		cc.azimuth, cc.elevation = azimuth, elevation
	}
}

// WithTarget sets the initial look-at point.
//
// Parameters:
//   - target: world-space pivot
//
// Returns:
//   - ControllerOption: functional option to set the target
func WithTarget(target common.Vec3) ControllerOption {
	return func(cc *orbitController) {
		cc.target = target
	}
}

// WithRadiusBounds sets the zoom limits.
//
// Parameters:
//   - lo, hi: minimum and maximum distance from the target
//
// Returns:
//   - ControllerOption: functional option to set the radius bounds
func WithRadiusBounds(lo, hi float32) ControllerOption {
	return func(cc *orbitController) {
		cc.minRadius, cc.maxRadius = lo, hi
	}
}

// WithElevationBounds sets the vertical angle limits in radians.
//
// Parameters:
//   - lo, hi: minimum and maximum elevation
//
// Returns:
//   - ControllerOption: functional option to set the elevation bounds
func WithElevationBounds(lo, hi float32) ControllerOption {
	return func(cc *orbitController) {
		cc.minElevation, cc.maxElevation = lo, hi
	}
}

// WithZoomSpeed scales Zoom deltas.
func WithZoomSpeed(speed float32) ControllerOption {
	return func(cc *orbitController) {
		cc.zoomSpeed = speed
	}
}

// WithPanSpeed scales Pan deltas.
func WithPanSpeed(speed float32) ControllerOption {
	return func(cc *orbitController) {
		cc.panSpeed = speed
	}
}
