package light

import (
	"math"

	"github.com/bioglaze/aether3d-sub000/common"
)

// TileSize is the width and height in pixels of each screen-space tile used
// for Forward+ light culling. The screen is divided into a grid of tiles, each
// TileSize × TileSize pixels, and lights are assigned to tiles by the culling
// pass so the fragment shader only evaluates lights relevant to each tile.
const TileSize = 16

// DefaultMaxLights is the default capacity of each of the point and spot light arrays.
// Lights collected beyond it are dropped.
const DefaultMaxLights = 2048

// DefaultMaxLightsPerTile is the default number of light indices stored per tile in
// the per-tile light index buffer. If more lights overlap a tile, excess
// lights are silently dropped.
const DefaultMaxLightsPerTile = 256

// LightListEnd terminates a tile's index list when it is shorter than the per-tile cap.
//
// A tile list holds indices into one combined index space: point light i is stored as i and spot
// light j as pointCount+j, where pointCount comes from the packed light counts.
const LightListEnd uint32 = 0xFFFFFFFF

// maxPackedCount is the largest count each half of the packed light counts can hold.
const maxPackedCount = 0xFFFF

// TileCounts computes the number of tiles in each dimension for a given screen
// resolution and TileSize. Partial tiles at the right and bottom edges count as whole tiles.
//
// Parameters:
//   - screenWidth: screen width in pixels
//   - screenHeight: screen height in pixels
//
// Returns:
//   - tileCountX: number of tile columns
//   - tileCountY: number of tile rows
func TileCounts(screenWidth, screenHeight int) (tileCountX, tileCountY uint32) {
	tileCountX = (uint32(max(screenWidth, 0)) + TileSize - 1) / TileSize
	tileCountY = (uint32(max(screenHeight, 0)) + TileSize - 1) / TileSize
	return
}

// PackLightCounts packs the point and spot light counts into one word: spot count in the high
// 16 bits, point count in the low 16 bits. Each count saturates at 0xFFFF; saturation is logged
// as a warning because the culling pass then ignores the lights past it.
//
// Parameters:
//   - pointCount: number of point lights
//   - spotCount: number of spot lights
//
// Returns:
//   - uint32: (spot&0xFFFF)<<16 | (point&0xFFFF)
func PackLightCounts(pointCount, spotCount int) uint32 {
	point := saturateCount(pointCount, "point")
	spot := saturateCount(spotCount, "spot")
	return spot<<16 | point
}

func saturateCount(n int, kind string) uint32 {
	switch {
	case n < 0:
		return 0
	case n > maxPackedCount:
		common.Logger().Warn("light count saturated", "kind", kind, "count", n, "max", maxPackedCount)
		return maxPackedCount
	}
	return uint32(n)
}

// UnpackLightCounts reverses PackLightCounts.
//
// Parameters:
//   - packed: the packed counts
//
// Returns:
//   - pointCount: the low 16 bits
//   - spotCount: the high 16 bits
func UnpackLightCounts(packed uint32) (pointCount, spotCount int) {
	return int(packed & maxPackedCount), int(packed >> 16)
}

// IndexBufferLength returns the number of uint32 entries in the per-tile light index buffer.
func IndexBufferLength(tileCountX, tileCountY uint32, maxLightsPerTile int) int {
	return int(tileCountX) * int(tileCountY) * maxLightsPerTile
}

// ConeBoundingSphere returns the tightest sphere enclosing a spot light cone.
//
// Wide cones (half-angle over 45°) are bounded by the sphere through the cap rim centered on the cap
// plane; narrow cones by the sphere through the apex and the rim.
//
// Parameters:
//   - apex: the cone apex (the light position)
//   - axis: the normalized cone axis
//   - radius: the cone length (the light range)
//   - coneCos: cosine of the cone half-angle
//
// Returns:
//   - center: the sphere center
//   - r: the sphere radius
func ConeBoundingSphere(apex, axis common.Vec3, radius, coneCos float32) (center common.Vec3, r float32) {
	const cos45 = 0.70710678
	if coneCos < cos45 {
		sin := float32(math.Sqrt(float64(max(0, 1-coneCos*coneCos))))
		return apex.Add(axis.Scale(radius * coneCos)), radius * sin
	}
	r = radius / (2 * coneCos)
	return apex.Add(axis.Scale(r)), r
}

// TileFrustum builds the view-space frustum slab of one tile.
//
// The four side planes pass through the eye and the tile's screen bounds unprojected onto the far plane;
// the near and far planes bound view depth (distance along -Z) to [minDepth, maxDepth]. All planes point
// inward, so common.Frustum.IntersectsSphere tests lights against the slab.
//
// Parameters:
//   - invProj: the inverse projection matrix
//   - tileX, tileY: the tile coordinates, tile (0, 0) is the top-left corner
//   - width, height: the screen size in pixels
//   - minDepth, maxDepth: the view depth range of the tile
//
// Returns:
//   - common.Frustum: the tile slab
func TileFrustum(invProj common.Mat4, tileX, tileY uint32, width, height int, minDepth, maxDepth float32) common.Frustum {
	w, h := float32(width), float32(height)
	x0 := float32(tileX * TileSize)
	y0 := float32(tileY * TileSize)
	x1 := min(x0+TileSize, w)
	y1 := min(y0+TileSize, h)
	corner := func(px, py float32) common.Vec3 {
		return invProj.Unproject(2*px/w-1, 1-2*py/h, 1)
	}
	c00, c10, c11, c01 := corner(x0, y0), corner(x1, y0), corner(x1, y1), corner(x0, y1)
	inside := corner((x0+x1)/2, (y0+y1)/2)

	var f common.Frustum
	f.Planes[common.FrustumTop] = common.PlaneThroughOrigin(c00, c10, inside)
	f.Planes[common.FrustumRight] = common.PlaneThroughOrigin(c10, c11, inside)
	f.Planes[common.FrustumBottom] = common.PlaneThroughOrigin(c11, c01, inside)
	f.Planes[common.FrustumLeft] = common.PlaneThroughOrigin(c01, c00, inside)
	f.Planes[common.FrustumNear] = common.Plane{Normal: common.Vec3{0, 0, -1}, Distance: -minDepth}
	f.Planes[common.FrustumFar] = common.Plane{Normal: common.Vec3{0, 0, 1}, Distance: maxDepth}
	return f
}
