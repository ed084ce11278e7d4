package common

// Plane represents the plane dot(Normal, p) + Distance = 0.
// The positive half-space is considered inside.
type Plane struct {
	Normal   Vec3
	Distance float32
}

// SignedDistance returns the signed distance from p to the plane (positive inside).
func (p Plane) SignedDistance(point Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

// PlaneThroughOrigin builds the plane spanned by two directions from the origin, oriented so that
// inside lies on the positive side.
//
// Parameters:
//   - a, b: two non-parallel directions lying in the plane
//   - inside: a point that must end up on the positive side
//
// Returns:
//   - Plane: the normalized plane with Distance 0
func PlaneThroughOrigin(a, b, inside Vec3) Plane {
	n := a.Cross(b).Normalize()
	if n.Dot(inside) < 0 {
		n = n.Scale(-1)
	}
	return Plane{Normal: n}
}

// Frustum represents the six planes of a view frustum. Planes point inward.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustum extracts normalized frustum planes from a combined projection * view matrix using
// the Gribb/Hartmann method adjusted for WebGPU's 0..1 clip depth.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the projection * view matrix
//
// Returns:
//   - Frustum: the extracted frustum
func ExtractFrustum(viewProj Mat4) Frustum {
	row := func(r int) [4]float32 {
		return [4]float32{viewProj[r], viewProj[4+r], viewProj[8+r], viewProj[12+r]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	combine := func(a [4]float32, b [4]float32, sign float32) Plane {
		p := Plane{
			Normal:   Vec3{a[0] + sign*b[0], a[1] + sign*b[1], a[2] + sign*b[2]},
			Distance: a[3] + sign*b[3],
		}
		if l := p.Normal.Length(); l > 0 {
			p.Normal = p.Normal.Scale(1 / l)
			p.Distance /= l
		}
		return p
	}

	var f Frustum
	f.Planes[FrustumLeft] = combine(r3, r0, 1)
	f.Planes[FrustumRight] = combine(r3, r0, -1)
	f.Planes[FrustumBottom] = combine(r3, r1, 1)
	f.Planes[FrustumTop] = combine(r3, r1, -1)
	f.Planes[FrustumNear] = combine(r2, [4]float32{}, 1)
	f.Planes[FrustumFar] = combine(r3, r2, -1)
	return f
}

// IntersectsSphere reports whether a sphere is at least partially inside the frustum.
//
// Parameters:
//   - center: sphere center in the frustum's space
//   - radius: sphere radius
//
// Returns:
//   - bool: false only when the sphere lies entirely outside one plane
func (f Frustum) IntersectsSphere(center Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(center) < -radius {
			return false
		}
	}
	return true
}
