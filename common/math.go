package common

import (
	"math"
	"unsafe"
)

// Vec3 is a three component float vector.
type Vec3 [3]float32

// Mat4 is a 4x4 float matrix stored in column-major order (WebGPU convention).
// Element (row r, column c) lives at index c*4 + r.
type Mat4 [16]float32

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Length returns the euclidean length of v.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Normalize returns v scaled to unit length. A zero vector is returned unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Identity returns the identity matrix.
//
// Returns:
//   - Mat4: the identity matrix
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m * o. Applying the result to a vector applies o first, then m.
//
// Parameters:
//   - o: right-hand matrix
//
// Returns:
//   - Mat4: the product
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * o[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// MulVec4 returns m * v.
//
// Parameters:
//   - v: the column vector to transform
//
// Returns:
//   - [4]float32: the transformed vector
func (m Mat4) MulVec4(v [4]float32) [4]float32 {
	var out [4]float32
	for row := 0; row < 4; row++ {
		out[row] = m[row]*v[0] + m[4+row]*v[1] + m[8+row]*v[2] + m[12+row]*v[3]
	}
	return out
}

// TransformPoint transforms p with w = 1 and drops the resulting w.
// Correct for affine matrices such as model and view transforms.
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	r := m.MulVec4([4]float32{p[0], p[1], p[2], 1})
	return Vec3{r[0], r[1], r[2]}
}

// TransformDirection transforms d with w = 0.
func (m Mat4) TransformDirection(d Vec3) Vec3 {
	r := m.MulVec4([4]float32{d[0], d[1], d[2], 0})
	return Vec3{r[0], r[1], r[2]}
}

// Unproject transforms a homogeneous point by m and performs the perspective divide.
//
// Parameters:
//   - x, y, z: the point to transform (w is taken as 1)
//
// Returns:
//   - Vec3: the transformed point divided by its w component
func (m Mat4) Unproject(x, y, z float32) Vec3 {
	r := m.MulVec4([4]float32{x, y, z, 1})
	if r[3] == 0 {
		return Vec3{r[0], r[1], r[2]}
	}
	inv := 1 / r[3]
	return Vec3{r[0] * inv, r[1] * inv, r[2] * inv}
}

// Perspective creates a right-handed perspective projection for WebGPU clip space (depth 0..1).
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near plane distance (must be > 0)
//   - far: far plane distance (must be > near)
//
// Returns:
//   - Mat4: the projection matrix
func Perspective(fovY, aspect, near, far float32) Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	var out Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// PerspectiveDepthRange recovers the near and far plane distances from a matrix built by Perspective.
//
// Parameters:
//   - proj: a perspective projection matrix
//
// Returns:
//   - near: the near plane distance
//   - far: the far plane distance
func PerspectiveDepthRange(proj Mat4) (near, far float32) {
	if proj[10] == 0 || proj[10] == -1 {
		return 0, 0
	}
	near = proj[14] / proj[10]
	far = proj[14] / (proj[10] + 1)
	return near, far
}

// ModelMatrix constructs a model matrix from position, Euler rotation (Y * X * Z order) and scale.
//
// Parameters:
//   - pos: translation in world space
//   - rot: rotation angles in radians around each axis
//   - scale: scale factors along each axis
//
// Returns:
//   - Mat4: the model matrix
func ModelMatrix(pos, rot, scale Vec3) Mat4 {
	cx, sx := float32(math.Cos(float64(rot[0]))), float32(math.Sin(float64(rot[0])))
	cy, sy := float32(math.Cos(float64(rot[1]))), float32(math.Sin(float64(rot[1])))
	cz, sz := float32(math.Cos(float64(rot[2]))), float32(math.Sin(float64(rot[2])))

	return Mat4{
		(cy*cz + sy*sx*sz) * scale[0], (cx * sz) * scale[0], (-sy*cz + cy*sx*sz) * scale[0], 0,
		(cy*-sz + sy*sx*cz) * scale[1], (cx * cz) * scale[1], (sy*sz + cy*sx*cz) * scale[1], 0,
		(sy * cx) * scale[2], (-sx) * scale[2], (cy * cx) * scale[2], 0,
		pos[0], pos[1], pos[2], 1,
	}
}

// Inverse computes the inverse of m using cofactor expansion.
//
// Returns:
//   - Mat4: the inverse, or m unchanged when singular
//   - bool: false if m is singular
func (m Mat4) Inverse() (Mat4, bool) {
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return m, false
	}
	d := 1.0 / det

	return Mat4{
		(m[5]*c5 - m[6]*c4 + m[7]*c3) * d,
		(-m[1]*c5 + m[2]*c4 - m[3]*c3) * d,
		(m[13]*s5 - m[14]*s4 + m[15]*s3) * d,
		(-m[9]*s5 + m[10]*s4 - m[11]*s3) * d,

		(-m[4]*c5 + m[6]*c2 - m[7]*c1) * d,
		(m[0]*c5 - m[2]*c2 + m[3]*c1) * d,
		(-m[12]*s5 + m[14]*s2 - m[15]*s1) * d,
		(m[8]*s5 - m[10]*s2 + m[11]*s1) * d,

		(m[4]*c4 - m[5]*c2 + m[7]*c0) * d,
		(-m[0]*c4 + m[1]*c2 - m[3]*c0) * d,
		(m[12]*s4 - m[13]*s2 + m[15]*s0) * d,
		(-m[8]*s4 + m[9]*s2 - m[11]*s0) * d,

		(-m[4]*c3 + m[5]*c1 - m[6]*c0) * d,
		(m[0]*c3 - m[1]*c1 + m[2]*c0) * d,
		(-m[12]*s3 + m[13]*s1 - m[14]*s0) * d,
		(m[8]*s3 - m[9]*s1 + m[10]*s0) * d,
	}, true
}

// LookAt creates a right-handed view matrix looking from eye towards center.
//
// Parameters:
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector (typically 0,1,0)
//
// Returns:
//   - Mat4: the view matrix
func LookAt(eye, center, up Vec3) Mat4 {
	z := eye.Sub(center).Normalize()
	if z == (Vec3{}) {
		z = Vec3{0, 0, 1}
	}
	x := up.Cross(z).Normalize()
	y := z.Cross(x)

	return Mat4{
		x[0], y[0], z[0], 0,
		x[1], y[1], z[1], 0,
		x[2], y[2], z[2], 0,
		-x.Dot(eye), -y.Dot(eye), -z.Dot(eye), 1,
	}
}

// SliceToBytes returns a byte view of a slice for GPU uploads.
// The returned slice shares memory with data and must not outlive it.
//
// Parameters:
//   - data: source slice of any fixed-size type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(unsafe.Sizeof(zero))*len(data))
}
